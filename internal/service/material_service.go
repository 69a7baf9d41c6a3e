package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
	"github.com/atlas-tutoring/portal-api/pkg/storage"
)

type classFileRepository interface {
	List(ctx context.Context, filter models.ClassFileFilter) ([]models.ClassFile, error)
	FindByID(ctx context.Context, id string) (*models.ClassFile, error)
	Create(ctx context.Context, file *models.ClassFile) error
	SetCurrent(ctx context.Context, file *models.ClassFile) error
	Delete(ctx context.Context, id string) error
}

// UploadMaterialRequest describes an incoming material upload.
type UploadMaterialRequest struct {
	Title      string
	WeekNumber *int
	MimeType   string
	SizeBytes  int64
	Filename   string
	Body       io.Reader
	UploadedBy string
}

// MaterialListing is a stored material plus its resolved week label.
type MaterialListing struct {
	models.ClassFile
	WeekLabel *string `json:"week_label,omitempty"`
}

// SignedDownload is a short-lived download grant for one material.
type SignedDownload struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MaterialService manages class material uploads and downloads. Files go to
// local storage; downloads go through short-lived signed tokens so material
// paths are never exposed directly.
type MaterialService struct {
	repo         classFileRepository
	classes      sessionClassReader
	store        *storage.LocalStorage
	signer       *storage.SignedURLSigner
	audit        auditWriter
	maxSizeBytes int64
	allowedMIMEs map[string]struct{}
	logger       *zap.Logger
}

// NewMaterialService constructs MaterialService.
func NewMaterialService(repo classFileRepository, classes sessionClassReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, audit auditWriter, maxSizeBytes int64, allowedMIMEs []string, logger *zap.Logger) *MaterialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSizeBytes <= 0 {
		maxSizeBytes = 25 << 20
	}
	allowed := make(map[string]struct{}, len(allowedMIMEs))
	for _, mime := range allowedMIMEs {
		allowed[mime] = struct{}{}
	}
	return &MaterialService{
		repo:         repo,
		classes:      classes,
		store:        store,
		signer:       signer,
		audit:        audit,
		maxSizeBytes: maxSizeBytes,
		allowedMIMEs: allowed,
		logger:       logger,
	}
}

// Upload validates, stores and records one material file.
func (s *MaterialService) Upload(ctx context.Context, classID string, req UploadMaterialRequest) (*MaterialListing, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title is required")
	}
	if req.SizeBytes <= 0 || req.SizeBytes > s.maxSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file size must be between 1 byte and %d bytes", s.maxSizeBytes))
	}
	if len(s.allowedMIMEs) > 0 {
		if _, ok := s.allowedMIMEs[req.MimeType]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", req.MimeType))
		}
	}

	buckets := BucketWeeks(class.StartDate, class.EndDate)
	if req.WeekNumber != nil {
		if _, ok := FindWeekBucket(buckets, *req.WeekNumber); !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "week number is outside the class date range")
		}
	}

	fileID := uuid.NewString()
	relPath := filepath.Join(classID, fileID+filepath.Ext(req.Filename))
	storedPath, err := s.store.SaveStream(relPath, req.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store material file")
	}

	file := &models.ClassFile{
		ID:         fileID,
		ClassID:    classID,
		Title:      req.Title,
		WeekNumber: req.WeekNumber,
		IsCurrent:  true,
		FilePath:   storedPath,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
		UploadedBy: req.UploadedBy,
	}
	if err := s.repo.Create(ctx, file); err != nil {
		if cleanupErr := s.store.Delete(storedPath); cleanupErr != nil {
			s.logger.Sugar().Warnw("failed to clean up orphan material file", "path", storedPath, "error", cleanupErr)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record material")
	}
	s.recordAudit(ctx, file)

	listing := s.toListing(*file, buckets)
	return &listing, nil
}

// List returns materials with week labels resolved against the class buckets.
func (s *MaterialService) List(ctx context.Context, filter models.ClassFileFilter) ([]MaterialListing, error) {
	class, err := s.loadClass(ctx, filter.ClassID)
	if err != nil {
		return nil, err
	}
	files, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}

	buckets := BucketWeeks(class.StartDate, class.EndDate)
	listings := make([]MaterialListing, 0, len(files))
	for _, file := range files {
		listings = append(listings, s.toListing(file, buckets))
	}
	return listings, nil
}

// GrantDownload issues a signed, short-lived download token for a material.
func (s *MaterialService) GrantDownload(ctx context.Context, fileID string) (*SignedDownload, error) {
	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}

	token, expiresAt, err := s.signer.Generate(file.ID, file.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &SignedDownload{
		Token:     token,
		URL:       fmt.Sprintf("/api/v1/downloads?token=%s", token),
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the underlying file.
func (s *MaterialService) ResolveDownload(ctx context.Context, token string) (*models.ClassFile, io.ReadCloser, error) {
	fileID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if file.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download token does not match the stored file")
	}

	reader, err := s.store.Open(file.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open material file")
	}
	return file, reader, nil
}

// SetCurrent marks one material as the current file for its week. Any sibling
// in the same week is demoted.
func (s *MaterialService) SetCurrent(ctx context.Context, fileID string) (*MaterialListing, error) {
	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if err := s.repo.SetCurrent(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update material")
	}

	class, err := s.loadClass(ctx, file.ClassID)
	if err != nil {
		return nil, err
	}
	listing := s.toListing(*file, BucketWeeks(class.StartDate, class.EndDate))
	return &listing, nil
}

// Delete removes a material record and its stored file.
func (s *MaterialService) Delete(ctx context.Context, fileID string) error {
	file, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if err := s.repo.Delete(ctx, fileID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete material")
	}
	if err := s.store.Delete(file.FilePath); err != nil {
		s.logger.Sugar().Warnw("failed to delete material file", "path", file.FilePath, "error", err)
	}
	return nil
}

func (s *MaterialService) toListing(file models.ClassFile, buckets []models.WeekBucket) MaterialListing {
	listing := MaterialListing{ClassFile: file}
	if file.WeekNumber != nil {
		if bucket, ok := FindWeekBucket(buckets, *file.WeekNumber); ok {
			label := WeekLabel(bucket)
			listing.WeekLabel = &label
		}
	}
	return listing
}

func (s *MaterialService) loadClass(ctx context.Context, classID string) (*models.GroupClass, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *MaterialService) recordAudit(ctx context.Context, file *models.ClassFile) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(map[string]interface{}{
		"title":     file.Title,
		"mime_type": file.MimeType,
		"size":      file.SizeBytes,
	})
	log := &models.AuditLog{
		Action:     models.AuditActionMaterialUpload,
		Resource:   "class_file",
		ResourceID: &file.ID,
		NewValues:  newValues,
	}
	if file.UploadedBy != "" {
		log.UserID = &file.UploadedBy
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Sugar().Warnw("failed to record material audit", "file_id", file.ID, "error", err)
	}
}
