package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
	"github.com/atlas-tutoring/portal-api/pkg/export"
)

type attendanceRepository interface {
	ListForSession(ctx context.Context, classID string, originalDate time.Time) ([]models.SessionAttendanceRow, error)
	ReplaceForSession(ctx context.Context, classID string, originalDate time.Time, records []models.AttendanceRecord) error
	StudentSummary(ctx context.Context, classID, enrollmentID string) (*models.StudentAttendanceSummary, error)
}

type sessionResolver interface {
	GetSession(ctx context.Context, classID string, originalDate time.Time) (*models.MaterializedSession, error)
}

// AttendanceEntry is one student's mark in a save request.
type AttendanceEntry struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	Status       string  `json:"status" validate:"required,oneof=UNMARKED ATTENDED ABSENT CANCELLED_ADVANCE"`
	Notes        *string `json:"notes"`
}

// SaveAttendanceRequest replaces the full attendance set for one occurrence.
type SaveAttendanceRequest struct {
	Entries []AttendanceEntry `json:"entries" validate:"required,dive"`
}

// SessionAttendanceSheet pairs the roster with the session it belongs to, so
// callers can see attendance next to a CANCELLED state instead of losing it.
type SessionAttendanceSheet struct {
	Session *models.MaterializedSession   `json:"session"`
	Rows    []models.SessionAttendanceRow `json:"rows"`
}

// AttendanceService manages per-session attendance marks.
type AttendanceService struct {
	repo      attendanceRepository
	classes   sessionClassReader
	sessions  sessionResolver
	audit     auditWriter
	pdf       *export.PDFExporter
	csv       *export.CSVExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(repo attendanceRepository, classes sessionClassReader, sessions sessionResolver, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:      repo,
		classes:   classes,
		sessions:  sessions,
		audit:     audit,
		pdf:       export.NewPDFExporter(),
		csv:       export.NewCSVExporter(),
		validator: validate,
		logger:    logger,
	}
}

// GetForSession returns the roster for one occurrence. Every ENROLLED student
// appears; students never marked come back UNMARKED. The session itself is
// returned alongside so a cancelled occurrence still exposes any marks taken
// before the cancellation.
func (s *AttendanceService) GetForSession(ctx context.Context, classID string, originalDate time.Time) (*SessionAttendanceSheet, error) {
	session, err := s.sessions.GetSession(ctx, classID, originalDate)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListForSession(ctx, classID, session.OriginalDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session attendance")
	}
	return &SessionAttendanceSheet{Session: session, Rows: rows}, nil
}

// SaveForSession validates and stores the full attendance set for one
// occurrence in a single transaction. UNMARKED entries are not persisted;
// omitting a previously marked student resets them to UNMARKED.
func (s *AttendanceService) SaveForSession(ctx context.Context, classID string, originalDate time.Time, req SaveAttendanceRequest, actor *models.JWTClaims) (*SessionAttendanceSheet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	session, err := s.sessions.GetSession(ctx, classID, originalDate)
	if err != nil {
		return nil, err
	}

	roster, err := s.repo.ListForSession(ctx, classID, session.OriginalDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, row := range roster {
		enrolled[row.EnrollmentID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(req.Entries))
	records := make([]models.AttendanceRecord, 0, len(req.Entries))
	for _, entry := range req.Entries {
		if _, ok := enrolled[entry.EnrollmentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("enrollment %s is not part of this class", entry.EnrollmentID))
		}
		if _, ok := seen[entry.EnrollmentID]; ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate enrollment in attendance entries")
		}
		seen[entry.EnrollmentID] = struct{}{}

		status := models.AttendanceStatus(entry.Status)
		if status == models.AttendanceStatusUnmarked {
			continue
		}
		records = append(records, models.AttendanceRecord{
			EnrollmentID: entry.EnrollmentID,
			Status:       status,
			Notes:        entry.Notes,
		})
	}

	if err := s.repo.ReplaceForSession(ctx, classID, session.OriginalDate, records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	s.recordAudit(ctx, classID, session.OriginalDate, records, actor)

	return s.GetForSession(ctx, classID, session.OriginalDate)
}

// StudentSummary aggregates one enrollment's marks across the class.
func (s *AttendanceService) StudentSummary(ctx context.Context, classID, enrollmentID string) (*models.StudentAttendanceSummary, error) {
	summary, err := s.repo.StudentSummary(ctx, classID, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance summary")
	}
	return summary, nil
}

// ExportSession renders the session roster as a PDF or CSV document.
func (s *AttendanceService) ExportSession(ctx context.Context, classID string, originalDate time.Time, format string) ([]byte, string, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	sheet, err := s.GetForSession(ctx, classID, originalDate)
	if err != nil {
		return nil, "", err
	}

	data := export.Dataset{
		Info: []string{
			fmt.Sprintf("Class: %s (%s)", class.Title, class.Subject),
			fmt.Sprintf("Session: %s %s-%s", sheet.Session.EffectiveDate.Format(DateFormat), sheet.Session.EffectiveStartTime, sheet.Session.EffectiveEndTime),
			fmt.Sprintf("State: %s", sheet.Session.State),
		},
		Headers: []string{"Student", "Status", "Notes"},
	}
	for _, row := range sheet.Rows {
		notes := ""
		if row.Notes != nil {
			notes = *row.Notes
		}
		data.Rows = append(data.Rows, map[string]string{
			"Student": row.StudentName,
			"Status":  string(row.Status),
			"Notes":   notes,
		})
	}

	switch strings.ToLower(format) {
	case "csv":
		payload, err := s.csv.Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "", "pdf":
		payload, err := s.pdf.Render(data, "Attendance Sheet")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}
}

func (s *AttendanceService) recordAudit(ctx context.Context, classID string, originalDate time.Time, records []models.AttendanceRecord, actor *models.JWTClaims) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(map[string]interface{}{
		"original_date": originalDate.Format(DateFormat),
		"marked":        len(records),
	})
	log := &models.AuditLog{
		Action:     models.AuditActionAttendanceSave,
		Resource:   "session_attendance",
		ResourceID: &classID,
		NewValues:  newValues,
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Sugar().Warnw("failed to record attendance audit", "class_id", classID, "error", err)
	}
}
