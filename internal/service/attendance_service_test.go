package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

type mockAttendanceRepo struct {
	roster   []models.SessionAttendanceRow
	stored   map[string][]models.AttendanceRecord
	summary  *models.StudentAttendanceSummary
	replaced int
}

func (m *mockAttendanceRepo) storageKey(classID string, date time.Time) string {
	return classID + "|" + date.Format(DateFormat)
}

func (m *mockAttendanceRepo) ListForSession(_ context.Context, classID string, originalDate time.Time) ([]models.SessionAttendanceRow, error) {
	rows := make([]models.SessionAttendanceRow, len(m.roster))
	copy(rows, m.roster)
	for _, record := range m.stored[m.storageKey(classID, originalDate)] {
		for i := range rows {
			if rows[i].EnrollmentID == record.EnrollmentID {
				rows[i].Status = record.Status
				rows[i].Notes = record.Notes
			}
		}
	}
	return rows, nil
}

func (m *mockAttendanceRepo) ReplaceForSession(_ context.Context, classID string, originalDate time.Time, records []models.AttendanceRecord) error {
	if m.stored == nil {
		m.stored = make(map[string][]models.AttendanceRecord)
	}
	m.stored[m.storageKey(classID, originalDate)] = records
	m.replaced++
	return nil
}

func (m *mockAttendanceRepo) StudentSummary(_ context.Context, _, _ string) (*models.StudentAttendanceSummary, error) {
	return m.summary, nil
}

func defaultRoster() []models.SessionAttendanceRow {
	return []models.SessionAttendanceRow{
		{EnrollmentID: "enr-1", StudentID: "stu-1", StudentName: "Ada Park", Status: models.AttendanceStatusUnmarked},
		{EnrollmentID: "enr-2", StudentID: "stu-2", StudentName: "Ben Wu", Status: models.AttendanceStatusUnmarked},
	}
}

func newAttendanceService(repo *mockAttendanceRepo, audit *mockAuditRepo) *AttendanceService {
	classes := &mockClassReader{classes: map[string]*models.GroupClass{"class-1": juneClass()}}
	sessions := NewSessionService(classes, &mockExceptionRepo{}, nil, nil, nil, time.Minute, false, nil)
	var a auditWriter
	if audit != nil {
		a = audit
	}
	return NewAttendanceService(repo, classes, sessions, a, nil, nil)
}

func TestAttendanceGetForSessionDefaultsUnmarked(t *testing.T) {
	repo := &mockAttendanceRepo{roster: defaultRoster()}
	svc := newAttendanceService(repo, nil)

	sheet, err := svc.GetForSession(context.Background(), "class-1", date(2024, time.June, 4))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateGenerated, sheet.Session.State)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, models.AttendanceStatusUnmarked, sheet.Rows[0].Status)
}

func TestAttendanceGetForSessionUnknownDate(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{roster: defaultRoster()}, nil)

	_, err := svc.GetForSession(context.Background(), "class-1", date(2024, time.June, 5))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceSaveForSessionReplacesAtomically(t *testing.T) {
	repo := &mockAttendanceRepo{roster: defaultRoster()}
	audit := &mockAuditRepo{}
	svc := newAttendanceService(repo, audit)

	sheet, err := svc.SaveForSession(context.Background(), "class-1", date(2024, time.June, 4), SaveAttendanceRequest{
		Entries: []AttendanceEntry{
			{EnrollmentID: "enr-1", Status: "ATTENDED"},
			{EnrollmentID: "enr-2", Status: "CANCELLED_ADVANCE"},
		},
	}, &models.JWTClaims{UserID: "tutor-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.replaced)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, models.AttendanceStatusAttended, sheet.Rows[0].Status)
	assert.Equal(t, models.AttendanceStatusCancelledAdvance, sheet.Rows[1].Status)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionAttendanceSave, audit.logs[0].Action)
}

func TestAttendanceSaveUnmarkedEntriesNotPersisted(t *testing.T) {
	repo := &mockAttendanceRepo{roster: defaultRoster()}
	svc := newAttendanceService(repo, nil)

	_, err := svc.SaveForSession(context.Background(), "class-1", date(2024, time.June, 4), SaveAttendanceRequest{
		Entries: []AttendanceEntry{
			{EnrollmentID: "enr-1", Status: "ATTENDED"},
			{EnrollmentID: "enr-2", Status: "UNMARKED"},
		},
	}, nil)
	require.NoError(t, err)
	stored := repo.stored[repo.storageKey("class-1", date(2024, time.June, 4))]
	require.Len(t, stored, 1)
	assert.Equal(t, "enr-1", stored[0].EnrollmentID)
}

func TestAttendanceSaveRejectsUnknownEnrollment(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{roster: defaultRoster()}, nil)

	_, err := svc.SaveForSession(context.Background(), "class-1", date(2024, time.June, 4), SaveAttendanceRequest{
		Entries: []AttendanceEntry{
			{EnrollmentID: "enr-9", Status: "ATTENDED"},
		},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceSaveRejectsDuplicateEnrollment(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{roster: defaultRoster()}, nil)

	_, err := svc.SaveForSession(context.Background(), "class-1", date(2024, time.June, 4), SaveAttendanceRequest{
		Entries: []AttendanceEntry{
			{EnrollmentID: "enr-1", Status: "ATTENDED"},
			{EnrollmentID: "enr-1", Status: "ABSENT"},
		},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceExportSessionCSV(t *testing.T) {
	notes := "make-up session offered"
	repo := &mockAttendanceRepo{roster: defaultRoster()}
	repo.stored = map[string][]models.AttendanceRecord{
		repo.storageKey("class-1", date(2024, time.June, 4)): {
			{EnrollmentID: "enr-1", Status: models.AttendanceStatusAttended, Notes: &notes},
		},
	}
	svc := newAttendanceService(repo, nil)

	payload, contentType, err := svc.ExportSession(context.Background(), "class-1", date(2024, time.June, 4), "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(payload), "Ada Park")
	assert.Contains(t, string(payload), "ATTENDED")
	assert.Contains(t, string(payload), notes)
}

func TestAttendanceExportSessionPDF(t *testing.T) {
	svc := newAttendanceService(&mockAttendanceRepo{roster: defaultRoster()}, nil)

	payload, contentType, err := svc.ExportSession(context.Background(), "class-1", date(2024, time.June, 4), "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, payload)

	_, _, err = svc.ExportSession(context.Background(), "class-1", date(2024, time.June, 4), "xlsx")
	require.Error(t, err)
}
