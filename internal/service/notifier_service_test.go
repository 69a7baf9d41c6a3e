package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-tutoring/portal-api/internal/models"
	"github.com/atlas-tutoring/portal-api/pkg/jobs"
)

type mockContacts struct {
	contacts []models.ParentContact
	err      error
}

func (m *mockContacts) ListParentContacts(_ context.Context, _ string) ([]models.ParentContact, error) {
	return m.contacts, m.err
}

type recordingSender struct {
	mu       sync.Mutex
	sent     []string
	delivery chan struct{}
}

func newRecordingSender(expected int) *recordingSender {
	return &recordingSender{delivery: make(chan struct{}, expected)}
}

func (s *recordingSender) Send(_ context.Context, recipient string, _ models.NotificationMessage) error {
	s.mu.Lock()
	s.sent = append(s.sent, recipient)
	s.mu.Unlock()
	s.delivery <- struct{}{}
	return nil
}

func (s *recordingSender) waitFor(t *testing.T, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		select {
		case <-s.delivery:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i+1)
		}
	}
}

func TestNotifierFansOutToEnrolledParents(t *testing.T) {
	contacts := &mockContacts{contacts: []models.ParentContact{
		{EnrollmentID: "enr-1", StudentName: "Ada Park", ParentName: "Jo Park", ParentEmail: "jo@example.com"},
		{EnrollmentID: "enr-2", StudentName: "Ben Wu", ParentName: "Kim Wu", ParentEmail: "kim@example.com"},
	}}
	sender := newRecordingSender(2)
	svc := NewNotifierService(contacts, sender, nil, jobs.QueueConfig{Workers: 2}, true, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	result := svc.Notify(context.Background(), "class-1", models.NotificationMessage{Subject: "Schedule update"})
	assert.Equal(t, 2, result.Notified)
	assert.Equal(t, 0, result.Failed)

	sender.waitFor(t, 2)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.ElementsMatch(t, []string{"jo@example.com", "kim@example.com"}, sender.sent)
}

func TestNotifierDisabledIsNoop(t *testing.T) {
	contacts := &mockContacts{contacts: []models.ParentContact{
		{EnrollmentID: "enr-1", ParentEmail: "jo@example.com"},
	}}
	sender := newRecordingSender(1)
	svc := NewNotifierService(contacts, sender, nil, jobs.QueueConfig{}, false, nil)

	result := svc.Notify(context.Background(), "class-1", models.NotificationMessage{Subject: "Schedule update"})
	assert.Equal(t, 0, result.Notified)
	assert.Equal(t, 0, result.Failed)
}

func TestNotifierSurvivesContactLookupFailure(t *testing.T) {
	contacts := &mockContacts{err: assert.AnError}
	svc := NewNotifierService(contacts, newRecordingSender(0), nil, jobs.QueueConfig{}, true, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	result := svc.Notify(context.Background(), "class-1", models.NotificationMessage{Subject: "Schedule update"})
	assert.Equal(t, 0, result.Notified)
	assert.Equal(t, 0, result.Failed)
}

func TestBuildScheduleChangeMessage(t *testing.T) {
	class := juneClass()
	delta := models.ScheduleDelta{ClassID: class.ID, Changes: []models.FieldChange{
		{Field: "schedule_time", Old: "14:00", New: "16:00"},
		{Field: "location", Old: "Room 4", New: ""},
	}}

	message := BuildScheduleChangeMessage(class, delta)
	assert.Equal(t, "Schedule update: Algebra II", message.Subject)
	assert.Contains(t, message.Body, "schedule time: 14:00 -> 16:00")
	assert.Contains(t, message.Body, "location: Room 4 -> (none)")
}

func TestBuildSessionChangeMessage(t *testing.T) {
	class := juneClass()
	reason := "tutor travel"
	cancelled := &models.SessionException{
		OriginalDate:       date(2024, time.June, 4),
		Cancelled:          true,
		CancellationReason: &reason,
	}
	message := BuildSessionChangeMessage(class, cancelled)
	assert.Contains(t, message.Body, "cancelled")
	assert.Contains(t, message.Body, "tutor travel")

	newDate := date(2024, time.June, 21)
	newTime := "16:00"
	moved := &models.SessionException{
		OriginalDate: date(2024, time.June, 4),
		NewDate:      &newDate,
		NewTime:      &newTime,
	}
	message = BuildSessionChangeMessage(class, moved)
	assert.Contains(t, message.Body, "rescheduled")
	assert.Contains(t, message.Body, "2024-06-21")
	assert.Contains(t, message.Body, "16:00")

	restored := &models.SessionException{OriginalDate: date(2024, time.June, 4)}
	message = BuildSessionChangeMessage(class, restored)
	require.Contains(t, message.Body, "originally scheduled")
}
