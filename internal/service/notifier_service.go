package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-tutoring/portal-api/internal/models"
	"github.com/atlas-tutoring/portal-api/pkg/jobs"
)

type contactLister interface {
	ListParentContacts(ctx context.Context, classID string) ([]models.ParentContact, error)
}

type notificationRecorder interface {
	RecordNotification(delivered bool)
}

// Sender delivers one notification to one recipient. The portal only decides
// recipients and content; delivery transport lives behind this interface.
type Sender interface {
	Send(ctx context.Context, recipient string, message models.NotificationMessage) error
}

// LogSender is the default delivery backend: it records the notification in
// the application log. Useful in development and as a safe fallback when no
// mail transport is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds a log-backed sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send writes the notification to the log.
func (s *LogSender) Send(_ context.Context, recipient string, message models.NotificationMessage) error {
	s.logger.Sugar().Infow("notification delivered",
		"recipient", recipient,
		"subject", message.Subject,
	)
	return nil
}

type notificationPayload struct {
	Recipient string
	Message   models.NotificationMessage
}

// NotifierService fans schedule-change notices out to the parents of every
// ENROLLED student. Delivery is best-effort and asynchronous; a failure never
// rolls back or delays the schedule mutation that triggered it.
type NotifierService struct {
	contacts contactLister
	sender   Sender
	queue    *jobs.Queue
	metrics  notificationRecorder
	enabled  bool
	logger   *zap.Logger
}

// NewNotifierService constructs the notifier. Call Start before enqueueing.
func NewNotifierService(contacts contactLister, sender Sender, metrics notificationRecorder, cfg jobs.QueueConfig, enabled bool, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	s := &NotifierService{
		contacts: contacts,
		sender:   sender,
		metrics:  metrics,
		enabled:  enabled,
		logger:   logger,
	}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.deliver, cfg)
	return s
}

// Start launches the delivery workers.
func (s *NotifierService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains the delivery workers.
func (s *NotifierService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

func (s *NotifierService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		return fmt.Errorf("unexpected notification payload type %T", job.Payload)
	}
	err := s.sender.Send(ctx, payload.Recipient, payload.Message)
	if s.metrics != nil {
		s.metrics.RecordNotification(err == nil)
	}
	return err
}

// DiffSchedule compares the schedule-bearing fields of two class snapshots
// and reports exactly which ones changed.
func DiffSchedule(before, after *models.GroupClass) models.ScheduleDelta {
	delta := models.ScheduleDelta{ClassID: after.ID}
	record := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			delta.Changes = append(delta.Changes, models.FieldChange{Field: field, Old: oldValue, New: newValue})
		}
	}

	record("schedule_days", strings.Join(before.ScheduleDays, ","), strings.Join(after.ScheduleDays, ","))
	record("schedule_time", derefString(before.ScheduleTime), derefString(after.ScheduleTime))
	record("duration_minutes", fmt.Sprintf("%d", before.DurationMinutes), fmt.Sprintf("%d", after.DurationMinutes))
	record("start_date", before.StartDate.Format(DateFormat), after.StartDate.Format(DateFormat))
	record("end_date", before.EndDate.Format(DateFormat), after.EndDate.Format(DateFormat))
	record("location", before.Location, after.Location)
	record("location_link", derefString(before.LocationLink), derefString(after.LocationLink))
	return delta
}

// BuildScheduleChangeMessage renders the parent-facing notice for a delta.
func BuildScheduleChangeMessage(class *models.GroupClass, delta models.ScheduleDelta) models.NotificationMessage {
	var body strings.Builder
	fmt.Fprintf(&body, "The schedule for %s has been updated:\n", class.Title)
	for _, change := range delta.Changes {
		label := strings.ReplaceAll(change.Field, "_", " ")
		oldValue := change.Old
		if oldValue == "" {
			oldValue = "(none)"
		}
		newValue := change.New
		if newValue == "" {
			newValue = "(none)"
		}
		fmt.Fprintf(&body, "- %s: %s -> %s\n", label, oldValue, newValue)
	}
	return models.NotificationMessage{
		Subject: fmt.Sprintf("Schedule update: %s", class.Title),
		Body:    body.String(),
	}
}

// BuildSessionChangeMessage renders the notice for a single-occurrence
// override (cancellation, reschedule or restore).
func BuildSessionChangeMessage(class *models.GroupClass, exception *models.SessionException) models.NotificationMessage {
	var body strings.Builder
	date := exception.OriginalDate.Format(DateFormat)
	switch {
	case exception.Cancelled:
		fmt.Fprintf(&body, "The %s session on %s has been cancelled.\n", class.Title, date)
		if exception.CancellationReason != nil && *exception.CancellationReason != "" {
			fmt.Fprintf(&body, "Reason: %s\n", *exception.CancellationReason)
		}
	case exception.NewDate != nil || exception.NewTime != nil:
		fmt.Fprintf(&body, "The %s session on %s has been rescheduled", class.Title, date)
		if exception.NewDate != nil {
			fmt.Fprintf(&body, " to %s", exception.NewDate.Format(DateFormat))
		}
		if exception.NewTime != nil {
			fmt.Fprintf(&body, " at %s", *exception.NewTime)
		}
		body.WriteString(".\n")
	default:
		fmt.Fprintf(&body, "The %s session on %s will take place as originally scheduled.\n", class.Title, date)
	}
	return models.NotificationMessage{
		Subject: fmt.Sprintf("Session update: %s", class.Title),
		Body:    body.String(),
	}
}

// Notify fans the message out to every parent of an ENROLLED student. The
// returned result counts recipients accepted by the queue; per-delivery
// failures are retried by the queue and logged, never surfaced to the caller.
func (s *NotifierService) Notify(ctx context.Context, classID string, message models.NotificationMessage) models.NotificationResult {
	result := models.NotificationResult{}
	if !s.enabled {
		return result
	}

	contacts, err := s.contacts.ListParentContacts(ctx, classID)
	if err != nil {
		s.logger.Sugar().Errorw("failed to resolve notification recipients", "class_id", classID, "error", err)
		return result
	}

	for _, contact := range contacts {
		job := jobs.Job{
			ID:   uuid.NewString(),
			Type: "schedule-change",
			Payload: notificationPayload{
				Recipient: contact.ParentEmail,
				Message:   message,
			},
		}
		if err := s.queue.Enqueue(job); err != nil {
			result.Failed++
			s.logger.Sugar().Warnw("failed to enqueue notification", "recipient", contact.ParentEmail, "error", err)
			continue
		}
		result.Notified++
	}

	s.logger.Sugar().Infow("schedule change fan-out",
		"class_id", classID,
		"notified", result.Notified,
		"failed", result.Failed,
	)
	return result
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
