package engine

import (
	"context"
	"strings"
	"time"

	"protodesk/internal/domain"
)

type ReminderOptions struct {
	ProtocolID   int64     `json:"protocol_id" validate:"gt=0"`
	Text         string    `json:"reminder_text" validate:"required"`
	Message      string    `json:"reminder_message"`
	ReminderDate time.Time `json:"reminder_date" validate:"required"`
	ActorID      int64     `json:"actor_id" validate:"gt=0"`
}

func (e Engine) CreateReminder(ctx context.Context, opts ReminderOptions) (domain.Reminder, error) {
	opts.Text = strings.TrimSpace(opts.Text)
	if err := e.check(opts); err != nil {
		return domain.Reminder{}, err
	}
	if _, err := e.Repo.GetProtocol(ctx, opts.ProtocolID); err != nil {
		return domain.Reminder{}, storageErr("get protocol", err)
	}
	rm, err := e.Repo.InsertReminder(ctx, domain.Reminder{
		ProtocolID:   opts.ProtocolID,
		Text:         opts.Text,
		Message:      strings.TrimSpace(opts.Message),
		ReminderDate: opts.ReminderDate.UTC(),
		CreatedBy:    opts.ActorID,
		CreatedAt:    e.now(),
	})
	return rm, storageErr("insert reminder", err)
}

func (e Engine) ListReminders(ctx context.Context, protocolID int64) ([]domain.Reminder, error) {
	if _, err := e.Repo.GetProtocol(ctx, protocolID); err != nil {
		return nil, storageErr("get protocol", err)
	}
	rs, err := e.Repo.ListReminders(ctx, protocolID)
	return rs, storageErr("list reminders", err)
}

// UpcomingReminders lists open reminders dated within the next window.
func (e Engine) UpcomingReminders(ctx context.Context, window time.Duration) ([]domain.Reminder, error) {
	if window <= 0 {
		return nil, &domain.ValidationError{Field: "hours", Reason: "must be greater than 0"}
	}
	now := e.now()
	rs, err := e.Repo.UpcomingReminders(ctx, now, now.Add(window))
	return rs, storageErr("list upcoming reminders", err)
}

func (e Engine) CompleteReminder(ctx context.Context, id int64) (domain.Reminder, error) {
	if err := e.Repo.CompleteReminder(ctx, id); err != nil {
		return domain.Reminder{}, storageErr("complete reminder", err)
	}
	rm, err := e.Repo.GetReminder(ctx, id)
	return rm, storageErr("get reminder", err)
}

// DueReminders returns unsent reminders dated before now plus lookahead.
func (e Engine) DueReminders(ctx context.Context, lookahead time.Duration, limit int) ([]domain.Reminder, error) {
	rs, err := e.Repo.DueReminders(ctx, e.now().Add(lookahead), limit)
	return rs, storageErr("list due reminders", err)
}

func (e Engine) MarkReminderSent(ctx context.Context, id int64) error {
	return storageErr("mark reminder sent", e.Repo.MarkReminderSent(ctx, id))
}

// MarkReminderAttempted records a partly failed delivery so the reminder yields to fresher ones.
func (e Engine) MarkReminderAttempted(ctx context.Context, id int64) error {
	return storageErr("mark reminder attempted", e.Repo.MarkReminderAttempted(ctx, id, e.now()))
}

func (e Engine) DeliveredHooks(ctx context.Context, reminderID int64) (map[string]bool, error) {
	hooks, err := e.Repo.DeliveredHooks(ctx, reminderID)
	return hooks, storageErr("list reminder deliveries", err)
}

func (e Engine) RecordDelivery(ctx context.Context, reminderID int64, hook string) error {
	return storageErr("record reminder delivery", e.Repo.RecordDelivery(ctx, reminderID, hook, e.now()))
}
