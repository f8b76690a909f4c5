package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"protodesk/internal/domain"
)

const reminderColumns = `id,protocol_id,reminder_text,COALESCE(reminder_message,''),reminder_date,is_completed,is_sent,created_by,created_at`

func scanReminder(s scanner) (domain.Reminder, error) {
	var rm domain.Reminder
	var date, created string
	if err := s.Scan(&rm.ID, &rm.ProtocolID, &rm.Text, &rm.Message, &date, &rm.IsCompleted, &rm.IsSent, &rm.CreatedBy, &created); err != nil {
		return rm, err
	}
	var ts timeScan
	rm.ReminderDate = ts.at("reminder_date", date)
	rm.CreatedAt = ts.at("created_at", created)
	if ts.err != nil {
		return rm, fmt.Errorf("reminder %d %w", rm.ID, ts.err)
	}
	return rm, nil
}

func (r Repo) InsertReminder(ctx context.Context, rm domain.Reminder) (domain.Reminder, error) {
	res, err := r.conn().ExecContext(ctx, `INSERT INTO protocol_reminders(protocol_id,reminder_text,reminder_message,reminder_date,is_completed,is_sent,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		rm.ProtocolID, rm.Text, nullable(rm.Message), FormatTime(rm.ReminderDate), boolInt(rm.IsCompleted), boolInt(rm.IsSent), rm.CreatedBy, FormatTime(rm.CreatedAt))
	if err != nil {
		return rm, err
	}
	rm.ID, err = res.LastInsertId()
	return rm, err
}

func (r Repo) GetReminder(ctx context.Context, id int64) (domain.Reminder, error) {
	rm, err := scanReminder(r.conn().QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM protocol_reminders WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return rm, domain.NotFound("reminder", id)
	}
	return rm, err
}

func (r Repo) ListReminders(ctx context.Context, protocolID int64) ([]domain.Reminder, error) {
	return r.queryReminders(ctx, `SELECT `+reminderColumns+` FROM protocol_reminders WHERE protocol_id=? ORDER BY reminder_date, id`, protocolID)
}

// DueReminders returns unsent, uncompleted reminders dated at or before until.
func (r Repo) DueReminders(ctx context.Context, until time.Time, limit int) ([]domain.Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryReminders(ctx, `SELECT `+reminderColumns+` FROM protocol_reminders WHERE is_sent=0 AND is_completed=0 AND reminder_date<=?
		ORDER BY last_attempt_at IS NOT NULL, last_attempt_at, reminder_date, id LIMIT ?`,
		FormatTime(until), limit)
}

// MarkReminderAttempted moves a reminder behind never-tried ones in the due queue.
func (r Repo) MarkReminderAttempted(ctx context.Context, id int64, at time.Time) error {
	res, err := r.conn().ExecContext(ctx, `UPDATE protocol_reminders SET last_attempt_at=? WHERE id=?`, FormatTime(at), id)
	if err != nil {
		return err
	}
	return mustAffect(res, "reminder", id)
}

// DeliveredHooks returns the hooks that already accepted a reminder.
func (r Repo) DeliveredHooks(ctx context.Context, reminderID int64) (map[string]bool, error) {
	rows, err := r.conn().QueryContext(ctx, `SELECT hook FROM reminder_deliveries WHERE reminder_id=?`, reminderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	hooks := map[string]bool{}
	for rows.Next() {
		var hook string
		if err := rows.Scan(&hook); err != nil {
			return nil, err
		}
		hooks[hook] = true
	}
	return hooks, rows.Err()
}

func (r Repo) RecordDelivery(ctx context.Context, reminderID int64, hook string, at time.Time) error {
	_, err := r.conn().ExecContext(ctx, `INSERT OR IGNORE INTO reminder_deliveries(reminder_id,hook,delivered_at) VALUES (?,?,?)`,
		reminderID, hook, FormatTime(at))
	return err
}

// UpcomingReminders returns uncompleted reminders dated between from and to.
func (r Repo) UpcomingReminders(ctx context.Context, from, to time.Time) ([]domain.Reminder, error) {
	return r.queryReminders(ctx, `SELECT `+reminderColumns+` FROM protocol_reminders WHERE is_completed=0 AND reminder_date>=? AND reminder_date<=? ORDER BY reminder_date, id`,
		FormatTime(from), FormatTime(to))
}

func (r Repo) MarkReminderSent(ctx context.Context, id int64) error {
	res, err := r.conn().ExecContext(ctx, `UPDATE protocol_reminders SET is_sent=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "reminder", id)
}

func (r Repo) CompleteReminder(ctx context.Context, id int64) error {
	res, err := r.conn().ExecContext(ctx, `UPDATE protocol_reminders SET is_completed=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "reminder", id)
}

func (r Repo) queryReminders(ctx context.Context, query string, args ...any) ([]domain.Reminder, error) {
	rows, err := r.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reminder
	for rows.Next() {
		rm, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rm)
	}
	return res, rows.Err()
}
