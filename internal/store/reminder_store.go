package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lvls/supportbot/internal/model"
)

// CreateReminder inserts a new unsent reminder row.
func (s *Store) CreateReminder(ctx context.Context, taskID string, typ model.ReminderType, scheduledFor time.Time) (*model.Reminder, error) {
	r := &model.Reminder{
		ID:           uuid.New().String(),
		TaskID:       taskID,
		Type:         typ,
		ScheduledFor: scheduledFor.UTC(),
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, task_id, type, scheduled_for, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.Type, r.ScheduledFor, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating reminder: %w", err)
	}
	return r, nil
}

// GetReminder retrieves a reminder by id.
func (s *Store) GetReminder(ctx context.Context, id string) (*model.Reminder, error) {
	var r model.Reminder
	err := s.db.GetContext(ctx, &r, "SELECT * FROM reminders WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting reminder %s: %w", id, err)
	}
	return &r, nil
}

// RemindersForTask returns every reminder row for a task.
func (s *Store) RemindersForTask(ctx context.Context, taskID string) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := s.db.SelectContext(ctx, &reminders,
		"SELECT * FROM reminders WHERE task_id = ? ORDER BY scheduled_for ASC", taskID)
	if err != nil {
		return nil, fmt.Errorf("listing reminders for task %s: %w", taskID, err)
	}
	return reminders, nil
}

// MarkReminderSent records delivery.
func (s *Store) MarkReminderSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE reminders SET sent = 1, sent_at = ? WHERE id = ?",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking reminder %s sent: %w", id, err)
	}
	return nil
}

// UpdateReminderJobID attaches the queue job handle to a reminder row.
func (s *Store) UpdateReminderJobID(ctx context.Context, id, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE reminders SET job_id = ? WHERE id = ?", jobID, id)
	if err != nil {
		return fmt.Errorf("updating reminder %s job id: %w", id, err)
	}
	return nil
}

// CancelRemindersForTask bulk-marks every unsent reminder for a task as sent
// without delivering, so re-delivery can never occur. In-flight jobs for
// these reminders re-check the task's terminal status before acting.
func (s *Store) CancelRemindersForTask(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE reminders SET sent = 1 WHERE task_id = ? AND sent = 0", taskID)
	if err != nil {
		return fmt.Errorf("cancelling reminders for task %s: %w", taskID, err)
	}
	return nil
}
