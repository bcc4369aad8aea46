package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lvls/supportbot/internal/model"
)

// CreateTaskParams carries the fields the agent supplies when creating a task.
type CreateTaskParams struct {
	Title       string
	Description string
	AssignedTo  *string
	AssignedBy  *string
	ChannelID   *string
	Priority    model.TaskPriority
	Deadline    *time.Time
}

// CreateTask inserts a new task in status pending.
func (s *Store) CreateTask(ctx context.Context, p CreateTaskParams) (*model.Task, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("task title must not be empty")
	}
	if p.Priority == "" {
		p.Priority = model.PriorityNormal
	}
	if !model.ValidPriority(p.Priority) {
		return nil, fmt.Errorf("invalid priority %q", p.Priority)
	}

	now := time.Now().UTC()
	task := &model.Task{
		ID:          uuid.New().String(),
		Title:       p.Title,
		Description: p.Description,
		AssignedTo:  p.AssignedTo,
		AssignedBy:  p.AssignedBy,
		ChannelID:   p.ChannelID,
		Status:      model.TaskStatusPending,
		Priority:    p.Priority,
		Deadline:    p.Deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, description, assigned_to, assigned_by, channel_id,
			status, priority, deadline, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.AssignedTo, task.AssignedBy,
		task.ChannelID, task.Status, task.Priority, task.Deadline,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return task, nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := s.db.GetContext(ctx, &task, "SELECT * FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return &task, nil
}

// ActiveTasks returns all non-terminal tasks ordered by deadline, tasks
// without a deadline last.
func (s *Store) ActiveTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks
		WHERE status NOT IN ('completed', 'cancelled')
		ORDER BY deadline IS NULL, deadline ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing active tasks: %w", err)
	}
	return tasks, nil
}

// TasksByAssignee returns non-terminal tasks for one member.
func (s *Store) TasksByAssignee(ctx context.Context, assigneeID string) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks
		WHERE assigned_to = ? AND status NOT IN ('completed', 'cancelled')
		ORDER BY deadline IS NULL, deadline ASC`, assigneeID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for %s: %w", assigneeID, err)
	}
	return tasks, nil
}

// OverdueTasks returns active tasks whose deadline has passed and which have
// not been flagged yet. The overdue_flagged predicate anchors the deadline
// sweep's idempotency.
func (s *Store) OverdueTasks(ctx context.Context, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks
		WHERE status IN ('pending', 'in_progress')
		  AND deadline IS NOT NULL
		  AND deadline < ?
		  AND overdue_flagged = 0
		ORDER BY deadline ASC`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing overdue tasks: %w", err)
	}
	return tasks, nil
}

// TasksDueThisWeek returns non-terminal tasks with a deadline within 7 days.
func (s *Store) TasksDueThisWeek(ctx context.Context, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks
		WHERE status NOT IN ('completed', 'cancelled')
		  AND deadline IS NOT NULL
		  AND deadline <= ?
		ORDER BY deadline ASC`, now.UTC().Add(7*24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("listing tasks due this week: %w", err)
	}
	return tasks, nil
}

// FindTaskByTitle returns the most recently created non-terminal task whose
// title contains the search term, optionally scoped to an assignee.
func (s *Store) FindTaskByTitle(ctx context.Context, searchTerm string, assigneeID *string) (*model.Task, error) {
	pattern := "%" + strings.ToLower(searchTerm) + "%"

	var task model.Task
	var err error
	if assigneeID != nil {
		err = s.db.GetContext(ctx, &task, `
			SELECT * FROM tasks
			WHERE assigned_to = ? AND LOWER(title) LIKE ?
			  AND status NOT IN ('completed', 'cancelled')
			ORDER BY created_at DESC LIMIT 1`, *assigneeID, pattern)
	} else {
		err = s.db.GetContext(ctx, &task, `
			SELECT * FROM tasks
			WHERE LOWER(title) LIKE ?
			  AND status NOT IN ('completed', 'cancelled')
			ORDER BY created_at DESC LIMIT 1`, pattern)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("searching tasks for %q: %w", searchTerm, err)
	}
	return &task, nil
}

// UpdateTaskStatus transitions a task's status; completed_at is set when the
// status becomes completed and cleared otherwise.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if status == model.TaskStatusCompleted {
		completedAt = &now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		status, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("updating task %s status: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTaskOverdueFlagged sets overdue_flagged and moves the task to overdue.
func (s *Store) MarkTaskOverdueFlagged(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET overdue_flagged = 1, status = 'overdue', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("flagging task %s overdue: %w", id, err)
	}
	return nil
}

// MarkReminderFlagSent records reminder delivery on the task row so status
// views can reflect delivery history independent of the reminder rows.
func (s *Store) MarkReminderFlagSent(ctx context.Context, id string, typ model.ReminderType) error {
	var column string
	switch typ {
	case model.ReminderFiftyPercent:
		column = "reminder_50_sent"
	case model.ReminderTwentyFourHour:
		column = "reminder_24h_sent"
	default:
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE tasks SET %s = 1, updated_at = ? WHERE id = ?", column),
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking %s on task %s: %w", column, id, err)
	}
	return nil
}
