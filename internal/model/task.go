package model

import "time"

// TaskStatus enumerates the lifecycle states of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusOverdue    TaskStatus = "overdue"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// TaskPriority enumerates task priority levels.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// ValidPriority reports whether p is one of the closed priority set.
func ValidPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a unit of work assigned to a team member. Tasks are never
// deleted, only transitioned to a terminal status.
type Task struct {
	ID             string       `db:"id"`
	Title          string       `db:"title"`
	Description    string       `db:"description"`
	AssignedTo     *string      `db:"assigned_to"`
	AssignedBy     *string      `db:"assigned_by"`
	ChannelID      *string      `db:"channel_id"`
	Status         TaskStatus   `db:"status"`
	Priority       TaskPriority `db:"priority"`
	Deadline       *time.Time   `db:"deadline"`
	CompletedAt    *time.Time   `db:"completed_at"`
	Reminder50Sent bool         `db:"reminder_50_sent"`
	Reminder24Sent bool         `db:"reminder_24h_sent"`
	OverdueFlagged bool         `db:"overdue_flagged"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

// ReminderType enumerates the kinds of scheduled nudges.
type ReminderType string

const (
	ReminderFiftyPercent   ReminderType = "50_percent"
	ReminderTwentyFourHour ReminderType = "24_hour"
	ReminderOverdue        ReminderType = "overdue"
	ReminderCustom         ReminderType = "custom"
)

// Reminder is a scheduled nudge tied to exactly one task. Cancellation is
// modeled as marking sent without delivering, so re-delivery cannot occur.
type Reminder struct {
	ID           string       `db:"id"`
	TaskID       string       `db:"task_id"`
	Type         ReminderType `db:"type"`
	ScheduledFor time.Time    `db:"scheduled_for"`
	Sent         bool         `db:"sent"`
	SentAt       *time.Time   `db:"sent_at"`
	JobID        *string      `db:"job_id"`
	CreatedAt    time.Time    `db:"created_at"`
}
