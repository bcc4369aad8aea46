// Package scheduler owns the task lifecycle clockwork: per-task
// reminders at the halfway point and 24 hours before the deadline, and
// a periodic sweep that flags overdue tasks and digests them to the
// operator. Reminders respect the quiet-window policy by deferring,
// not dropping.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/internal/model"
	"github.com/lvls/supportbot/internal/observability"
	"github.com/lvls/supportbot/internal/store"
	"github.com/lvls/supportbot/pkg/jobqueue"
	"github.com/lvls/supportbot/pkg/messenger"
	"github.com/lvls/supportbot/pkg/quietwindow"
	"github.com/lvls/supportbot/pkg/tools"
)

const (
	LaneReminders = "reminders"
	LaneSweep     = "sweep"

	sweepSchedule = "@every 15m"
)

// ReminderJob is the payload carried on the reminders lane.
type ReminderJob struct {
	ReminderID string             `json:"reminder_id"`
	TaskID     string             `json:"task_id"`
	Type       model.ReminderType `json:"type"`
}

// Scheduler wires reminder jobs and the deadline sweep onto the queue.
type Scheduler struct {
	store     *store.Store
	queue     *jobqueue.Queue
	msgr      messenger.Messenger
	quiet     *quietwindow.Policy
	founderID string
	location  *time.Location
	logger    zerolog.Logger
	cron      *cron.Cron
	now       func() time.Time
}

// Config wires a Scheduler.
type Config struct {
	Store     *store.Store
	Queue     *jobqueue.Queue
	Messenger messenger.Messenger
	Quiet     *quietwindow.Policy
	FounderID string
	Location  *time.Location
	Logger    zerolog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// New creates the scheduler and registers its lanes on the queue.
func New(cfg Config) (*Scheduler, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Scheduler{
		store:     cfg.Store,
		queue:     cfg.Queue,
		msgr:      cfg.Messenger,
		quiet:     cfg.Quiet,
		founderID: cfg.FounderID,
		location:  loc,
		logger:    cfg.Logger,
		now:       now,
	}

	cfg.Queue.RegisterLane(LaneReminders, jobqueue.LaneConfig{Concurrency: 5}, s.handleReminder)
	cfg.Queue.RegisterLane(LaneSweep, jobqueue.LaneConfig{Concurrency: 1}, s.handleSweep)

	return s, nil
}

// Start begins the periodic deadline sweep.
func (s *Scheduler) Start() error {
	if s.cron != nil {
		return nil
	}
	s.cron = cron.New(cron.WithLocation(s.location))
	if _, err := s.cron.AddFunc(sweepSchedule, s.enqueueSweep); err != nil {
		return fmt.Errorf("registering sweep schedule: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", sweepSchedule).Msg("Deadline sweep started")
	return nil
}

// Stop halts the sweep schedule. In-flight jobs finish on the queue.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Scheduler) enqueueSweep() {
	if _, err := s.queue.Enqueue(LaneSweep, struct{}{}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to enqueue deadline sweep")
	}
}

// ScheduleForTask persists and enqueues the standard reminders for a
// task with a deadline. Fire times already in the past are forfeited,
// never delivered late.
func (s *Scheduler) ScheduleForTask(ctx context.Context, task *model.Task) error {
	if task.Deadline == nil {
		return nil
	}

	now := s.now()
	halfway, dayBefore := tools.ReminderTimes(task.CreatedAt, *task.Deadline)

	plan := []struct {
		typ model.ReminderType
		at  time.Time
	}{
		{model.ReminderFiftyPercent, halfway},
		{model.ReminderTwentyFourHour, dayBefore},
	}

	for _, p := range plan {
		if !p.at.After(now) {
			s.logger.Debug().
				Str("taskId", task.ID).
				Str("type", string(p.typ)).
				Time("scheduledFor", p.at).
				Msg("Skipping reminder already in the past")
			continue
		}

		reminder, err := s.store.CreateReminder(ctx, task.ID, p.typ, p.at)
		if err != nil {
			return fmt.Errorf("creating %s reminder: %w", p.typ, err)
		}

		jobID, err := s.queue.EnqueueAfter(LaneReminders, ReminderJob{
			ReminderID: reminder.ID,
			TaskID:     task.ID,
			Type:       p.typ,
		}, p.at.Sub(now))
		if err != nil {
			return fmt.Errorf("enqueueing %s reminder: %w", p.typ, err)
		}

		if err := s.store.UpdateReminderJobID(ctx, reminder.ID, jobID); err != nil {
			s.logger.Warn().Err(err).Str("reminderId", reminder.ID).Msg("Failed to record reminder job id")
		}
	}

	return nil
}

// handleReminder delivers one reminder. Order matters: quiet-window
// check first, then cancellation and terminal-task checks, then
// delivery, then bookkeeping.
func (s *Scheduler) handleReminder(ctx context.Context, job jobqueue.Job) error {
	var payload ReminderJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding reminder job: %w", err)
	}

	now := s.now()
	if s.quiet != nil && s.quiet.ShouldDefer(now) {
		delay := s.quiet.DeferDelay(now)
		observability.RecordReminderDeferred()
		s.logger.Info().
			Str("reminderId", payload.ReminderID).
			Dur("delay", delay).
			Msg("Quiet window active, deferring reminder")
		return jobqueue.Defer(delay)
	}

	reminder, err := s.store.GetReminder(ctx, payload.ReminderID)
	if err != nil {
		return fmt.Errorf("loading reminder %s: %w", payload.ReminderID, err)
	}
	if reminder.Sent {
		// Cancelled or already delivered
		return nil
	}

	task, err := s.store.GetTask(ctx, payload.TaskID)
	if err != nil {
		return fmt.Errorf("loading task %s: %w", payload.TaskID, err)
	}
	if task.Status.IsTerminal() {
		observability.RecordReminderCancelled()
		if err := s.store.MarkReminderSent(ctx, reminder.ID); err != nil {
			return fmt.Errorf("marking reminder %s sent: %w", reminder.ID, err)
		}
		return nil
	}

	if task.AssignedTo == nil {
		s.logger.Warn().Str("taskId", task.ID).Msg("Reminder for unassigned task, nothing to deliver")
		return nil
	}
	member, err := s.store.TeamMemberByID(ctx, *task.AssignedTo)
	if err != nil {
		s.logger.Warn().Err(err).Str("taskId", task.ID).Msg("Reminder assignee not found, nothing to deliver")
		return nil
	}

	if err := s.deliverReminder(ctx, task, member, payload.Type); err != nil {
		return fmt.Errorf("delivering reminder %s: %w", reminder.ID, err)
	}

	if err := s.store.MarkReminderSent(ctx, reminder.ID); err != nil {
		return fmt.Errorf("marking reminder %s sent: %w", reminder.ID, err)
	}
	if err := s.store.MarkReminderFlagSent(ctx, task.ID, payload.Type); err != nil {
		s.logger.Warn().Err(err).Str("taskId", task.ID).Msg("Failed to record reminder flag on task")
	}

	s.audit(ctx, "reminder_sent", map[string]any{
		"reminderId": reminder.ID,
		"taskId":     task.ID,
		"type":       string(payload.Type),
	})
	observability.RecordReminderDelivered(string(payload.Type))
	return nil
}

func (s *Scheduler) deliverReminder(ctx context.Context, task *model.Task, member *model.TeamMember, typ model.ReminderType) error {
	if s.msgr == nil {
		return fmt.Errorf("messaging transport not configured")
	}

	text := s.reminderText(task, typ)

	channel := ""
	if task.ChannelID != nil {
		channel = *task.ChannelID
	} else {
		dm, err := s.msgr.OpenDM(ctx, member.UserID)
		if err != nil {
			return fmt.Errorf("opening assignee DM: %w", err)
		}
		channel = dm
	}

	_, err := s.msgr.Post(ctx, messenger.Message{
		ChannelID:     channel,
		Text:          text,
		MentionUserID: member.UserID,
	})
	return err
}

func (s *Scheduler) reminderText(task *model.Task, typ model.ReminderType) string {
	deadline := ""
	if task.Deadline != nil {
		deadline = tools.FormatDateTime(*task.Deadline, s.location)
	}

	switch typ {
	case model.ReminderFiftyPercent:
		return fmt.Sprintf("Reminder: %q is at its halfway point. Deadline: %s. Time left: %s.",
			task.Title, deadline, tools.TimeUntil(*task.Deadline, s.now()))
	case model.ReminderTwentyFourHour:
		return fmt.Sprintf("Reminder: %q is due in 24 hours (%s).", task.Title, deadline)
	default:
		return fmt.Sprintf("Reminder: %q. Deadline: %s.", task.Title, deadline)
	}
}

// handleSweep flags every unflagged overdue task, then sends one
// consolidated digest. Flagging happens before notification, so a
// failed digest never causes a re-flag on the next pass.
func (s *Scheduler) handleSweep(ctx context.Context, job jobqueue.Job) error {
	now := s.now()

	tasks, err := s.store.OverdueTasks(ctx, now)
	if err != nil {
		return fmt.Errorf("listing overdue tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	members, err := s.store.AllTeamMembers(ctx)
	if err != nil {
		return fmt.Errorf("resolving assignees: %w", err)
	}
	nameByID := make(map[string]string, len(members))
	for _, m := range members {
		nameByID[m.ID] = m.Name
	}

	var flagged []model.Task
	for _, t := range tasks {
		if err := s.store.MarkTaskOverdueFlagged(ctx, t.ID); err != nil {
			s.logger.Error().Err(err).Str("taskId", t.ID).Msg("Failed to flag overdue task")
			continue
		}
		flagged = append(flagged, t)
	}
	if len(flagged) == 0 {
		return nil
	}

	observability.RecordOverdueFlagged(len(flagged))
	s.audit(ctx, "overdue_sweep", map[string]any{"flagged": len(flagged)})

	var b strings.Builder
	fmt.Fprintf(&b, "Overdue tasks (%d):\n", len(flagged))
	for _, t := range flagged {
		assignee := "Unassigned"
		if t.AssignedTo != nil {
			if name, ok := nameByID[*t.AssignedTo]; ok {
				assignee = name
			}
		}
		fmt.Fprintf(&b, "- %q (%s), was due %s\n", t.Title, assignee, tools.FormatDate(*t.Deadline, s.location))
	}

	if err := s.notifyOperator(ctx, b.String()); err != nil {
		// Tasks stay flagged; the digest is lost, not retried.
		s.logger.Error().Err(err).Msg("Failed to deliver overdue digest")
	}
	return nil
}

func (s *Scheduler) notifyOperator(ctx context.Context, text string) error {
	if s.msgr == nil {
		return fmt.Errorf("messaging transport not configured")
	}
	channel, err := s.msgr.OpenDM(ctx, s.founderID)
	if err != nil {
		return err
	}
	_, err = s.msgr.Post(ctx, messenger.Message{ChannelID: channel, Text: text})
	return err
}

func (s *Scheduler) audit(ctx context.Context, action string, details map[string]any) {
	actor := "scheduler"
	if err := s.store.AppendAudit(ctx, store.AuditRecord{
		Action:  action,
		Actor:   &actor,
		Details: details,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("Failed to append audit row")
	}
}
