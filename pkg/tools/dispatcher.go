package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/internal/model"
	"github.com/lvls/supportbot/internal/observability"
	"github.com/lvls/supportbot/internal/store"
	"github.com/lvls/supportbot/pkg/messenger"
)

// ReminderScheduler creates and enqueues the reminders for a newly
// created task with a deadline.
type ReminderScheduler interface {
	ScheduleForTask(ctx context.Context, task *model.Task) error
}

// Dispatcher executes decoded tool invocations against the store and
// the outbound transport. Every execution yields a Result envelope;
// failures are values fed back into the agent's transcript, never
// propagated errors.
type Dispatcher struct {
	store     *store.Store
	msgr      messenger.Messenger
	reminders ReminderScheduler
	founderID string
	location  *time.Location
	logger    zerolog.Logger
	now       func() time.Time
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Store     *store.Store
	Messenger messenger.Messenger
	Reminders ReminderScheduler
	FounderID string
	Location  *time.Location
	Logger    zerolog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewDispatcher creates a tool dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	observability.EnsureRegistered()

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		store:     cfg.Store,
		msgr:      cfg.Messenger,
		reminders: cfg.Reminders,
		founderID: cfg.FounderID,
		location:  loc,
		logger:    cfg.Logger,
		now:       now,
	}
}

// Execute validates, decodes, and runs one tool invocation.
func (d *Dispatcher) Execute(ctx context.Context, name string, input map[string]interface{}) Result {
	start := time.Now()

	inv, err := Decode(name, input)
	if err != nil {
		observability.RecordToolExecution(name, time.Since(start), false)
		return Fail("%s", err.Error())
	}

	result := d.dispatch(ctx, inv)

	observability.RecordToolExecution(name, time.Since(start), result.Success)
	if !result.Success {
		d.logger.Debug().
			Str("tool", name).
			Str("message", result.Message).
			Msg("Tool returned failure envelope")
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, inv Invocation) Result {
	switch in := inv.(type) {
	case CreateTaskInput:
		return d.createTask(ctx, in)
	case GetTasksInput:
		return d.getTasks(ctx, in)
	case CompleteTaskInput:
		return d.completeTask(ctx, in)
	case PostMessageInput:
		return d.postMessage(ctx, in)
	case LookupTeamMemberInput:
		return d.lookupTeamMember(ctx, in)
	case LookupChannelInput:
		return d.lookupChannel(ctx, in)
	case DraftClientMessageInput:
		return d.draftClientMessage(ctx, in)
	case SendInternalMessageInput:
		return d.sendInternalMessage(ctx, in)
	case SearchChannelHistoryInput:
		return d.searchChannelHistory(ctx, in)
	case ScheduleMessageInput:
		return d.scheduleMessage(ctx, in)
	case DMFounderInput:
		return d.dmFounder(ctx, in)
	case CheckUnansweredInput:
		return d.checkUnanswered(ctx, in)
	case RewriteContentInput, GenerateVariationsInput, AdaptForPlatformInput:
		// Content tools are passthroughs: the rewritten text is the
		// agent's own response, the run just records the request.
		return OK(inv, "Content tool request recorded. The rewritten text is in the response.")
	case ClassifyIntentInput:
		return OK(in, "Classification complete.")
	default:
		return Fail("unknown tool: %s", inv.ToolName())
	}
}

func (d *Dispatcher) createTask(ctx context.Context, in CreateTaskInput) Result {
	member, err := d.store.TeamMemberByName(ctx, in.AssigneeName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail("Team member %q not found. Available members can be looked up with lookup_team_member.", in.AssigneeName)
		}
		return Fail("Could not resolve assignee: %s", err)
	}

	var assignedBy *string
	if founder, err := d.store.Founder(ctx); err == nil {
		assignedBy = &founder.ID
	}

	var deadline *time.Time
	if in.Deadline != "" {
		parsed, ok := ParseDeadline(in.Deadline, d.now(), d.location)
		if !ok {
			return Fail("Could not parse deadline: %q", in.Deadline)
		}
		deadline = &parsed
	}

	priority := model.TaskPriority(in.Priority)
	if in.Priority == "" {
		priority = model.PriorityNormal
	}

	task, err := d.store.CreateTask(ctx, store.CreateTaskParams{
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  &member.ID,
		AssignedBy:  assignedBy,
		Priority:    priority,
		Deadline:    deadline,
	})
	if err != nil {
		return Fail("Could not create task: %s", err)
	}

	if deadline != nil && d.reminders != nil {
		if err := d.reminders.ScheduleForTask(ctx, task); err != nil {
			d.logger.Warn().Err(err).Str("taskId", task.ID).Msg("Failed to schedule reminders")
		}
	}

	d.audit(ctx, "task_created", map[string]any{
		"taskId":   task.ID,
		"assignee": member.Name,
		"title":    task.Title,
	}, nil)

	// Best-effort notification: a delivery failure must not fail the
	// creation itself.
	d.notifyTaskCreated(ctx, task, member, deadline)

	msg := fmt.Sprintf("Task %q assigned to %s", task.Title, member.Name)
	if deadline != nil {
		msg += fmt.Sprintf(" due %s. Reminders scheduled.", FormatDate(*deadline, d.location))
	} else {
		msg += ". No deadline set."
	}

	data := map[string]interface{}{
		"taskId":         task.ID,
		"assignee":       member.Name,
		"assigneeUserId": member.UserID,
	}
	if deadline != nil {
		data["deadline"] = deadline.Format(time.RFC3339)
	}
	return OK(data, "%s", msg)
}

func (d *Dispatcher) notifyTaskCreated(ctx context.Context, task *model.Task, member *model.TeamMember, deadline *time.Time) {
	if d.msgr == nil {
		return
	}

	channel := d.founderID
	if task.ChannelID != nil {
		channel = *task.ChannelID
	}

	deadlineText := "No deadline set."
	if deadline != nil {
		deadlineText = fmt.Sprintf("Deadline: %s.", FormatDate(*deadline, d.location))
	}

	_, err := d.msgr.Post(ctx, messenger.Message{
		ChannelID:     channel,
		Text:          fmt.Sprintf("New Task: %s. %s", task.Title, deadlineText),
		MentionUserID: member.UserID,
	})
	if err != nil {
		d.logger.Warn().Err(err).Str("taskId", task.ID).Msg("Failed to post task card")
	}
}

func (d *Dispatcher) getTasks(ctx context.Context, in GetTasksInput) Result {
	scope := in.Scope
	if scope == "" {
		scope = "active"
	}

	var (
		tasks []model.Task
		label string
		err   error
	)

	switch {
	case scope == "overdue":
		tasks, err = d.store.OverdueTasks(ctx, d.now())
		label = "Overdue tasks"
	case scope == "this_week":
		tasks, err = d.store.TasksDueThisWeek(ctx, d.now())
		label = "Tasks due this week"
	case in.PersonName != "":
		member, merr := d.store.TeamMemberByName(ctx, in.PersonName)
		if merr != nil {
			if errors.Is(merr, store.ErrNotFound) {
				return Fail("Team member %q not found.", in.PersonName)
			}
			return Fail("Could not resolve team member: %s", merr)
		}
		tasks, err = d.store.TasksByAssignee(ctx, member.ID)
		label = fmt.Sprintf("Active tasks for %s", member.Name)
	default:
		tasks, err = d.store.ActiveTasks(ctx)
		label = "All active tasks"
	}
	if err != nil {
		return Fail("Could not query tasks: %s", err)
	}

	members, err := d.store.AllTeamMembers(ctx)
	if err != nil {
		return Fail("Could not resolve assignees: %s", err)
	}
	nameByID := make(map[string]string, len(members))
	for _, m := range members {
		nameByID[m.ID] = m.Name
	}

	type taskView struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Assignee string `json:"assignee"`
		Status   string `json:"status"`
		Deadline string `json:"deadline"`
		TimeLeft string `json:"time_left,omitempty"`
		Priority string `json:"priority"`
	}

	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		view := taskView{
			ID:       shortID(t.ID),
			Title:    t.Title,
			Assignee: "Unassigned",
			Status:   string(t.Status),
			Deadline: "No deadline",
			Priority: string(t.Priority),
		}
		if t.AssignedTo != nil {
			if name, ok := nameByID[*t.AssignedTo]; ok {
				view.Assignee = name
			} else {
				view.Assignee = "Unknown"
			}
		}
		if t.Deadline != nil {
			view.Deadline = FormatDate(*t.Deadline, d.location)
			view.TimeLeft = TimeUntil(*t.Deadline, d.now())
		}
		views = append(views, view)
	}

	return OK(views, "%s: %d task(s) found.", label, len(tasks))
}

func (d *Dispatcher) completeTask(ctx context.Context, in CompleteTaskInput) Result {
	var assigneeID *string
	if in.PersonName != "" {
		if member, err := d.store.TeamMemberByName(ctx, in.PersonName); err == nil {
			assigneeID = &member.ID
		}
	}

	task, err := d.store.FindTaskByTitle(ctx, in.SearchTerm, assigneeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail("No active task found matching %q.", in.SearchTerm)
		}
		return Fail("Could not search tasks: %s", err)
	}

	if err := d.store.UpdateTaskStatus(ctx, task.ID, model.TaskStatusCompleted); err != nil {
		return Fail("Could not complete task: %s", err)
	}
	if err := d.store.CancelRemindersForTask(ctx, task.ID); err != nil {
		d.logger.Warn().Err(err).Str("taskId", task.ID).Msg("Failed to cancel reminders")
	}

	d.audit(ctx, "task_completed", map[string]any{
		"taskId": task.ID,
		"title":  task.Title,
	}, nil)

	return OK(map[string]interface{}{
		"taskId": task.ID,
		"title":  task.Title,
	}, "Task %q marked as complete. Reminders cancelled.", task.Title)
}

func (d *Dispatcher) lookupTeamMember(ctx context.Context, in LookupTeamMemberInput) Result {
	member, err := d.store.TeamMemberByName(ctx, in.Name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return Fail("Could not look up team member: %s", err)
		}
		all, aerr := d.store.AllTeamMembers(ctx)
		if aerr != nil {
			return Fail("No member found matching %q.", in.Name)
		}
		names := make([]string, 0, len(all))
		for _, m := range all {
			names = append(names, m.Name)
		}
		sort.Strings(names)
		return FailWithData(map[string]interface{}{"available": names},
			"No member found matching %q. Available: %s", in.Name, strings.Join(names, ", "))
	}

	role := ""
	if member.Role != nil {
		role = *member.Role
	}
	return OK(map[string]interface{}{
		"id":     member.ID,
		"name":   member.Name,
		"userId": member.UserID,
		"role":   role,
	}, "Found: %s (%s) — user ID: %s", member.Name, role, member.UserID)
}

func (d *Dispatcher) lookupChannel(ctx context.Context, in LookupChannelInput) Result {
	cfg, err := d.store.ChannelConfigByName(ctx, in.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Fail("No channel found matching %q.", in.Name)
		}
		return Fail("Could not look up channel: %s", err)
	}

	name := cfg.ChannelID
	if cfg.ChannelName != nil {
		name = *cfg.ChannelName
	}
	clientName := ""
	if cfg.ClientName != nil {
		clientName = *cfg.ClientName
	}

	summary := fmt.Sprintf("Found: #%s (%s", name, cfg.ChannelType)
	if cfg.RequiresApproval {
		summary += ", approval required"
	}
	summary += ")"

	return OK(map[string]interface{}{
		"channelId":        cfg.ChannelID,
		"name":             name,
		"type":             string(cfg.ChannelType),
		"clientName":       clientName,
		"requiresApproval": cfg.RequiresApproval,
	}, "%s", summary)
}

func (d *Dispatcher) postMessage(ctx context.Context, in PostMessageInput) Result {
	if d.msgr == nil {
		return Fail("Messaging transport not configured.")
	}

	_, err := d.msgr.Post(ctx, messenger.Message{
		ChannelID:     in.ChannelID,
		Text:          in.Message,
		MentionUserID: in.MentionUserID,
	})
	if err != nil {
		return Fail("Failed to post: %s", err)
	}
	return OK(nil, "Message posted to #%s.", in.ChannelID)
}

func (d *Dispatcher) draftClientMessage(ctx context.Context, in DraftClientMessageInput) Result {
	// Resolve the channel; an unknown name is used as a raw id so a
	// freshly created client channel can still be drafted for.
	channelID := in.ChannelName
	if cfg, err := d.store.ChannelConfigByName(ctx, in.ChannelName); err == nil {
		channelID = cfg.ChannelID
	}

	tone := in.Tone
	if tone == "" {
		tone = "warm"
	}

	requestedBy := "bot"
	approval, err := d.store.CreateApproval(ctx, store.CreateApprovalParams{
		Type:        model.ApprovalClientMessage,
		RequestedBy: &requestedBy,
		Payload: model.ApprovalPayload{
			DraftMessage:        "", // Filled from the agent's response before approval
			TargetChannel:       channelID,
			OriginalInstruction: in.Context,
			Extra:               map[string]string{"tone": tone},
		},
		TargetChannel: &channelID,
	})
	if err != nil {
		return Fail("Could not create approval request: %s", err)
	}

	return OK(map[string]interface{}{
		"approvalId":       approval.ID,
		"channelId":        channelID,
		"requiresApproval": true,
	}, "Approval request created for client channel #%s. Draft the message and it will be sent for approval.", channelID)
}

func (d *Dispatcher) sendInternalMessage(ctx context.Context, in SendInternalMessageInput) Result {
	// Fail closed: the channel must be provably non-client before
	// anything is delivered. An unknown or unreadable channel config
	// is treated exactly like a client channel.
	cfg, err := d.store.ChannelConfigByID(ctx, in.ChannelID)
	if err != nil {
		return Fail("Channel %s is not registered as internal — use draft_client_message instead. Client channels require approval.", in.ChannelID)
	}
	if cfg.ChannelType == model.ChannelClient {
		return Fail("This is a client channel — use draft_client_message instead. Client channels require approval.")
	}

	return d.postMessage(ctx, PostMessageInput(in))
}

func (d *Dispatcher) searchChannelHistory(ctx context.Context, in SearchChannelHistoryInput) Result {
	if d.msgr == nil {
		return Fail("Messaging transport not configured.")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	entries, err := d.msgr.History(ctx, in.ChannelID, time.Time{}, limit)
	if err != nil {
		return Fail("Failed to read channel: %s", err)
	}

	type historyView struct {
		User string `json:"user"`
		Text string `json:"text"`
		At   string `json:"at"`
	}
	views := make([]historyView, 0, len(entries))
	for _, e := range entries {
		views = append(views, historyView{
			User: e.UserID,
			Text: truncate(e.Text, 300),
			At:   e.Timestamp.Format(time.RFC3339),
		})
	}

	return OK(views, "Retrieved %d recent messages from #%s.", len(views), in.ChannelID)
}

func (d *Dispatcher) scheduleMessage(ctx context.Context, in ScheduleMessageInput) Result {
	if d.msgr == nil {
		return Fail("Messaging transport not configured.")
	}

	sendAt, ok := ParseDeadline(in.SendAt, d.now(), d.location)
	if !ok {
		return Fail("Could not parse date: %q", in.SendAt)
	}
	if !sendAt.After(d.now()) {
		return Fail("Send time %q is not in the future.", in.SendAt)
	}

	err := d.msgr.Schedule(ctx, messenger.Message{
		ChannelID: in.ChannelID,
		Text:      in.Message,
	}, sendAt)
	if err != nil {
		return Fail("Failed to schedule: %s", err)
	}

	return OK(nil, "Message scheduled for %s in #%s.", FormatDateTime(sendAt, d.location), in.ChannelID)
}

func (d *Dispatcher) dmFounder(ctx context.Context, in DMFounderInput) Result {
	if d.msgr == nil {
		return Fail("Messaging transport not configured.")
	}

	prefix := ""
	switch in.Urgency {
	case "high":
		prefix = "*HIGH PRIORITY* — "
	case "critical":
		prefix = "*CRITICAL* — "
	}

	channel, err := d.msgr.OpenDM(ctx, d.founderID)
	if err != nil {
		return Fail("Failed to DM founder: %s", err)
	}

	_, err = d.msgr.Post(ctx, messenger.Message{
		ChannelID: channel,
		Text:      prefix + in.Message,
	})
	if err != nil {
		return Fail("Failed to DM founder: %s", err)
	}
	return OK(nil, "DM sent to founder.")
}

func (d *Dispatcher) checkUnanswered(ctx context.Context, in CheckUnansweredInput) Result {
	if d.msgr == nil {
		return Fail("Messaging transport not configured.")
	}

	hoursBack := in.HoursBack
	if hoursBack <= 0 {
		hoursBack = 24
	}
	oldest := d.now().Add(-time.Duration(hoursBack) * time.Hour)

	scope := in.Scope
	if scope == "" {
		if in.ChannelName != "" {
			scope = "specific"
		} else {
			scope = "all_client"
		}
	}

	type scanTarget struct {
		id   string
		name string
	}
	var targets []scanTarget

	if scope == "specific" && in.ChannelName != "" {
		if cfg, err := d.store.ChannelConfigByName(ctx, in.ChannelName); err == nil {
			name := cfg.ChannelID
			if cfg.ChannelName != nil {
				name = *cfg.ChannelName
			}
			targets = append(targets, scanTarget{id: cfg.ChannelID, name: name})
		} else {
			// Fall back to using the input as a raw channel id
			targets = append(targets, scanTarget{id: in.ChannelName, name: in.ChannelName})
		}
	} else {
		channelType := model.ChannelClient
		if scope == "all_internal" {
			channelType = model.ChannelInternal
		}
		configs, err := d.store.ChannelsByType(ctx, channelType)
		if err != nil {
			return Fail("Could not list channels: %s", err)
		}
		for _, cfg := range configs {
			name := cfg.ChannelID
			if cfg.ChannelName != nil {
				name = *cfg.ChannelName
			}
			targets = append(targets, scanTarget{id: cfg.ChannelID, name: name})
		}
	}

	if len(targets) == 0 {
		return Fail("No channels found to scan.")
	}

	type unansweredMsg struct {
		User string `json:"user"`
		Text string `json:"text"`
		Age  string `json:"age"`
	}
	type channelReport struct {
		Channel   string          `json:"channel"`
		ChannelID string          `json:"channel_id"`
		Messages  []unansweredMsg `json:"messages"`
	}

	var (
		reports []channelReport
		skipped []string
		total   int
	)

	for _, target := range targets {
		entries, err := d.msgr.History(ctx, target.id, oldest, 50)
		if err != nil {
			// A single unreadable channel never aborts the scan
			d.logger.Warn().Err(err).Str("channel", target.name).Msg("Failed to read channel for unanswered check")
			skipped = append(skipped, target.name)
			continue
		}

		var unanswered []unansweredMsg
		for _, e := range entries {
			if e.FromBot || e.InThread || e.ReplyCount > 0 {
				continue
			}
			unanswered = append(unanswered, unansweredMsg{
				User: e.UserID,
				Text: truncate(e.Text, 200),
				Age:  ageLabel(d.now().Sub(e.Timestamp)),
			})
		}

		if len(unanswered) > 0 {
			total += len(unanswered)
			reports = append(reports, channelReport{
				Channel:   target.name,
				ChannelID: target.id,
				Messages:  unanswered,
			})
		}
	}

	data := map[string]interface{}{
		"channelsScanned":     len(targets),
		"totalUnanswered":     total,
		"unansweredByChannel": reports,
	}
	if len(skipped) > 0 {
		data["skipped"] = skipped
	}

	if total == 0 {
		return OK(data, "Scanned %d channel(s) — no unanswered messages found in the last %d hours.", len(targets), hoursBack)
	}
	return OK(data, "Found %d unanswered message(s) across %d channel(s) in the last %d hours.", total, len(reports), hoursBack)
}

func (d *Dispatcher) audit(ctx context.Context, action string, details map[string]any, channelID *string) {
	actor := d.founderID
	if err := d.store.AppendAudit(ctx, store.AuditRecord{
		Action:    action,
		Actor:     &actor,
		Details:   details,
		ChannelID: channelID,
	}); err != nil {
		d.logger.Warn().Err(err).Str("action", action).Msg("Failed to append audit row")
	}
	observability.RecordToolAudit(action, actor, "success", details)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func ageLabel(age time.Duration) string {
	hours := int(age.Hours())
	if hours < 1 {
		return "less than 1h ago"
	}
	return fmt.Sprintf("%dh ago", hours)
}
