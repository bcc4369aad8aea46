package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvls/supportbot/internal/model"
	"github.com/lvls/supportbot/internal/store"
	"github.com/lvls/supportbot/pkg/messenger"
)

type fakeScheduler struct {
	scheduled []string
	err       error
}

func (f *fakeScheduler) ScheduleForTask(ctx context.Context, task *model.Task) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, task.ID)
	return nil
}

// historyMessenger overlays scriptable channel history on the log
// transport.
type historyMessenger struct {
	*messenger.LogMessenger
	history map[string][]messenger.HistoryEntry
	errs    map[string]error
}

func (m *historyMessenger) History(ctx context.Context, channelID string, oldest time.Time, limit int) ([]messenger.HistoryEntry, error) {
	if err, ok := m.errs[channelID]; ok {
		return nil, err
	}
	return m.history[channelID], nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedMember(t *testing.T, s *store.Store, id, name, userID string, founder bool) {
	t.Helper()
	err := s.UpsertTeamMember(context.Background(), model.TeamMember{
		ID:        id,
		Name:      name,
		UserID:    userID,
		IsFounder: founder,
		Timezone:  "UTC",
	})
	require.NoError(t, err)
}

func seedChannel(t *testing.T, s *store.Store, id, name string, typ model.ChannelType, approval bool) {
	t.Helper()
	err := s.UpsertChannelConfig(context.Background(), model.ChannelConfig{
		ChannelID:        id,
		ChannelName:      &name,
		ChannelType:      typ,
		RequiresApproval: approval,
	})
	require.NoError(t, err)
}

func newTestDispatcher(t *testing.T, s *store.Store, msgr messenger.Messenger, sched ReminderScheduler, now time.Time) *Dispatcher {
	t.Helper()
	return NewDispatcher(DispatcherConfig{
		Store:     s,
		Messenger: msgr,
		Reminders: sched,
		FounderID: "U_FOUNDER",
		Location:  time.UTC,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return now },
	})
}

func TestDispatcherCreateTask(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("creates task with deadline and schedules reminders", func(t *testing.T) {
		s := newTestStore(t)
		seedMember(t, s, "tm-1", "Farhan", "U_FARHAN", false)
		seedMember(t, s, "tm-0", "Boss", "U_FOUNDER", true)
		msgr := messenger.NewLogMessenger(zerolog.Nop())
		sched := &fakeScheduler{}
		d := newTestDispatcher(t, s, msgr, sched, now)

		res := d.Execute(ctx, "create_task", map[string]interface{}{
			"assignee_name": "Farhan",
			"title":         "Prepare deck",
			"description":   "Slides for the client call",
			"deadline":      "tomorrow",
		})

		require.True(t, res.Success, res.Message)
		assert.Contains(t, res.Message, "Prepare deck")
		assert.Contains(t, res.Message, "Farhan")
		assert.Len(t, sched.scheduled, 1)

		// Creation posts a best-effort notification card
		delivered := msgr.Delivered()
		require.Len(t, delivered, 1)
		assert.Equal(t, "U_FARHAN", delivered[0].MentionUserID)

		tasks, err := s.ActiveTasks(ctx)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		require.NotNil(t, tasks[0].Deadline)
		assert.Equal(t, 23, tasks[0].Deadline.Hour())
	})

	t.Run("unknown assignee fails without creating anything", func(t *testing.T) {
		s := newTestStore(t)
		d := newTestDispatcher(t, s, messenger.NewLogMessenger(zerolog.Nop()), &fakeScheduler{}, now)

		res := d.Execute(ctx, "create_task", map[string]interface{}{
			"assignee_name": "Nobody",
			"title":         "Ghost task",
			"description":   "Should never exist",
		})

		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "Nobody")

		tasks, err := s.ActiveTasks(ctx)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("no deadline skips reminder scheduling", func(t *testing.T) {
		s := newTestStore(t)
		seedMember(t, s, "tm-1", "Farhan", "U_FARHAN", false)
		sched := &fakeScheduler{}
		d := newTestDispatcher(t, s, messenger.NewLogMessenger(zerolog.Nop()), sched, now)

		res := d.Execute(ctx, "create_task", map[string]interface{}{
			"assignee_name": "Farhan",
			"title":         "Open ended",
			"description":   "No due date on this one",
		})

		require.True(t, res.Success, res.Message)
		assert.Contains(t, res.Message, "No deadline")
		assert.Empty(t, sched.scheduled)
	})

	t.Run("scheduler failure does not fail the creation", func(t *testing.T) {
		s := newTestStore(t)
		seedMember(t, s, "tm-1", "Farhan", "U_FARHAN", false)
		sched := &fakeScheduler{err: errors.New("queue closed")}
		d := newTestDispatcher(t, s, messenger.NewLogMessenger(zerolog.Nop()), sched, now)

		res := d.Execute(ctx, "create_task", map[string]interface{}{
			"assignee_name": "Farhan",
			"title":         "Still created",
			"description":   "Queue may be down",
			"deadline":      "friday",
		})

		assert.True(t, res.Success, res.Message)
	})
}

func TestDispatcherGetTasks(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	seedMember(t, s, "tm-1", "Farhan", "U_FARHAN", false)
	seedMember(t, s, "tm-2", "Dina", "U_DINA", false)

	past := now.Add(-48 * time.Hour)
	soon := now.Add(36 * time.Hour)
	farhan := "tm-1"
	dina := "tm-2"

	_, err := s.CreateTask(ctx, store.CreateTaskParams{
		Title: "Late report", AssignedTo: &farhan, Priority: model.PriorityHigh, Deadline: &past,
	})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, store.CreateTaskParams{
		Title: "Weekly sync notes", AssignedTo: &dina, Priority: model.PriorityNormal, Deadline: &soon,
	})
	require.NoError(t, err)

	d := newTestDispatcher(t, s, messenger.NewLogMessenger(zerolog.Nop()), &fakeScheduler{}, now)

	t.Run("active scope lists everything", func(t *testing.T) {
		res := d.Execute(ctx, "get_tasks", map[string]interface{}{})
		require.True(t, res.Success, res.Message)
		assert.Contains(t, res.Message, "2 task(s)")
	})

	t.Run("overdue scope filters by deadline", func(t *testing.T) {
		res := d.Execute(ctx, "get_tasks", map[string]interface{}{"scope": "overdue"})
		require.True(t, res.Success, res.Message)
		assert.Contains(t, res.Message, "1 task(s)")
	})

	t.Run("person filter resolves by name", func(t *testing.T) {
		res := d.Execute(ctx, "get_tasks", map[string]interface{}{"person_name": "Dina"})
		require.True(t, res.Success, res.Message)
		assert.Contains(t, res.Message, "Dina")
		assert.Contains(t, res.Message, "1 task(s)")
	})

	t.Run("unknown person fails", func(t *testing.T) {
		res := d.Execute(ctx, "get_tasks", map[string]interface{}{"person_name": "Ghost"})
		assert.False(t, res.Success)
	})
}

func TestDispatcherCompleteTask(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	seedMember(t, s, "tm-1", "Farhan", "U_FARHAN", false)
	farhan := "tm-1"
	deadline := now.Add(72 * time.Hour)
	task, err := s.CreateTask(ctx, store.CreateTaskParams{
		Title: "Ship landing page", AssignedTo: &farhan, Priority: model.PriorityNormal, Deadline: &deadline,
	})
	require.NoError(t, err)
	_, err = s.CreateReminder(ctx, task.ID, model.ReminderFiftyPercent, now.Add(36*time.Hour))
	require.NoError(t, err)

	d := newTestDispatcher(t, s, messenger.NewLogMessenger(zerolog.Nop()), &fakeScheduler{}, now)

	t.Run("fuzzy match completes and cancels reminders", func(t *testing.T) {
		res := d.Execute(ctx, "complete_task", map[string]interface{}{"search_term": "landing"})
		require.True(t, res.Success, res.Message)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TaskStatusCompleted, got.Status)

		reminders, err := s.RemindersForTask(ctx, task.ID)
		require.NoError(t, err)
		for _, r := range reminders {
			assert.True(t, r.Sent, "reminder should be cancelled")
		}
	})

	t.Run("no match fails", func(t *testing.T) {
		res := d.Execute(ctx, "complete_task", map[string]interface{}{"search_term": "nonexistent"})
		assert.False(t, res.Success)
	})
}

func TestDispatcherLookups(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	seedMember(t, s, "tm-1", "Farhan", "U_FARHAN", false)
	seedMember(t, s, "tm-2", "Dina", "U_DINA", false)
	seedChannel(t, s, "C_ACME", "acme-client", model.ChannelClient, true)
	seedChannel(t, s, "C_TEAM", "team-general", model.ChannelInternal, false)

	d := newTestDispatcher(t, s, messenger.NewLogMessenger(zerolog.Nop()), &fakeScheduler{}, now)

	t.Run("member found", func(t *testing.T) {
		res := d.Execute(ctx, "lookup_team_member", map[string]interface{}{"name": "farhan"})
		require.True(t, res.Success, res.Message)
		assert.Contains(t, res.Message, "U_FARHAN")
	})

	t.Run("member miss enumerates the roster", func(t *testing.T) {
		res := d.Execute(ctx, "lookup_team_member", map[string]interface{}{"name": "Zed"})
		require.False(t, res.Success)
		assert.Contains(t, res.Message, "Dina")
		assert.Contains(t, res.Message, "Farhan")
	})

	t.Run("channel found with approval flag", func(t *testing.T) {
		res := d.Execute(ctx, "lookup_channel", map[string]interface{}{"name": "acme"})
		require.True(t, res.Success, res.Message)
		assert.Contains(t, res.Message, "approval required")
	})

	t.Run("channel miss", func(t *testing.T) {
		res := d.Execute(ctx, "lookup_channel", map[string]interface{}{"name": "missing"})
		assert.False(t, res.Success)
	})
}

func TestDispatcherSendInternalMessage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	seedChannel(t, s, "C_ACME", "acme-client", model.ChannelClient, true)
	seedChannel(t, s, "C_TEAM", "team-general", model.ChannelInternal, false)

	msgr := messenger.NewLogMessenger(zerolog.Nop())
	d := newTestDispatcher(t, s, msgr, &fakeScheduler{}, now)

	t.Run("internal channel delivers", func(t *testing.T) {
		res := d.Execute(ctx, "send_internal_message", map[string]interface{}{
			"channel_id": "C_TEAM",
			"message":    "standup in 5",
		})
		require.True(t, res.Success, res.Message)
		require.Len(t, msgr.Delivered(), 1)
		assert.Equal(t, "standup in 5", msgr.Delivered()[0].Text)
	})

	t.Run("client channel is refused", func(t *testing.T) {
		res := d.Execute(ctx, "send_internal_message", map[string]interface{}{
			"channel_id": "C_ACME",
			"message":    "oops",
		})
		require.False(t, res.Success)
		assert.Contains(t, res.Message, "draft_client_message")
		assert.Len(t, msgr.Delivered(), 1, "nothing new delivered")
	})

	t.Run("unknown channel fails closed", func(t *testing.T) {
		res := d.Execute(ctx, "send_internal_message", map[string]interface{}{
			"channel_id": "C_MYSTERY",
			"message":    "hello?",
		})
		require.False(t, res.Success)
		assert.Contains(t, res.Message, "draft_client_message")
		assert.Len(t, msgr.Delivered(), 1)
	})
}

func TestDispatcherDraftClientMessage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	seedChannel(t, s, "C_ACME", "acme-client", model.ChannelClient, true)
	d := newTestDispatcher(t, s, messenger.NewLogMessenger(zerolog.Nop()), &fakeScheduler{}, now)

	res := d.Execute(ctx, "draft_client_message", map[string]interface{}{
		"channel_name": "acme-client",
		"context":      "project update for this week",
	})
	require.True(t, res.Success, res.Message)

	pending, err := s.PendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.ApprovalClientMessage, pending[0].Type)
	require.NotNil(t, pending[0].TargetChannel)
	assert.Equal(t, "C_ACME", *pending[0].TargetChannel)
	assert.Equal(t, "project update for this week", pending[0].Payload.OriginalInstruction)
}

func TestDispatcherScheduleMessage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	msgr := messenger.NewLogMessenger(zerolog.Nop())
	d := newTestDispatcher(t, s, msgr, &fakeScheduler{}, now)

	t.Run("future time schedules", func(t *testing.T) {
		res := d.Execute(ctx, "schedule_message", map[string]interface{}{
			"channel_id": "C_TEAM",
			"message":    "weekly reminder",
			"send_at":    "tomorrow",
		})
		require.True(t, res.Success, res.Message)
		require.Len(t, msgr.Scheduled(), 1)
		assert.True(t, msgr.Scheduled()[0].SendAt.After(now))
	})

	t.Run("unparseable time fails", func(t *testing.T) {
		res := d.Execute(ctx, "schedule_message", map[string]interface{}{
			"channel_id": "C_TEAM",
			"message":    "never",
			"send_at":    "whenever you feel like it",
		})
		assert.False(t, res.Success)
	})
}

func TestDispatcherDMFounder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	msgr := messenger.NewLogMessenger(zerolog.Nop())
	d := newTestDispatcher(t, s, msgr, &fakeScheduler{}, now)

	res := d.Execute(ctx, "dm_founder", map[string]interface{}{
		"message": "server is down",
		"urgency": "critical",
	})
	require.True(t, res.Success, res.Message)

	delivered := msgr.Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "dm-U_FOUNDER", delivered[0].ChannelID)
	assert.Contains(t, delivered[0].Text, "*CRITICAL*")
	assert.Contains(t, delivered[0].Text, "server is down")
}

func TestDispatcherCheckUnanswered(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	seedChannel(t, s, "C_ACME", "acme-client", model.ChannelClient, true)
	seedChannel(t, s, "C_BETA", "beta-client", model.ChannelClient, true)

	msgr := &historyMessenger{
		LogMessenger: messenger.NewLogMessenger(zerolog.Nop()),
		history: map[string][]messenger.HistoryEntry{
			"C_ACME": {
				{UserID: "U_CLIENT", Text: "any update on the invoice?", Timestamp: now.Add(-3 * time.Hour)},
				{UserID: "U_CLIENT", Text: "answered already", Timestamp: now.Add(-5 * time.Hour), ReplyCount: 2},
				{UserID: "U_BOT", Text: "bot chatter", Timestamp: now.Add(-1 * time.Hour), FromBot: true},
				{UserID: "U_CLIENT", Text: "thread reply", Timestamp: now.Add(-2 * time.Hour), InThread: true},
			},
		},
		errs: map[string]error{"C_BETA": errors.New("not_in_channel")},
	}
	d := newTestDispatcher(t, s, msgr, &fakeScheduler{}, now)

	res := d.Execute(ctx, "check_unanswered_messages", map[string]interface{}{})
	require.True(t, res.Success, res.Message)
	assert.Contains(t, res.Message, "1 unanswered")

	data, ok := res.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 2, data["channelsScanned"])
	assert.Equal(t, 1, data["totalUnanswered"])
	assert.Equal(t, []string{"beta-client"}, data["skipped"])
}

func TestDispatcherRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	s := newTestStore(t)
	d := newTestDispatcher(t, s, messenger.NewLogMessenger(zerolog.Nop()), &fakeScheduler{}, now)

	t.Run("unknown tool", func(t *testing.T) {
		res := d.Execute(ctx, "launch_rocket", map[string]interface{}{})
		assert.False(t, res.Success)
	})

	t.Run("missing required field", func(t *testing.T) {
		res := d.Execute(ctx, "create_task", map[string]interface{}{"title": "no assignee", "description": "missing fields"})
		assert.False(t, res.Success)
	})
}
