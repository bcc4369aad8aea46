package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvls/supportbot/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// seedMember inserts a team member and returns the stored row, whose id
// is the FK target for task assignment.
func seedMember(t *testing.T, s *Store, name, userID string) *model.TeamMember {
	t.Helper()
	require.NoError(t, s.UpsertTeamMember(context.Background(), model.TeamMember{
		Name:   name,
		UserID: userID,
	}))
	m, err := s.TeamMemberByName(context.Background(), name)
	require.NoError(t, err)
	return m
}

func seedTask(t *testing.T, s *Store, title string, assignee *string, deadline *time.Time) *model.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), CreateTaskParams{
		Title:       title,
		Description: "seeded",
		AssignedTo:  assignee,
		Priority:    model.PriorityNormal,
		Deadline:    deadline,
	})
	require.NoError(t, err)
	return task
}

func TestTaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	deadline := time.Date(2026, 4, 1, 23, 59, 59, 0, time.UTC)
	member := seedMember(t, s, "Farhan", "U1")
	created := seedTask(t, s, "Launch report", &member.ID, &deadline)

	got, err := s.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Launch report", got.Title)
	assert.Equal(t, model.TaskStatusPending, got.Status)
	require.NotNil(t, got.Deadline)
	assert.True(t, got.Deadline.Equal(deadline))
	assert.False(t, got.OverdueFlagged)

	_, err = s.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindTaskByTitlePartialMatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	farhan := seedMember(t, s, "Farhan", "U1")
	dina := seedMember(t, s, "Dina", "U2")
	seedTask(t, s, "Write Q2 launch report", &farhan.ID, nil)
	seedTask(t, s, "Review ad creatives", &dina.ID, nil)

	found, err := s.FindTaskByTitle(ctx, "LAUNCH", nil)
	require.NoError(t, err)
	assert.Equal(t, "Write Q2 launch report", found.Title)

	// Scoped to the wrong assignee it misses.
	_, err = s.FindTaskByTitle(ctx, "launch", &dina.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Terminal tasks are excluded from search.
	require.NoError(t, s.UpdateTaskStatus(ctx, found.ID, model.TaskStatusCompleted))
	_, err = s.FindTaskByTitle(ctx, "launch", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverdueTasksPredicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	member := seedMember(t, s, "Farhan", "U1")
	past := now.Add(-2 * time.Hour)
	future := now.Add(2 * time.Hour)
	overdue := seedTask(t, s, "overdue one", &member.ID, &past)
	seedTask(t, s, "still on time", &member.ID, &future)
	seedTask(t, s, "no deadline", &member.ID, nil)
	done := seedTask(t, s, "finished late", &member.ID, &past)
	require.NoError(t, s.UpdateTaskStatus(ctx, done.ID, model.TaskStatusCompleted))

	list, err := s.OverdueTasks(ctx, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, overdue.ID, list[0].ID)

	// Flagged tasks drop out of the next pass.
	require.NoError(t, s.MarkTaskOverdueFlagged(ctx, overdue.ID))
	list, err = s.OverdueTasks(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, list)

	flagged, err := s.GetTask(ctx, overdue.ID)
	require.NoError(t, err)
	assert.True(t, flagged.OverdueFlagged)
	assert.Equal(t, model.TaskStatusOverdue, flagged.Status)
}

func TestTasksDueThisWeek(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	member := seedMember(t, s, "Farhan", "U1")
	in3d := now.Add(3 * 24 * time.Hour)
	in10d := now.Add(10 * 24 * time.Hour)
	soon := seedTask(t, s, "due soon", &member.ID, &in3d)
	seedTask(t, s, "due later", &member.ID, &in10d)

	list, err := s.TasksDueThisWeek(ctx, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, soon.ID, list[0].ID)
}

func TestCompletedAtSetAndCleared(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	member := seedMember(t, s, "Farhan", "U1")
	task := seedTask(t, s, "toggle", &member.ID, nil)

	require.NoError(t, s.UpdateTaskStatus(ctx, task.ID, model.TaskStatusCompleted))
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.CompletedAt)

	require.NoError(t, s.UpdateTaskStatus(ctx, task.ID, model.TaskStatusInProgress))
	got, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)
}

func TestReminderLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	member := seedMember(t, s, "Farhan", "U1")
	task := seedTask(t, s, "with reminders", &member.ID, nil)

	fire := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	rem, err := s.CreateReminder(ctx, task.ID, model.ReminderFiftyPercent, fire)
	require.NoError(t, err)
	require.NoError(t, s.UpdateReminderJobID(ctx, rem.ID, "job-1"))

	list, err := s.RemindersForTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].JobID)
	assert.Equal(t, "job-1", *list[0].JobID)
	assert.False(t, list[0].Sent)

	require.NoError(t, s.CancelRemindersForTask(ctx, task.ID))
	list, err = s.RemindersForTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Sent, "cancelled reminders are marked sent so workers skip them")
}

func TestApprovalStatusIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ap, err := s.CreateApproval(ctx, CreateApprovalParams{
		Type:          model.ApprovalClientMessage,
		RequestedBy:   ptr("U_FOUNDER"),
		Payload:       model.ApprovalPayload{DraftMessage: "hello"},
		TargetChannel: ptr("C1"),
	})
	require.NoError(t, err)

	require.NoError(t, s.UpdateApprovalStatus(ctx, ap.ID, model.ApprovalApproved, nil))

	// A second transition finds no pending row.
	err = s.UpdateApprovalStatus(ctx, ap.ID, model.ApprovalRejected, ptr("changed my mind"))
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetApproval(ctx, ap.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, got.Status)
}

func TestTeamMemberPartialLookupAndFounder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertTeamMember(ctx, model.TeamMember{
		UserID: "U_FARHAN", Name: "Farhan", Role: ptr("designer"),
	}))
	require.NoError(t, s.UpsertTeamMember(ctx, model.TeamMember{
		UserID: "U_BOSS", Name: "Boss", IsFounder: true,
	}))

	m, err := s.TeamMemberByName(ctx, "farh")
	require.NoError(t, err)
	assert.Equal(t, "U_FARHAN", m.UserID)

	_, err = s.TeamMemberByName(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	founder, err := s.Founder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "U_BOSS", founder.UserID)

	// Upsert is keyed on user_id.
	require.NoError(t, s.UpsertTeamMember(ctx, model.TeamMember{
		UserID: "U_FARHAN", Name: "Farhan", Role: ptr("lead designer"),
	}))
	all, err := s.AllTeamMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestChannelTypePredicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertChannelConfig(ctx, model.ChannelConfig{
		ChannelID: "C_ACME", ChannelName: ptr("acme-client"), ChannelType: model.ChannelClient, RequiresApproval: true,
	}))
	require.NoError(t, s.UpsertChannelConfig(ctx, model.ChannelConfig{
		ChannelID: "C_TEAM", ChannelName: ptr("team-general"), ChannelType: model.ChannelInternal,
	}))

	isClient, err := s.IsClientChannel(ctx, "C_ACME")
	require.NoError(t, err)
	assert.True(t, isClient)

	isClient, err = s.IsClientChannel(ctx, "C_TEAM")
	require.NoError(t, err)
	assert.False(t, isClient)

	// Unknown channels are an error, not a silent false.
	_, err = s.IsClientChannel(ctx, "C_NOPE")
	assert.Error(t, err)

	clients, err := s.ChannelsByType(ctx, model.ChannelClient)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "C_ACME", clients[0].ChannelID)
}

func TestAuditAppend(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AppendAudit(ctx, AuditRecord{
		Action: "task_created",
		Actor:  ptr("U_FOUNDER"),
		Details: map[string]any{
			"task_id": "abc",
		},
	}))

	entries, err := s.AuditEntriesByAction(ctx, "task_created")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
