package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvls/supportbot/internal/model"
	"github.com/lvls/supportbot/internal/store"
)

const sampleRoster = `{
  "members": [
    {"name": "Farhan", "user_id": "U_FARHAN", "role": "designer"},
    {"name": "Boss", "user_id": "U_BOSS", "is_founder": true, "timezone": "Asia/Jakarta"},
    {"name": "", "user_id": "U_NAMELESS"}
  ],
  "channels": [
    {"channel_id": "C_ACME", "name": "acme-client", "type": "client", "client_name": "Acme", "requires_approval": true},
    {"channel_id": "C_TEAM", "name": "team-general", "type": "internal"},
    {"channel_id": "C_WAT", "name": "weird", "type": "carrier-pigeon"}
  ]
}`

func newTestWatcher(t *testing.T, contents string) (*Watcher, *store.Store, string) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	path := filepath.Join(t.TempDir(), "roster.json")
	if contents != "" {
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
	return NewWatcher(path, s, zerolog.Nop()), s, path
}

func TestSyncUpsertsMembersAndChannels(t *testing.T) {
	ctx := context.Background()
	w, s, _ := newTestWatcher(t, sampleRoster)

	require.NoError(t, w.Sync(ctx))

	members, err := s.AllTeamMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2, "nameless entry is skipped")

	founder, err := s.Founder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Boss", founder.Name)
	assert.Equal(t, "U_BOSS", founder.UserID)

	farhan, err := s.TeamMemberByName(ctx, "farhan")
	require.NoError(t, err)
	require.NotNil(t, farhan.Role)
	assert.Equal(t, "designer", *farhan.Role)

	acme, err := s.ChannelConfigByID(ctx, "C_ACME")
	require.NoError(t, err)
	assert.Equal(t, model.ChannelClient, acme.ChannelType)
	assert.True(t, acme.RequiresApproval)

	isClient, err := s.IsClientChannel(ctx, "C_TEAM")
	require.NoError(t, err)
	assert.False(t, isClient)

	// Unknown channel type is skipped
	_, err = s.ChannelConfigByID(ctx, "C_WAT")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncMissingFileIsNotAnError(t *testing.T) {
	w, s, _ := newTestWatcher(t, "")
	require.NoError(t, w.Sync(context.Background()))

	members, err := s.AllTeamMembers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestSyncIsIdempotentAndPicksUpEdits(t *testing.T) {
	ctx := context.Background()
	w, s, path := newTestWatcher(t, sampleRoster)

	require.NoError(t, w.Sync(ctx))
	require.NoError(t, w.Sync(ctx))

	members, err := s.AllTeamMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2, "re-sync must not duplicate members")

	// Edit a role and re-sync
	edited := `{"members": [{"name": "Farhan", "user_id": "U_FARHAN", "role": "lead designer"}]}`
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))
	require.NoError(t, w.Sync(ctx))

	farhan, err := s.TeamMemberByName(ctx, "farhan")
	require.NoError(t, err)
	require.NotNil(t, farhan.Role)
	assert.Equal(t, "lead designer", *farhan.Role)
}

func TestWatcherPicksUpFileWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, s, path := newTestWatcher(t, `{"members": []}`)
	require.NoError(t, w.Sync(ctx))
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	updated := `{"members": [{"name": "Dina", "user_id": "U_DINA"}]}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		members, err := s.AllTeamMembers(ctx)
		return err == nil && len(members) == 1
	}, 3*time.Second, 50*time.Millisecond, "watcher should re-sync after a write")
}
