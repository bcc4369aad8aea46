package daemon

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvls/supportbot/internal/config"
	"github.com/lvls/supportbot/internal/logger"
	"github.com/lvls/supportbot/pkg/llm"
	"github.com/lvls/supportbot/pkg/messenger"
)

// textProvider answers every call with plain text and records requests.
type textProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	reply    string
}

func (p *textProvider) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	return &llm.Response{
		Text:       p.reply,
		StopReason: "end_turn",
		Usage:      &llm.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (p *textProvider) Name() string { return "scripted" }

func (p *textProvider) recorded() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.requests...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Workspace.FounderUserID = "U_FOUNDER"
	cfg.Workspace.Timezone = "UTC"
	cfg.AI.Provider = "anthropic"
	cfg.AI.APIKey = "sk-ant-test"
	cfg.DataDir = dir
	cfg.DatabasePath = ":memory:"
	cfg.RosterPath = filepath.Join(dir, "roster.json")
	cfg.AuditLogPath = filepath.Join(dir, "audit.log")
	cfg.Metrics.Enabled = false
	return cfg
}

func newTestDaemon(t *testing.T, provider llm.Provider) (*Daemon, *messenger.LogMessenger) {
	t.Helper()

	msgr := messenger.NewLogMessenger(zerolog.Nop())

	origProvider, origMessenger := newProvider, newMessenger
	newProvider = func(name, apiKey string) (llm.Provider, error) { return provider, nil }
	newMessenger = func(log zerolog.Logger) messenger.Messenger { return msgr }
	t.Cleanup(func() {
		newProvider, newMessenger = origProvider, origMessenger
	})

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	d, err := New(testConfig(t), log)
	require.NoError(t, err)
	return d, msgr
}

func TestNewInitializesWithoutStarting(t *testing.T) {
	d, _ := newTestDaemon(t, &textProvider{reply: "ok"})
	defer d.queue.Close()
	defer d.store.Close()

	st := d.Status()
	assert.False(t, st.Running)
	assert.NotNil(t, d.Store())
	assert.NotNil(t, d.Approvals())
	assert.NotNil(t, d.Scheduler())
	assert.Contains(t, d.Models().Aliases(), "sonnet")
}

func TestSubmitDeliversReplyToOperatorDM(t *testing.T) {
	provider := &textProvider{reply: "All set."}
	d, msgr := newTestDaemon(t, provider)
	require.NoError(t, d.Start())
	defer d.Stop()

	_, err := d.Submit("U_FOUNDER", "hey, what can you do?")
	require.NoError(t, err)
	require.True(t, d.Queue().WaitIdle(5*time.Second))

	delivered := msgr.Delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "dm-U_FOUNDER", delivered[0].ChannelID)
	assert.Equal(t, "All set.", delivered[0].Text)
}

func TestInstructionsCarryConversationHistory(t *testing.T) {
	provider := &textProvider{reply: "noted"}
	d, _ := newTestDaemon(t, provider)
	require.NoError(t, d.Start())
	defer d.Stop()

	_, err := d.Submit("U_FOUNDER", "first question")
	require.NoError(t, err)
	require.True(t, d.Queue().WaitIdle(5*time.Second))

	_, err = d.Submit("U_FOUNDER", "second question")
	require.NoError(t, err)
	require.True(t, d.Queue().WaitIdle(5*time.Second))

	// A plain-text classification degrades to a direct answer, so each
	// instruction produces one toolless chat call. The second one must
	// see the first exchange.
	var chats []llm.Request
	for _, req := range provider.recorded() {
		if len(req.Tools) == 0 {
			chats = append(chats, req)
		}
	}
	require.Len(t, chats, 2)
	assert.Len(t, chats[0].Messages, 1)
	require.Len(t, chats[1].Messages, 3)
	assert.Equal(t, "first question", chats[1].Messages[0].Content)
	assert.Equal(t, "noted", chats[1].Messages[1].Content)
	assert.Equal(t, "second question", chats[1].Messages[2].Content)
}

// stepProvider replays scripted responses in order, then falls back to
// a plain end-of-turn answer.
type stepProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	next      int
}

func (p *stepProvider) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.responses) {
		return &llm.Response{Text: "done", StopReason: "end_turn"}, nil
	}
	r := p.responses[p.next]
	p.next++
	return r, nil
}

func (p *stepProvider) Name() string { return "scripted" }

func TestClientDraftFlowsIntoApproval(t *testing.T) {
	draft := "Hi Acme, the new timeline lands Friday."
	provider := &stepProvider{responses: []*llm.Response{
		{
			ToolCalls: []llm.ToolCall{{ID: "c1", Name: "classify_intent", Input: map[string]interface{}{
				"intent":     "COMMUNICATION_DRAFT",
				"confidence": 0.9,
			}}},
			StopReason: "tool_use",
			Usage:      &llm.Usage{InputTokens: 20, OutputTokens: 5},
		},
		{
			ToolCalls: []llm.ToolCall{{ID: "t1", Name: "draft_client_message", Input: map[string]interface{}{
				"channel_name": "client-acme",
				"context":      "timeline update",
			}}},
			StopReason: "tool_use",
			Usage:      &llm.Usage{InputTokens: 40, OutputTokens: 15},
		},
		{
			Text:       draft,
			StopReason: "end_turn",
			Usage:      &llm.Usage{InputTokens: 60, OutputTokens: 30},
		},
	}}

	d, msgr := newTestDaemon(t, provider)
	require.NoError(t, d.Start())
	defer d.Stop()

	_, err := d.Submit("U_FOUNDER", "draft a message to acme about the timeline")
	require.NoError(t, err)
	require.True(t, d.Queue().WaitIdle(5*time.Second))

	ctx := context.Background()
	pending, err := d.Store().PendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// The agent's final response is the draft; it must be attached to
	// the approval along with the ref of the delivered request message.
	a := pending[0]
	assert.Equal(t, draft, a.Payload.DraftMessage)
	require.NotNil(t, a.MessageRef)
	assert.NotEmpty(t, *a.MessageRef)

	require.NoError(t, d.Approvals().Approve(ctx, a.ID, "U_FOUNDER"))

	delivered := msgr.Delivered()
	require.NotEmpty(t, delivered)
	sent := delivered[len(delivered)-1]
	assert.Equal(t, "client-acme", sent.ChannelID)
	assert.Equal(t, draft, sent.Text)
}

func TestStartStopLifecycle(t *testing.T) {
	d, _ := newTestDaemon(t, &textProvider{reply: "ok"})

	require.NoError(t, d.Start())
	assert.True(t, d.Status().Running)
	assert.Error(t, d.Start(), "second start must fail")

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.Error(t, d.Stop(), "second stop must fail")
}
