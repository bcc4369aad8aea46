package messenger

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// LogMessenger writes every delivery to the structured log instead of
// a chat service. It is the default transport when none is configured
// and doubles as a capture point in tests.
type LogMessenger struct {
	logger zerolog.Logger

	mu        sync.Mutex
	delivered []Message
	updates   map[string]string
	scheduled []ScheduledMessage
}

// ScheduledMessage records a deferred delivery request.
type ScheduledMessage struct {
	Message Message
	SendAt  time.Time
}

// NewLogMessenger creates a logging transport.
func NewLogMessenger(logger zerolog.Logger) *LogMessenger {
	return &LogMessenger{
		logger:  logger,
		updates: make(map[string]string),
	}
}

func (m *LogMessenger) Post(ctx context.Context, msg Message) (string, error) {
	ref, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate message ref: %w", err)
	}

	m.mu.Lock()
	m.delivered = append(m.delivered, msg)
	m.mu.Unlock()

	m.logger.Info().
		Str("channel", msg.ChannelID).
		Str("ref", ref).
		Str("text", msg.Text).
		Msg("Message posted")
	return ref, nil
}

func (m *LogMessenger) Update(ctx context.Context, ref string, text string) error {
	m.mu.Lock()
	m.updates[ref] = text
	m.mu.Unlock()

	m.logger.Info().
		Str("ref", ref).
		Str("text", text).
		Msg("Message updated")
	return nil
}

func (m *LogMessenger) Schedule(ctx context.Context, msg Message, at time.Time) error {
	m.mu.Lock()
	m.scheduled = append(m.scheduled, ScheduledMessage{Message: msg, SendAt: at})
	m.mu.Unlock()

	m.logger.Info().
		Str("channel", msg.ChannelID).
		Time("sendAt", at).
		Msg("Message scheduled")
	return nil
}

func (m *LogMessenger) History(ctx context.Context, channelID string, oldest time.Time, limit int) ([]HistoryEntry, error) {
	// Nothing to read back from a log-only transport
	return nil, nil
}

func (m *LogMessenger) OpenDM(ctx context.Context, userID string) (string, error) {
	return "dm-" + userID, nil
}

// Delivered returns a copy of everything posted so far.
func (m *LogMessenger) Delivered() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.delivered...)
}

// Scheduled returns a copy of all deferred delivery requests.
func (m *LogMessenger) Scheduled() []ScheduledMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduledMessage(nil), m.scheduled...)
}

// UpdateFor returns the latest update applied to ref.
func (m *LogMessenger) UpdateFor(ref string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.updates[ref]
	return text, ok
}
