// Package messenger defines the outbound transport collaborator. The
// engine never talks to a chat service directly; everything outward
// goes through a Messenger so transports stay swappable and tests can
// capture deliveries.
package messenger

import (
	"context"
	"time"
)

// Message is one outbound delivery.
type Message struct {
	ChannelID string
	Text      string
	// MentionUserID prefixes the text with a mention of this user.
	MentionUserID string
	ThreadID      string
}

// HistoryEntry is one message read back from a channel.
type HistoryEntry struct {
	UserID    string
	Text      string
	Timestamp time.Time
	// ReplyCount counts threaded replies to this message.
	ReplyCount int
	// FromBot marks automated messages, excluded from unanswered scans.
	FromBot bool
	// InThread marks threaded replies, likewise excluded.
	InThread bool
}

// Messenger delivers messages and reads channel history.
type Messenger interface {
	// Post delivers a message and returns an opaque reference usable
	// with Update.
	Post(ctx context.Context, msg Message) (string, error)

	// Update rewrites a previously posted message in place.
	Update(ctx context.Context, ref string, text string) error

	// Schedule arranges delivery at a future time via the transport's
	// native deferred send.
	Schedule(ctx context.Context, msg Message, at time.Time) error

	// History returns recent messages from a channel, newest first,
	// no older than oldest.
	History(ctx context.Context, channelID string, oldest time.Time, limit int) ([]HistoryEntry, error)

	// OpenDM resolves a user's private channel id.
	OpenDM(ctx context.Context, userID string) (string, error)
}
