package model

import "time"

// TeamMember is read-mostly reference data resolved by (partial) name.
type TeamMember struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	UserID    string    `db:"user_id"`
	Role      *string   `db:"role"`
	IsFounder bool      `db:"is_founder"`
	Timezone  string    `db:"timezone"`
	CreatedAt time.Time `db:"created_at"`
}

// ChannelType classifies a messaging channel.
type ChannelType string

const (
	ChannelClient   ChannelType = "client"
	ChannelInternal ChannelType = "internal"
	ChannelProject  ChannelType = "project"
	ChannelGeneral  ChannelType = "general"
)

// ChannelConfig marks a channel's classification and whether outbound
// messages to it require operator approval.
type ChannelConfig struct {
	ChannelID        string      `db:"channel_id"`
	ChannelName      *string     `db:"channel_name"`
	ChannelType      ChannelType `db:"channel_type"`
	ClientName       *string     `db:"client_name"`
	RequiresApproval bool        `db:"requires_approval"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

// AuditEntry is one append-only audit record. This is the authoritative
// record of what the bot actually sent and when.
type AuditEntry struct {
	ID        int64     `db:"id"`
	Action    string    `db:"action"`
	Actor     *string   `db:"actor"`
	Details   *string   `db:"details"`
	ChannelID *string   `db:"channel_id"`
	CreatedAt time.Time `db:"created_at"`
}
