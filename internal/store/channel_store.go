package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lvls/supportbot/internal/model"
)

// ChannelConfigByID retrieves a channel's configuration.
func (s *Store) ChannelConfigByID(ctx context.Context, channelID string) (*model.ChannelConfig, error) {
	var c model.ChannelConfig
	err := s.db.GetContext(ctx, &c, "SELECT * FROM channels_config WHERE channel_id = ?", channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting channel config %s: %w", channelID, err)
	}
	return &c, nil
}

// ChannelConfigByName resolves a channel by partial name or client name.
func (s *Store) ChannelConfigByName(ctx context.Context, name string) (*model.ChannelConfig, error) {
	pattern := "%" + strings.ToLower(name) + "%"
	var c model.ChannelConfig
	err := s.db.GetContext(ctx, &c, `
		SELECT * FROM channels_config
		WHERE LOWER(channel_name) LIKE ? OR LOWER(client_name) LIKE ?
		LIMIT 1`, pattern, pattern)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up channel %q: %w", name, err)
	}
	return &c, nil
}

// ChannelsByType returns all channels of one classification.
func (s *Store) ChannelsByType(ctx context.Context, typ model.ChannelType) ([]model.ChannelConfig, error) {
	var channels []model.ChannelConfig
	err := s.db.SelectContext(ctx, &channels,
		"SELECT * FROM channels_config WHERE channel_type = ? ORDER BY channel_name", typ)
	if err != nil {
		return nil, fmt.Errorf("listing %s channels: %w", typ, err)
	}
	return channels, nil
}

// UpsertChannelConfig inserts or refreshes a channel configuration.
func (s *Store) UpsertChannelConfig(ctx context.Context, c model.ChannelConfig) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels_config (channel_id, channel_name, channel_type, client_name, requires_approval, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			channel_name = excluded.channel_name,
			channel_type = excluded.channel_type,
			client_name = excluded.client_name,
			requires_approval = excluded.requires_approval,
			updated_at = excluded.updated_at`,
		c.ChannelID, c.ChannelName, c.ChannelType, c.ClientName, c.RequiresApproval, now, now)
	if err != nil {
		return fmt.Errorf("upserting channel %s: %w", c.ChannelID, err)
	}
	return nil
}

// IsClientChannel reports whether a channel is classified client. A missing
// channel is not provably non-client; callers that gate delivery must treat
// lookup failure as client (fail closed).
func (s *Store) IsClientChannel(ctx context.Context, channelID string) (bool, error) {
	c, err := s.ChannelConfigByID(ctx, channelID)
	if err != nil {
		return false, err
	}
	return c.ChannelType == model.ChannelClient, nil
}
