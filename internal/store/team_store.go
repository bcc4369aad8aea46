package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lvls/supportbot/internal/model"
)

// TeamMemberByName resolves a member by partial, case-insensitive name match.
func (s *Store) TeamMemberByName(ctx context.Context, name string) (*model.TeamMember, error) {
	var m model.TeamMember
	err := s.db.GetContext(ctx, &m,
		"SELECT * FROM team_members WHERE LOWER(name) LIKE ? LIMIT 1",
		"%"+strings.ToLower(name)+"%")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up member %q: %w", name, err)
	}
	return &m, nil
}

// TeamMemberByID retrieves a member by id.
func (s *Store) TeamMemberByID(ctx context.Context, id string) (*model.TeamMember, error) {
	var m model.TeamMember
	err := s.db.GetContext(ctx, &m, "SELECT * FROM team_members WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting member %s: %w", id, err)
	}
	return &m, nil
}

// AllTeamMembers returns every member ordered by name.
func (s *Store) AllTeamMembers(ctx context.Context) ([]model.TeamMember, error) {
	var members []model.TeamMember
	err := s.db.SelectContext(ctx, &members, "SELECT * FROM team_members ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// Founder returns the member flagged as founder.
func (s *Store) Founder(ctx context.Context) (*model.TeamMember, error) {
	var m model.TeamMember
	err := s.db.GetContext(ctx, &m, "SELECT * FROM team_members WHERE is_founder = 1 LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting founder: %w", err)
	}
	return &m, nil
}

// UpsertTeamMember inserts or refreshes a member keyed by transport user id.
func (s *Store) UpsertTeamMember(ctx context.Context, m model.TeamMember) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Timezone == "" {
		m.Timezone = "Asia/Jakarta"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (id, name, user_id, role, is_founder, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			is_founder = excluded.is_founder,
			timezone = excluded.timezone`,
		m.ID, m.Name, m.UserID, m.Role, m.IsFounder, m.Timezone, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting member %q: %w", m.Name, err)
	}
	return nil
}
