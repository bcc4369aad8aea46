package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lvls/supportbot/internal/model"
)

// AuditRecord is a pending audit entry before persistence.
type AuditRecord struct {
	Action    string
	Actor     *string
	Details   map[string]any
	ChannelID *string
}

// AppendAudit writes one append-only audit row.
func (s *Store) AppendAudit(ctx context.Context, rec AuditRecord) error {
	var details *string
	if rec.Details != nil {
		raw, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
		str := string(raw)
		details = &str
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (action, actor, details, channel_id)
		VALUES (?, ?, ?, ?)`,
		rec.Action, rec.Actor, details, rec.ChannelID)
	if err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}

// AuditEntriesByAction returns audit rows for one action, newest first.
// Primarily used by tests; read access is otherwise out of scope.
func (s *Store) AuditEntriesByAction(ctx context.Context, action string) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM audit_log WHERE action = ? ORDER BY id DESC", action)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries for %q: %w", action, err)
	}
	return entries, nil
}
