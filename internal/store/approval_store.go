package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lvls/supportbot/internal/model"
)

// CreateApprovalParams carries the fields for a new pending approval.
type CreateApprovalParams struct {
	Type          model.ApprovalType
	RequestedBy   *string
	Payload       model.ApprovalPayload
	TargetChannel *string
}

// CreateApproval inserts a new approval in status pending.
func (s *Store) CreateApproval(ctx context.Context, p CreateApprovalParams) (*model.Approval, error) {
	payloadJSON, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding approval payload: %w", err)
	}

	a := &model.Approval{
		ID:            uuid.New().String(),
		Type:          p.Type,
		RequestedBy:   p.RequestedBy,
		Status:        model.ApprovalPending,
		Payload:       p.Payload,
		PayloadJSON:   string(payloadJSON),
		TargetChannel: p.TargetChannel,
		CreatedAt:     time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, type, requested_by, status, payload, target_channel, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.RequestedBy, a.Status, a.PayloadJSON, a.TargetChannel, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating approval: %w", err)
	}
	return a, nil
}

// GetApproval retrieves an approval by id, decoding its payload.
func (s *Store) GetApproval(ctx context.Context, id string) (*model.Approval, error) {
	var a model.Approval
	err := s.db.GetContext(ctx, &a, "SELECT * FROM approvals WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting approval %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(a.PayloadJSON), &a.Payload); err != nil {
		return nil, fmt.Errorf("decoding approval %s payload: %w", id, err)
	}
	return &a, nil
}

// PendingApprovals returns all pending approvals, newest first.
func (s *Store) PendingApprovals(ctx context.Context) ([]model.Approval, error) {
	var approvals []model.Approval
	err := s.db.SelectContext(ctx, &approvals,
		"SELECT * FROM approvals WHERE status = 'pending' ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing pending approvals: %w", err)
	}
	for i := range approvals {
		if err := json.Unmarshal([]byte(approvals[i].PayloadJSON), &approvals[i].Payload); err != nil {
			return nil, fmt.Errorf("decoding approval %s payload: %w", approvals[i].ID, err)
		}
	}
	return approvals, nil
}

// UpdateApprovalStatus transitions an approval out of pending. The WHERE
// clause on status makes the transition monotonic at the storage layer.
func (s *Store) UpdateApprovalStatus(ctx context.Context, id string, status model.ApprovalStatus, reason *string) error {
	now := time.Now().UTC()

	var res sql.Result
	var err error
	switch status {
	case model.ApprovalApproved:
		res, err = s.db.ExecContext(ctx, `
			UPDATE approvals SET status = ?, approved_at = ?
			WHERE id = ? AND status = 'pending'`, status, now, id)
	case model.ApprovalRejected:
		res, err = s.db.ExecContext(ctx, `
			UPDATE approvals SET status = ?, rejected_at = ?, rejection_reason = ?
			WHERE id = ? AND status = 'pending'`, status, now, reason, id)
	default:
		return fmt.Errorf("invalid approval transition to %q", status)
	}
	if err != nil {
		return fmt.Errorf("updating approval %s status: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateApprovalPayload rewrites an approval's payload (the edit path).
func (s *Store) UpdateApprovalPayload(ctx context.Context, id string, payload model.ApprovalPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding approval payload: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE approvals SET payload = ? WHERE id = ?", string(payloadJSON), id)
	if err != nil {
		return fmt.Errorf("updating approval %s payload: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateApprovalMessageRef stores the transport message identifier of the
// delivered approval request so it can be updated in place later.
func (s *Store) UpdateApprovalMessageRef(ctx context.Context, id, ref string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE approvals SET message_ref = ? WHERE id = ?", ref, id)
	if err != nil {
		return fmt.Errorf("updating approval %s message ref: %w", id, err)
	}
	return nil
}
