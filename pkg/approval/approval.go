// Package approval implements the gate between drafted client
// messages and actual delivery. Every outward-facing draft sits in a
// pending approval until the operator approves, edits, or rejects it.
// Transitions are monotonic at every layer.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lvls/supportbot/internal/model"
	"github.com/lvls/supportbot/internal/observability"
	"github.com/lvls/supportbot/internal/store"
	"github.com/lvls/supportbot/pkg/messenger"
)

// ErrTerminalState is returned when a transition is attempted on an
// approval that already left pending.
var ErrTerminalState = errors.New("approval is already in a terminal state")

// ErrEmptyDraft is returned when an approval is approved before a
// draft message was attached to it.
var ErrEmptyDraft = errors.New("approval has no draft message to deliver")

// Manager drives approval transitions.
type Manager struct {
	store  *store.Store
	msgr   messenger.Messenger
	logger zerolog.Logger
}

// NewManager creates an approval manager.
func NewManager(s *store.Store, msgr messenger.Messenger, logger zerolog.Logger) *Manager {
	observability.EnsureRegistered()
	return &Manager{store: s, msgr: msgr, logger: logger}
}

// RequestDelivered records the transport reference of the approval
// request message so later transitions can update it in place.
func (m *Manager) RequestDelivered(ctx context.Context, approvalID, messageRef string) error {
	return m.store.UpdateApprovalMessageRef(ctx, approvalID, messageRef)
}

// AttachDraft fills in the draft text for a pending approval. The
// draft is what gets delivered verbatim on approval.
func (m *Manager) AttachDraft(ctx context.Context, approvalID, draft string) error {
	a, err := m.store.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if a.Status != model.ApprovalPending {
		return ErrTerminalState
	}

	payload := a.Payload
	payload.DraftMessage = draft
	return m.store.UpdateApprovalPayload(ctx, approvalID, payload)
}

// Approve transitions a pending approval to approved and delivers the
// draft verbatim to the target channel. The status flips before
// delivery, so a concurrent second approval loses at the storage layer
// instead of double-sending.
func (m *Manager) Approve(ctx context.Context, approvalID, approver string) error {
	a, err := m.store.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if a.Status != model.ApprovalPending {
		return ErrTerminalState
	}
	if a.Payload.DraftMessage == "" {
		return ErrEmptyDraft
	}
	if a.Payload.TargetChannel == "" {
		return fmt.Errorf("approval %s has no target channel", approvalID)
	}

	if err := m.store.UpdateApprovalStatus(ctx, approvalID, model.ApprovalApproved, nil); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost the race: someone else already resolved it.
			return ErrTerminalState
		}
		return err
	}

	observability.RecordApproval("approved")
	m.auditTransition(ctx, "approval_approved", approver, a)

	if _, err := m.msgr.Post(ctx, messenger.Message{
		ChannelID: a.Payload.TargetChannel,
		Text:      a.Payload.DraftMessage,
	}); err != nil {
		m.logger.Error().Err(err).Str("approvalId", approvalID).Msg("Approved message failed to deliver")
		m.updateRequestMessage(ctx, a, fmt.Sprintf("Approved by %s, but delivery failed: %s", approver, err))
		return fmt.Errorf("delivering approved message: %w", err)
	}

	m.updateRequestMessage(ctx, a, fmt.Sprintf("Approved by %s and sent to the client channel.", approver))
	m.logger.Info().
		Str("approvalId", approvalID).
		Str("approver", approver).
		Str("channel", a.Payload.TargetChannel).
		Msg("Approval delivered")
	return nil
}

// EditThenApprove replaces the draft and then runs the approve path.
// The edited text is what goes out, verbatim.
func (m *Manager) EditThenApprove(ctx context.Context, approvalID, approver, editedDraft string) error {
	if editedDraft == "" {
		return ErrEmptyDraft
	}

	a, err := m.store.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if a.Status != model.ApprovalPending {
		return ErrTerminalState
	}

	payload := a.Payload
	payload.DraftMessage = editedDraft
	if err := m.store.UpdateApprovalPayload(ctx, approvalID, payload); err != nil {
		return err
	}

	observability.RecordApproval("edited")
	m.auditTransition(ctx, "approval_edited", approver, a)

	return m.Approve(ctx, approvalID, approver)
}

// Reject transitions a pending approval to rejected. Nothing is
// delivered; the reason is kept for the audit trail.
func (m *Manager) Reject(ctx context.Context, approvalID, approver, reason string) error {
	a, err := m.store.GetApproval(ctx, approvalID)
	if err != nil {
		return err
	}
	if a.Status != model.ApprovalPending {
		return ErrTerminalState
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := m.store.UpdateApprovalStatus(ctx, approvalID, model.ApprovalRejected, reasonPtr); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTerminalState
		}
		return err
	}

	observability.RecordApproval("rejected")
	m.auditTransition(ctx, "approval_rejected", approver, a)

	note := fmt.Sprintf("Rejected by %s.", approver)
	if reason != "" {
		note = fmt.Sprintf("Rejected by %s: %s", approver, reason)
	}
	m.updateRequestMessage(ctx, a, note)

	m.logger.Info().
		Str("approvalId", approvalID).
		Str("approver", approver).
		Msg("Approval rejected")
	return nil
}

// updateRequestMessage rewrites the original approval request message
// in place so the channel shows the final outcome. Best effort only.
func (m *Manager) updateRequestMessage(ctx context.Context, a *model.Approval, outcome string) {
	if a.MessageRef == nil || *a.MessageRef == "" {
		return
	}
	text := fmt.Sprintf("Approval request for #%s\n> %s\n\n%s",
		a.Payload.TargetChannel, a.Payload.DraftMessage, outcome)
	if err := m.msgr.Update(ctx, *a.MessageRef, text); err != nil {
		m.logger.Warn().Err(err).Str("approvalId", a.ID).Msg("Failed to update approval request message")
	}
}

func (m *Manager) auditTransition(ctx context.Context, action, actor string, a *model.Approval) {
	details := map[string]any{
		"approvalId":    a.ID,
		"targetChannel": a.Payload.TargetChannel,
	}
	if err := m.store.AppendAudit(ctx, store.AuditRecord{
		Action:    action,
		Actor:     &actor,
		Details:   details,
		ChannelID: a.TargetChannel,
	}); err != nil {
		m.logger.Warn().Err(err).Str("action", action).Msg("Failed to append audit row")
	}
	observability.RecordApprovalAudit(action, actor, "success", a.Payload.TargetChannel, details)
}
