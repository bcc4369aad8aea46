package model

import "time"

// ApprovalStatus enumerates the approval gate states. Transitions are
// monotonic: pending -> approved or pending -> rejected, never back.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalType enumerates the kinds of gated actions.
type ApprovalType string

const (
	ApprovalClientMessage ApprovalType = "client_message"
)

// ApprovalPayload carries the draft under review. DraftMessage is empty at
// creation time and must be populated before the approval can be approved.
type ApprovalPayload struct {
	DraftMessage        string            `json:"draft_message"`
	TargetChannel       string            `json:"target_channel"`
	OriginalInstruction string            `json:"original_instruction,omitempty"`
	Extra               map[string]string `json:"extra,omitempty"`
}

// Approval gates an externally-visible message behind operator confirmation.
type Approval struct {
	ID              string          `db:"id"`
	Type            ApprovalType    `db:"type"`
	RequestedBy     *string         `db:"requested_by"`
	Approver        *string         `db:"approver"`
	Status          ApprovalStatus  `db:"status"`
	Payload         ApprovalPayload `db:"-"`
	PayloadJSON     string          `db:"payload"`
	TargetChannel   *string         `db:"target_channel"`
	MessageRef      *string         `db:"message_ref"`
	ApprovedAt      *time.Time      `db:"approved_at"`
	RejectedAt      *time.Time      `db:"rejected_at"`
	RejectionReason *string         `db:"rejection_reason"`
	CreatedAt       time.Time       `db:"created_at"`
}
