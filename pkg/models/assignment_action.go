package models

import (
	"time"

	"github.com/google/uuid"
)

// Assignment sources.
const (
	AssignmentSourceAI     = "ai"
	AssignmentSourceManual = "manual"
)

// AssignmentAction is the idempotency ledger for assignment side effects.
//
// Invariant: AssignmentHash is unique. A second attempt to notify the same
// assignee for the same opportunity on the same calendar day finds the
// existing row and is a no-op.
type AssignmentAction struct {
	ID             uuid.UUID  `json:"id"`
	OpportunityID  uuid.UUID  `json:"opportunity_id"`
	AssigneeID     uuid.UUID  `json:"assignee_id"`
	AssignmentHash string     `json:"assignment_hash"`
	AssignedBy     *uuid.UUID `json:"assigned_by,omitempty"`
	Source         string     `json:"source"`
	EmailSentAt    *time.Time `json:"email_sent_at,omitempty"`
	TaskID         *uuid.UUID `json:"task_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
