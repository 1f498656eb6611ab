package models

import (
	"time"

	"github.com/google/uuid"
)

// Router identity recorded on automatic decisions.
const (
	RouterName       = "opportunity_router"
	RouterVersion    = "1.0"
	RouterNameManual = "manual_override"
)

// OwnerScore is one row of the router's score table.
type OwnerScore struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	OwnerName string    `json:"owner_name"`
	Score     int       `json:"score"`
}

// RoutingDecision is an append-only audit row: exactly one per routing
// attempt, automatic or manual, applied or not. Rows are never updated or
// deleted - they are the explainability trail.
type RoutingDecision struct {
	ID                uuid.UUID      `json:"id"`
	OpportunityID     uuid.UUID      `json:"opportunity_id"`
	StreamID          *uuid.UUID     `json:"stream_id,omitempty"`
	RouterName        string         `json:"router_name"`
	RouterVersion     string         `json:"router_version"`
	Confidence        float64        `json:"confidence"`
	DecisionSummary   string         `json:"decision_summary"`
	InputSnapshot     map[string]any `json:"input_snapshot,omitempty"`
	OutputSnapshot    map[string]any `json:"output_snapshot,omitempty"`
	Explanation       string         `json:"explanation"`
	Applied           bool           `json:"applied"`
	AppliedAssigneeID *uuid.UUID     `json:"applied_assignee_id,omitempty"`
	FallbackUsed      bool           `json:"fallback_used"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	IsManualOverride  bool           `json:"is_manual_override"`
	OverrideByUserID  *uuid.UUID     `json:"override_by_user_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
