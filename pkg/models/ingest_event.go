package models

import (
	"time"

	"github.com/google/uuid"
)

// Ingest event outcomes.
const (
	IngestStatusSuccess = "success"
	IngestStatusError   = "error"
)

// IngestEvent is the audit ledger for ingestion: one row per inbound call,
// written unconditionally on success and on every failure branch.
//
// Invariant: per stream, at most one event with a non-nil
// CreatedOpportunityID shares the same IdempotencyKey or the same non-nil
// ExternalID (enforced by partial unique indexes).
type IngestEvent struct {
	ID                   uuid.UUID      `json:"id"`
	StreamID             uuid.UUID      `json:"stream_id"`
	ReceivedAt           time.Time      `json:"received_at"`
	Status               string         `json:"status"`
	HTTPStatus           int            `json:"http_status"`
	IdempotencyKey       *string        `json:"idempotency_key,omitempty"`
	ExternalID           *string        `json:"external_id,omitempty"`
	Payload              map[string]any `json:"payload,omitempty"`
	ErrorMessage         *string        `json:"error_message,omitempty"`
	CreatedOpportunityID *uuid.UUID     `json:"created_opportunity_id,omitempty"`
}
