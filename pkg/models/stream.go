package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamType identifies how a stream's events reach the gateway.
type StreamType string

const (
	StreamTypeWebhook     StreamType = "webhook"
	StreamTypeForm        StreamType = "form"
	StreamTypePartnerFeed StreamType = "partner_feed"
)

// StreamConfig is the declarative payload-mapping configuration stored per stream.
type StreamConfig struct {
	// Mapping maps opportunity fields to payload dot-paths or literal values.
	// A value containing a dot (or prefixed "payload.") is treated as a path,
	// anything else as a literal.
	Mapping map[string]string `json:"mapping,omitempty"`

	// Defaults fill opportunity fields the mapping left empty.
	Defaults map[string]string `json:"defaults,omitempty"`

	// RequireSecret controls whether requests must authenticate.
	// Nil means required (the safe default).
	RequireSecret *bool `json:"require_secret,omitempty"`
}

// SecretRequired reports whether requests on this stream must carry a valid
// credential. Only an explicit "require_secret": false opts out.
func (c *StreamConfig) SecretRequired() bool {
	if c == nil || c.RequireSecret == nil {
		return true
	}
	return *c.RequireSecret
}

// Stream is a named ingestion endpoint. Created and edited by operators;
// read-only to the pipeline.
type Stream struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Type     StreamType `json:"type"`
	IsActive bool       `json:"is_active"`

	// SecretHash is the bcrypt hash of the shared secret, nil when the
	// stream has no secret configured.
	SecretHash *string `json:"-"`

	// SecretCiphertext is the AES-GCM encrypted secret, set only for streams
	// that verify requests via HMAC signature (the hash alone cannot serve
	// that path).
	SecretCiphertext *string `json:"-"`

	Config    StreamConfig `json:"config"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
