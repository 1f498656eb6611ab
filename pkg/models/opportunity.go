package models

import (
	"time"

	"github.com/google/uuid"
)

// Opportunity is a sales lead tracked through assignment and stage.
// Created once by the ingest gateway; assignment fields are mutated by the
// router and by manual reassignment. Rows are never deleted by the pipeline.
type Opportunity struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	CompanyName *string   `json:"company_name,omitempty"`
	ContactName *string   `json:"contact_name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Address     *string   `json:"address,omitempty"`
	City        *string   `json:"city,omitempty"`
	Postcode    *string   `json:"postcode,omitempty"`
	Status      string    `json:"status"`
	Stage       string    `json:"stage"`
	Priority    string    `json:"priority"`
	Description *string   `json:"description,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Value       *float64  `json:"value,omitempty"`

	AssignedTo     *uuid.UUID `json:"assigned_to,omitempty"`
	AssignedToName *string    `json:"assigned_to_name,omitempty"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`

	SourceStreamID *uuid.UUID     `json:"source_stream_id,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location joins the address fields for display, skipping empties.
func (o *Opportunity) Location() string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{o.Address, o.City, o.Postcode} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// DisplayName is the "Company – Contact" string used in notifications and
// task titles. Falls back to whichever side is present.
func (o *Opportunity) DisplayName() string {
	company := ""
	if o.CompanyName != nil {
		company = *o.CompanyName
	}
	contact := ""
	if o.ContactName != nil {
		contact = *o.ContactName
	}
	switch {
	case company != "" && contact != "":
		return company + " – " + contact
	case company != "":
		return company
	case contact != "":
		return contact
	default:
		return "Unknown"
	}
}
