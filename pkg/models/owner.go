package models

import "github.com/google/uuid"

// Owner is a human candidate for opportunity assignment.
type Owner struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
}

// FullName joins first and last name, skipping empties.
func (o *Owner) FullName() string {
	switch {
	case o.FirstName != "" && o.LastName != "":
		return o.FirstName + " " + o.LastName
	case o.FirstName != "":
		return o.FirstName
	case o.LastName != "":
		return o.LastName
	default:
		return "Unknown"
	}
}

// OwnerStats aggregates an owner's historical deal performance.
// A rep with no history gets the neutral 50% success rate so newcomers are
// not scored to zero.
type OwnerStats struct {
	OwnerID     uuid.UUID `json:"owner_id"`
	DealCount   int       `json:"deal_count"`
	WonCount    int       `json:"won_count"`
	SuccessRate int       `json:"success_rate"` // 0-100
	TotalValue  float64   `json:"total_value"`
}

// AvgDealValue returns the owner's average historical deal value, or 0 when
// there is no history.
func (s *OwnerStats) AvgDealValue() float64 {
	if s.DealCount == 0 {
		return 0
	}
	return s.TotalValue / float64(s.DealCount)
}
