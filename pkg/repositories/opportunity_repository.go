package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/database"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// OpportunityRepository defines data access for opportunities.
type OpportunityRepository interface {
	// Create inserts a new opportunity and sets its ID and timestamps.
	Create(ctx context.Context, opp *models.Opportunity) error

	// GetByID retrieves an opportunity. Returns apperrors.ErrNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)

	// AssignIfUnassigned atomically sets the assignment fields, but only when
	// the opportunity is currently unassigned. Returns
	// apperrors.ErrAlreadyAssigned when a concurrent writer got there first.
	// This conditional write is the router's race-safety mechanism.
	AssignIfUnassigned(ctx context.Context, id, ownerID uuid.UUID, ownerName string, at time.Time) error

	// Reassign unconditionally sets the assignment fields. Used by manual
	// override, which is allowed to replace an existing assignee.
	Reassign(ctx context.Context, id, ownerID uuid.UUID, ownerName string, at time.Time) error

	// Delete removes an opportunity. Only used to compensate when the ingest
	// event insert loses the duplicate race after the opportunity was already
	// stored; the winner's opportunity is the canonical one.
	Delete(ctx context.Context, id uuid.UUID) error
}

type opportunityRepository struct {
	pool database.Pool
}

// NewOpportunityRepository creates a new opportunity repository.
func NewOpportunityRepository(pool database.Pool) OpportunityRepository {
	return &opportunityRepository{pool: pool}
}

func (r *opportunityRepository) Create(ctx context.Context, opp *models.Opportunity) error {
	now := time.Now()
	opp.CreatedAt = now
	opp.UpdatedAt = now

	query := `
		INSERT INTO opportunities (
			title, company_name, contact_name, email, phone, address, city, postcode,
			status, stage, priority, description, notes, value,
			assigned_to, assigned_to_name, assigned_at, source_stream_id, meta,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		opp.Title,
		opp.CompanyName,
		opp.ContactName,
		opp.Email,
		opp.Phone,
		opp.Address,
		opp.City,
		opp.Postcode,
		opp.Status,
		opp.Stage,
		opp.Priority,
		opp.Description,
		opp.Notes,
		opp.Value,
		opp.AssignedTo,
		opp.AssignedToName,
		opp.AssignedAt,
		opp.SourceStreamID,
		opp.Meta,
		opp.CreatedAt,
		opp.UpdatedAt,
	).Scan(&opp.ID)
	if err != nil {
		return fmt.Errorf("failed to create opportunity: %w", err)
	}

	return nil
}

func (r *opportunityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	query := `
		SELECT id, title, company_name, contact_name, email, phone, address, city, postcode,
			status, stage, priority, description, notes, value,
			assigned_to, assigned_to_name, assigned_at, source_stream_id, meta,
			created_at, updated_at
		FROM opportunities
		WHERE id = $1`

	var opp models.Opportunity
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&opp.ID,
		&opp.Title,
		&opp.CompanyName,
		&opp.ContactName,
		&opp.Email,
		&opp.Phone,
		&opp.Address,
		&opp.City,
		&opp.Postcode,
		&opp.Status,
		&opp.Stage,
		&opp.Priority,
		&opp.Description,
		&opp.Notes,
		&opp.Value,
		&opp.AssignedTo,
		&opp.AssignedToName,
		&opp.AssignedAt,
		&opp.SourceStreamID,
		&opp.Meta,
		&opp.CreatedAt,
		&opp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}

	return &opp, nil
}

func (r *opportunityRepository) AssignIfUnassigned(ctx context.Context, id, ownerID uuid.UUID, ownerName string, at time.Time) error {
	query := `
		UPDATE opportunities
		SET assigned_to = $2, assigned_to_name = $3, assigned_at = $4, updated_at = $4
		WHERE id = $1 AND assigned_to IS NULL`

	result, err := r.pool.Exec(ctx, query, id, ownerID, ownerName, at)
	if err != nil {
		return fmt.Errorf("failed to assign opportunity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrAlreadyAssigned
	}

	return nil
}

func (r *opportunityRepository) Reassign(ctx context.Context, id, ownerID uuid.UUID, ownerName string, at time.Time) error {
	query := `
		UPDATE opportunities
		SET assigned_to = $2, assigned_to_name = $3, assigned_at = $4, updated_at = $4
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, ownerID, ownerName, at)
	if err != nil {
		return fmt.Errorf("failed to reassign opportunity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *opportunityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM opportunities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete opportunity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure opportunityRepository implements OpportunityRepository at compile time.
var _ OpportunityRepository = (*opportunityRepository)(nil)
