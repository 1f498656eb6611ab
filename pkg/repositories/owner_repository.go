package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/database"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// OwnerRepository defines read access to assignment candidates and their
// historical deal statistics.
type OwnerRepository interface {
	// ListActive returns all active owners ordered by id, the router's
	// canonical candidate order.
	ListActive(ctx context.Context) ([]*models.Owner, error)

	// GetByID retrieves one owner. Returns apperrors.ErrNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Owner, error)

	// StatsByOwner aggregates deal history per owner. Owners without deals
	// are absent from the map; callers fall back to neutral stats.
	StatsByOwner(ctx context.Context) (map[uuid.UUID]*models.OwnerStats, error)
}

type ownerRepository struct {
	pool database.Pool
}

// NewOwnerRepository creates a new owner repository.
func NewOwnerRepository(pool database.Pool) OwnerRepository {
	return &ownerRepository{pool: pool}
}

func (r *ownerRepository) ListActive(ctx context.Context) ([]*models.Owner, error) {
	query := `
		SELECT id, first_name, last_name, email, is_active
		FROM owners
		WHERE is_active
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []*models.Owner
	for rows.Next() {
		var o models.Owner
		if err := rows.Scan(&o.ID, &o.FirstName, &o.LastName, &o.Email, &o.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owners: %w", err)
	}

	return owners, nil
}

func (r *ownerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	query := `
		SELECT id, first_name, last_name, email, is_active
		FROM owners
		WHERE id = $1`

	var o models.Owner
	err := r.pool.QueryRow(ctx, query, id).Scan(&o.ID, &o.FirstName, &o.LastName, &o.Email, &o.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}

	return &o, nil
}

func (r *ownerRepository) StatsByOwner(ctx context.Context) (map[uuid.UUID]*models.OwnerStats, error) {
	query := `
		SELECT owner_id,
			COUNT(*) AS deal_count,
			COUNT(*) FILTER (WHERE status = 'won') AS won_count,
			COALESCE(SUM(value), 0) AS total_value
		FROM deals
		GROUP BY owner_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate deal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[uuid.UUID]*models.OwnerStats)
	for rows.Next() {
		var s models.OwnerStats
		if err := rows.Scan(&s.OwnerID, &s.DealCount, &s.WonCount, &s.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan deal stats: %w", err)
		}
		if s.DealCount > 0 {
			// Integer percentage, rounded
			s.SuccessRate = (s.WonCount*100 + s.DealCount/2) / s.DealCount
		}
		stats[s.OwnerID] = &s
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deal stats: %w", err)
	}

	return stats, nil
}

// Ensure ownerRepository implements OwnerRepository at compile time.
var _ OwnerRepository = (*ownerRepository)(nil)
