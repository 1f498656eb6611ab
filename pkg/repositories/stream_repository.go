package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/database"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// StreamRepository defines read access to ingestion streams.
// Streams are created and edited by operators; the pipeline only reads them.
type StreamRepository interface {
	// GetByID retrieves a stream by ID. Returns apperrors.ErrNotFound if missing.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error)
}

type streamRepository struct {
	pool database.Pool
}

// NewStreamRepository creates a new stream repository.
func NewStreamRepository(pool database.Pool) StreamRepository {
	return &streamRepository{pool: pool}
}

func (r *streamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	query := `
		SELECT id, name, type, is_active, secret_hash, secret_ciphertext, config, created_at, updated_at
		FROM streams
		WHERE id = $1`

	var s models.Stream
	var configRaw []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.Name,
		&s.Type,
		&s.IsActive,
		&s.SecretHash,
		&s.SecretCiphertext,
		&configRaw,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &s.Config); err != nil {
			return nil, fmt.Errorf("failed to parse stream config: %w", err)
		}
	}

	return &s, nil
}

// Ensure streamRepository implements StreamRepository at compile time.
var _ StreamRepository = (*streamRepository)(nil)
