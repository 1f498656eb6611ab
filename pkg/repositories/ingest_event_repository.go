package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/database"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// IngestEventRepository defines data access for the ingestion audit ledger.
type IngestEventRepository interface {
	// Create inserts an ingest event. Returns apperrors.ErrConflict when the
	// partial unique indexes reject a second created-opportunity event for the
	// same idempotency key or external id (the concurrent-delivery race).
	Create(ctx context.Context, event *models.IngestEvent) error

	// FindCreated looks up an event with a non-nil created opportunity for
	// this stream matching the idempotency key or the external id. Returns
	// apperrors.ErrNotFound when no such event exists.
	FindCreated(ctx context.Context, streamID uuid.UUID, idempotencyKey string, externalID *string) (*models.IngestEvent, error)
}

type ingestEventRepository struct {
	pool database.Pool
}

// NewIngestEventRepository creates a new ingest event repository.
func NewIngestEventRepository(pool database.Pool) IngestEventRepository {
	return &ingestEventRepository{pool: pool}
}

func (r *ingestEventRepository) Create(ctx context.Context, event *models.IngestEvent) error {
	query := `
		INSERT INTO ingest_events (
			stream_id, received_at, status, http_status, idempotency_key,
			external_id, payload, error_message, created_opportunity_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		event.StreamID,
		event.ReceivedAt,
		event.Status,
		event.HTTPStatus,
		event.IdempotencyKey,
		event.ExternalID,
		event.Payload,
		event.ErrorMessage,
		event.CreatedOpportunityID,
	).Scan(&event.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create ingest event: %w", err)
	}

	return nil
}

func (r *ingestEventRepository) FindCreated(ctx context.Context, streamID uuid.UUID, idempotencyKey string, externalID *string) (*models.IngestEvent, error) {
	if idempotencyKey != "" {
		event, err := r.findCreatedBy(ctx, streamID, "idempotency_key", idempotencyKey)
		if err == nil {
			return event, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}

	if externalID != nil && *externalID != "" {
		return r.findCreatedBy(ctx, streamID, "external_id", *externalID)
	}

	return nil, apperrors.ErrNotFound
}

func (r *ingestEventRepository) findCreatedBy(ctx context.Context, streamID uuid.UUID, column, value string) (*models.IngestEvent, error) {
	query := fmt.Sprintf(`
		SELECT id, stream_id, received_at, status, http_status, idempotency_key,
			external_id, payload, error_message, created_opportunity_id
		FROM ingest_events
		WHERE stream_id = $1 AND %s = $2 AND created_opportunity_id IS NOT NULL
		LIMIT 1`, column)

	var event models.IngestEvent
	err := r.pool.QueryRow(ctx, query, streamID, value).Scan(
		&event.ID,
		&event.StreamID,
		&event.ReceivedAt,
		&event.Status,
		&event.HTTPStatus,
		&event.IdempotencyKey,
		&event.ExternalID,
		&event.Payload,
		&event.ErrorMessage,
		&event.CreatedOpportunityID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find ingest event: %w", err)
	}

	return &event, nil
}

// Ensure ingestEventRepository implements IngestEventRepository at compile time.
var _ IngestEventRepository = (*ingestEventRepository)(nil)
