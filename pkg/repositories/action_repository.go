package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/database"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// ActionRepository defines data access for the assignment side-effect ledger.
type ActionRepository interface {
	// Create inserts an assignment action. Returns apperrors.ErrConflict when
	// the assignment hash already exists - a concurrent caller completed the
	// same idempotent operation first.
	Create(ctx context.Context, action *models.AssignmentAction) error

	// GetByHash retrieves an action by its assignment hash. Returns
	// apperrors.ErrNotFound when none exists.
	GetByHash(ctx context.Context, hash string) (*models.AssignmentAction, error)

	// SetOutcome records what the side effects achieved: when the email went
	// out (nil if delivery failed) and which task anchors the follow-up pair.
	SetOutcome(ctx context.Context, id uuid.UUID, emailSentAt *time.Time, taskID *uuid.UUID) error
}

type actionRepository struct {
	pool database.Pool
}

// NewActionRepository creates a new assignment action repository.
func NewActionRepository(pool database.Pool) ActionRepository {
	return &actionRepository{pool: pool}
}

func (r *actionRepository) Create(ctx context.Context, action *models.AssignmentAction) error {
	action.CreatedAt = time.Now()

	query := `
		INSERT INTO assignment_actions (
			opportunity_id, assignee_id, assignment_hash, assigned_by, source,
			email_sent_at, task_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		action.OpportunityID,
		action.AssigneeID,
		action.AssignmentHash,
		action.AssignedBy,
		action.Source,
		action.EmailSentAt,
		action.TaskID,
		action.CreatedAt,
	).Scan(&action.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create assignment action: %w", err)
	}

	return nil
}

func (r *actionRepository) GetByHash(ctx context.Context, hash string) (*models.AssignmentAction, error) {
	query := `
		SELECT id, opportunity_id, assignee_id, assignment_hash, assigned_by, source,
			email_sent_at, task_id, created_at
		FROM assignment_actions
		WHERE assignment_hash = $1`

	var action models.AssignmentAction
	err := r.pool.QueryRow(ctx, query, hash).Scan(
		&action.ID,
		&action.OpportunityID,
		&action.AssigneeID,
		&action.AssignmentHash,
		&action.AssignedBy,
		&action.Source,
		&action.EmailSentAt,
		&action.TaskID,
		&action.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get assignment action: %w", err)
	}

	return &action, nil
}

func (r *actionRepository) SetOutcome(ctx context.Context, id uuid.UUID, emailSentAt *time.Time, taskID *uuid.UUID) error {
	query := `
		UPDATE assignment_actions
		SET email_sent_at = $2, task_id = $3
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, emailSentAt, taskID)
	if err != nil {
		return fmt.Errorf("failed to update assignment action: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure actionRepository implements ActionRepository at compile time.
var _ ActionRepository = (*actionRepository)(nil)
