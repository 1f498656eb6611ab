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

// TaskRepository defines data access for follow-up tasks.
type TaskRepository interface {
	// Create inserts a task and sets its ID and timestamps.
	Create(ctx context.Context, task *models.Task) error

	// FindOpenByType returns the id of an open (open or in_progress) task of
	// the given type for this opportunity and assignee, or
	// apperrors.ErrNotFound. Used to keep task creation idempotent.
	FindOpenByType(ctx context.Context, opportunityID, assigneeID uuid.UUID, taskType string) (uuid.UUID, error)

	// CloseOpenTasksExcept marks every open task on this opportunity owned by
	// a different assignee as done. Returns the number of tasks closed.
	// This is the reassignment-cleanup step.
	CloseOpenTasksExcept(ctx context.Context, opportunityID, keepAssigneeID uuid.UUID) (int64, error)
}

type taskRepository struct {
	pool database.Pool
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(pool database.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) Create(ctx context.Context, task *models.Task) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskStatusOpen
	}

	query := `
		INSERT INTO tasks (
			opportunity_id, assignee_id, task_type, title, description,
			priority, status, due_at, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		task.OpportunityID,
		task.AssigneeID,
		task.TaskType,
		task.Title,
		task.Description,
		task.Priority,
		task.Status,
		task.DueAt,
		task.CreatedBy,
		task.CreatedAt,
		task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

func (r *taskRepository) FindOpenByType(ctx context.Context, opportunityID, assigneeID uuid.UUID, taskType string) (uuid.UUID, error) {
	query := `
		SELECT id
		FROM tasks
		WHERE opportunity_id = $1 AND assignee_id = $2 AND task_type = $3
			AND status IN ('open', 'in_progress')
		LIMIT 1`

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query, opportunityID, assigneeID, taskType).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperrors.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to find open task: %w", err)
	}

	return id, nil
}

func (r *taskRepository) CloseOpenTasksExcept(ctx context.Context, opportunityID, keepAssigneeID uuid.UUID) (int64, error) {
	query := `
		UPDATE tasks
		SET status = 'done', updated_at = $3
		WHERE opportunity_id = $1 AND assignee_id <> $2
			AND status IN ('open', 'in_progress')`

	result, err := r.pool.Exec(ctx, query, opportunityID, keepAssigneeID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to close open tasks: %w", err)
	}

	return result.RowsAffected(), nil
}

// Ensure taskRepository implements TaskRepository at compile time.
var _ TaskRepository = (*taskRepository)(nil)
