package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk-crm/intake-engine/pkg/database"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// DecisionRepository defines data access for routing decisions.
// Decisions are append-only: there is deliberately no update or delete.
type DecisionRepository interface {
	// Create inserts a routing decision and sets its ID and CreatedAt.
	Create(ctx context.Context, decision *models.RoutingDecision) error

	// ListByOpportunity returns decisions for an opportunity, newest first.
	ListByOpportunity(ctx context.Context, opportunityID uuid.UUID, limit int) ([]*models.RoutingDecision, error)
}

type decisionRepository struct {
	pool database.Pool
}

// NewDecisionRepository creates a new routing decision repository.
func NewDecisionRepository(pool database.Pool) DecisionRepository {
	return &decisionRepository{pool: pool}
}

func (r *decisionRepository) Create(ctx context.Context, decision *models.RoutingDecision) error {
	decision.CreatedAt = time.Now()

	query := `
		INSERT INTO routing_decisions (
			opportunity_id, stream_id, router_name, router_version, confidence,
			decision_summary, input_snapshot, output_snapshot, explanation,
			applied, applied_assignee_id, fallback_used, error_message,
			is_manual_override, override_by_user_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		decision.OpportunityID,
		decision.StreamID,
		decision.RouterName,
		decision.RouterVersion,
		decision.Confidence,
		decision.DecisionSummary,
		decision.InputSnapshot,
		decision.OutputSnapshot,
		decision.Explanation,
		decision.Applied,
		decision.AppliedAssigneeID,
		decision.FallbackUsed,
		decision.ErrorMessage,
		decision.IsManualOverride,
		decision.OverrideByUserID,
		decision.CreatedAt,
	).Scan(&decision.ID)
	if err != nil {
		return fmt.Errorf("failed to create routing decision: %w", err)
	}

	return nil
}

func (r *decisionRepository) ListByOpportunity(ctx context.Context, opportunityID uuid.UUID, limit int) ([]*models.RoutingDecision, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, opportunity_id, stream_id, router_name, router_version, confidence,
			decision_summary, input_snapshot, output_snapshot, explanation,
			applied, applied_assignee_id, fallback_used, error_message,
			is_manual_override, override_by_user_id, created_at
		FROM routing_decisions
		WHERE opportunity_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, opportunityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.RoutingDecision
	for rows.Next() {
		var d models.RoutingDecision
		err := rows.Scan(
			&d.ID,
			&d.OpportunityID,
			&d.StreamID,
			&d.RouterName,
			&d.RouterVersion,
			&d.Confidence,
			&d.DecisionSummary,
			&d.InputSnapshot,
			&d.OutputSnapshot,
			&d.Explanation,
			&d.Applied,
			&d.AppliedAssigneeID,
			&d.FallbackUsed,
			&d.ErrorMessage,
			&d.IsManualOverride,
			&d.OverrideByUserID,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing decision: %w", err)
		}
		decisions = append(decisions, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routing decisions: %w", err)
	}

	return decisions, nil
}

// Ensure decisionRepository implements DecisionRepository at compile time.
var _ DecisionRepository = (*decisionRepository)(nil)
