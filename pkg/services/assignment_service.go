package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/logging"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
	"github.com/dealdesk-crm/intake-engine/pkg/repositories"
)

// Scoring weights. An owner's score is the sum of three components:
// historical win rate (up to 50), a saturating experience curve (up to 30,
// full points at experienceCap deals), and how closely the owner's average
// deal value matches the opportunity's value (up to 20, no contribution when
// either side is unknown or zero).
const (
	winRateWeight    = 50
	experienceWeight = 30
	valueMatchWeight = 20
	experienceCap    = 10

	// Owners without deal history score as a 50% win rate so newcomers are
	// not frozen out of the rotation.
	neutralSuccessRate = 50
)

// How many score rows the decision input snapshot keeps.
const snapshotTopN = 5

// AssignResult is what an applied automatic assignment produced.
type AssignResult struct {
	OwnerID    uuid.UUID `json:"owner_id"`
	OwnerName  string    `json:"owner_name"`
	Score      int       `json:"score"`
	Confidence float64   `json:"confidence"`
	DecisionID uuid.UUID `json:"decision_id"`
}

// ScoreOwners ranks assignment candidates for an opportunity.
//
// The returned slice is ordered best-first: higher score wins, and equal
// scores are ordered by ascending owner id string. The tie-break is
// deliberate - candidate order must not depend on how the database happened
// to return rows.
func ScoreOwners(opp *models.Opportunity, owners []*models.Owner, stats map[uuid.UUID]*models.OwnerStats) []models.OwnerScore {
	scores := make([]models.OwnerScore, 0, len(owners))
	for _, owner := range owners {
		scores = append(scores, models.OwnerScore{
			OwnerID:   owner.ID,
			OwnerName: owner.FullName(),
			Score:     scoreOwner(opp, stats[owner.ID]),
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].OwnerID.String() < scores[j].OwnerID.String()
	})

	return scores
}

func scoreOwner(opp *models.Opportunity, s *models.OwnerStats) int {
	if s == nil || s.DealCount == 0 {
		return neutralSuccessRate * winRateWeight / 100
	}

	score := s.SuccessRate * winRateWeight / 100

	deals := s.DealCount
	if deals > experienceCap {
		deals = experienceCap
	}
	score += deals * experienceWeight / experienceCap

	if opp.Value != nil && *opp.Value > 0 {
		if avg := s.AvgDealValue(); avg > 0 {
			ratio := math.Min(*opp.Value, avg) / math.Max(*opp.Value, avg)
			score += int(math.Round(ratio * valueMatchWeight))
		}
	}

	return score
}

// AssignmentService routes unassigned opportunities to owners and records
// every routing attempt.
type AssignmentService interface {
	// Assign scores candidates for an unassigned opportunity and applies the
	// top one when its confidence clears the auto-assign threshold. Returns
	// nil (with no error) when nothing was applied: opportunity already
	// assigned, no candidates, score too low, routing disabled, or a
	// concurrent writer won the assignment race. Every attempt on an
	// unassigned opportunity writes exactly one routing decision.
	Assign(ctx context.Context, opportunityID uuid.UUID) (*AssignResult, error)

	// ManualAssign reassigns an opportunity to a chosen owner, replacing any
	// current assignee, logs the override as a routing decision, and runs the
	// follow-up side effects.
	ManualAssign(ctx context.Context, opportunityID, ownerID uuid.UUID, overrideBy *uuid.UUID) (*models.Opportunity, error)

	// Decisions returns the opportunity's routing decision trail, newest
	// first. Returns apperrors.ErrNotFound when the opportunity does not
	// exist; an existing opportunity with no attempts yields an empty list.
	Decisions(ctx context.Context, opportunityID uuid.UUID, limit int) ([]*models.RoutingDecision, error)
}

type assignmentService struct {
	oppRepo      repositories.OpportunityRepository
	ownerRepo    repositories.OwnerRepository
	decisionRepo repositories.DecisionRepository
	settingsRepo repositories.SettingsRepository
	followUp     FollowUpService
	logger       *zap.Logger
}

// NewAssignmentService creates a new assignment service.
func NewAssignmentService(
	oppRepo repositories.OpportunityRepository,
	ownerRepo repositories.OwnerRepository,
	decisionRepo repositories.DecisionRepository,
	settingsRepo repositories.SettingsRepository,
	followUp FollowUpService,
	logger *zap.Logger,
) AssignmentService {
	return &assignmentService{
		oppRepo:      oppRepo,
		ownerRepo:    ownerRepo,
		decisionRepo: decisionRepo,
		settingsRepo: settingsRepo,
		followUp:     followUp,
		logger:       logger.Named("assignment-service"),
	}
}

var _ AssignmentService = (*assignmentService)(nil)

func (s *assignmentService) Assign(ctx context.Context, opportunityID uuid.UUID) (*AssignResult, error) {
	opp, err := s.oppRepo.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load opportunity for routing: %w", err)
	}

	if opp.AssignedTo != nil {
		// Someone (a manual assignment, usually) got here first. Skip
		// silently rather than clobber it - no decision row either, since
		// nothing was attempted.
		s.logger.Debug("Opportunity already assigned, skipping routing",
			zap.String("opportunity_id", opportunityID.String()))
		return nil, nil
	}

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		// Get returns defaults alongside the error.
		s.logger.Warn("Router settings unreadable, using defaults",
			zap.String("error", logging.SanitizeError(err)))
	}

	owners, err := s.ownerRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignment candidates: %w", err)
	}

	decision := &models.RoutingDecision{
		OpportunityID: opp.ID,
		StreamID:      opp.SourceStreamID,
		RouterName:    models.RouterName,
		RouterVersion: models.RouterVersion,
		InputSnapshot: map[string]any{
			"auto_assign_enabled":   settings.AutoAssignEnabled,
			"auto_assign_threshold": settings.AutoAssignThreshold,
			"candidate_count":       len(owners),
		},
	}

	if len(owners) == 0 {
		decision.DecisionSummary = "no candidates"
		decision.Explanation = "No active owners available for assignment."
		decision.FallbackUsed = true
		s.logDecision(ctx, decision)
		return nil, nil
	}

	stats, err := s.ownerRepo.StatsByOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner stats: %w", err)
	}

	scores := ScoreOwners(opp, owners, stats)
	top := scores[0]
	confidence := float64(top.Score) / 100

	decision.Confidence = confidence
	decision.InputSnapshot["scores"] = scoreTable(scores)
	if opp.Value != nil {
		decision.InputSnapshot["opportunity_value"] = *opp.Value
	}
	decision.OutputSnapshot = map[string]any{
		"owner_id":   top.OwnerID.String(),
		"owner_name": top.OwnerName,
		"score":      top.Score,
	}

	switch {
	case top.Score <= 0:
		decision.DecisionSummary = "no viable candidate"
		decision.Explanation = fmt.Sprintf("Top candidate %s scored %d; nothing to apply.", top.OwnerName, top.Score)
		decision.FallbackUsed = true
		s.logDecision(ctx, decision)
		return nil, nil

	case !settings.AutoAssignEnabled:
		decision.DecisionSummary = "auto-assign disabled"
		decision.Explanation = fmt.Sprintf("Would assign to %s (score %d), but automatic assignment is disabled.", top.OwnerName, top.Score)
		decision.FallbackUsed = true
		s.logDecision(ctx, decision)
		return nil, nil

	case top.Score < settings.AutoAssignThreshold:
		decision.DecisionSummary = "below threshold"
		decision.Explanation = fmt.Sprintf("Top candidate %s scored %d, below the auto-assign threshold of %d. Left for manual triage.",
			top.OwnerName, top.Score, settings.AutoAssignThreshold)
		s.logDecision(ctx, decision)
		return nil, nil
	}

	if err := s.oppRepo.AssignIfUnassigned(ctx, opp.ID, top.OwnerID, top.OwnerName, time.Now()); err != nil {
		msg := logging.SanitizeError(err)
		if errors.Is(err, apperrors.ErrAlreadyAssigned) {
			msg = "opportunity was assigned concurrently"
		}
		decision.DecisionSummary = "apply failed"
		decision.Explanation = fmt.Sprintf("Selected %s (score %d) but could not apply the assignment.", top.OwnerName, top.Score)
		decision.ErrorMessage = &msg
		s.logDecision(ctx, decision)
		return nil, nil
	}

	decision.DecisionSummary = fmt.Sprintf("assigned to %s", top.OwnerName)
	decision.Explanation = fmt.Sprintf("Assigned to %s with score %d (threshold %d).", top.OwnerName, top.Score, settings.AutoAssignThreshold)
	decision.Applied = true
	decision.AppliedAssigneeID = &top.OwnerID
	s.logDecision(ctx, decision)

	s.logger.Info("Opportunity auto-assigned",
		zap.String("opportunity_id", opp.ID.String()),
		zap.String("owner_id", top.OwnerID.String()),
		zap.Int("score", top.Score))

	s.runFollowUp(ctx, opp, s.resolveAssignee(ctx, top.OwnerID, top.OwnerName), nil, models.AssignmentSourceAI)

	return &AssignResult{
		OwnerID:    top.OwnerID,
		OwnerName:  top.OwnerName,
		Score:      top.Score,
		Confidence: confidence,
		DecisionID: decision.ID,
	}, nil
}

func (s *assignmentService) ManualAssign(ctx context.Context, opportunityID, ownerID uuid.UUID, overrideBy *uuid.UUID) (*models.Opportunity, error) {
	opp, err := s.oppRepo.GetByID(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load opportunity: %w", err)
	}

	owner, err := s.ownerRepo.GetByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}
	if !owner.IsActive {
		return nil, fmt.Errorf("owner %s is not active: %w", ownerID, apperrors.ErrNotFound)
	}

	now := time.Now()
	ownerName := owner.FullName()
	if err := s.oppRepo.Reassign(ctx, opp.ID, owner.ID, ownerName, now); err != nil {
		return nil, fmt.Errorf("failed to apply manual assignment: %w", err)
	}

	previous := "unassigned"
	if opp.AssignedToName != nil {
		previous = *opp.AssignedToName
	}

	decision := &models.RoutingDecision{
		OpportunityID:   opp.ID,
		StreamID:        opp.SourceStreamID,
		RouterName:      models.RouterNameManual,
		RouterVersion:   models.RouterVersion,
		Confidence:      1,
		DecisionSummary: fmt.Sprintf("manually assigned to %s", ownerName),
		Explanation:     fmt.Sprintf("Manual override: %s -> %s.", previous, ownerName),
		OutputSnapshot: map[string]any{
			"owner_id":   owner.ID.String(),
			"owner_name": ownerName,
		},
		Applied:           true,
		AppliedAssigneeID: &owner.ID,
		IsManualOverride:  true,
		OverrideByUserID:  overrideBy,
	}
	s.logDecision(ctx, decision)

	s.logger.Info("Opportunity manually assigned",
		zap.String("opportunity_id", opp.ID.String()),
		zap.String("owner_id", owner.ID.String()))

	opp.AssignedTo = &owner.ID
	opp.AssignedToName = &ownerName
	opp.AssignedAt = &now
	opp.UpdatedAt = now

	s.runFollowUp(ctx, opp, owner, overrideBy, models.AssignmentSourceManual)

	return opp, nil
}

func (s *assignmentService) Decisions(ctx context.Context, opportunityID uuid.UUID, limit int) ([]*models.RoutingDecision, error) {
	if _, err := s.oppRepo.GetByID(ctx, opportunityID); err != nil {
		return nil, fmt.Errorf("failed to load opportunity: %w", err)
	}

	decisions, err := s.decisionRepo.ListByOpportunity(ctx, opportunityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing decisions: %w", err)
	}
	return decisions, nil
}

// resolveAssignee fetches the full owner record for the follow-up side
// effects, falling back to a minimal record when the read fails.
func (s *assignmentService) resolveAssignee(ctx context.Context, ownerID uuid.UUID, ownerName string) *models.Owner {
	if full, err := s.ownerRepo.GetByID(ctx, ownerID); err == nil {
		return full
	}
	return &models.Owner{ID: ownerID, FirstName: ownerName, IsActive: true}
}

// runFollowUp fires the post-assignment side effects. Failures are logged,
// never propagated: the assignment itself is already committed.
func (s *assignmentService) runFollowUp(ctx context.Context, opp *models.Opportunity, assignee *models.Owner, assignedBy *uuid.UUID, source string) {
	if _, err := s.followUp.RecordAssignmentAndNotify(ctx, opp, assignee, assignedBy, source); err != nil {
		s.logger.Error("Assignment follow-up failed",
			zap.String("opportunity_id", opp.ID.String()),
			zap.String("owner_id", assignee.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// logDecision writes the routing decision, logging rather than failing when
// the audit insert itself errors. The routing outcome stands either way.
func (s *assignmentService) logDecision(ctx context.Context, decision *models.RoutingDecision) {
	if err := s.decisionRepo.Create(ctx, decision); err != nil {
		s.logger.Error("Failed to record routing decision",
			zap.String("opportunity_id", decision.OpportunityID.String()),
			zap.String("summary", decision.DecisionSummary),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func scoreTable(scores []models.OwnerScore) []map[string]any {
	n := len(scores)
	if n > snapshotTopN {
		n = snapshotTopN
	}
	table := make([]map[string]any, 0, n)
	for _, s := range scores[:n] {
		table = append(table, map[string]any{
			"owner_id":   s.OwnerID.String(),
			"owner_name": s.OwnerName,
			"score":      s.Score,
		})
	}
	return table
}
