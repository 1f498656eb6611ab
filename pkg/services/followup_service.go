package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/logging"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
	"github.com/dealdesk-crm/intake-engine/pkg/repositories"
)

// AssignmentHash derives the daily idempotency hash for assignment side
// effects: sha256 over "opportunityID|assigneeID|YYYY-MM-DD", with the day
// bucket taken in UTC. Reassigning the same opportunity to the same person on
// the same calendar day is a no-op; the next day it notifies again.
func AssignmentHash(opportunityID, assigneeID uuid.UUID, at time.Time) string {
	day := at.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(opportunityID.String() + "|" + assigneeID.String() + "|" + day))
	return hex.EncodeToString(sum[:])
}

// FollowUpService runs the post-assignment side effects: the action ledger
// row, reassignment task cleanup, the initial follow-up task pair, and the
// assignee notification.
type FollowUpService interface {
	// RecordAssignmentAndNotify is called after every applied assignment,
	// automatic or manual. It is idempotent per assignment hash: a completed
	// action for the same opportunity, assignee and calendar day is returned
	// unchanged with no side effects. Notification delivery is best-effort;
	// task creation failure is an error the caller must surface.
	RecordAssignmentAndNotify(ctx context.Context, opp *models.Opportunity, assignee *models.Owner, assignedBy *uuid.UUID, source string) (*models.AssignmentAction, error)
}

type followUpService struct {
	actionRepo repositories.ActionRepository
	tasks      TaskService
	notifier   Notifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewFollowUpService creates a new follow-up service.
func NewFollowUpService(
	actionRepo repositories.ActionRepository,
	tasks TaskService,
	notifier Notifier,
	logger *zap.Logger,
) FollowUpService {
	return &followUpService{
		actionRepo: actionRepo,
		tasks:      tasks,
		notifier:   notifier,
		logger:     logger.Named("followup-service"),
		now:        time.Now,
	}
}

var _ FollowUpService = (*followUpService)(nil)

func (s *followUpService) RecordAssignmentAndNotify(ctx context.Context, opp *models.Opportunity, assignee *models.Owner, assignedBy *uuid.UUID, source string) (*models.AssignmentAction, error) {
	now := s.now()
	hash := AssignmentHash(opp.ID, assignee.ID, now)

	action, err := s.actionRepo.GetByHash(ctx, hash)
	switch {
	case err == nil:
		if action.EmailSentAt != nil {
			s.logger.Info("Assignment side effects already completed today",
				zap.String("opportunity_id", opp.ID.String()),
				zap.String("assignee_id", assignee.ID.String()))
			return action, nil
		}
		// Row exists but notification never went out (earlier failure or a
		// disabled notifier). Re-run the side effects against the same row.
	case errors.Is(err, apperrors.ErrNotFound):
		action = &models.AssignmentAction{
			OpportunityID:  opp.ID,
			AssigneeID:     assignee.ID,
			AssignmentHash: hash,
			AssignedBy:     assignedBy,
			Source:         source,
		}
		if err := s.actionRepo.Create(ctx, action); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				// A concurrent caller inserted the same hash first; its side
				// effects are (or will be) the canonical ones.
				s.logger.Info("Lost assignment action race, skipping side effects",
					zap.String("opportunity_id", opp.ID.String()),
					zap.String("assignee_id", assignee.ID.String()))
				return s.actionRepo.GetByHash(ctx, hash)
			}
			return nil, fmt.Errorf("failed to record assignment action: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to look up assignment action: %w", err)
	}

	if _, err := s.tasks.CloseTransferredTasks(ctx, opp.ID, assignee.ID); err != nil {
		// Stale tasks are an annoyance, not a correctness problem.
		s.logger.Warn("Failed to close previous assignee's tasks",
			zap.String("opportunity_id", opp.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
	}

	taskID, err := s.tasks.EnsureInitialTasks(ctx, opp, assignee, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create follow-up tasks: %w", err)
	}

	var emailSentAt *time.Time
	sent, err := s.notifier.Send(ctx, assignee.ID, TemplateOpportunityAssigned, notificationFields(opp, assignee))
	if err != nil {
		s.logger.Warn("Assignment notification failed",
			zap.String("opportunity_id", opp.ID.String()),
			zap.String("assignee_id", assignee.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
	} else if sent {
		at := s.now()
		emailSentAt = &at
	}

	if err := s.actionRepo.SetOutcome(ctx, action.ID, emailSentAt, &taskID); err != nil {
		return nil, fmt.Errorf("failed to record assignment outcome: %w", err)
	}
	action.EmailSentAt = emailSentAt
	action.TaskID = &taskID

	s.logger.Info("Assignment follow-up completed",
		zap.String("opportunity_id", opp.ID.String()),
		zap.String("assignee_id", assignee.ID.String()),
		zap.String("source", source),
		zap.Bool("notified", emailSentAt != nil))

	return action, nil
}

func notificationFields(opp *models.Opportunity, assignee *models.Owner) map[string]string {
	fields := map[string]string{
		"assignee_name":    assignee.FullName(),
		"opportunity_name": opp.DisplayName(),
	}
	if opp.Email != nil {
		fields["email"] = *opp.Email
	}
	if opp.Phone != nil {
		fields["phone"] = *opp.Phone
	}
	if loc := opp.Location(); loc != "" {
		fields["location"] = loc
	}
	if opp.Description != nil {
		fields["message"] = logging.TruncateString(*opp.Description, taskMessageSummaryLen)
	}
	return fields
}
