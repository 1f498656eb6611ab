package services

import (
	"context"
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

// Due offsets for the initial follow-up pair.
const (
	contactTaskDue = time.Hour
	statusTaskDue  = 24 * time.Hour
)

// Description snippets longer than this are cut.
const taskMessageSummaryLen = 300

// TaskService creates and retires the follow-up tasks attached to an
// opportunity assignment.
type TaskService interface {
	// EnsureInitialTasks guarantees the assignee has the standard follow-up
	// pair for this opportunity: a first-contact task due in 1 hour and a
	// status-update task due in 24 hours. Creation is idempotent: an already
	// open task of a given type is reused, not duplicated. Returns the id of
	// the contact task (the anchor recorded on the assignment action).
	EnsureInitialTasks(ctx context.Context, opp *models.Opportunity, assignee *models.Owner, now time.Time) (uuid.UUID, error)

	// CloseTransferredTasks marks open tasks on this opportunity held by
	// anyone other than the new assignee as done, so reassignment does not
	// leave the previous owner chasing a lead that is no longer theirs.
	// Returns the number of tasks closed.
	CloseTransferredTasks(ctx context.Context, opportunityID, newAssigneeID uuid.UUID) (int64, error)
}

type taskService struct {
	taskRepo repositories.TaskRepository
	baseURL  string
	logger   *zap.Logger
}

// NewTaskService creates a new task service. baseURL is used to build the
// opportunity link embedded in task descriptions.
func NewTaskService(taskRepo repositories.TaskRepository, baseURL string, logger *zap.Logger) TaskService {
	return &taskService{
		taskRepo: taskRepo,
		baseURL:  baseURL,
		logger:   logger.Named("task-service"),
	}
}

var _ TaskService = (*taskService)(nil)

func (s *taskService) EnsureInitialTasks(ctx context.Context, opp *models.Opportunity, assignee *models.Owner, now time.Time) (uuid.UUID, error) {
	contactID, err := s.ensureTask(ctx, opp, assignee, models.TaskTypeContact, now.Add(contactTaskDue))
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := s.ensureTask(ctx, opp, assignee, models.TaskTypeStatus, now.Add(statusTaskDue)); err != nil {
		return uuid.Nil, err
	}

	return contactID, nil
}

func (s *taskService) ensureTask(ctx context.Context, opp *models.Opportunity, assignee *models.Owner, taskType string, dueAt time.Time) (uuid.UUID, error) {
	existing, err := s.taskRepo.FindOpenByType(ctx, opp.ID, assignee.ID, taskType)
	if err == nil {
		s.logger.Debug("Reusing open follow-up task",
			zap.String("task_id", existing.String()),
			zap.String("task_type", taskType),
			zap.String("opportunity_id", opp.ID.String()))
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("failed to check for open %s task: %w", taskType, err)
	}

	task := &models.Task{
		OpportunityID: opp.ID,
		AssigneeID:    assignee.ID,
		TaskType:      taskType,
		Title:         taskTitle(taskType, opp),
		Description:   s.taskDescription(taskType, opp),
		Priority:      models.TaskPriorityHigh,
		Status:        models.TaskStatusOpen,
		DueAt:         dueAt,
		CreatedBy:     assignee.ID,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create %s task: %w", taskType, err)
	}

	s.logger.Info("Created follow-up task",
		zap.String("task_id", task.ID.String()),
		zap.String("task_type", taskType),
		zap.String("opportunity_id", opp.ID.String()),
		zap.String("assignee_id", assignee.ID.String()),
		zap.Time("due_at", dueAt))

	return task.ID, nil
}

func (s *taskService) CloseTransferredTasks(ctx context.Context, opportunityID, newAssigneeID uuid.UUID) (int64, error) {
	closed, err := s.taskRepo.CloseOpenTasksExcept(ctx, opportunityID, newAssigneeID)
	if err != nil {
		return 0, fmt.Errorf("failed to close transferred tasks: %w", err)
	}

	if closed > 0 {
		s.logger.Info("Closed tasks from previous assignee",
			zap.String("opportunity_id", opportunityID.String()),
			zap.Int64("closed", closed))
	}

	return closed, nil
}

func taskTitle(taskType string, opp *models.Opportunity) string {
	switch taskType {
	case models.TaskTypeContact:
		return "Contact new lead: " + opp.DisplayName()
	case models.TaskTypeStatus:
		return "Status update: " + opp.DisplayName()
	default:
		return "Follow up: " + opp.DisplayName()
	}
}

func (s *taskService) taskDescription(taskType string, opp *models.Opportunity) string {
	var b []byte

	switch taskType {
	case models.TaskTypeContact:
		b = append(b, "Reach out to this new lead within the hour.\n\n"...)
	case models.TaskTypeStatus:
		b = append(b, "Record an initial status for this lead.\n\n"...)
	}

	if opp.Email != nil && *opp.Email != "" {
		b = append(b, "Email: "+*opp.Email+"\n"...)
	}
	if opp.Phone != nil && *opp.Phone != "" {
		b = append(b, "Phone: "+*opp.Phone+"\n"...)
	}
	if loc := opp.Location(); loc != "" {
		b = append(b, "Location: "+loc+"\n"...)
	}
	if opp.Description != nil && *opp.Description != "" {
		b = append(b, "\n"+logging.TruncateString(*opp.Description, taskMessageSummaryLen)+"\n"...)
	}

	b = append(b, "\n"+s.baseURL+"/opportunities/"+opp.ID.String()...)
	return string(b)
}
