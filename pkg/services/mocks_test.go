package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// In-memory repository doubles shared by the service tests.

type mockStreamRepo struct {
	streams map[uuid.UUID]*models.Stream
	getErr  error
}

func (m *mockStreamRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Stream, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	s, ok := m.streams[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

type mockOppRepo struct {
	opps      map[uuid.UUID]*models.Opportunity
	createErr error
	assignErr error
	created   int
}

func newMockOppRepo() *mockOppRepo {
	return &mockOppRepo{opps: make(map[uuid.UUID]*models.Opportunity)}
}

func (m *mockOppRepo) Create(_ context.Context, opp *models.Opportunity) error {
	if m.createErr != nil {
		return m.createErr
	}
	opp.ID = uuid.New()
	now := time.Now()
	opp.CreatedAt = now
	opp.UpdatedAt = now
	m.opps[opp.ID] = opp
	m.created++
	return nil
}

func (m *mockOppRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Opportunity, error) {
	opp, ok := m.opps[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return opp, nil
}

func (m *mockOppRepo) AssignIfUnassigned(_ context.Context, id, ownerID uuid.UUID, ownerName string, at time.Time) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	opp, ok := m.opps[id]
	if !ok {
		return apperrors.ErrAlreadyAssigned
	}
	if opp.AssignedTo != nil {
		return apperrors.ErrAlreadyAssigned
	}
	opp.AssignedTo = &ownerID
	opp.AssignedToName = &ownerName
	opp.AssignedAt = &at
	return nil
}

func (m *mockOppRepo) Reassign(_ context.Context, id, ownerID uuid.UUID, ownerName string, at time.Time) error {
	opp, ok := m.opps[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	opp.AssignedTo = &ownerID
	opp.AssignedToName = &ownerName
	opp.AssignedAt = &at
	return nil
}

func (m *mockOppRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.opps[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.opps, id)
	return nil
}

type mockEventRepo struct {
	events         []*models.IngestEvent
	createErr      error
	conflictOnNext bool
}

func (m *mockEventRepo) Create(_ context.Context, event *models.IngestEvent) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.conflictOnNext && event.CreatedOpportunityID != nil {
		m.conflictOnNext = false
		return apperrors.ErrConflict
	}
	event.ID = uuid.New()
	stored := *event
	m.events = append(m.events, &stored)
	return nil
}

func (m *mockEventRepo) FindCreated(_ context.Context, streamID uuid.UUID, idempotencyKey string, externalID *string) (*models.IngestEvent, error) {
	for _, e := range m.events {
		if e.StreamID != streamID || e.CreatedOpportunityID == nil {
			continue
		}
		if idempotencyKey != "" && e.IdempotencyKey != nil && *e.IdempotencyKey == idempotencyKey {
			return e, nil
		}
		if externalID != nil && e.ExternalID != nil && *e.ExternalID == *externalID {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

type mockDecisionRepo struct {
	decisions []*models.RoutingDecision
	createErr error
}

func (m *mockDecisionRepo) Create(_ context.Context, decision *models.RoutingDecision) error {
	if m.createErr != nil {
		return m.createErr
	}
	decision.ID = uuid.New()
	decision.CreatedAt = time.Now()
	m.decisions = append(m.decisions, decision)
	return nil
}

func (m *mockDecisionRepo) ListByOpportunity(_ context.Context, opportunityID uuid.UUID, _ int) ([]*models.RoutingDecision, error) {
	var out []*models.RoutingDecision
	for _, d := range m.decisions {
		if d.OpportunityID == opportunityID {
			out = append(out, d)
		}
	}
	return out, nil
}

type mockActionRepo struct {
	actions   map[string]*models.AssignmentAction
	createErr error
}

func newMockActionRepo() *mockActionRepo {
	return &mockActionRepo{actions: make(map[string]*models.AssignmentAction)}
}

func (m *mockActionRepo) Create(_ context.Context, action *models.AssignmentAction) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.actions[action.AssignmentHash]; exists {
		return apperrors.ErrConflict
	}
	action.ID = uuid.New()
	action.CreatedAt = time.Now()
	m.actions[action.AssignmentHash] = action
	return nil
}

func (m *mockActionRepo) GetByHash(_ context.Context, hash string) (*models.AssignmentAction, error) {
	action, ok := m.actions[hash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return action, nil
}

func (m *mockActionRepo) SetOutcome(_ context.Context, id uuid.UUID, emailSentAt *time.Time, taskID *uuid.UUID) error {
	for _, a := range m.actions {
		if a.ID == id {
			a.EmailSentAt = emailSentAt
			a.TaskID = taskID
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type mockTaskRepo struct {
	tasks     []*models.Task
	createErr error
}

func (m *mockTaskRepo) Create(_ context.Context, task *models.Task) error {
	if m.createErr != nil {
		return m.createErr
	}
	task.ID = uuid.New()
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *mockTaskRepo) FindOpenByType(_ context.Context, opportunityID, assigneeID uuid.UUID, taskType string) (uuid.UUID, error) {
	for _, t := range m.tasks {
		if t.OpportunityID == opportunityID && t.AssigneeID == assigneeID && t.TaskType == taskType &&
			(t.Status == models.TaskStatusOpen || t.Status == models.TaskStatusInProgress) {
			return t.ID, nil
		}
	}
	return uuid.Nil, apperrors.ErrNotFound
}

func (m *mockTaskRepo) CloseOpenTasksExcept(_ context.Context, opportunityID, keepAssigneeID uuid.UUID) (int64, error) {
	var closed int64
	for _, t := range m.tasks {
		if t.OpportunityID == opportunityID && t.AssigneeID != keepAssigneeID &&
			(t.Status == models.TaskStatusOpen || t.Status == models.TaskStatusInProgress) {
			t.Status = models.TaskStatusDone
			closed++
		}
	}
	return closed, nil
}

func (m *mockTaskRepo) openTasks(opportunityID, assigneeID uuid.UUID) []*models.Task {
	var out []*models.Task
	for _, t := range m.tasks {
		if t.OpportunityID == opportunityID && t.AssigneeID == assigneeID && t.Status == models.TaskStatusOpen {
			out = append(out, t)
		}
	}
	return out
}

type mockOwnerRepo struct {
	owners  []*models.Owner
	stats   map[uuid.UUID]*models.OwnerStats
	listErr error
}

func (m *mockOwnerRepo) ListActive(_ context.Context) ([]*models.Owner, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var active []*models.Owner
	for _, o := range m.owners {
		if o.IsActive {
			active = append(active, o)
		}
	}
	return active, nil
}

func (m *mockOwnerRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Owner, error) {
	for _, o := range m.owners {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockOwnerRepo) StatsByOwner(_ context.Context) (map[uuid.UUID]*models.OwnerStats, error) {
	if m.stats == nil {
		return map[uuid.UUID]*models.OwnerStats{}, nil
	}
	return m.stats, nil
}

type mockSettingsRepo struct {
	settings models.RouterSettings
	err      error
}

func (m *mockSettingsRepo) Get(_ context.Context) (models.RouterSettings, error) {
	if m.err != nil {
		return models.DefaultRouterSettings(), m.err
	}
	return m.settings, nil
}

type mockNotifier struct {
	sent    int
	fail    error
	noSend  bool
	lastKey string
}

func (m *mockNotifier) Send(_ context.Context, _ uuid.UUID, templateKey string, _ map[string]string) (bool, error) {
	if m.fail != nil {
		return false, m.fail
	}
	if m.noSend {
		return false, nil
	}
	m.sent++
	m.lastKey = templateKey
	return true, nil
}

type mockEnricher struct {
	description string
	value       float64
	describeErr error
	valueErr    error
	calls       int
}

func (m *mockEnricher) Describe(_ context.Context, _, _ map[string]any) (string, error) {
	m.calls++
	return m.description, m.describeErr
}

func (m *mockEnricher) EstimateValue(_ context.Context, _, _ map[string]any) (float64, error) {
	m.calls++
	return m.value, m.valueErr
}

type mockFollowUp struct {
	calls      int
	lastSource string
	lastOwner  uuid.UUID
	err        error
}

func (m *mockFollowUp) RecordAssignmentAndNotify(_ context.Context, _ *models.Opportunity, assignee *models.Owner, _ *uuid.UUID, source string) (*models.AssignmentAction, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.calls++
	m.lastSource = source
	m.lastOwner = assignee.ID
	return &models.AssignmentAction{ID: uuid.New()}, nil
}

type mockRouter struct {
	calls   int
	lastOpp uuid.UUID
	err     error
}

func (m *mockRouter) Assign(_ context.Context, opportunityID uuid.UUID) (*AssignResult, error) {
	m.calls++
	m.lastOpp = opportunityID
	if m.err != nil {
		return nil, m.err
	}
	return nil, nil
}

func (m *mockRouter) Decisions(_ context.Context, _ uuid.UUID, _ int) ([]*models.RoutingDecision, error) {
	return nil, nil
}

func (m *mockRouter) ManualAssign(_ context.Context, _, _ uuid.UUID, _ *uuid.UUID) (*models.Opportunity, error) {
	return nil, nil
}
