package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
	"github.com/dealdesk-crm/intake-engine/pkg/services"
)

type mockAssignmentService struct {
	opp        *models.Opportunity
	err        error
	decisions  []*models.RoutingDecision
	lastOppID  uuid.UUID
	lastOwner  uuid.UUID
	lastUserID *uuid.UUID
	lastLimit  int
}

func (m *mockAssignmentService) Assign(_ context.Context, _ uuid.UUID) (*services.AssignResult, error) {
	return nil, nil
}

func (m *mockAssignmentService) Decisions(_ context.Context, opportunityID uuid.UUID, limit int) ([]*models.RoutingDecision, error) {
	m.lastOppID = opportunityID
	m.lastLimit = limit
	return m.decisions, m.err
}

func (m *mockAssignmentService) ManualAssign(_ context.Context, opportunityID, ownerID uuid.UUID, overrideBy *uuid.UUID) (*models.Opportunity, error) {
	m.lastOppID = opportunityID
	m.lastOwner = ownerID
	m.lastUserID = overrideBy
	return m.opp, m.err
}

func newAssignmentTestServer(svc services.AssignmentService) *http.ServeMux {
	mux := http.NewServeMux()
	NewAssignmentHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestAssignOpportunity_OK(t *testing.T) {
	oppID := uuid.New()
	ownerID := uuid.New()
	admin := uuid.New()
	svc := &mockAssignmentService{opp: &models.Opportunity{ID: oppID, AssignedTo: &ownerID}}
	mux := newAssignmentTestServer(svc)

	body := `{"owner_id":"` + ownerID.String() + `","assigned_by":"` + admin.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/opportunities/"+oppID.String()+"/assign",
		strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, oppID, svc.lastOppID)
	assert.Equal(t, ownerID, svc.lastOwner)
	require.NotNil(t, svc.lastUserID)
	assert.Equal(t, admin, *svc.lastUserID)

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestAssignOpportunity_BadInput(t *testing.T) {
	svc := &mockAssignmentService{}
	mux := newAssignmentTestServer(svc)

	cases := []struct {
		name string
		path string
		body string
	}{
		{"bad opportunity id", "/api/opportunities/nope/assign", `{"owner_id":"` + uuid.NewString() + `"}`},
		{"bad body", "/api/opportunities/" + uuid.NewString() + "/assign", `{`},
		{"bad owner id", "/api/opportunities/" + uuid.NewString() + "/assign", `{"owner_id":"nope"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAssignOpportunity_NotFound(t *testing.T) {
	svc := &mockAssignmentService{err: apperrors.ErrNotFound}
	mux := newAssignmentTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/opportunities/"+uuid.NewString()+"/assign",
		strings.NewReader(`{"owner_id":"`+uuid.NewString()+`"}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDecisions_OK(t *testing.T) {
	oppID := uuid.New()
	svc := &mockAssignmentService{decisions: []*models.RoutingDecision{
		{ID: uuid.New(), OpportunityID: oppID, RouterName: models.RouterName, Applied: true},
		{ID: uuid.New(), OpportunityID: oppID, RouterName: models.RouterNameManual, IsManualOverride: true},
	}}
	mux := newAssignmentTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/"+oppID.String()+"/decisions?limit=10", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, oppID, svc.lastOppID)
	assert.Equal(t, 10, svc.lastLimit)

	var resp struct {
		Success bool                      `json:"success"`
		Data    []*models.RoutingDecision `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, models.RouterName, resp.Data[0].RouterName)
}

func TestListDecisions_BadInput(t *testing.T) {
	svc := &mockAssignmentService{}
	mux := newAssignmentTestServer(svc)

	cases := []struct {
		name string
		path string
	}{
		{"bad opportunity id", "/api/opportunities/nope/decisions"},
		{"bad limit", "/api/opportunities/" + uuid.NewString() + "/decisions?limit=zero"},
		{"negative limit", "/api/opportunities/" + uuid.NewString() + "/decisions?limit=-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListDecisions_NotFound(t *testing.T) {
	svc := &mockAssignmentService{err: apperrors.ErrNotFound}
	mux := newAssignmentTestServer(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/"+uuid.NewString()+"/decisions", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
