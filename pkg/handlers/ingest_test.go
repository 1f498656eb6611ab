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

	"github.com/dealdesk-crm/intake-engine/pkg/services"
)

type mockIngestService struct {
	result  *services.IngestResult
	err     error
	lastReq *services.IngestRequest
}

func (m *mockIngestService) Ingest(_ context.Context, req *services.IngestRequest) (*services.IngestResult, error) {
	m.lastReq = req
	return m.result, m.err
}

func newIngestTestServer(svc services.IngestService) *http.ServeMux {
	mux := http.NewServeMux()
	NewIngestHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestIngestEvent_Created(t *testing.T) {
	oppID := uuid.New()
	svc := &mockIngestService{result: &services.IngestResult{
		Success:       true,
		Status:        http.StatusOK,
		OpportunityID: &oppID,
	}}
	mux := newIngestTestServer(svc)

	streamID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/streams/"+streamID.String()+"/events",
		strings.NewReader(`{"company":"Acme BV"}`))
	req.Header.Set(HeaderStreamSecret, "s3cret")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, svc.lastReq)
	assert.Equal(t, streamID, svc.lastReq.StreamID)
	assert.Equal(t, "s3cret", svc.lastReq.Secret)
	assert.JSONEq(t, `{"company":"Acme BV"}`, string(svc.lastReq.RawBody))

	var resp ApiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestIngestEvent_InvalidStreamID(t *testing.T) {
	svc := &mockIngestService{}
	mux := newIngestTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/streams/not-a-uuid/events", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.lastReq, "service is not invoked on a bad path")
}

func TestIngestEvent_RejectionStatusPassesThrough(t *testing.T) {
	svc := &mockIngestService{result: &services.IngestResult{
		Status: http.StatusUnauthorized,
		Error:  "verification failed",
	}}
	mux := newIngestTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/streams/"+uuid.NewString()+"/events",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ingest_rejected", body["error"])
	assert.Equal(t, "verification failed", body["message"])
}

func TestIngestEvent_ServiceError(t *testing.T) {
	svc := &mockIngestService{err: assert.AnError}
	mux := newIngestTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/streams/"+uuid.NewString()+"/events",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngestEvent_BodyTooLarge(t *testing.T) {
	svc := &mockIngestService{}
	mux := newIngestTestServer(svc)

	big := strings.Repeat("x", maxIngestBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/api/streams/"+uuid.NewString()+"/events",
		strings.NewReader(big))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Nil(t, svc.lastReq)
}
