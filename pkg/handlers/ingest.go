package handlers

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealdesk-crm/intake-engine/pkg/services"
)

// Request headers carrying the stream credential.
const (
	HeaderStreamSecret = "X-Stream-Secret"
	HeaderSignature    = "X-Signature"
)

// Submissions larger than this are rejected before parsing.
const maxIngestBodyBytes = 1 << 20 // 1 MiB

// IngestHandler handles inbound stream submissions.
type IngestHandler struct {
	ingestService services.IngestService
	logger        *zap.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(ingestService services.IngestService, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		logger:        logger,
	}
}

// RegisterRoutes registers the ingest handler's routes on the given mux.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/streams/{stream_id}/events", h.IngestEvent)
}

// IngestEvent handles POST /api/streams/{stream_id}/events
func (h *IngestHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	streamID, err := uuid.Parse(r.PathValue("stream_id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_stream_id", "Invalid stream ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// The raw body is needed verbatim: signature verification runs over the
	// exact bytes the sender signed.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBodyBytes+1))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "unreadable_body", "Failed to read request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if len(body) > maxIngestBodyBytes {
		if err := ErrorResponse(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body exceeds 1 MiB"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.ingestService.Ingest(r.Context(), &services.IngestRequest{
		StreamID:  streamID,
		RawBody:   body,
		Secret:    r.Header.Get(HeaderStreamSecret),
		Signature: r.Header.Get(HeaderSignature),
	})
	if err != nil {
		h.logger.Error("Ingestion failed", zap.String("stream_id", streamID.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "ingest_failed", "Failed to process submission"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if !result.Success {
		if err := ErrorResponse(w, result.Status, "ingest_rejected", result.Error); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, result.Status, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
