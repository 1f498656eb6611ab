package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
	"github.com/dealdesk-crm/intake-engine/pkg/services"
)

// AssignmentHandler handles manual assignment HTTP requests.
type AssignmentHandler struct {
	assignmentService services.AssignmentService
	logger            *zap.Logger
}

// NewAssignmentHandler creates a new assignment handler.
func NewAssignmentHandler(assignmentService services.AssignmentService, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		assignmentService: assignmentService,
		logger:            logger,
	}
}

// RegisterRoutes registers the assignment handler's routes on the given mux.
func (h *AssignmentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/opportunities/{opportunity_id}/assign", h.AssignOpportunity)
	mux.HandleFunc("GET /api/opportunities/{opportunity_id}/decisions", h.ListDecisions)
}

type assignRequest struct {
	OwnerID    string `json:"owner_id"`
	AssignedBy string `json:"assigned_by,omitempty"`
}

// AssignOpportunity handles POST /api/opportunities/{opportunity_id}/assign
func (h *AssignmentHandler) AssignOpportunity(w http.ResponseWriter, r *http.Request) {
	opportunityID, err := uuid.Parse(r.PathValue("opportunity_id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_opportunity_id", "Invalid opportunity ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_owner_id", "Invalid owner ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	var assignedBy *uuid.UUID
	if req.AssignedBy != "" {
		id, err := uuid.Parse(req.AssignedBy)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_assigned_by", "Invalid assigned_by format"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		assignedBy = &id
	}

	opp, err := h.assignmentService.ManualAssign(r.Context(), opportunityID, ownerID, assignedBy)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Opportunity or owner not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Manual assignment failed",
			zap.String("opportunity_id", opportunityID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "assign_failed", "Failed to assign opportunity"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: opp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListDecisions handles GET /api/opportunities/{opportunity_id}/decisions.
// Returns the routing decision trail for an opportunity, newest first.
func (h *AssignmentHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	opportunityID, err := uuid.Parse(r.PathValue("opportunity_id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_opportunity_id", "Invalid opportunity ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = n
	}

	decisions, err := h.assignmentService.Decisions(r.Context(), opportunityID, limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "not_found", "Opportunity not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to list routing decisions",
			zap.String("opportunity_id", opportunityID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "decisions_failed", "Failed to list routing decisions"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if decisions == nil {
		decisions = []*models.RoutingDecision{}
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: decisions}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
