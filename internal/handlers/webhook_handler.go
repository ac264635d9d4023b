package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/contentforge/backend/internal/models"
	"github.com/contentforge/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// WebhookHandler feeds front-end actions into the pipeline coordinator. The
// front end owns rendering; this handler only moves envelopes.
type WebhookHandler struct {
	coordinator *services.PipelineCoordinator
	validator   *services.ValidationHelper
}

func NewWebhookHandler(coordinator *services.PipelineCoordinator) *WebhookHandler {
	return &WebhookHandler{
		coordinator: coordinator,
		validator:   services.NewValidationHelper(),
	}
}

// HandleAction accepts one (userId, action, payload) envelope and returns the
// render instruction for the resulting pipeline state.
func (h *WebhookHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	var req models.WebhookRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		log.Printf("[WEBHOOK] Decode error: %v", err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	render, err := h.coordinator.HandleAction(r.Context(), req.UserID, req.Action, req.Payload)
	if err != nil {
		log.Printf("[WEBHOOK] Action %s for user %s failed: %v", req.Action, req.UserID, err)
		services.SendErrorResponse(w, "Failed to process action", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(render)
}

// GetReadiness serves the preview-before-starting view for a content unit.
func (h *WebhookHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	unitID := chi.URLParam(r, "contentUnitId")
	if unitID == "" {
		services.SendErrorResponse(w, "contentUnitId is required", http.StatusBadRequest, nil)
		return
	}

	report, err := h.coordinator.GetReadiness(r.Context(), unitID, userID)
	if err != nil {
		if err == services.ErrContentUnitNotFound {
			services.SendErrorResponse(w, "Content unit not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[WEBHOOK] Readiness for unit %s failed: %v", unitID, err)
		services.SendErrorResponse(w, "Failed to evaluate readiness", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
