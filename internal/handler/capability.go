package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aiagenz/billing/internal/contextkeys"
	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/service"
	"github.com/aiagenz/billing/pkg/capability"
)

// CapabilityHandler serves the metered endpoints. It must sit behind
// middleware.RequireEntitlement, which leaves the admission decision in the
// request context.
type CapabilityHandler struct {
	guard  *service.GuardService
	runner capability.Runner
}

func NewCapabilityHandler(guard *service.GuardService, runner capability.Runner) *CapabilityHandler {
	return &CapabilityHandler{guard: guard, runner: runner}
}

// RedesignRoom handles POST /api/ai/redesign-room. Usage is settled only
// after the upstream call succeeded.
func (h *CapabilityHandler) RedesignRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r.Context())
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	decision, ok := r.Context().Value(contextkeys.Decision).(domain.Decision)
	if !ok || !decision.Allowed {
		Error(w, domain.ErrForbidden(domain.ReasonNoEntitlement))
		return
	}

	var req capability.RedesignRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if strings.TrimSpace(req.ImageURI) == "" {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "missing required parameter: image_uri"})
		return
	}

	result, err := h.runner.Redesign(r.Context(), req)
	if err != nil {
		if errors.Is(err, capability.ErrNotConfigured) {
			JSON(w, http.StatusServiceUnavailable, map[string]string{"error": "capability service not configured"})
			return
		}
		log.Warn().Err(err).Str("user_id", id).Msg("capability call failed, usage not settled")
		JSON(w, http.StatusBadGateway, map[string]string{"error": "capability service failed"})
		return
	}

	// The unit is owed once the work is done, even if the client went away.
	if err := h.guard.Settle(context.WithoutCancel(r.Context()), id, decision); err != nil {
		// Settle failures do not fail a completed call.
		log.Error().Err(err).Str("user_id", id).Str("tag", string(decision.Tag)).Msg("failed to settle usage")
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Room redesign successful",
		"data":    result,
	})
}
