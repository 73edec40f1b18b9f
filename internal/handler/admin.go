package handler

import (
	"net/http"

	"github.com/aiagenz/billing/internal/service"
)

type AdminHandler struct {
	stats    *service.StatsService
	webhooks *service.WebhookService
}

func NewAdminHandler(stats *service.StatsService, webhooks *service.WebhookService) *AdminHandler {
	return &AdminHandler{stats: stats, webhooks: webhooks}
}

// GetStats handles GET /api/admin/stats.
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}

// WebhookEvents handles GET /api/admin/webhook-events?limit=.
func (h *AdminHandler) WebhookEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.webhooks.RecentEvents(r.Context(), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
