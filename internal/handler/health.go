package handler

import (
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/aiagenz/billing/internal/domain"
)

// HealthHandler handles the health check endpoints.
type HealthHandler struct {
	store domain.Store
	redis *redis.Client
}

// NewHealthHandler creates a new HealthHandler. rdb may be nil.
func NewHealthHandler(store domain.Store, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{store: store, redis: rdb}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status": "ok",
	}

	if err := h.store.Ping(ctx); err != nil {
		status["database"] = "error"
		status["status"] = "degraded"
	} else {
		status["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			status["redis"] = "error"
			status["status"] = "degraded"
		} else {
			status["redis"] = "ok"
		}
	}

	code := http.StatusOK
	if status["status"] == "degraded" {
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, status)
}

// Ping handles GET /ping.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"message": "pong"})
}
