package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/service"
)

// PlansHandler handles plan catalog endpoints.
type PlansHandler struct {
	plans *service.PlanService
}

// NewPlansHandler creates a new PlansHandler.
func NewPlansHandler(plans *service.PlanService) *PlansHandler {
	return &PlansHandler{plans: plans}
}

// List handles GET /api/plans?plan_type=&page=&limit=. An unknown plan_type
// lists every plan.
func (h *PlansHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.PlanFilter{
		Page:  queryInt(q.Get("page")),
		Limit: queryInt(q.Get("limit")),
	}
	switch pt := domain.PlanType(q.Get("plan_type")); pt {
	case domain.PlanTypeOrder, domain.PlanTypeSubscription:
		f.PlanType = &pt
	}

	list, err := h.plans.ListPlans(r.Context(), f)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, list)
}

// Get handles GET /api/plans/{id}.
func (h *PlansHandler) Get(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, plan)
}

// Create handles POST /api/plans (admin only).
func (h *PlansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePlanRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}

	plan, err := h.plans.CreatePlan(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusCreated, plan)
}

// queryInt parses a positive integer, returning 0 for anything else so the
// filter defaults apply.
func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
