package handler

import (
	"net/http"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/service"
)

// PaymentHandler starts purchases and lists the caller's purchase records.
type PaymentHandler struct {
	checkout *service.CheckoutService
}

func NewPaymentHandler(checkout *service.CheckoutService) *PaymentHandler {
	return &PaymentHandler{checkout: checkout}
}

// CreateOrder handles POST /api/payment/order.
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r.Context())
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req domain.InitiatePurchaseRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if req.PlanID == "" {
		Error(w, domain.ErrValidation("planId is required"))
		return
	}

	session, err := h.checkout.InitiateOrder(r.Context(), id, req.PlanID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, session)
}

// CreateSubscription handles POST /api/payment/subscription.
func (h *PaymentHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r.Context())
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req domain.InitiatePurchaseRequest
	if err := DecodeJSON(r, &req); err != nil {
		Error(w, err)
		return
	}
	if req.PlanID == "" {
		Error(w, domain.ErrValidation("planId is required"))
		return
	}

	session, err := h.checkout.InitiateSubscription(r.Context(), id, req.PlanID)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, session)
}

// ListSubscriptions handles GET /api/payment/subscriptions.
func (h *PaymentHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r.Context())
	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	subs, err := h.checkout.ListSubscriptions(r.Context(), id)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}
