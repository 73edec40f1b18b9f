package handler

import (
	"io"
	"net/http"

	"github.com/aiagenz/billing/internal/service"
)

// maxWebhookBody bounds the raw body read before signature verification.
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Cashfree handles POST /api/webhooks/cashfree. The body is passed on
// byte-for-byte because the signature covers the exact bytes sent.
func (h *WebhookHandler) Cashfree(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	err = h.webhooks.Dispatch(r.Context(), service.Delivery{
		Body:      body,
		Signature: r.Header.Get("x-webhook-signature"),
		Timestamp: r.Header.Get("x-webhook-timestamp"),
	})
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Webhook processed",
	})
}
