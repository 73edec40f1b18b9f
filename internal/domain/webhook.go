package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aiagenz/billing/pkg/payment"
)

// Webhook event types delivered by the payment gateway.
const (
	EventPaymentSuccess             = "PAYMENT_SUCCESS_WEBHOOK"
	EventSubscriptionPaymentSuccess = "SUBSCRIPTION_PAYMENT_SUCCESS"
	EventSubscriptionPaymentFailed  = "SUBSCRIPTION_PAYMENT_FAILED"
	EventSubscriptionStatusChanged  = "SUBSCRIPTION_STATUS_CHANGED"
)

// Envelope is the outer shape of every webhook body.
type Envelope struct {
	Type      string          `json:"type"`
	EventTime string          `json:"event_time,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// OrderPaymentData is the data of PAYMENT_SUCCESS_WEBHOOK.
type OrderPaymentData struct {
	Order struct {
		OrderID string `json:"order_id"`
	} `json:"order"`
	Payment struct {
		CFPaymentID   GatewayRef      `json:"cf_payment_id"`
		PaymentStatus string          `json:"payment_status"`
		PaymentAmount decimal.Decimal `json:"payment_amount"`
	} `json:"payment"`
}

// SubscriptionPaymentData is the data of SUBSCRIPTION_PAYMENT_SUCCESS and
// SUBSCRIPTION_PAYMENT_FAILED.
type SubscriptionPaymentData struct {
	CFSubscriptionID GatewayRef      `json:"cf_subscription_id"`
	CFPaymentID      GatewayRef      `json:"cf_payment_id"`
	PaymentAmount    decimal.Decimal `json:"payment_amount"`
	PaymentStatus    string          `json:"payment_status,omitempty"`
}

// SubscriptionStatusData is the data of SUBSCRIPTION_STATUS_CHANGED.
type SubscriptionStatusData struct {
	SubscriptionDetails struct {
		CFSubscriptionID   GatewayRef `json:"cf_subscription_id"`
		SubscriptionStatus string     `json:"subscription_status"`
	} `json:"subscription_details"`
}

// GatewayRef is a gateway identifier that may arrive as a JSON string or number.
type GatewayRef = payment.Ref

// Gateway subscription states that keep access in place.
var gatewayLiveStates = map[string]bool{
	"ACTIVE":                true,
	"PENDING":               true,
	"BANK_APPROVAL_PENDING": true,
	"INITIALIZED":           true,
}

// MapGatewayStatus translates the gateway's subscription vocabulary.
// Unknown values pass through unchanged.
func MapGatewayStatus(gatewayStatus string) SubscriptionStatus {
	switch gatewayStatus {
	case "BANK_APPROVAL_PENDING":
		return SubscriptionPending
	case "ON_HOLD":
		return SubscriptionPaused
	case "CANCELLED":
		return SubscriptionCancelled
	case "COMPLETED":
		return SubscriptionExpired
	default:
		return SubscriptionStatus(gatewayStatus)
	}
}

// RevokesAccess reports whether a gateway status ends the user's access.
func RevokesAccess(gatewayStatus string) bool {
	return !gatewayLiveStates[gatewayStatus]
}

// WebhookEvent is the audit record of one webhook delivery.
type WebhookEvent struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	EventType       string     `json:"eventType"`
	Reference       string     `json:"reference,omitempty"`
	SignatureValid  bool       `json:"signatureValid"`
	Payload         string     `json:"payload,omitempty"` // encrypted at rest
	ReceivedAt      time.Time  `json:"receivedAt"`
	ProcessedAt     *time.Time `json:"processedAt,omitempty"`
	ProcessingError *string    `json:"processingError,omitempty"`
}

// NewWebhookEventID generates a new UUID for a webhook event record.
func NewWebhookEventID() string {
	return uuid.New().String()
}
