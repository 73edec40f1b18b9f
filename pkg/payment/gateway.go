package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Gateway defines the operations the billing core needs from a payment provider.
type Gateway interface {
	// CreateOrder opens a one-time payment and returns its session handle.
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	// CreateSubscription opens a recurring mandate against a synced plan.
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error)
	// CreatePlan registers a periodic plan on the provider side.
	CreatePlan(ctx context.Context, req PlanRequest) (*PlanResult, error)
	// VerifyWebhookSignature checks a callback signature over the raw body bytes and timestamp.
	VerifyWebhookSignature(signature string, rawBody []byte, timestamp string) bool
}

// Customer identifies the payer.
type Customer struct {
	ID    string
	Email string
	Phone string
	Name  string
}

// OrderRequest is the input to CreateOrder.
type OrderRequest struct {
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	Customer  Customer
	ReturnURL string
	Note      string
}

// OrderResult is the provider's answer to CreateOrder.
type OrderResult struct {
	GatewayOrderID   string
	PaymentSessionID string
	Status           string
}

// PlanRequest is the input to CreatePlan.
type PlanRequest struct {
	PlanID          string
	Name            string
	Currency        string
	RecurringAmount decimal.Decimal
	MaxAmount       decimal.Decimal
	MaxCycles       int
	Intervals       int
	IntervalType    string
	Note            string
}

// PlanResult is the provider's answer to CreatePlan.
type PlanResult struct {
	PlanID string
	Status string
}

// SubscriptionPlan describes the plan a subscription is created against.
type SubscriptionPlan struct {
	PlanID       string
	Name         string
	Amount       decimal.Decimal
	MaxAmount    *decimal.Decimal
	Currency     string
	MaxCycles    int
	Intervals    int
	IntervalType string
}

// SubscriptionRequest is the input to CreateSubscription.
type SubscriptionRequest struct {
	SubscriptionID string
	Plan           SubscriptionPlan
	Customer       Customer
	ReturnURL      string
	Note           string
}

// SubscriptionResult is the provider's answer to CreateSubscription.
type SubscriptionResult struct {
	GatewaySubscriptionID string
	SessionID             string
	Status                string
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed: status=%d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: status=%d", e.Operation, e.StatusCode)
}
