package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionStatus is the lifecycle state of a UserSubscription.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionFailed    SubscriptionStatus = "FAILED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionPaused    SubscriptionStatus = "PAUSED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

// IsOpen reports whether the status blocks a new purchase of the same plan.
func (s SubscriptionStatus) IsOpen() bool {
	return s == SubscriptionPending || s == SubscriptionActive
}

// IsTerminal reports whether the record is closed for good. Terminal records
// never move to another status.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionFailed || s == SubscriptionCancelled || s == SubscriptionExpired
}

// PaymentStatus is the payment state of a UserSubscription.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// UserSubscription is one purchase attempt or one recurring billing record.
// Only webhook events move it out of PENDING.
type UserSubscription struct {
	ID                    string             `json:"id"`
	UserID                string             `json:"userId"`
	PlanID                string             `json:"planId"`
	Status                SubscriptionStatus `json:"status"`
	PaymentStatus         PaymentStatus      `json:"paymentStatus"`
	GatewayOrderID        *string            `json:"gatewayOrderId,omitempty"`
	GatewaySubscriptionID *string            `json:"gatewaySubscriptionId,omitempty"`
	GatewayPaymentID      *string            `json:"gatewayPaymentId,omitempty"`
	UsageCount            int                `json:"usageCount"`
	AmountPaid            decimal.Decimal    `json:"amountPaid"`
	Currency              string             `json:"currency"`
	StartedAt             *time.Time         `json:"startedAt,omitempty"`
	ExpiresAt             *time.Time         `json:"expiresAt,omitempty"`
	CyclesCompleted       int                `json:"cyclesCompleted"`
	Metadata              map[string]string  `json:"metadata,omitempty"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

// Activation is the single write applied to a subscription on a successful payment.
type Activation struct {
	PaymentID string
	Amount    decimal.Decimal
	Now       time.Time
	ExpiresAt *time.Time
}

// Apply mutates sub the same way the storage layer does.
func (a Activation) Apply(sub *UserSubscription) {
	sub.Status = SubscriptionActive
	sub.PaymentStatus = PaymentSuccess
	paymentID := a.PaymentID
	sub.GatewayPaymentID = &paymentID
	sub.AmountPaid = sub.AmountPaid.Add(a.Amount)
	if sub.StartedAt == nil {
		started := a.Now
		sub.StartedAt = &started
	}
	if a.ExpiresAt != nil {
		expires := *a.ExpiresAt
		sub.ExpiresAt = &expires
	}
	sub.CyclesCompleted++
	sub.UpdatedAt = a.Now
}

// InitiatePurchaseRequest selects the plan to buy.
type InitiatePurchaseRequest struct {
	PlanID string `json:"planId" validate:"required"`
}

// OrderSession is returned by order initiation.
type OrderSession struct {
	PaymentSessionID string `json:"paymentSessionId"`
	OrderID          string `json:"orderId"`
	SubscriptionID   string `json:"subscriptionId"`
}

// SubscriptionSession is returned by subscription initiation.
type SubscriptionSession struct {
	SubscriptionID        string `json:"subscriptionId"`
	SubscriptionSessionID string `json:"subscriptionSessionId"`
	SubscriptionStatus    string `json:"subscriptionStatus"`
}

// NewSubscriptionID generates a new UUID for a subscription record.
func NewSubscriptionID() string {
	return uuid.New().String()
}
