package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanType distinguishes one-time top-ups from recurring plans.
type PlanType string

const (
	PlanTypeOrder        PlanType = "ORDER"
	PlanTypeSubscription PlanType = "SUBSCRIPTION"
)

// IntervalType is the billing period unit of a subscription plan.
type IntervalType string

const (
	IntervalMonth IntervalType = "MONTH"
	IntervalYear  IntervalType = "YEAR"
)

// PlanStatus tracks whether a plan is purchasable.
type PlanStatus string

const (
	PlanStatusDraft  PlanStatus = "DRAFT"
	PlanStatusActive PlanStatus = "ACTIVE"
)

// Plan is a purchasable offering. Subscription plans always carry interval
// data; limited order plans always carry a limit number.
type Plan struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	PlanType        PlanType         `json:"planType"`
	Amount          decimal.Decimal  `json:"amount"`
	MaxAmount       *decimal.Decimal `json:"maxAmount,omitempty"`
	RecurringAmount *decimal.Decimal `json:"recurringAmount,omitempty"`
	Currency        string           `json:"currency"`
	IsLimited       bool             `json:"isLimited"`
	LimitNumber     *int             `json:"limitNumber,omitempty"`
	Intervals       *int             `json:"intervals,omitempty"`
	IntervalType    *IntervalType    `json:"intervalType,omitempty"`
	MaxCycles       *int             `json:"maxCycles,omitempty"`
	GatewayPlanID   *string          `json:"gatewayPlanId,omitempty"`
	Status          PlanStatus       `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Limit returns the plan's usage quantum, zero when unset.
func (p *Plan) Limit() int {
	if p.LimitNumber == nil {
		return 0
	}
	return *p.LimitNumber
}

// IsSynced reports whether the plan exists on the gateway side.
func (p *Plan) IsSynced() bool {
	return p.GatewayPlanID != nil && *p.GatewayPlanID != ""
}

// Validate checks the per-type field requirements.
func (p *Plan) Validate() error {
	switch p.PlanType {
	case PlanTypeSubscription:
		if p.MaxCycles == nil || p.Intervals == nil || p.IntervalType == nil ||
			*p.MaxCycles <= 0 || *p.Intervals <= 0 {
			return ErrInvalidState("subscription plans require max_cycles, intervals, and interval_type")
		}
		if *p.IntervalType != IntervalMonth && *p.IntervalType != IntervalYear {
			return ErrInvalidState("interval_type must be MONTH or YEAR")
		}
	case PlanTypeOrder:
		if p.LimitNumber == nil || *p.LimitNumber <= 0 {
			return ErrInvalidState("order type plans require limit_number to be set")
		}
	default:
		return ErrInvalidState("plan_type must be ORDER or SUBSCRIPTION")
	}
	return nil
}

// NextExpiry advances the later of now and prior by one billing period of the
// plan. It returns nil for plans without interval data.
func (p *Plan) NextExpiry(now time.Time, prior *time.Time) *time.Time {
	if p.Intervals == nil || p.IntervalType == nil {
		return nil
	}
	base := now
	if prior != nil && prior.After(now) {
		base = *prior
	}
	var next time.Time
	switch *p.IntervalType {
	case IntervalMonth:
		next = base.AddDate(0, *p.Intervals, 0)
	case IntervalYear:
		next = base.AddDate(*p.Intervals, 0, 0)
	default:
		return nil
	}
	return &next
}

// CreatePlanRequest is the admin input for a new plan.
type CreatePlanRequest struct {
	Name            string           `json:"name" validate:"required,max=120"`
	Description     string           `json:"description" validate:"max=500"`
	PlanType        PlanType         `json:"planType" validate:"required,oneof=ORDER SUBSCRIPTION"`
	Amount          decimal.Decimal  `json:"amount"`
	MaxAmount       *decimal.Decimal `json:"maxAmount"`
	RecurringAmount *decimal.Decimal `json:"recurringAmount"`
	Currency        string           `json:"currency" validate:"omitempty,len=3"`
	IsLimited       bool             `json:"isLimited"`
	LimitNumber     *int             `json:"limitNumber" validate:"omitempty,gt=0"`
	Intervals       *int             `json:"intervals" validate:"omitempty,gt=0"`
	IntervalType    *IntervalType    `json:"intervalType" validate:"omitempty,oneof=MONTH YEAR"`
	MaxCycles       *int             `json:"maxCycles" validate:"omitempty,gt=0"`
}

// PlanFilter selects a page of the catalog.
type PlanFilter struct {
	PlanType *PlanType
	Page     int
	Limit    int
}

// Normalize applies defaults and bounds.
func (f *PlanFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// Offset is the number of rows skipped for the current page.
func (f PlanFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Pagination describes a returned page.
type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"currentPage"`
	Limit       int   `json:"limit"`
}

// PlanList is a page of plans.
type PlanList struct {
	Plans      []*Plan    `json:"plans"`
	Pagination Pagination `json:"pagination"`
}

// NewPlanID generates a new UUID for a plan. It doubles as the gateway plan id.
func NewPlanID() string {
	return uuid.New().String()
}
