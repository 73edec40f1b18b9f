package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entitlement is the capability package currently granted to a user.
// Renewals of the same subscription reuse it; it is never deleted.
type Entitlement struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	PlanID    string          `json:"planId"`
	IsLimited bool            `json:"isLimited"`
	PlanLimit int             `json:"planLimit"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// EntitlementFromPlan builds a fresh entitlement mirroring the plan's terms.
func EntitlementFromPlan(p *Plan, now time.Time) *Entitlement {
	return &Entitlement{
		ID:        uuid.New().String(),
		Name:      p.Name,
		Price:     p.Amount,
		PlanID:    p.ID,
		IsLimited: p.IsLimited,
		PlanLimit: p.Limit(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AssignPlan overwrites the entitlement's terms with the plan's (tier change).
func (e *Entitlement) AssignPlan(p *Plan, now time.Time) {
	e.Name = p.Name
	e.Price = p.Amount
	e.PlanID = p.ID
	e.IsLimited = p.IsLimited
	e.PlanLimit = p.Limit()
	e.UpdatedAt = now
}
