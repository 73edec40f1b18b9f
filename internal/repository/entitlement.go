package repository

import (
	"context"
	"fmt"

	"github.com/aiagenz/billing/internal/domain"
)

// EntitlementRepository handles database operations for entitlements.
type EntitlementRepository struct {
	db querier
}

// Create inserts a new entitlement.
func (r *EntitlementRepository) Create(ctx context.Context, e *domain.Entitlement) error {
	query := `
		INSERT INTO entitlements (id, name, price, plan_id, is_limited, plan_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID, e.Name, e.Price, e.PlanID, e.IsLimited, e.PlanLimit, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	return nil
}

// FindByID returns an entitlement by ID.
func (r *EntitlementRepository) FindByID(ctx context.Context, id string) (*domain.Entitlement, error) {
	query := `
		SELECT id, name, price, plan_id, is_limited, plan_limit, created_at, updated_at
		FROM entitlements WHERE id = $1
	`
	var e domain.Entitlement
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Name, &e.Price, &e.PlanID, &e.IsLimited, &e.PlanLimit, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entitlement: %w", err)
	}
	return &e, nil
}

// Update overwrites the entitlement's plan terms.
func (r *EntitlementRepository) Update(ctx context.Context, e *domain.Entitlement) error {
	query := `
		UPDATE entitlements
		SET name = $2, price = $3, plan_id = $4, is_limited = $5, plan_limit = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, e.ID, e.Name, e.Price, e.PlanID, e.IsLimited, e.PlanLimit, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update entitlement: %s not found", e.ID)
	}
	return nil
}
