package repository

import (
	"context"
	"fmt"

	"github.com/aiagenz/billing/internal/domain"
)

// PlanRepository handles database operations for the plan catalog.
type PlanRepository struct {
	db querier
}

const planColumns = `id, name, description, plan_type, amount, max_amount, recurring_amount, currency,
	is_limited, limit_number, intervals, interval_type, max_cycles, gateway_plan_id, status, created_at, updated_at`

func scanPlan(row rowScanner) (*domain.Plan, error) {
	var p domain.Plan
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.PlanType, &p.Amount, &p.MaxAmount, &p.RecurringAmount, &p.Currency,
		&p.IsLimited, &p.LimitNumber, &p.Intervals, &p.IntervalType, &p.MaxCycles, &p.GatewayPlanID,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new plan.
func (r *PlanRepository) Create(ctx context.Context, p *domain.Plan) error {
	query := `
		INSERT INTO plans (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Description, p.PlanType, p.Amount, p.MaxAmount, p.RecurringAmount, p.Currency,
		p.IsLimited, p.LimitNumber, p.Intervals, p.IntervalType, p.MaxCycles, p.GatewayPlanID,
		p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// FindByID returns a plan by ID.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*domain.Plan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return p, nil
}

// List returns one page of plans, newest first, and the total matching count.
func (r *PlanRepository) List(ctx context.Context, f domain.PlanFilter) ([]*domain.Plan, int64, error) {
	f.Normalize()

	var planType *string
	if f.PlanType != nil {
		s := string(*f.PlanType)
		planType = &s
	}

	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM plans WHERE ($1::text IS NULL OR plan_type = $1)`,
		planType,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count plans: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE ($1::text IS NULL OR plan_type = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, planType, f.Limit, f.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []*domain.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, total, nil
}

// MarkSynced records the gateway plan id and activates the plan.
func (r *PlanRepository) MarkSynced(ctx context.Context, id, gatewayPlanID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE plans SET gateway_plan_id = $2, status = 'ACTIVE', updated_at = NOW() WHERE id = $1`,
		id, gatewayPlanID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark plan synced: %w", err)
	}
	return nil
}

// Delete removes a plan by ID.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	return nil
}
