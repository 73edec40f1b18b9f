package repository

import (
	"context"
	"fmt"

	"github.com/aiagenz/billing/internal/domain"
)

// SubscriptionRepository handles database operations for user subscriptions.
type SubscriptionRepository struct {
	db querier
}

const subscriptionColumns = `id, user_id, plan_id, status, payment_status, gateway_order_id, gateway_subscription_id,
	gateway_payment_id, usage_count, amount_paid, currency, started_at, expires_at, cycles_completed, metadata,
	created_at, updated_at`

func scanSubscription(row rowScanner) (*domain.UserSubscription, error) {
	var s domain.UserSubscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.PaymentStatus, &s.GatewayOrderID, &s.GatewaySubscriptionID,
		&s.GatewayPaymentID, &s.UsageCount, &s.AmountPaid, &s.Currency, &s.StartedAt, &s.ExpiresAt,
		&s.CyclesCompleted, &s.Metadata, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) findOne(ctx context.Context, query string, args ...any) (*domain.UserSubscription, error) {
	s, err := scanSubscription(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return s, nil
}

// Create inserts a new subscription record.
func (r *SubscriptionRepository) Create(ctx context.Context, s *domain.UserSubscription) error {
	metadata := s.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	query := `
		INSERT INTO user_subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.UserID, s.PlanID, s.Status, s.PaymentStatus, s.GatewayOrderID, s.GatewaySubscriptionID,
		s.GatewayPaymentID, s.UsageCount, s.AmountPaid, s.Currency, s.StartedAt, s.ExpiresAt,
		s.CyclesCompleted, metadata, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "uq_user_subscriptions_open") {
			return domain.ErrConflict("an active or pending subscription already exists for this plan")
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// FindByID returns a subscription by ID.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*domain.UserSubscription, error) {
	return r.findOne(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE id = $1`, id)
}

// ListByUser returns a user's subscriptions, newest first.
func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*domain.UserSubscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*domain.UserSubscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// HasOpen reports whether a PENDING or ACTIVE record exists for the pair.
func (r *SubscriptionRepository) HasOpen(ctx context.Context, userID, planID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM user_subscriptions
			WHERE user_id = $1 AND plan_id = $2 AND status IN ('PENDING', 'ACTIVE')
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, planID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check open subscription: %w", err)
	}
	return exists, nil
}

// FindByOrderIDForUpdate locks the subscription created for a gateway order.
func (r *SubscriptionRepository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*domain.UserSubscription, error) {
	return r.findOne(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE gateway_order_id = $1 FOR UPDATE`,
		orderID,
	)
}

// FindByGatewaySubscriptionIDForUpdate locks the newest record for a gateway subscription.
func (r *SubscriptionRepository) FindByGatewaySubscriptionIDForUpdate(ctx context.Context, gatewaySubscriptionID string) (*domain.UserSubscription, error) {
	return r.findOne(ctx, `
		SELECT `+subscriptionColumns+` FROM user_subscriptions
		WHERE gateway_subscription_id = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, gatewaySubscriptionID)
}

// Activate applies a successful payment to the record in one statement.
func (r *SubscriptionRepository) Activate(ctx context.Context, id string, a domain.Activation) error {
	query := `
		UPDATE user_subscriptions
		SET status = 'ACTIVE',
		    payment_status = 'SUCCESS',
		    gateway_payment_id = $2,
		    amount_paid = amount_paid + $3,
		    started_at = COALESCE(started_at, $4),
		    expires_at = COALESCE($5, expires_at),
		    cycles_completed = cycles_completed + 1,
		    updated_at = $4
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, a.PaymentID, a.Amount, a.Now, a.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err, "uq_user_subscriptions_open") {
			return domain.ErrConflict("an active or pending subscription already exists for this plan")
		}
		return fmt.Errorf("failed to activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to activate subscription: %s not found", id)
	}
	return nil
}

// UpdateStatus sets the lifecycle status and, when given, the payment status.
func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id string, status domain.SubscriptionStatus, payment *domain.PaymentStatus) error {
	query := `
		UPDATE user_subscriptions
		SET status = $2,
		    payment_status = COALESCE($3, payment_status),
		    updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, status, payment); err != nil {
		if isUniqueViolation(err, "uq_user_subscriptions_open") {
			return domain.ErrConflict("an active or pending subscription already exists for this plan")
		}
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

// CountByStatus returns the number of records in the given status.
func (r *SubscriptionRepository) CountByStatus(ctx context.Context, status domain.SubscriptionStatus) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM user_subscriptions WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}
