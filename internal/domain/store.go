package domain

import (
	"context"
	"time"
)

// Repositories return (nil, nil) when a looked-up row does not exist.
// Methods suffixed ForUpdate lock the row until the enclosing transaction ends.

// UserRepository persists users and their usage counters.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByIDForUpdate(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Exists(ctx context.Context, email string) (bool, error)
	ListAll(ctx context.Context) ([]*User, error)
	UpdateProfile(ctx context.Context, id, name, phone string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)

	// DecrementFreeTrial consumes one trial use only if one remains.
	DecrementFreeTrial(ctx context.Context, id string) (bool, error)
	// DecrementUserLimit consumes one metered use only if one remains.
	DecrementUserLimit(ctx context.Context, id string) (bool, error)
	// GrantEntitlement points the user at entitlementID and clears the free
	// trial. With accumulate the limit is added to user_limit, otherwise it
	// replaces it.
	GrantEntitlement(ctx context.Context, id, entitlementID string, limit int, accumulate bool) error
	// RevokeAccess clears entitlement_id and zeroes user_limit. clearTrial
	// also zeroes free_trial.
	RevokeAccess(ctx context.Context, id string, clearTrial bool) error
}

// PlanRepository persists the plan catalog.
type PlanRepository interface {
	Create(ctx context.Context, p *Plan) error
	FindByID(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context, f PlanFilter) ([]*Plan, int64, error)
	MarkSynced(ctx context.Context, id, gatewayPlanID string) error
	Delete(ctx context.Context, id string) error
}

// SubscriptionRepository persists purchase records.
type SubscriptionRepository interface {
	// Create fails with a Conflict AppError when an open record already
	// exists for the same user and plan.
	Create(ctx context.Context, s *UserSubscription) error
	FindByID(ctx context.Context, id string) (*UserSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]*UserSubscription, error)
	HasOpen(ctx context.Context, userID, planID string) (bool, error)
	FindByOrderIDForUpdate(ctx context.Context, orderID string) (*UserSubscription, error)
	FindByGatewaySubscriptionIDForUpdate(ctx context.Context, gatewaySubscriptionID string) (*UserSubscription, error)
	Activate(ctx context.Context, id string, a Activation) error
	UpdateStatus(ctx context.Context, id string, status SubscriptionStatus, payment *PaymentStatus) error
	CountByStatus(ctx context.Context, status SubscriptionStatus) (int64, error)
}

// EntitlementRepository persists granted capability packages.
type EntitlementRepository interface {
	Create(ctx context.Context, e *Entitlement) error
	FindByID(ctx context.Context, id string) (*Entitlement, error)
	Update(ctx context.Context, e *Entitlement) error
}

// WebhookEventRepository persists the webhook delivery log.
type WebhookEventRepository interface {
	Record(ctx context.Context, e *WebhookEvent) error
	MarkProcessed(ctx context.Context, id string, at time.Time, processingErr *string) error
	ListRecent(ctx context.Context, limit int) ([]*WebhookEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store groups the repositories over one storage backend.
type Store interface {
	Users() UserRepository
	Plans() PlanRepository
	Subscriptions() SubscriptionRepository
	Entitlements() EntitlementRepository
	WebhookEvents() WebhookEventRepository

	// WithTx runs fn in one transaction. Repositories of the Store passed to
	// fn share it; any error returned by fn rolls everything back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}
