// Package memstore is an in-process domain.Store. Transactions are
// serialised behind one mutex and work on a copy of the data that replaces
// the committed state only when the callback succeeds.
package memstore

import (
	"context"
	"maps"
	"sync"

	"github.com/aiagenz/billing/internal/domain"
)

type state struct {
	users        map[string]domain.User
	plans        map[string]domain.Plan
	subs         map[string]domain.UserSubscription
	entitlements map[string]domain.Entitlement
	events       map[string]domain.WebhookEvent
}

func newState() *state {
	return &state{
		users:        map[string]domain.User{},
		plans:        map[string]domain.Plan{},
		subs:         map[string]domain.UserSubscription{},
		entitlements: map[string]domain.Entitlement{},
		events:       map[string]domain.WebhookEvent{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:        maps.Clone(s.users),
		plans:        maps.Clone(s.plans),
		subs:         make(map[string]domain.UserSubscription, len(s.subs)),
		entitlements: maps.Clone(s.entitlements),
		events:       maps.Clone(s.events),
	}
	for id, sub := range s.subs {
		sub.Metadata = maps.Clone(sub.Metadata)
		c.subs[id] = sub
	}
	return c
}

// Store is the in-memory implementation of domain.Store.
type Store struct {
	mu   *sync.Mutex
	data *state
	inTx bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, data: newState()}
}

// lock serialises access outside transactions. Inside one the mutex is
// already held by WithTx.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Users() domain.UserRepository                 { return &userRepo{s: s} }
func (s *Store) Plans() domain.PlanRepository                 { return &planRepo{s: s} }
func (s *Store) Subscriptions() domain.SubscriptionRepository { return &subscriptionRepo{s: s} }
func (s *Store) Entitlements() domain.EntitlementRepository   { return &entitlementRepo{s: s} }
func (s *Store) WebhookEvents() domain.WebhookEventRepository { return &webhookEventRepo{s: s} }

// WithTx runs fn against a private copy of the data and commits it on success.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, data: s.data.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
