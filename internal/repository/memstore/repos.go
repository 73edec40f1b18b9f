package memstore

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/aiagenz/billing/internal/domain"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(_ context.Context, u *domain.User) error {
	defer r.s.lock()()
	for _, existing := range r.s.data.users {
		if existing.Email == u.Email {
			return domain.ErrConflict("email already registered")
		}
	}
	r.s.data.users[u.ID] = *u
	return nil
}

func (r *userRepo) get(id string) (*domain.User, error) {
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *userRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	defer r.s.lock()()
	return r.get(id)
}

func (r *userRepo) FindByIDForUpdate(_ context.Context, id string) (*domain.User, error) {
	defer r.s.lock()()
	return r.get(id)
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	defer r.s.lock()()
	for _, u := range r.s.data.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *userRepo) Exists(ctx context.Context, email string) (bool, error) {
	u, err := r.FindByEmail(ctx, email)
	return u != nil, err
}

func (r *userRepo) ListAll(_ context.Context) ([]*domain.User, error) {
	defer r.s.lock()()
	users := make([]*domain.User, 0, len(r.s.data.users))
	for _, u := range r.s.data.users {
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (r *userRepo) update(id string, fn func(u *domain.User) bool) (bool, error) {
	u, ok := r.s.data.users[id]
	if !ok {
		return false, nil
	}
	if !fn(&u) {
		return false, nil
	}
	u.UpdatedAt = time.Now()
	r.s.data.users[id] = u
	return true, nil
}

func (r *userRepo) UpdateProfile(_ context.Context, id, name, phone string) error {
	defer r.s.lock()()
	_, err := r.update(id, func(u *domain.User) bool {
		u.Name, u.Phone = name, phone
		return true
	})
	return err
}

func (r *userRepo) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	delete(r.s.data.users, id)
	for subID, sub := range r.s.data.subs {
		if sub.UserID == id {
			delete(r.s.data.subs, subID)
		}
	}
	return nil
}

func (r *userRepo) Count(_ context.Context) (int64, error) {
	defer r.s.lock()()
	return int64(len(r.s.data.users)), nil
}

func (r *userRepo) DecrementFreeTrial(_ context.Context, id string) (bool, error) {
	defer r.s.lock()()
	return r.update(id, func(u *domain.User) bool {
		if u.FreeTrial <= 0 {
			return false
		}
		u.FreeTrial--
		return true
	})
}

func (r *userRepo) DecrementUserLimit(_ context.Context, id string) (bool, error) {
	defer r.s.lock()()
	return r.update(id, func(u *domain.User) bool {
		if u.UserLimit <= 0 {
			return false
		}
		u.UserLimit--
		return true
	})
}

func (r *userRepo) GrantEntitlement(_ context.Context, id, entitlementID string, limit int, accumulate bool) error {
	defer r.s.lock()()
	if _, ok := r.s.data.entitlements[entitlementID]; !ok {
		return fmt.Errorf("failed to grant entitlement: entitlement %s not found", entitlementID)
	}
	ok, _ := r.update(id, func(u *domain.User) bool {
		u.EntitlementID = &entitlementID
		if accumulate {
			u.UserLimit += limit
		} else {
			u.UserLimit = limit
		}
		u.FreeTrial = 0
		return true
	})
	if !ok {
		return fmt.Errorf("failed to grant entitlement: user %s not found", id)
	}
	return nil
}

func (r *userRepo) RevokeAccess(_ context.Context, id string, clearTrial bool) error {
	defer r.s.lock()()
	_, err := r.update(id, func(u *domain.User) bool {
		u.EntitlementID = nil
		u.UserLimit = 0
		if clearTrial {
			u.FreeTrial = 0
		}
		return true
	})
	return err
}

type planRepo struct{ s *Store }

func (r *planRepo) Create(_ context.Context, p *domain.Plan) error {
	defer r.s.lock()()
	if _, ok := r.s.data.plans[p.ID]; ok {
		return fmt.Errorf("failed to create plan: duplicate id %s", p.ID)
	}
	r.s.data.plans[p.ID] = *p
	return nil
}

func (r *planRepo) FindByID(_ context.Context, id string) (*domain.Plan, error) {
	defer r.s.lock()()
	p, ok := r.s.data.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *planRepo) List(_ context.Context, f domain.PlanFilter) ([]*domain.Plan, int64, error) {
	defer r.s.lock()()
	f.Normalize()

	matched := []*domain.Plan{}
	for _, p := range r.s.data.plans {
		if f.PlanType != nil && p.PlanType != *f.PlanType {
			continue
		}
		matched = append(matched, &p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := min(f.Offset(), len(matched))
	end := min(start+f.Limit, len(matched))
	return matched[start:end], total, nil
}

func (r *planRepo) MarkSynced(_ context.Context, id, gatewayPlanID string) error {
	defer r.s.lock()()
	p, ok := r.s.data.plans[id]
	if !ok {
		return nil
	}
	p.GatewayPlanID = &gatewayPlanID
	p.Status = domain.PlanStatusActive
	p.UpdatedAt = time.Now()
	r.s.data.plans[id] = p
	return nil
}

func (r *planRepo) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	delete(r.s.data.plans, id)
	return nil
}

type subscriptionRepo struct{ s *Store }

func (r *subscriptionRepo) Create(_ context.Context, sub *domain.UserSubscription) error {
	defer r.s.lock()()
	for _, existing := range r.s.data.subs {
		if sub.Status.IsOpen() && existing.Status.IsOpen() &&
			existing.UserID == sub.UserID && existing.PlanID == sub.PlanID {
			return domain.ErrConflict("an active or pending subscription already exists for this plan")
		}
		if sub.GatewayOrderID != nil && existing.GatewayOrderID != nil && *sub.GatewayOrderID == *existing.GatewayOrderID {
			return fmt.Errorf("failed to create subscription: duplicate order id %s", *sub.GatewayOrderID)
		}
	}
	stored := *sub
	stored.Metadata = maps.Clone(sub.Metadata)
	r.s.data.subs[sub.ID] = stored
	return nil
}

func (r *subscriptionRepo) FindByID(_ context.Context, id string) (*domain.UserSubscription, error) {
	defer r.s.lock()()
	sub, ok := r.s.data.subs[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (r *subscriptionRepo) ListByUser(_ context.Context, userID string) ([]*domain.UserSubscription, error) {
	defer r.s.lock()()
	subs := []*domain.UserSubscription{}
	for _, sub := range r.s.data.subs {
		if sub.UserID == userID {
			subs = append(subs, &sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

func (r *subscriptionRepo) HasOpen(_ context.Context, userID, planID string) (bool, error) {
	defer r.s.lock()()
	for _, sub := range r.s.data.subs {
		if sub.UserID == userID && sub.PlanID == planID && sub.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (r *subscriptionRepo) FindByOrderIDForUpdate(_ context.Context, orderID string) (*domain.UserSubscription, error) {
	defer r.s.lock()()
	for _, sub := range r.s.data.subs {
		if sub.GatewayOrderID != nil && *sub.GatewayOrderID == orderID {
			return &sub, nil
		}
	}
	return nil, nil
}

func (r *subscriptionRepo) FindByGatewaySubscriptionIDForUpdate(_ context.Context, gatewaySubscriptionID string) (*domain.UserSubscription, error) {
	defer r.s.lock()()
	var found *domain.UserSubscription
	for _, sub := range r.s.data.subs {
		if sub.GatewaySubscriptionID == nil || *sub.GatewaySubscriptionID != gatewaySubscriptionID {
			continue
		}
		if found == nil || sub.CreatedAt.After(found.CreatedAt) {
			found = &sub
		}
	}
	return found, nil
}

func (r *subscriptionRepo) Activate(_ context.Context, id string, a domain.Activation) error {
	defer r.s.lock()()
	sub, ok := r.s.data.subs[id]
	if !ok {
		return fmt.Errorf("failed to activate subscription: %s not found", id)
	}
	a.Apply(&sub)
	if err := r.checkOpen(sub); err != nil {
		return err
	}
	r.s.data.subs[id] = sub
	return nil
}

func (r *subscriptionRepo) UpdateStatus(_ context.Context, id string, status domain.SubscriptionStatus, payment *domain.PaymentStatus) error {
	defer r.s.lock()()
	sub, ok := r.s.data.subs[id]
	if !ok {
		return nil
	}
	sub.Status = status
	if payment != nil {
		sub.PaymentStatus = *payment
	}
	sub.UpdatedAt = time.Now()
	if err := r.checkOpen(sub); err != nil {
		return err
	}
	r.s.data.subs[id] = sub
	return nil
}

// checkOpen mirrors the partial unique index on open (user, plan) records.
// Callers hold the store lock.
func (r *subscriptionRepo) checkOpen(sub domain.UserSubscription) error {
	if !sub.Status.IsOpen() {
		return nil
	}
	for id, existing := range r.s.data.subs {
		if id != sub.ID && existing.Status.IsOpen() &&
			existing.UserID == sub.UserID && existing.PlanID == sub.PlanID {
			return domain.ErrConflict("an active or pending subscription already exists for this plan")
		}
	}
	return nil
}

func (r *subscriptionRepo) CountByStatus(_ context.Context, status domain.SubscriptionStatus) (int64, error) {
	defer r.s.lock()()
	var n int64
	for _, sub := range r.s.data.subs {
		if sub.Status == status {
			n++
		}
	}
	return n, nil
}

type entitlementRepo struct{ s *Store }

func (r *entitlementRepo) Create(_ context.Context, e *domain.Entitlement) error {
	defer r.s.lock()()
	r.s.data.entitlements[e.ID] = *e
	return nil
}

func (r *entitlementRepo) FindByID(_ context.Context, id string) (*domain.Entitlement, error) {
	defer r.s.lock()()
	e, ok := r.s.data.entitlements[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *entitlementRepo) Update(_ context.Context, e *domain.Entitlement) error {
	defer r.s.lock()()
	if _, ok := r.s.data.entitlements[e.ID]; !ok {
		return fmt.Errorf("failed to update entitlement: %s not found", e.ID)
	}
	r.s.data.entitlements[e.ID] = *e
	return nil
}

type webhookEventRepo struct{ s *Store }

func (r *webhookEventRepo) Record(_ context.Context, e *domain.WebhookEvent) error {
	defer r.s.lock()()
	r.s.data.events[e.ID] = *e
	return nil
}

func (r *webhookEventRepo) MarkProcessed(_ context.Context, id string, at time.Time, processingErr *string) error {
	defer r.s.lock()()
	e, ok := r.s.data.events[id]
	if !ok {
		return nil
	}
	e.ProcessedAt = &at
	e.ProcessingError = processingErr
	r.s.data.events[id] = e
	return nil
}

func (r *webhookEventRepo) ListRecent(_ context.Context, limit int) ([]*domain.WebhookEvent, error) {
	defer r.s.lock()()
	events := make([]*domain.WebhookEvent, 0, len(r.s.data.events))
	for _, e := range r.s.data.events {
		events = append(events, &e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ReceivedAt.After(events[j].ReceivedAt) })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *webhookEventRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	defer r.s.lock()()
	var n int64
	for id, e := range r.s.data.events {
		if e.ReceivedAt.Before(cutoff) {
			delete(r.s.data.events, id)
			n++
		}
	}
	return n, nil
}
