package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/aiagenz/billing/internal/domain"
)

// Payment carries the gateway facts of one successful charge.
type Payment struct {
	ID     string
	Amount decimal.Decimal
}

// ActivationService turns successful payments into active subscriptions and
// provisioned entitlements. Each call is a single transaction.
type ActivationService struct {
	store  domain.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewActivationService creates a new ActivationService.
func NewActivationService(store domain.Store) *ActivationService {
	return &ActivationService{
		store:  store,
		logger: log.With().Str("component", "activation").Logger(),
		now:    time.Now,
	}
}

// ActivateOrder handles a one-time payment. Only a PENDING record is
// activated; anything else is a redelivery and reports false.
func (s *ActivationService) ActivateOrder(ctx context.Context, orderID string, p Payment) (bool, error) {
	var activated bool
	err := s.store.WithTx(ctx, func(tx domain.Store) error {
		sub, err := tx.Subscriptions().FindByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if sub == nil {
			s.logger.Warn().Str("order_id", orderID).Msg("no subscription for order, skipping")
			return nil
		}
		if sub.Status != domain.SubscriptionPending {
			s.logger.Debug().
				Str("order_id", orderID).
				Str("status", string(sub.Status)).
				Msg("order already processed, skipping")
			return nil
		}
		if err := s.activate(ctx, tx, sub, p, false); err != nil {
			return err
		}
		activated = true
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("order activation failed")
		return false, domain.ErrTransaction("failed to activate order", err)
	}
	return activated, nil
}

// ActivateRenewal handles a recurring charge. Every delivery counts as a new
// cycle, so there is no PENDING precondition. Terminal records stay closed,
// and a record is not reopened while another open one exists for the same
// user and plan.
func (s *ActivationService) ActivateRenewal(ctx context.Context, gatewaySubscriptionID string, p Payment) (bool, error) {
	var activated bool
	err := s.store.WithTx(ctx, func(tx domain.Store) error {
		sub, err := tx.Subscriptions().FindByGatewaySubscriptionIDForUpdate(ctx, gatewaySubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			s.logger.Warn().Str("gateway_subscription_id", gatewaySubscriptionID).Msg("no subscription for gateway reference, skipping")
			return nil
		}
		reason, err := reopenBlocked(ctx, tx, sub, domain.SubscriptionActive)
		if err != nil {
			return err
		}
		if reason != "" {
			s.logger.Warn().
				Str("gateway_subscription_id", gatewaySubscriptionID).
				Str("subscription_id", sub.ID).
				Str("status", string(sub.Status)).
				Str("payment_id", p.ID).
				Str("reason", reason).
				Msg("renewal charge not applied")
			return nil
		}
		if err := s.activate(ctx, tx, sub, p, true); err != nil {
			return err
		}
		activated = true
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("gateway_subscription_id", gatewaySubscriptionID).Msg("renewal activation failed")
		return false, domain.ErrTransaction("failed to activate subscription", err)
	}
	return activated, nil
}

func (s *ActivationService) activate(ctx context.Context, tx domain.Store, sub *domain.UserSubscription, p Payment, recurring bool) error {
	plan, err := tx.Plans().FindByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("plan %s of subscription %s not found", sub.PlanID, sub.ID)
	}
	user, err := tx.Users().FindByIDForUpdate(ctx, sub.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s of subscription %s not found", sub.UserID, sub.ID)
	}

	now := s.now()
	a := domain.Activation{PaymentID: p.ID, Amount: p.Amount, Now: now}
	if recurring {
		a.ExpiresAt = plan.NextExpiry(now, sub.ExpiresAt)
	}
	if err := tx.Subscriptions().Activate(ctx, sub.ID, a); err != nil {
		return err
	}

	entitlementID, err := s.provision(ctx, tx, user, plan, now)
	if err != nil {
		return err
	}

	accumulate := plan.PlanType == domain.PlanTypeOrder
	if err := tx.Users().GrantEntitlement(ctx, user.ID, entitlementID, plan.Limit(), accumulate); err != nil {
		return err
	}

	s.logger.Info().
		Str("subscription_id", sub.ID).
		Str("user_id", user.ID).
		Str("plan_type", string(plan.PlanType)).
		Bool("recurring", recurring).
		Str("entitlement_id", entitlementID).
		Msg("subscription activated, limits updated")
	return nil
}

// provision returns the entitlement the user ends up with. Subscription plans
// overwrite an existing entitlement (tier change); order plans only create one
// when the user has none.
func (s *ActivationService) provision(ctx context.Context, tx domain.Store, user *domain.User, plan *domain.Plan, now time.Time) (string, error) {
	if user.HasEntitlement() {
		if plan.PlanType != domain.PlanTypeSubscription {
			return *user.EntitlementID, nil
		}
		ent, err := tx.Entitlements().FindByID(ctx, *user.EntitlementID)
		if err != nil {
			return "", err
		}
		if ent != nil {
			ent.AssignPlan(plan, now)
			if err := tx.Entitlements().Update(ctx, ent); err != nil {
				return "", err
			}
			return ent.ID, nil
		}
		s.logger.Warn().
			Str("user_id", user.ID).
			Str("entitlement_id", *user.EntitlementID).
			Msg("referenced entitlement missing, creating a new one")
	}

	ent := domain.EntitlementFromPlan(plan, now)
	if err := tx.Entitlements().Create(ctx, ent); err != nil {
		return "", err
	}
	return ent.ID, nil
}

// reopenBlocked reports why sub may not move to the open status target, or ""
// when it may. It must run inside the transaction holding sub's row lock.
func reopenBlocked(ctx context.Context, tx domain.Store, sub *domain.UserSubscription, target domain.SubscriptionStatus) (string, error) {
	if sub.Status.IsTerminal() {
		return "subscription is " + string(sub.Status), nil
	}
	if !target.IsOpen() || sub.Status.IsOpen() {
		return "", nil
	}
	open, err := tx.Subscriptions().HasOpen(ctx, sub.UserID, sub.PlanID)
	if err != nil {
		return "", err
	}
	if open {
		return "another open subscription exists for this plan", nil
	}
	return "", nil
}
