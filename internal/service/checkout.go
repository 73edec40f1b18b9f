package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/pkg/payment"
)

const metaPaymentSessionID = "payment_session_id"

// CheckoutService starts purchase flows. Records are created PENDING and only
// webhooks move them further.
type CheckoutService struct {
	store     domain.Store
	gateway   payment.Gateway
	returnURL string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewCheckoutService creates a new CheckoutService. returnURL may contain an
// {order_id} placeholder.
func NewCheckoutService(store domain.Store, gateway payment.Gateway, returnURL string) *CheckoutService {
	return &CheckoutService{
		store:     store,
		gateway:   gateway,
		returnURL: returnURL,
		logger:    log.With().Str("component", "checkout").Logger(),
		now:       time.Now,
	}
}

// InitiateOrder creates a one-time payment order for planID. The gateway
// order exists before the local PENDING record does.
func (s *CheckoutService) InitiateOrder(ctx context.Context, userID, planID string) (*domain.OrderSession, error) {
	user, plan, err := s.loadPurchase(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoOpen(ctx, userID, planID); err != nil {
		return nil, err
	}

	orderID := newOrderID(plan.PlanType, userID, s.now())
	res, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		OrderID:   orderID,
		Amount:    plan.Amount,
		Currency:  plan.Currency,
		Customer:  customerOf(user),
		ReturnURL: s.renderReturnURL(orderID),
		Note:      plan.Name,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("plan_id", planID).Msg("gateway order creation failed")
		return nil, domain.ErrGateway(gatewayMessage("failed to create payment order", err), err)
	}

	usage := 0
	if plan.IsLimited {
		usage = plan.Limit()
	}
	now := s.now()
	sub := &domain.UserSubscription{
		ID:             domain.NewSubscriptionID(),
		UserID:         userID,
		PlanID:         planID,
		Status:         domain.SubscriptionPending,
		PaymentStatus:  domain.PaymentPending,
		GatewayOrderID: &orderID,
		UsageCount:     usage,
		AmountPaid:     decimal.Zero,
		Currency:       plan.Currency,
		Metadata:       map[string]string{metaPaymentSessionID: res.PaymentSessionID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Subscriptions().Create(ctx, sub); err != nil {
		// The gateway order is left for out-of-band reconciliation.
		s.logger.Error().Err(err).Str("order_id", orderID).Msg("gateway order created but local record failed")
		return nil, asAppError(err, "failed to record order")
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("plan_id", planID).
		Str("order_id", orderID).
		Str("subscription_id", sub.ID).
		Msg("order initiated")

	return &domain.OrderSession{
		PaymentSessionID: res.PaymentSessionID,
		OrderID:          orderID,
		SubscriptionID:   sub.ID,
	}, nil
}

// InitiateSubscription creates a recurring subscription for a synced
// SUBSCRIPTION plan.
func (s *CheckoutService) InitiateSubscription(ctx context.Context, userID, planID string) (*domain.SubscriptionSession, error) {
	user, plan, err := s.loadPurchase(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	if plan.PlanType != domain.PlanTypeSubscription {
		return nil, domain.ErrInvalidState("plan is not a subscription plan")
	}
	if !plan.IsSynced() {
		return nil, domain.ErrInvalidState("plan is not synced with the payment gateway")
	}
	if err := s.ensureNoOpen(ctx, userID, planID); err != nil {
		return nil, err
	}

	subscriptionID := newSubscriptionRef(s.now())
	amount := plan.Amount
	if plan.RecurringAmount != nil {
		amount = *plan.RecurringAmount
	}
	res, err := s.gateway.CreateSubscription(ctx, payment.SubscriptionRequest{
		SubscriptionID: subscriptionID,
		Plan: payment.SubscriptionPlan{
			PlanID:       *plan.GatewayPlanID,
			Name:         plan.Name,
			Amount:       amount,
			MaxAmount:    plan.MaxAmount,
			Currency:     plan.Currency,
			MaxCycles:    derefInt(plan.MaxCycles),
			Intervals:    derefInt(plan.Intervals),
			IntervalType: string(*plan.IntervalType),
		},
		Customer:  customerOf(user),
		ReturnURL: s.renderReturnURL(subscriptionID),
		Note:      plan.Name,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("plan_id", planID).Msg("gateway subscription creation failed")
		return nil, domain.ErrGateway(gatewayMessage("failed to create subscription", err), err)
	}

	now := s.now()
	gatewayRef := res.GatewaySubscriptionID
	sub := &domain.UserSubscription{
		ID:                    domain.NewSubscriptionID(),
		UserID:                userID,
		PlanID:                planID,
		Status:                domain.SubscriptionPending,
		PaymentStatus:         domain.PaymentPending,
		GatewaySubscriptionID: &gatewayRef,
		AmountPaid:            decimal.Zero,
		Currency:              plan.Currency,
		Metadata: map[string]string{
			"subscription_id":         subscriptionID,
			"subscription_session_id": res.SessionID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Subscriptions().Create(ctx, sub); err != nil {
		s.logger.Error().Err(err).Str("gateway_subscription_id", gatewayRef).Msg("gateway subscription created but local record failed")
		return nil, asAppError(err, "failed to record subscription")
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("plan_id", planID).
		Str("gateway_subscription_id", gatewayRef).
		Msg("subscription initiated")

	return &domain.SubscriptionSession{
		SubscriptionID:        subscriptionID,
		SubscriptionSessionID: res.SessionID,
		SubscriptionStatus:    res.Status,
	}, nil
}

// ListSubscriptions returns the caller's purchase records, newest first.
func (s *CheckoutService) ListSubscriptions(ctx context.Context, userID string) ([]*domain.UserSubscription, error) {
	subs, err := s.store.Subscriptions().ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("failed to list subscriptions", err)
	}
	if subs == nil {
		subs = []*domain.UserSubscription{}
	}
	return subs, nil
}

func (s *CheckoutService) loadPurchase(ctx context.Context, userID, planID string) (*domain.User, *domain.Plan, error) {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, nil, domain.ErrInternal("failed to load user", err)
	}
	if user == nil {
		return nil, nil, domain.ErrNotFound("user not found")
	}
	plan, err := s.store.Plans().FindByID(ctx, planID)
	if err != nil {
		return nil, nil, domain.ErrInternal("failed to load plan", err)
	}
	if plan == nil {
		return nil, nil, domain.ErrNotFound("plan not found")
	}
	return user, plan, nil
}

func (s *CheckoutService) ensureNoOpen(ctx context.Context, userID, planID string) error {
	open, err := s.store.Subscriptions().HasOpen(ctx, userID, planID)
	if err != nil {
		return domain.ErrInternal("failed to check existing subscriptions", err)
	}
	if open {
		return domain.ErrConflict("an active or pending subscription already exists for this plan")
	}
	return nil
}

func (s *CheckoutService) renderReturnURL(ref string) string {
	return strings.ReplaceAll(s.returnURL, "{order_id}", ref)
}

func customerOf(u *domain.User) payment.Customer {
	return payment.Customer{ID: u.ID, Email: u.Email, Phone: u.Phone, Name: u.Name}
}

// newOrderID returns ORDER_<type>_<user prefix>_<millis><rand>.
func newOrderID(planType domain.PlanType, userID string, now time.Time) string {
	prefix := userID
	if len(prefix) > 5 {
		prefix = prefix[:5]
	}
	return fmt.Sprintf("ORDER_%s_%s_%d%04d", planType, prefix, now.UnixMilli(), rand.IntN(10000))
}

// newSubscriptionRef returns SUB_<millis>_<rand>.
func newSubscriptionRef(now time.Time) string {
	return fmt.Sprintf("SUB_%d_%04d", now.UnixMilli(), rand.IntN(10000))
}

// gatewayMessage picks the most specific message available from a gateway error.
func gatewayMessage(prefix string, err error) string {
	var apiErr *payment.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return prefix + ": " + apiErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return prefix + ": payment gateway timed out"
	}
	return prefix + ": payment gateway unavailable"
}

// asAppError passes AppErrors through and wraps anything else as internal.
func asAppError(err error, msg string) error {
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	return domain.ErrInternal(msg, err)
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
