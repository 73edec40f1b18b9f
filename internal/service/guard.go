package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/metrics"
)

// GuardService decides whether a metered request may run and settles the
// usage afterwards. Check never writes; Settle is the only decrement path.
type GuardService struct {
	store  domain.Store
	logger zerolog.Logger
}

// NewGuardService creates a new GuardService.
func NewGuardService(store domain.Store) *GuardService {
	return &GuardService{
		store:  store,
		logger: log.With().Str("component", "guard").Logger(),
	}
}

// Check evaluates the admission table for userID. A denial is returned as a
// Decision with a nil error; missing rows are NotFound errors.
func (s *GuardService) Check(ctx context.Context, userID string) (domain.Decision, error) {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return domain.Decision{}, domain.ErrInternal("failed to load user", err)
	}
	if user == nil {
		return domain.Decision{}, domain.ErrNotFound("user not found")
	}

	d, err := s.decide(ctx, user)
	if err != nil {
		return domain.Decision{}, err
	}
	metrics.RecordGuardDecision(d.Allowed, string(d.Tag))
	if !d.Allowed {
		s.logger.Info().Str("user_id", userID).Str("reason", d.Reason).Msg("metered request denied")
	}
	return d, nil
}

func (s *GuardService) decide(ctx context.Context, user *domain.User) (domain.Decision, error) {
	if user.FreeTrial > 0 {
		return domain.Allow(domain.TagFreeTrial, ""), nil
	}
	if !user.HasEntitlement() {
		return domain.Deny(domain.ReasonNoEntitlement), nil
	}

	ent, err := s.store.Entitlements().FindByID(ctx, *user.EntitlementID)
	if err != nil {
		return domain.Decision{}, domain.ErrInternal("failed to load entitlement", err)
	}
	if ent == nil {
		s.logger.Error().
			Str("user_id", user.ID).
			Str("entitlement_id", *user.EntitlementID).
			Msg("user references a missing entitlement")
		return domain.Decision{}, domain.ErrNotFound("entitlement not found")
	}

	if !ent.IsLimited {
		return domain.Allow(domain.TagEntitlementUnlimited, ent.ID), nil
	}
	if user.UserLimit <= 0 {
		return domain.Deny(domain.ReasonLimitExceeded), nil
	}
	return domain.Allow(domain.TagEntitlementLimited, ent.ID), nil
}

// Settle consumes one unit for an admitted request after the protected call
// succeeded. The decrement is conditional in storage, so concurrent settles
// stop at zero instead of going negative.
func (s *GuardService) Settle(ctx context.Context, userID string, d domain.Decision) error {
	if !d.Consumes() {
		return nil
	}

	var (
		applied bool
		err     error
	)
	switch d.Tag {
	case domain.TagFreeTrial:
		applied, err = s.store.Users().DecrementFreeTrial(ctx, userID)
	case domain.TagEntitlementLimited:
		applied, err = s.store.Users().DecrementUserLimit(ctx, userID)
	}
	if err != nil {
		return domain.ErrInternal("failed to settle usage", err)
	}

	metrics.RecordUsageSettled(string(d.Tag), applied)
	if !applied {
		s.logger.Warn().
			Str("user_id", userID).
			Str("tag", string(d.Tag)).
			Msg("usage counter already exhausted at settle time")
	}
	return nil
}
