package service

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aiagenz/billing/internal/domain"
)

// RevocationService handles failed charges and gateway status changes.
// Unknown subscriptions are ignored.
type RevocationService struct {
	store  domain.Store
	logger zerolog.Logger
}

// NewRevocationService creates a new RevocationService.
func NewRevocationService(store domain.Store) *RevocationService {
	return &RevocationService{
		store:  store,
		logger: log.With().Str("component", "revocation").Logger(),
	}
}

// OnPaymentFailed marks the subscription FAILED and removes all access of its
// user, trial included. Repeating it yields the same state. A record that is
// already terminal keeps its status.
func (s *RevocationService) OnPaymentFailed(ctx context.Context, gatewaySubscriptionID string) error {
	err := s.store.WithTx(ctx, func(tx domain.Store) error {
		sub, err := tx.Subscriptions().FindByGatewaySubscriptionIDForUpdate(ctx, gatewaySubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			s.logger.Debug().Str("gateway_subscription_id", gatewaySubscriptionID).Msg("payment failure for unknown subscription")
			return nil
		}

		if !sub.Status.IsTerminal() {
			failed := domain.PaymentFailed
			if err := tx.Subscriptions().UpdateStatus(ctx, sub.ID, domain.SubscriptionFailed, &failed); err != nil {
				return err
			}
		}
		if err := tx.Users().RevokeAccess(ctx, sub.UserID, true); err != nil {
			return err
		}

		s.logger.Info().
			Str("user_id", sub.UserID).
			Str("subscription_id", sub.ID).
			Msg("access revoked due to payment failure")
		return nil
	})
	if err != nil {
		return domain.ErrTransaction("failed to process payment failure", err)
	}
	return nil
}

// OnStatusChanged records the mapped status and revokes entitlement access
// when the gateway status is no longer live. The free trial is kept. Changes
// to terminal records, and changes that would reopen a record while another
// open one exists, are ignored.
func (s *RevocationService) OnStatusChanged(ctx context.Context, gatewaySubscriptionID, gatewayStatus string) error {
	status := domain.MapGatewayStatus(gatewayStatus)
	err := s.store.WithTx(ctx, func(tx domain.Store) error {
		sub, err := tx.Subscriptions().FindByGatewaySubscriptionIDForUpdate(ctx, gatewaySubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			s.logger.Debug().Str("gateway_subscription_id", gatewaySubscriptionID).Msg("status change for unknown subscription")
			return nil
		}

		reason, err := reopenBlocked(ctx, tx, sub, status)
		if err != nil {
			return err
		}
		if reason != "" {
			s.logger.Warn().
				Str("gateway_subscription_id", gatewaySubscriptionID).
				Str("subscription_id", sub.ID).
				Str("gateway_status", gatewayStatus).
				Str("reason", reason).
				Msg("status change not applied")
			return nil
		}

		if err := tx.Subscriptions().UpdateStatus(ctx, sub.ID, status, nil); err != nil {
			return err
		}
		if domain.RevokesAccess(gatewayStatus) {
			if err := tx.Users().RevokeAccess(ctx, sub.UserID, false); err != nil {
				return err
			}
			s.logger.Info().
				Str("user_id", sub.UserID).
				Str("gateway_status", gatewayStatus).
				Msg("access revoked due to status change")
		}
		return nil
	})
	if err != nil {
		return domain.ErrTransaction("failed to process status change", err)
	}
	return nil
}
