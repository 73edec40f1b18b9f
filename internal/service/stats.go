package service

import (
	"context"

	"github.com/aiagenz/billing/internal/domain"
)

// Stats is the admin dashboard summary.
type Stats struct {
	Users         int64                                `json:"users"`
	Subscriptions map[domain.SubscriptionStatus]int64 `json:"subscriptions"`
}

var statsStatuses = []domain.SubscriptionStatus{
	domain.SubscriptionPending,
	domain.SubscriptionActive,
	domain.SubscriptionFailed,
	domain.SubscriptionCancelled,
	domain.SubscriptionPaused,
	domain.SubscriptionExpired,
}

// StatsService aggregates counts for the admin dashboard.
type StatsService struct {
	store domain.Store
}

// NewStatsService creates a new StatsService.
func NewStatsService(store domain.Store) *StatsService {
	return &StatsService{store: store}
}

// Stats counts users and subscriptions per status.
func (s *StatsService) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.store.Users().Count(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to count users", err)
	}

	stats := &Stats{
		Users:         users,
		Subscriptions: make(map[domain.SubscriptionStatus]int64, len(statsStatuses)),
	}
	for _, status := range statsStatuses {
		n, err := s.store.Subscriptions().CountByStatus(ctx, status)
		if err != nil {
			return nil, domain.ErrInternal("failed to count subscriptions", err)
		}
		stats.Subscriptions[status] = n
	}
	return stats, nil
}
