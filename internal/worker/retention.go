// Package worker runs background maintenance jobs.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/metrics"
)

// Retention periodically deletes webhook events older than the retention
// window.
type Retention struct {
	events    domain.WebhookEventRepository
	retention time.Duration
	schedule  string
	logger    zerolog.Logger
	now       func() time.Time

	mu        sync.Mutex
	scheduler *cron.Cron
}

// NewRetention validates the cron schedule and returns a stopped worker.
func NewRetention(events domain.WebhookEventRepository, retention time.Duration, schedule string) (*Retention, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule: %w", err)
	}
	return &Retention{
		events:    events,
		retention: retention,
		schedule:  schedule,
		logger:    log.With().Str("component", "retention").Logger(),
		now:       time.Now,
	}, nil
}

// Start schedules the prune job. Calling Start twice is a no-op.
func (r *Retention) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.Prune(ctx); err != nil {
			r.logger.Error().Err(err).Msg("webhook event pruning failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule retention job: %w", err)
	}
	scheduler.Start()
	r.scheduler = scheduler

	r.logger.Info().
		Str("schedule", r.schedule).
		Dur("retention", r.retention).
		Msg("retention worker started")
	return nil
}

// Stop halts the scheduler and waits for a running prune to finish or ctx to
// expire.
func (r *Retention) Stop(ctx context.Context) {
	r.mu.Lock()
	scheduler := r.scheduler
	r.scheduler = nil
	r.mu.Unlock()
	if scheduler == nil {
		return
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
	}
	r.logger.Info().Msg("retention worker stopped")
}

// Prune deletes events received before now minus the retention window and
// returns how many were removed.
func (r *Retention) Prune(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)
	n, err := r.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune webhook events: %w", err)
	}
	metrics.RecordWebhookEventsPruned(n)
	if n > 0 {
		r.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("pruned webhook events")
	}
	return n, nil
}
