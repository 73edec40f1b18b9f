package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aiagenz/billing/internal/domain"
)

// WebhookEventRepository handles the webhook delivery log.
type WebhookEventRepository struct {
	db querier
}

// Record inserts one delivery.
func (r *WebhookEventRepository) Record(ctx context.Context, e *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, provider, event_type, reference, signature_valid, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query,
		e.ID, e.Provider, e.EventType, e.Reference, e.SignatureValid, e.Payload, e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// MarkProcessed stores the processing outcome of a delivery.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string, at time.Time, processingErr *string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE webhook_events SET processed_at = $2, processing_error = $3 WHERE id = $1`,
		id, at, processingErr,
	)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

// ListRecent returns the newest deliveries first.
func (r *WebhookEventRepository) ListRecent(ctx context.Context, limit int) ([]*domain.WebhookEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, provider, event_type, reference, signature_valid, payload, received_at, processed_at, processing_error
		FROM webhook_events
		ORDER BY received_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook events: %w", err)
	}
	defer rows.Close()

	events := []*domain.WebhookEvent{}
	for rows.Next() {
		var e domain.WebhookEvent
		if err := rows.Scan(
			&e.ID, &e.Provider, &e.EventType, &e.Reference, &e.SignatureValid, &e.Payload,
			&e.ReceivedAt, &e.ProcessedAt, &e.ProcessingError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// DeleteOlderThan prunes deliveries received before cutoff.
func (r *WebhookEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
