package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/metrics"
	"github.com/aiagenz/billing/pkg/crypto"
	"github.com/aiagenz/billing/pkg/payment"
)

const webhookProvider = "cashfree"

// Delivery is one inbound webhook request. Body must be the exact bytes the
// gateway signed.
type Delivery struct {
	Body      []byte
	Signature string
	Timestamp string
}

// WebhookService authenticates gateway callbacks and routes them to the
// activation and revocation handlers. Handlers are idempotent, so the
// gateway's at-least-once delivery is safe.
type WebhookService struct {
	store      domain.Store
	gateway    payment.Gateway
	enc        *crypto.Encryptor
	activation *ActivationService
	revocation *RevocationService
	logger     zerolog.Logger
	now        func() time.Time
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(
	store domain.Store,
	gateway payment.Gateway,
	enc *crypto.Encryptor,
	activation *ActivationService,
	revocation *RevocationService,
) *WebhookService {
	return &WebhookService{
		store:      store,
		gateway:    gateway,
		enc:        enc,
		activation: activation,
		revocation: revocation,
		logger:     log.With().Str("component", "webhook").Logger(),
		now:        time.Now,
	}
}

// Dispatch verifies and processes one delivery. It returns nil when the
// delivery should be acknowledged, including skipped and unknown events.
// Activation failures are returned so the gateway redelivers.
func (s *WebhookService) Dispatch(ctx context.Context, d Delivery) error {
	if d.Signature == "" || d.Timestamp == "" {
		s.logger.Warn().Msg("webhook without signature headers")
		metrics.RecordWebhookEvent("", "unauthorized")
		return domain.ErrUnauthorized("missing webhook signature headers")
	}
	if !s.gateway.VerifyWebhookSignature(d.Signature, d.Body, d.Timestamp) {
		s.logger.Warn().Msg("webhook with invalid signature")
		s.record(ctx, "", "", false, d.Body)
		metrics.RecordWebhookEvent("", "unauthorized")
		return domain.ErrUnauthorized("invalid webhook signature")
	}

	var env domain.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		s.logger.Warn().Err(err).Msg("webhook body is not valid JSON")
		metrics.RecordWebhookEvent("", "malformed")
		return domain.ErrBadRequest("invalid webhook payload")
	}

	ref, handle, err := s.route(env)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", env.Type).Msg("webhook data does not match its type")
		metrics.RecordWebhookEvent(env.Type, "malformed")
		return domain.ErrBadRequest("invalid webhook payload")
	}

	event := s.record(ctx, env.Type, ref, true, d.Body)
	s.logger.Info().Str("type", env.Type).Str("reference", ref).Msg("webhook received")

	if handle == nil {
		s.logger.Warn().Str("type", env.Type).Msg("unhandled webhook event")
		s.markProcessed(ctx, event, nil)
		metrics.RecordWebhookEvent(env.Type, "ignored")
		return nil
	}

	err = handle(ctx)
	s.markProcessed(ctx, event, err)
	if err == nil {
		metrics.RecordWebhookEvent(env.Type, "processed")
		return nil
	}

	switch env.Type {
	case domain.EventPaymentSuccess, domain.EventSubscriptionPaymentSuccess:
		metrics.RecordWebhookEvent(env.Type, "error")
		return err
	default:
		// Revocation is best effort; a redelivery retries it.
		s.logger.Error().Err(err).Str("type", env.Type).Str("reference", ref).Msg("webhook processing failed")
		metrics.RecordWebhookEvent(env.Type, "error")
		return nil
	}
}

type handlerFunc func(ctx context.Context) error

// route decodes the event data and returns the gateway reference plus the
// handler to run. A nil handler means the event type is not handled.
func (s *WebhookService) route(env domain.Envelope) (string, handlerFunc, error) {
	switch env.Type {
	case domain.EventPaymentSuccess:
		var data domain.OrderPaymentData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", nil, err
		}
		orderID := data.Order.OrderID
		return orderID, func(ctx context.Context) error {
			_, err := s.activation.ActivateOrder(ctx, orderID, Payment{
				ID:     data.Payment.CFPaymentID.String(),
				Amount: data.Payment.PaymentAmount,
			})
			return err
		}, nil

	case domain.EventSubscriptionPaymentSuccess:
		var data domain.SubscriptionPaymentData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", nil, err
		}
		ref := data.CFSubscriptionID.String()
		return ref, func(ctx context.Context) error {
			_, err := s.activation.ActivateRenewal(ctx, ref, Payment{
				ID:     data.CFPaymentID.String(),
				Amount: data.PaymentAmount,
			})
			return err
		}, nil

	case domain.EventSubscriptionPaymentFailed:
		var data domain.SubscriptionPaymentData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", nil, err
		}
		ref := data.CFSubscriptionID.String()
		return ref, func(ctx context.Context) error {
			return s.revocation.OnPaymentFailed(ctx, ref)
		}, nil

	case domain.EventSubscriptionStatusChanged:
		var data domain.SubscriptionStatusData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", nil, err
		}
		ref := data.SubscriptionDetails.CFSubscriptionID.String()
		status := data.SubscriptionDetails.SubscriptionStatus
		return ref, func(ctx context.Context) error {
			return s.revocation.OnStatusChanged(ctx, ref, status)
		}, nil
	}
	return "", nil, nil
}

// record stores the delivery in the event log. Failures are logged only.
func (s *WebhookService) record(ctx context.Context, eventType, ref string, valid bool, body []byte) *domain.WebhookEvent {
	event := &domain.WebhookEvent{
		ID:             domain.NewWebhookEventID(),
		Provider:       webhookProvider,
		EventType:      eventType,
		Reference:      ref,
		SignatureValid: valid,
		ReceivedAt:     s.now(),
	}
	if s.enc != nil {
		sealed, err := s.enc.Seal(body, event.ID)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to encrypt webhook payload")
		} else {
			event.Payload = sealed
		}
	}
	if err := s.store.WebhookEvents().Record(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("failed to record webhook event")
		return nil
	}
	return event
}

func (s *WebhookService) markProcessed(ctx context.Context, event *domain.WebhookEvent, procErr error) {
	if event == nil {
		return
	}
	var msg *string
	if procErr != nil {
		m := procErr.Error()
		msg = &m
	}
	if err := s.store.WebhookEvents().MarkProcessed(ctx, event.ID, s.now(), msg); err != nil {
		s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to mark webhook event processed")
	}
}

// WebhookEventView is a log entry with its payload decrypted for admins.
type WebhookEventView struct {
	*domain.WebhookEvent
	Body json.RawMessage `json:"body,omitempty"`
}

// RecentEvents returns the latest deliveries with decrypted payloads.
func (s *WebhookService) RecentEvents(ctx context.Context, limit int) ([]WebhookEventView, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	events, err := s.store.WebhookEvents().ListRecent(ctx, limit)
	if err != nil {
		return nil, domain.ErrInternal("failed to list webhook events", err)
	}

	views := make([]WebhookEventView, 0, len(events))
	for _, e := range events {
		ev := *e
		ev.Payload = ""
		v := WebhookEventView{WebhookEvent: &ev}
		if e.Payload != "" && s.enc != nil {
			body, err := s.enc.Open(e.Payload, e.ID)
			if err != nil {
				s.logger.Warn().Err(err).Str("event_id", e.ID).Msg("failed to decrypt webhook payload")
			} else if json.Valid(body) {
				v.Body = body
			}
		}
		views = append(views, v)
	}
	return views, nil
}
