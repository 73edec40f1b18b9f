package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiagenz/billing/internal/domain"
)

func orderSuccessBody(orderID string, amount string) string {
	return fmt.Sprintf(`{"type":"PAYMENT_SUCCESS_WEBHOOK","event_time":"2025-03-10T12:00:00+05:30","data":{"order":{"order_id":%q},"payment":{"cf_payment_id":5114910401,"payment_status":"SUCCESS","payment_amount":%s}}}`, orderID, amount)
}

func renewalBody(gatewaySubID string, paymentID int) string {
	return fmt.Sprintf(`{"type":"SUBSCRIPTION_PAYMENT_SUCCESS","data":{"cf_subscription_id":%s,"cf_payment_id":%d,"payment_amount":499.00}}`, gatewaySubID, paymentID)
}

func failureBody(gatewaySubID string) string {
	return fmt.Sprintf(`{"type":"SUBSCRIPTION_PAYMENT_FAILED","data":{"cf_subscription_id":%q,"cf_payment_id":"77","payment_amount":499}}`, gatewaySubID)
}

func statusBody(gatewaySubID, status string) string {
	return fmt.Sprintf(`{"type":"SUBSCRIPTION_STATUS_CHANGED","data":{"subscription_details":{"cf_subscription_id":%q,"subscription_status":%q}}}`, gatewaySubID, status)
}

func TestWebhookService_Authentication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{}}`)

	tests := []struct {
		name string
		d    Delivery
	}{
		{"missing signature", Delivery{Body: body, Timestamp: "1"}},
		{"missing timestamp", Delivery{Body: body, Signature: env.gateway.Sign("1", body)}},
		{"wrong signature", Delivery{Body: body, Signature: "bm9wZQ==", Timestamp: "1"}},
		{"signature for other timestamp", Delivery{Body: body, Signature: env.gateway.Sign("2", body), Timestamp: "1"}},
		{"tampered body", Delivery{Body: []byte(`{"type":"X"}`), Signature: env.gateway.Sign("1", body), Timestamp: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.webhooks.Dispatch(ctx, tt.d)
			require.Error(t, err)
			appErr, ok := domain.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, 401, appErr.Code)
		})
	}
}

func TestWebhookService_MalformedAndUnknown(t *testing.T) {
	env := newTestEnv(t)

	err := env.deliver(t, `{not json`)
	assert.True(t, domain.IsKind(err, domain.KindBadRequest))

	err = env.deliver(t, `{"type":"PAYMENT_SUCCESS_WEBHOOK","data":{"order":"oops"}}`)
	assert.True(t, domain.IsKind(err, domain.KindBadRequest))

	assert.NoError(t, env.deliver(t, `{"type":"REFUND_STATUS_WEBHOOK","data":{}}`))
}

func TestWebhookService_UnknownReferencesAreAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	assert.NoError(t, env.deliver(t, orderSuccessBody("ORDER_UNKNOWN", "10")))
	assert.NoError(t, env.deliver(t, renewalBody("123", 1)))
	assert.NoError(t, env.deliver(t, failureBody("123")))
	assert.NoError(t, env.deliver(t, statusBody("123", "CANCELLED")))
}

func TestWebhookService_OrderDuplicateDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, func(u *domain.User) { u.FreeTrial = 2 })
	plan := env.seedOrderPlan(t, 10)

	session, err := env.checkout.InitiateOrder(ctx, user.ID, plan.ID)
	require.NoError(t, err)

	body := orderSuccessBody(session.OrderID, "199.00")
	require.NoError(t, env.deliver(t, body))
	require.NoError(t, env.deliver(t, body))

	got := env.user(t, user.ID)
	assert.Equal(t, 10, got.UserLimit, "second delivery must not top up again")
	assert.Equal(t, 0, got.FreeTrial)
	require.NotNil(t, got.EntitlementID)

	sub := env.subscription(t, session.SubscriptionID)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.Equal(t, domain.PaymentSuccess, sub.PaymentStatus)
	assert.Equal(t, 1, sub.CyclesCompleted)
	assert.Equal(t, "199", sub.AmountPaid.String())
	require.NotNil(t, sub.GatewayPaymentID)
	assert.Equal(t, "5114910401", *sub.GatewayPaymentID)
	require.NotNil(t, sub.StartedAt)
	assert.Nil(t, sub.ExpiresAt, "order activations do not expire")

	ent, err := env.store.Entitlements().FindByID(ctx, *got.EntitlementID)
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Equal(t, plan.ID, ent.PlanID)
	assert.Equal(t, 10, ent.PlanLimit)
	assert.True(t, ent.IsLimited)
}

func TestWebhookService_OrderConcurrentDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, nil)
	plan := env.seedOrderPlan(t, 10)

	session, err := env.checkout.InitiateOrder(ctx, user.ID, plan.ID)
	require.NoError(t, err)

	body := orderSuccessBody(session.OrderID, "199.00")
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.deliver(t, body))
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, env.user(t, user.ID).UserLimit)
	assert.Equal(t, 1, env.subscription(t, session.SubscriptionID).CyclesCompleted)
}

func TestWebhookService_OrderTopUpKeepsEntitlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	existing := env.seedEntitlement(t, true)
	user := env.seedUser(t, func(u *domain.User) {
		u.EntitlementID = &existing.ID
		u.UserLimit = 3
	})
	plan := env.seedOrderPlan(t, 10)

	session, err := env.checkout.InitiateOrder(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	require.NoError(t, env.deliver(t, orderSuccessBody(session.OrderID, "199")))

	got := env.user(t, user.ID)
	assert.Equal(t, 13, got.UserLimit, "top-ups accumulate")
	require.NotNil(t, got.EntitlementID)
	assert.Equal(t, existing.ID, *got.EntitlementID)

	ent, err := env.store.Entitlements().FindByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "seed-plan", ent.PlanID, "top-ups leave the entitlement untouched")
}

func TestWebhookService_RenewalsExtendExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	existing := env.seedEntitlement(t, false)
	user := env.seedUser(t, func(u *domain.User) {
		u.FreeTrial = 1
		u.EntitlementID = &existing.ID
	})
	plan := env.seedSubscriptionPlan(t, 100, true)

	_, err := env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	gatewayRef := "900001"

	require.NoError(t, env.deliver(t, renewalBody(gatewayRef, 1)))
	first := env.user(t, user.ID)
	assert.Equal(t, 100, first.UserLimit)
	assert.Equal(t, 0, first.FreeTrial)

	// Usage between cycles must not carry over.
	require.NoError(t, env.guard.Settle(ctx, user.ID, domain.Allow(domain.TagEntitlementLimited, existing.ID)))
	assert.Equal(t, 99, env.user(t, user.ID).UserLimit)

	env.clock.Advance(24 * time.Hour)
	require.NoError(t, env.deliver(t, renewalBody(gatewayRef, 2)))

	got := env.user(t, user.ID)
	assert.Equal(t, 100, got.UserLimit, "renewals reset rather than accumulate")
	require.NotNil(t, got.EntitlementID)
	assert.Equal(t, existing.ID, *got.EntitlementID, "renewals reuse the entitlement")

	ent, err := env.store.Entitlements().FindByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, ent.PlanID, "subscription plans reassign the tier")
	assert.True(t, ent.IsLimited)
	assert.Equal(t, 100, ent.PlanLimit)

	subs, err := env.checkout.ListSubscriptions(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	sub := subs[0]
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.Equal(t, 2, sub.CyclesCompleted)
	assert.Equal(t, "998", sub.AmountPaid.String())
	require.NotNil(t, sub.StartedAt)
	assert.True(t, sub.StartedAt.Equal(baseTime))
	require.NotNil(t, sub.ExpiresAt)
	assert.True(t, sub.ExpiresAt.Equal(baseTime.AddDate(0, 2, 0)), "got %s", sub.ExpiresAt)
}

func TestWebhookService_RenewalAfterLapseStartsFromNow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, nil)
	plan := env.seedSubscriptionPlan(t, 100, true)

	_, err := env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	require.NoError(t, env.deliver(t, renewalBody("900001", 1)))

	env.clock.Advance(90 * 24 * time.Hour)
	require.NoError(t, env.deliver(t, renewalBody("900001", 2)))

	subs, err := env.checkout.ListSubscriptions(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, subs[0].ExpiresAt)
	assert.True(t, subs[0].ExpiresAt.Equal(env.clock.Now().AddDate(0, 1, 0)))
}

func TestWebhookService_PaymentFailedRevokesIdempotently(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, nil)
	plan := env.seedSubscriptionPlan(t, 100, true)

	_, err := env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	require.NoError(t, env.deliver(t, renewalBody("900001", 1)))

	for range 2 {
		require.NoError(t, env.deliver(t, failureBody("900001")))

		got := env.user(t, user.ID)
		assert.Nil(t, got.EntitlementID)
		assert.Equal(t, 0, got.UserLimit)
		assert.Equal(t, 0, got.FreeTrial)

		subs, err := env.checkout.ListSubscriptions(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionFailed, subs[0].Status)
		assert.Equal(t, domain.PaymentFailed, subs[0].PaymentStatus)
	}

	d, err := env.guard.Check(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestWebhookService_StatusChanged(t *testing.T) {
	tests := []struct {
		gatewayStatus string
		wantStatus    domain.SubscriptionStatus
		wantRevoked   bool
	}{
		{"ACTIVE", domain.SubscriptionActive, false},
		{"BANK_APPROVAL_PENDING", domain.SubscriptionPending, false},
		{"INITIALIZED", "INITIALIZED", false},
		{"ON_HOLD", domain.SubscriptionPaused, true},
		{"CANCELLED", domain.SubscriptionCancelled, true},
		{"COMPLETED", domain.SubscriptionExpired, true},
		{"CUSTOMER_PAUSED", "CUSTOMER_PAUSED", true},
	}
	for _, tt := range tests {
		t.Run(tt.gatewayStatus, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			user := env.seedUser(t, func(u *domain.User) { u.FreeTrial = 2 })
			plan := env.seedSubscriptionPlan(t, 100, true)

			_, err := env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
			require.NoError(t, err)
			require.NoError(t, env.deliver(t, renewalBody("900001", 1)))
			require.NoError(t, env.deliver(t, statusBody("900001", tt.gatewayStatus)))

			subs, err := env.checkout.ListSubscriptions(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, subs[0].Status)
			assert.Equal(t, domain.PaymentSuccess, subs[0].PaymentStatus, "status changes leave payment status alone")

			got := env.user(t, user.ID)
			if tt.wantRevoked {
				assert.Nil(t, got.EntitlementID)
				assert.Equal(t, 0, got.UserLimit)
			} else {
				assert.NotNil(t, got.EntitlementID)
				assert.Equal(t, 100, got.UserLimit)
			}
		})
	}
}

func TestWebhookService_StatusChangeKeepsFreeTrial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, func(u *domain.User) { u.FreeTrial = 2 })
	plan := env.seedSubscriptionPlan(t, 100, true)

	_, err := env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	require.NoError(t, env.deliver(t, statusBody("900001", "CANCELLED")))

	got := env.user(t, user.ID)
	assert.Equal(t, 2, got.FreeTrial)
	assert.Nil(t, got.EntitlementID)
}

func TestWebhookService_ActivationFailureAborts(t *testing.T) {
	backing := newTestEnv(t).store
	env := buildEnv(t, backing, &faultyStore{Store: backing})
	ctx := context.Background()
	user := env.seedUser(t, func(u *domain.User) { u.FreeTrial = 1 })
	plan := env.seedOrderPlan(t, 10)

	session, err := env.checkout.InitiateOrder(ctx, user.ID, plan.ID)
	require.NoError(t, err)

	err = env.deliver(t, orderSuccessBody(session.OrderID, "199"))
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindTransaction, appErr.Kind)
	assert.Equal(t, 500, appErr.Code)
	assert.ErrorIs(t, err, errInjected)

	sub := env.subscription(t, session.SubscriptionID)
	assert.Equal(t, domain.SubscriptionPending, sub.Status, "nothing inside the transaction is applied")
	assert.Zero(t, sub.CyclesCompleted)
	assert.True(t, sub.AmountPaid.IsZero())

	got := env.user(t, user.ID)
	assert.Equal(t, 1, got.FreeTrial)
	assert.Nil(t, got.EntitlementID)
	assert.Equal(t, 0, got.UserLimit)

	// A redelivery against a healthy store succeeds.
	healthy := newTestEnvWithStore(t, backing)
	require.NoError(t, healthy.deliver(t, orderSuccessBody(session.OrderID, "199")))
	assert.Equal(t, 10, healthy.user(t, user.ID).UserLimit)
}

func TestWebhookService_EventLog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.deliver(t, `{"type":"REFUND_STATUS_WEBHOOK","data":{"refund_id":"r1"}}`))
	env.clock.Advance(time.Second)
	require.NoError(t, env.deliver(t, failureBody("42")))
	env.clock.Advance(time.Second)
	_ = env.webhooks.Dispatch(ctx, Delivery{Body: []byte(`{}`), Signature: "bad", Timestamp: "1"})

	events, err := env.webhooks.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	invalid := events[0]
	assert.False(t, invalid.SignatureValid)
	assert.Nil(t, invalid.ProcessedAt)

	failed := events[1]
	assert.Equal(t, domain.EventSubscriptionPaymentFailed, failed.EventType)
	assert.Equal(t, "42", failed.Reference)
	assert.True(t, failed.SignatureValid)
	assert.NotNil(t, failed.ProcessedAt)
	assert.Empty(t, failed.Payload, "ciphertext is not exposed")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(failed.Body, &body))
	assert.Equal(t, domain.EventSubscriptionPaymentFailed, body["type"])

	stored, err := env.store.WebhookEvents().ListRecent(ctx, 10)
	require.NoError(t, err)
	for _, e := range stored {
		assert.NotContains(t, e.Payload, "SUBSCRIPTION", "payloads are encrypted at rest")
	}
}

// byGatewayRef indexes a user's records by gateway subscription id and counts
// the open ones.
func (e *testEnv) byGatewayRef(t *testing.T, userID string) (map[string]*domain.UserSubscription, int) {
	t.Helper()
	subs, err := e.checkout.ListSubscriptions(context.Background(), userID)
	require.NoError(t, err)
	out := make(map[string]*domain.UserSubscription, len(subs))
	open := 0
	for _, s := range subs {
		if s.GatewaySubscriptionID != nil {
			out[*s.GatewaySubscriptionID] = s
		}
		if s.Status.IsOpen() {
			open++
		}
	}
	return out, open
}

func TestWebhookService_ClosedSubscriptionsStayClosed(t *testing.T) {
	tests := []struct {
		name       string
		close      func(env *testEnv) string
		wantStatus domain.SubscriptionStatus
		reopen     string
	}{
		{
			name:       "renewal after payment failure",
			close:      func(*testEnv) string { return failureBody("900001") },
			wantStatus: domain.SubscriptionFailed,
			reopen:     renewalBody("900001", 7),
		},
		{
			name:       "status active after cancellation",
			close:      func(*testEnv) string { return statusBody("900001", "CANCELLED") },
			wantStatus: domain.SubscriptionCancelled,
			reopen:     statusBody("900001", "ACTIVE"),
		},
		{
			name:       "renewal after completion",
			close:      func(*testEnv) string { return statusBody("900001", "COMPLETED") },
			wantStatus: domain.SubscriptionExpired,
			reopen:     renewalBody("900001", 8),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			user := env.seedUser(t, nil)
			plan := env.seedSubscriptionPlan(t, 100, true)

			_, err := env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
			require.NoError(t, err)
			require.NoError(t, env.deliver(t, renewalBody("900001", 1)))
			require.NoError(t, env.deliver(t, tt.close(env)))

			env.clock.Advance(time.Hour)
			_, err = env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
			require.NoError(t, err, "a closed record does not block a new purchase")

			require.NoError(t, env.deliver(t, tt.reopen), "stale events are acknowledged")

			subs, open := env.byGatewayRef(t, user.ID)
			assert.Equal(t, 1, open)
			assert.Equal(t, tt.wantStatus, subs["900001"].Status)
			assert.Equal(t, 1, subs["900001"].CyclesCompleted)
			assert.Equal(t, domain.SubscriptionPending, subs["900002"].Status)

			got := env.user(t, user.ID)
			assert.Nil(t, got.EntitlementID)
			assert.Zero(t, got.UserLimit)
		})
	}
}

func TestWebhookService_PausedSubscriptionNotReopenedOverNewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, nil)
	plan := env.seedSubscriptionPlan(t, 100, true)

	_, err := env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
	require.NoError(t, err)
	require.NoError(t, env.deliver(t, renewalBody("900001", 1)))
	require.NoError(t, env.deliver(t, statusBody("900001", "ON_HOLD")))

	_, err = env.checkout.InitiateSubscription(ctx, user.ID, plan.ID)
	require.NoError(t, err)

	require.NoError(t, env.deliver(t, statusBody("900001", "ACTIVE")))
	require.NoError(t, env.deliver(t, renewalBody("900001", 2)))

	subs, open := env.byGatewayRef(t, user.ID)
	assert.Equal(t, 1, open)
	assert.Equal(t, domain.SubscriptionPaused, subs["900001"].Status)
	assert.Equal(t, domain.SubscriptionPending, subs["900002"].Status)

	// Once the newer record is closed the paused one may resume.
	require.NoError(t, env.deliver(t, failureBody("900002")))
	require.NoError(t, env.deliver(t, statusBody("900001", "ACTIVE")))
	subs, open = env.byGatewayRef(t, user.ID)
	assert.Equal(t, 1, open)
	assert.Equal(t, domain.SubscriptionActive, subs["900001"].Status)
}
