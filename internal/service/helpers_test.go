package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/repository/memstore"
	"github.com/aiagenz/billing/pkg/crypto"
	"github.com/aiagenz/billing/pkg/payment"
)

const (
	testWebhookSecret = "whsec_test"
	testEncryptionKey = "0123456789abcdef0123456789abcdef"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// testEnv wires every service over one in-memory store and a mock gateway.
type testEnv struct {
	store      *memstore.Store
	gateway    *payment.MockGateway
	guard      *GuardService
	checkout   *CheckoutService
	plans      *PlanService
	activation *ActivationService
	revocation *RevocationService
	webhooks   *WebhookService
	clock      *testClock
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memstore.New())
}

func newTestEnvWithStore(t *testing.T, store *memstore.Store) *testEnv {
	t.Helper()
	return buildEnv(t, store, store)
}

// buildEnv lets the write paths use a different (for example faulty) view of
// the same backing store.
func buildEnv(t *testing.T, backing *memstore.Store, store domain.Store) *testEnv {
	t.Helper()
	enc, err := crypto.NewEncryptor(testEncryptionKey)
	require.NoError(t, err)

	clock := &testClock{t: baseTime}
	gw := payment.NewMockGateway(testWebhookSecret)

	env := &testEnv{
		store:      backing,
		gateway:    gw,
		guard:      NewGuardService(store),
		checkout:   NewCheckoutService(store, gw, "https://app.test/status?order_id={order_id}"),
		plans:      NewPlanService(store, gw, nil),
		activation: NewActivationService(store),
		revocation: NewRevocationService(store),
		clock:      clock,
	}
	env.checkout.now = clock.Now
	env.plans.now = clock.Now
	env.activation.now = clock.Now
	env.webhooks = NewWebhookService(store, gw, enc, env.activation, env.revocation)
	env.webhooks.now = clock.Now
	return env
}

func (e *testEnv) seedUser(t *testing.T, mutate func(u *domain.User)) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:        domain.NewUserID(),
		Email:     domain.NewUserID() + "@example.com",
		Name:      "Test User",
		Phone:     "9999999999",
		Role:      domain.RoleUser,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, e.store.Users().Create(context.Background(), u))
	return u
}

func (e *testEnv) seedEntitlement(t *testing.T, limited bool) *domain.Entitlement {
	t.Helper()
	ent := &domain.Entitlement{
		ID:        domain.NewPlanID(),
		Name:      "Seeded",
		Price:     decimal.NewFromInt(100),
		PlanID:    "seed-plan",
		IsLimited: limited,
		PlanLimit: 5,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	require.NoError(t, e.store.Entitlements().Create(context.Background(), ent))
	return ent
}

func (e *testEnv) seedOrderPlan(t *testing.T, limit int) *domain.Plan {
	t.Helper()
	p := &domain.Plan{
		ID:          domain.NewPlanID(),
		Name:        "Top-up",
		PlanType:    domain.PlanTypeOrder,
		Amount:      decimal.RequireFromString("199.00"),
		Currency:    "INR",
		IsLimited:   true,
		LimitNumber: &limit,
		Status:      domain.PlanStatusActive,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
	require.NoError(t, e.store.Plans().Create(context.Background(), p))
	return p
}

func (e *testEnv) seedSubscriptionPlan(t *testing.T, limit int, synced bool) *domain.Plan {
	t.Helper()
	intervals, cycles := 1, 12
	interval := domain.IntervalMonth
	recurring := decimal.RequireFromString("499.00")
	p := &domain.Plan{
		ID:              domain.NewPlanID(),
		Name:            "Monthly",
		PlanType:        domain.PlanTypeSubscription,
		Amount:          recurring,
		RecurringAmount: &recurring,
		MaxAmount:       &recurring,
		Currency:        "INR",
		IsLimited:       true,
		LimitNumber:     &limit,
		Intervals:       &intervals,
		IntervalType:    &interval,
		MaxCycles:       &cycles,
		Status:          domain.PlanStatusDraft,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
	if synced {
		ref := p.ID
		p.GatewayPlanID = &ref
		p.Status = domain.PlanStatusActive
	}
	require.NoError(t, e.store.Plans().Create(context.Background(), p))
	return p
}

func (e *testEnv) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := e.store.Users().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (e *testEnv) subscription(t *testing.T, id string) *domain.UserSubscription {
	t.Helper()
	s, err := e.store.Subscriptions().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

// deliver signs body with the mock secret and dispatches it.
func (e *testEnv) deliver(t *testing.T, body string) error {
	t.Helper()
	ts := "1710072000"
	return e.webhooks.Dispatch(context.Background(), Delivery{
		Body:      []byte(body),
		Signature: e.gateway.Sign(ts, []byte(body)),
		Timestamp: ts,
	})
}

var errInjected = errors.New("injected storage failure")

// faultyStore fails entitlement writes, inside and outside transactions.
type faultyStore struct {
	domain.Store
}

func (f *faultyStore) Entitlements() domain.EntitlementRepository {
	return faultyEntitlements{f.Store.Entitlements()}
}

func (f *faultyStore) WithTx(ctx context.Context, fn func(tx domain.Store) error) error {
	return f.Store.WithTx(ctx, func(tx domain.Store) error {
		return fn(&faultyStore{Store: tx})
	})
}

type faultyEntitlements struct {
	domain.EntitlementRepository
}

func (faultyEntitlements) Create(context.Context, *domain.Entitlement) error { return errInjected }
func (faultyEntitlements) Update(context.Context, *domain.Entitlement) error { return errInjected }
