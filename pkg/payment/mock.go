package payment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockGateway is an in-process gateway for development and tests.
// Webhooks are signed and verified with Secret using the Cashfree scheme.
type MockGateway struct {
	Secret string

	mu            sync.Mutex
	err           error
	orders        []OrderRequest
	plans         []PlanRequest
	subscriptions []SubscriptionRequest
	seq           atomic.Int64
}

// NewMockGateway creates a mock that signs webhooks with secret.
func NewMockGateway(secret string) *MockGateway {
	return &MockGateway{Secret: secret}
}

// FailWith makes every subsequent remote call return err. Nil restores success.
func (g *MockGateway) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *MockGateway) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(ctx); err != nil {
		return nil, err
	}
	g.orders = append(g.orders, req)
	return &OrderResult{
		GatewayOrderID:   req.OrderID,
		PaymentSessionID: fmt.Sprintf("session_%s", req.OrderID),
		Status:           "ACTIVE",
	}, nil
}

func (g *MockGateway) CreatePlan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(ctx); err != nil {
		return nil, err
	}
	g.plans = append(g.plans, req)
	return &PlanResult{PlanID: req.PlanID, Status: "ACTIVE"}, nil
}

func (g *MockGateway) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail(ctx); err != nil {
		return nil, err
	}
	g.subscriptions = append(g.subscriptions, req)
	return &SubscriptionResult{
		GatewaySubscriptionID: fmt.Sprintf("%d", 900000+g.seq.Add(1)),
		SessionID:             fmt.Sprintf("sub_session_%s", req.SubscriptionID),
		Status:                "INITIALIZED",
	}, nil
}

func (g *MockGateway) VerifyWebhookSignature(signature string, rawBody []byte, timestamp string) bool {
	return VerifyWebhook(g.Secret, signature, timestamp, rawBody)
}

// Sign returns the signature the mock accepts for body at timestamp.
func (g *MockGateway) Sign(timestamp string, body []byte) string {
	return SignWebhook(g.Secret, timestamp, body)
}

// Orders returns the orders created so far.
func (g *MockGateway) Orders() []OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]OrderRequest(nil), g.orders...)
}

// Plans returns the plans created so far.
func (g *MockGateway) Plans() []PlanRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PlanRequest(nil), g.plans...)
}

// Subscriptions returns the subscriptions created so far.
func (g *MockGateway) Subscriptions() []SubscriptionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SubscriptionRequest(nil), g.subscriptions...)
}

func (g *MockGateway) fail(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.err
}
