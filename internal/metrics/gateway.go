package metrics

import (
	"context"
	"time"

	"github.com/aiagenz/billing/pkg/payment"
)

// InstrumentedGateway records call durations of the wrapped gateway.
type InstrumentedGateway struct {
	next payment.Gateway
}

// InstrumentGateway wraps gw with duration metrics.
func InstrumentGateway(gw payment.Gateway) *InstrumentedGateway {
	return &InstrumentedGateway{next: gw}
}

func (g *InstrumentedGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.OrderResult, error) {
	start := time.Now()
	res, err := g.next.CreateOrder(ctx, req)
	RecordGatewayCall("create_order", err, time.Since(start))
	return res, err
}

func (g *InstrumentedGateway) CreateSubscription(ctx context.Context, req payment.SubscriptionRequest) (*payment.SubscriptionResult, error) {
	start := time.Now()
	res, err := g.next.CreateSubscription(ctx, req)
	RecordGatewayCall("create_subscription", err, time.Since(start))
	return res, err
}

func (g *InstrumentedGateway) CreatePlan(ctx context.Context, req payment.PlanRequest) (*payment.PlanResult, error) {
	start := time.Now()
	res, err := g.next.CreatePlan(ctx, req)
	RecordGatewayCall("create_plan", err, time.Since(start))
	return res, err
}

func (g *InstrumentedGateway) VerifyWebhookSignature(signature string, rawBody []byte, timestamp string) bool {
	return g.next.VerifyWebhookSignature(signature, rawBody, timestamp)
}
