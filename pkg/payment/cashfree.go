package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CashfreeSandboxURL    = "https://sandbox.cashfree.com/pg"
	CashfreeProductionURL = "https://api.cashfree.com/pg"
)

// CashfreeConfig configures a Cashfree client.
type CashfreeConfig struct {
	AppID       string
	SecretKey   string
	Environment string // sandbox or production
	APIVersion  string
	BaseURL     string // overrides Environment when set
	Timeout     time.Duration
}

// CashfreeClient talks to the Cashfree PG and subscription REST APIs.
type CashfreeClient struct {
	appID      string
	secretKey  string
	apiVersion string
	baseURL    string
	httpClient *http.Client
}

// NewCashfreeClient creates a client. Every call is bounded by cfg.Timeout.
func NewCashfreeClient(cfg CashfreeConfig) *CashfreeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = CashfreeSandboxURL
		if cfg.Environment == "production" {
			baseURL = CashfreeProductionURL
		}
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2025-01-01"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CashfreeClient{
		appID:      cfg.AppID,
		secretKey:  cfg.SecretKey,
		apiVersion: apiVersion,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type cfCustomer struct {
	CustomerID    string `json:"customer_id,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
}

func toCFCustomer(c Customer) cfCustomer {
	return cfCustomer{
		CustomerID:    c.ID,
		CustomerEmail: c.Email,
		CustomerPhone: c.Phone,
		CustomerName:  c.Name,
	}
}

// CreateOrder calls POST /orders.
func (c *CashfreeClient) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	body := map[string]interface{}{
		"order_id":         req.OrderID,
		"order_amount":     num(req.Amount),
		"order_currency":   req.Currency,
		"customer_details": toCFCustomer(req.Customer),
		"order_meta":       map[string]string{"return_url": req.ReturnURL},
		"order_note":       req.Note,
	}
	var resp struct {
		CFOrderID        Ref    `json:"cf_order_id"`
		OrderID          string `json:"order_id"`
		PaymentSessionID string `json:"payment_session_id"`
		OrderStatus      string `json:"order_status"`
	}
	if err := c.do(ctx, "create order", "/orders", body, &resp); err != nil {
		return nil, err
	}
	if resp.PaymentSessionID == "" {
		return nil, fmt.Errorf("create order failed: response has no payment_session_id")
	}
	return &OrderResult{
		GatewayOrderID:   resp.OrderID,
		PaymentSessionID: resp.PaymentSessionID,
		Status:           resp.OrderStatus,
	}, nil
}

// CreatePlan calls POST /plans with a PERIODIC plan.
func (c *CashfreeClient) CreatePlan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	body := map[string]interface{}{
		"plan_id":               req.PlanID,
		"plan_name":             req.Name,
		"plan_type":             "PERIODIC",
		"plan_currency":         req.Currency,
		"plan_recurring_amount": num(req.RecurringAmount),
		"plan_max_amount":       num(req.MaxAmount),
		"plan_max_cycles":       req.MaxCycles,
		"plan_intervals":        req.Intervals,
		"plan_interval_type":    req.IntervalType,
		"plan_note":             req.Note,
	}
	var resp struct {
		PlanID     string `json:"plan_id"`
		PlanStatus string `json:"plan_status"`
	}
	if err := c.do(ctx, "create plan", "/plans", body, &resp); err != nil {
		return nil, err
	}
	if resp.PlanID == "" {
		resp.PlanID = req.PlanID
	}
	return &PlanResult{PlanID: resp.PlanID, Status: resp.PlanStatus}, nil
}

// CreateSubscription calls POST /subscriptions.
func (c *CashfreeClient) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error) {
	plan := map[string]interface{}{
		"plan_id":            req.Plan.PlanID,
		"plan_name":          req.Plan.Name,
		"plan_type":          "PERIODIC",
		"plan_amount":        num(req.Plan.Amount),
		"plan_currency":      req.Plan.Currency,
		"plan_max_cycles":    req.Plan.MaxCycles,
		"plan_intervals":     req.Plan.Intervals,
		"plan_interval_type": req.Plan.IntervalType,
	}
	if req.Plan.MaxAmount != nil {
		plan["plan_max_amount"] = num(*req.Plan.MaxAmount)
	}
	body := map[string]interface{}{
		"subscription_id":   req.SubscriptionID,
		"plan_details":      plan,
		"customer_details":  toCFCustomer(req.Customer),
		"subscription_note": req.Note,
		"subscription_meta": map[string]string{"return_url": req.ReturnURL},
	}

	var resp struct {
		CFSubscriptionID      Ref    `json:"cf_subscription_id"`
		SubscriptionID        string `json:"subscription_id"`
		SubscriptionSessionID string `json:"subscription_session_id"`
		SubscriptionStatus    string `json:"subscription_status"`
	}
	if err := c.do(ctx, "create subscription", "/subscriptions", body, &resp); err != nil {
		return nil, err
	}
	if resp.CFSubscriptionID == "" {
		return nil, fmt.Errorf("create subscription failed: response has no cf_subscription_id")
	}
	return &SubscriptionResult{
		GatewaySubscriptionID: string(resp.CFSubscriptionID),
		SessionID:             resp.SubscriptionSessionID,
		Status:                resp.SubscriptionStatus,
	}, nil
}

// VerifyWebhookSignature checks x-webhook-signature against the client secret.
func (c *CashfreeClient) VerifyWebhookSignature(signature string, rawBody []byte, timestamp string) bool {
	return VerifyWebhook(c.secretKey, signature, timestamp, rawBody)
}

func (c *CashfreeClient) do(ctx context.Context, op, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)
	req.Header.Set("x-api-version", c.apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Operation: op, StatusCode: resp.StatusCode}
		var e struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if json.Unmarshal(body, &e) == nil {
			apiErr.Message, apiErr.Code = e.Message, e.Code
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// num renders an amount as a JSON number.
func num(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
