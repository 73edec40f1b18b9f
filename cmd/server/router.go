package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/handler"
	"github.com/aiagenz/billing/internal/metrics"
	appMiddleware "github.com/aiagenz/billing/internal/middleware"
	"github.com/aiagenz/billing/internal/service"
	"github.com/aiagenz/billing/pkg/capability"
)

// app holds the wired services the router serves.
type app struct {
	store          domain.Store
	redis          *redis.Client
	corsOrigins    []string
	auth           *service.AuthService
	guard          *service.GuardService
	plans          *service.PlanService
	checkout       *service.CheckoutService
	webhooks       *service.WebhookService
	stats          *service.StatsService
	capability     capability.Runner
	requestTimeout time.Duration
}

// newRouter builds the HTTP routes. The returned func releases the rate
// limiters.
func newRouter(a *app) (http.Handler, func()) {
	authHandler := handler.NewAuthHandler(a.auth)
	userHandler := handler.NewUserHandler(a.auth)
	healthHandler := handler.NewHealthHandler(a.store, a.redis)
	plansHandler := handler.NewPlansHandler(a.plans)
	paymentHandler := handler.NewPaymentHandler(a.checkout)
	webhookHandler := handler.NewWebhookHandler(a.webhooks)
	capabilityHandler := handler.NewCapabilityHandler(a.guard, a.capability)
	adminHandler := handler.NewAdminHandler(a.stats, a.webhooks)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(appMiddleware.Recovery)
	r.Use(appMiddleware.Logger)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "x-webhook-signature", "x-webhook-timestamp"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if a.requestTimeout > 0 {
		r.Use(chimw.Timeout(a.requestTimeout))
	}

	// 20 req/sec per IP, burst of 40
	globalRL := appMiddleware.NewRateLimiter("global", 20, 40)
	loginRL := appMiddleware.NewRateLimiter("login", 1, 5)
	r.Use(globalRL.Middleware())

	r.Get("/health", healthHandler.Check)
	r.Get("/ping", healthHandler.Ping)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/api/plans", plansHandler.List)
	r.Get("/api/plans/{id}", plansHandler.Get)
	r.Post("/api/webhooks/cashfree", webhookHandler.Cashfree)
	r.Post("/api/users/signup", authHandler.Signup)

	r.Group(func(r chi.Router) {
		r.Use(loginRL.Middleware())
		r.Post("/api/auth/login", authHandler.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(a.auth))

		r.Get("/api/auth/me", authHandler.Me)
		r.Patch("/api/users/me", userHandler.UpdateMe)

		r.Post("/api/payment/order", paymentHandler.CreateOrder)
		r.Post("/api/payment/subscription", paymentHandler.CreateSubscription)
		r.Get("/api/payment/subscriptions", paymentHandler.ListSubscriptions)

		r.With(appMiddleware.RequireEntitlement(a.guard)).
			Post("/api/ai/redesign-room", capabilityHandler.RedesignRoom)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.AdminOnly)
			r.Post("/api/plans", plansHandler.Create)
			r.Get("/api/users", userHandler.List)
			r.Post("/api/users", userHandler.Create)
			r.Delete("/api/users/{id}", userHandler.Delete)
			r.Get("/api/admin/stats", adminHandler.GetStats)
			r.Get("/api/admin/webhook-events", adminHandler.WebhookEvents)
		})
	})

	return r, func() {
		globalRL.Close()
		loginRL.Close()
	}
}
