package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aiagenz/billing/internal/cache"
	"github.com/aiagenz/billing/internal/config"
	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/logger"
	"github.com/aiagenz/billing/internal/metrics"
	"github.com/aiagenz/billing/internal/repository"
	"github.com/aiagenz/billing/internal/repository/memstore"
	"github.com/aiagenz/billing/internal/service"
	"github.com/aiagenz/billing/internal/worker"
	"github.com/aiagenz/billing/pkg/capability"
	"github.com/aiagenz/billing/pkg/crypto"
	"github.com/aiagenz/billing/pkg/payment"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long:  `Connect to the database, apply pending migrations when AUTO_MIGRATE is set, and serve the API until SIGINT or SIGTERM.`,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger.Setup(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	lg := logger.Component("server")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption error: %w", err)
	}

	var (
		rdb       *redis.Client
		planCache cache.PlanCache
	)
	if cfg.RedisURL != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis error: %w", err)
		}
		defer rdb.Close()
		planCache = cache.NewRedisPlanCache(rdb, cfg.PlanCacheTTL, logger.Component("plan-cache"))
		lg.Info().Msg("plan cache enabled")
	}

	gateway := metrics.InstrumentGateway(newGateway(cfg))

	authSvc := service.NewAuthService(service.AuthConfig{
		JWTSecret:        cfg.JWTSecret,
		AdminEmail:       cfg.AdminEmail,
		AdminPassword:    cfg.AdminPassword,
		DefaultFreeTrial: cfg.DefaultFreeTrial,
	}, store)
	if err := authSvc.SeedAdmin(ctx); err != nil {
		return fmt.Errorf("admin seed error: %w", err)
	}

	activationSvc := service.NewActivationService(store)
	revocationSvc := service.NewRevocationService(store)
	a := &app{
		store:          store,
		redis:          rdb,
		corsOrigins:    cfg.CORSOrigins,
		auth:           authSvc,
		guard:          service.NewGuardService(store),
		plans:          service.NewPlanService(store, gateway, planCache),
		checkout:       service.NewCheckoutService(store, gateway, cfg.PaymentReturnURL),
		webhooks:       service.NewWebhookService(store, gateway, enc, activationSvc, revocationSvc),
		stats:          service.NewStatsService(store),
		capability:     capability.NewClient(cfg.CapabilityURL, cfg.CapabilityTimeout),
		requestTimeout: cfg.CapabilityTimeout + 10*time.Second,
	}

	retention, err := worker.NewRetention(store.WebhookEvents(), cfg.WebhookRetention, cfg.WebhookPruneSchedule)
	if err != nil {
		return err
	}
	if err := retention.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		retention.Stop(stopCtx)
	}()

	router, closeRouter := newRouter(a)
	defer closeRouter()

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: a.requestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", addr).Str("gateway", cfg.PaymentGateway).Msg("billing server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	lg.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// openStore selects the in-process store for memory:// URLs and Postgres
// otherwise.
func openStore(ctx context.Context, cfg *config.Config) (domain.Store, func(), error) {
	if cfg.InMemory() {
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migration error: %w", err)
		}
	}
	pool, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database error: %w", err)
	}
	log.Info().Bool("migrated", cfg.AutoMigrate).Msg("database connected")
	return repository.NewStore(pool), pool.Close, nil
}

func newGateway(cfg *config.Config) payment.Gateway {
	if cfg.PaymentGateway == "mock" {
		log.Warn().Msg("using mock payment gateway")
		secret := cfg.CashfreeSecretKey
		if secret == "" {
			secret = randomSecret()
			log.Warn().Msg("CASHFREE_SECRET_KEY not set, mock webhooks are signed with a random per-process secret")
		}
		return payment.NewMockGateway(secret)
	}
	return payment.NewCashfreeClient(payment.CashfreeConfig{
		AppID:       cfg.CashfreeAppID,
		SecretKey:   cfg.CashfreeSecretKey,
		Environment: cfg.CashfreeEnvironment,
		APIVersion:  cfg.CashfreeAPIVersion,
		Timeout:     cfg.GatewayTimeout,
	})
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
