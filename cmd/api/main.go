package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/sbp-gateway/internal/config"
	"github.com/josh-kwaku/sbp-gateway/internal/domain"
	"github.com/josh-kwaku/sbp-gateway/internal/handler"
	"github.com/josh-kwaku/sbp-gateway/internal/logging"
	"github.com/josh-kwaku/sbp-gateway/internal/metrics"
	"github.com/josh-kwaku/sbp-gateway/internal/middleware"
	"github.com/josh-kwaku/sbp-gateway/internal/repository"
	"github.com/josh-kwaku/sbp-gateway/internal/service"
	"github.com/josh-kwaku/sbp-gateway/migrations"
)

type orderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	AttachCharge(ctx context.Context, id int64, paymentID, checkoutURL string) error
	Transition(ctx context.Context, id int64, status domain.OrderStatus, note string) error
}

type merchantStore interface {
	GetByID(ctx context.Context, id string) (*domain.Merchant, error)
	Upsert(ctx context.Context, m *domain.Merchant) error
	UpdateSettings(ctx context.Context, m *domain.Merchant) error
}

type noteStore interface {
	GetByOrderID(ctx context.Context, orderID int64) ([]domain.OrderNote, error)
}

type deliveryGuard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("sbp-gateway", cfg.LogLevel, cfg.AppEnv)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.HealthCheck{}

	var (
		orders    orderStore
		merchants merchantStore
		notes     noteStore
	)
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store; orders are lost on restart")
		mem := repository.NewMemory()
		orders, merchants, notes = mem.Orders, mem.Merchants, mem.Notes
	} else {
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.Pool())
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if cfg.AutoMigrate {
			if err := migrations.Apply(ctx, db); err != nil {
				slog.Error("failed to apply migrations", "error", err)
				os.Exit(1)
			}
		}

		orders = repository.NewOrderRepository(db)
		merchants = repository.NewMerchantRepository(db)
		notes = repository.NewOrderNoteRepository(db)
		checks["database"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	}

	var guard deliveryGuard
	if cfg.RedisURL == "" {
		guard = repository.NewMemoryDeliveryGuard(cfg.WebhookDedupeTTL)
	} else {
		rdb, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		guard = repository.NewRedisDeliveryGuard(rdb, cfg.WebhookDedupeTTL)
		checks["redis"] = redisCheck(rdb)
	}

	if cfg.MerchantsFile != "" {
		if err := seedMerchants(ctx, merchants, cfg.MerchantsFile); err != nil {
			slog.Error("failed to seed merchants", "error", err)
			os.Exit(1)
		}
	}

	provider := service.NewProviderClient(cfg.ProviderURL, cfg.WebhookCallbackURL, cfg.ProviderTimeout)
	checkoutSvc := service.NewCheckoutService(orders, merchants, provider, cfg.ProviderTimeout)
	reconciler := service.NewReconciler(orders, merchants, guard)

	healthHandler := handler.NewHealthHandler(checks)
	checkoutHandler := handler.NewCheckoutHandler(checkoutSvc)
	webhookHandler := handler.NewWebhookHandler(reconciler, cfg.SignatureHeader)
	authHandler := handler.NewAuthHandler(merchants, cfg.JWTSecret, cfg.JWTExpiry)
	merchantHandler := handler.NewMerchantHandler(merchants)
	orderHandler := handler.NewOrderHandler(orders, notes)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	gatewayLimit := limiter.Middleware(handler.GatewayRateLimited)
	adminLimit := limiter.Middleware(handler.RateLimited)
	gateway := func(h http.HandlerFunc) http.Handler { return gatewayLimit(h) }
	public := func(h http.HandlerFunc) http.Handler { return adminLimit(h) }
	authMW := middleware.Auth(cfg.JWTSecret)
	protected := func(h http.HandlerFunc) http.Handler { return authMW(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/v1/orders/{id}/checkout", gateway(checkoutHandler.Checkout))
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		mux.Handle(method+" /swiss-bitcoin-pay/v1/payment_complete/{orderId}", gateway(webhookHandler.PaymentComplete))
	}
	mux.Handle("POST /api/v1/auth/login", public(authHandler.Login))
	mux.Handle("GET /api/v1/merchants/{id}/payment-method", public(merchantHandler.PaymentMethod))

	mux.Handle("GET /api/v1/merchants/{id}/settings", protected(merchantHandler.GetSettings))
	mux.Handle("PUT /api/v1/merchants/{id}/settings", protected(merchantHandler.UpdateSettings))
	mux.Handle("POST /api/v1/merchants/{id}/orders", protected(orderHandler.Create))
	mux.Handle("GET /api/v1/merchants/{id}/orders/{orderId}", protected(orderHandler.Get))

	var h http.Handler = mux
	h = middleware.Recovery(h)
	h = middleware.Logging(h)
	h = middleware.Tracing(h)
	h = otelhttp.NewHandler(h, "sbp-gateway")

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "provider", cfg.ProviderURL, "callback", cfg.WebhookCallbackURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func seedMerchants(ctx context.Context, store merchantStore, path string) error {
	seed, err := config.LoadMerchants(path)
	if err != nil {
		return err
	}
	for _, m := range seed {
		if err := store.Upsert(ctx, m); err != nil {
			return fmt.Errorf("seed merchant %q: %w", m.ID, err)
		}
		for _, w := range m.Warnings() {
			slog.Warn("merchant settings incomplete", "merchant_id", m.ID, "warning", w)
		}
	}
	slog.Info("merchants seeded", "count", len(seed), "file", path)
	return nil
}

func redisCheck(rdb *redis.Client) handler.HealthCheck {
	return func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
}

