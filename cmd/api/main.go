package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lingokit/backend/modules/billing"
	"github.com/lingokit/backend/modules/content"
	"github.com/lingokit/backend/pkg/clientip"
	"github.com/lingokit/backend/pkg/config"
	"github.com/lingokit/backend/pkg/httpserver"
	"github.com/lingokit/backend/pkg/identity"
	"github.com/lingokit/backend/pkg/logger"
	"github.com/lingokit/backend/pkg/pg"
	"github.com/lingokit/backend/pkg/ratelimiter"
	"github.com/lingokit/backend/pkg/redis"
	"github.com/lingokit/backend/pkg/requestid"
	"github.com/lingokit/backend/pkg/subscription"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	LimitsFile  string `env:"LIMITS_FILE"` // optional YAML plan overrides

	Postgres pg.Config
	Redis    redis.Config
	HTTP     httpserver.Config
	Stripe   subscription.StripeConfig
	Checkout subscription.CheckoutConfig
	Limits   subscription.Limits

	CheckoutBurst          int           `env:"CHECKOUT_RATE_BURST" envDefault:"5"`
	CheckoutRefillInterval time.Duration `env:"CHECKOUT_RATE_REFILL_INTERVAL" envDefault:"1m"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Environment, "lingokit-api"),
		logger.WithContextExtractors(requestid.LoggerExtractor()))
	logger.SetAsDefault(log)

	limits := cfg.Limits
	if cfg.LimitsFile != "" {
		var err error
		if limits, err = subscription.LoadLimitsFile(cfg.LimitsFile); err != nil {
			return fmt.Errorf("load plan limits: %w", err)
		}
	}

	pool, err := pg.Connect(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.Postgres, log); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	subStore := subscription.NewPostgresStore(pool)
	contentStore := content.NewPostgresStore(pool)

	gateway := subscription.NewStripeGateway(cfg.Stripe)
	engine := subscription.NewEngine(subStore, contentStore, limits,
		subscription.WithEngineLogger(log))
	checkout := subscription.NewCheckout(subStore, gateway, cfg.Checkout,
		subscription.WithCheckoutLogger(log))
	reconciler := subscription.NewReconciler(subStore,
		subscription.WithReconcilerLogger(log))

	checkoutLimiter, err := ratelimiter.NewBucket(
		ratelimiter.NewRedisStore(redisClient),
		ratelimiter.Config{
			Capacity:       cfg.CheckoutBurst,
			RefillRate:     cfg.CheckoutBurst,
			RefillInterval: cfg.CheckoutRefillInterval,
		})
	if err != nil {
		return fmt.Errorf("build checkout rate limiter: %w", err)
	}

	billingSvc := billing.NewService(engine, checkout, reconciler, gateway,
		billing.WithLogger(log),
		billing.WithCheckoutRateLimit(ratelimiter.Middleware(checkoutLimiter, principalKey)))
	contentSvc := content.NewService(contentStore, engine, cfg.Checkout.UpgradeURL,
		content.WithLogger(log))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)

	r.Get("/health", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool), redis.Healthcheck(redisClient)))
	r.Mount("/billing", billingSvc.Handle())
	r.Mount("/", contentSvc.Handle())

	log.InfoContext(ctx, "starting api server", "addr", cfg.HTTP.Addr)
	return httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log)).Run(ctx, r)
}

// principalKey buckets checkout attempts per authenticated user, falling
// back to the client IP for unauthenticated requests.
func principalKey(r *http.Request) string {
	if userID := r.Header.Get(identity.UserIDHeader); userID != "" {
		return "checkout:" + userID
	}
	return "checkout:" + clientip.GetIP(r)
}
