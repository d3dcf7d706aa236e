// Package app wires the checkout API process.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/xenking/pos-checkout/internal/cache"
	"github.com/xenking/pos-checkout/internal/domain/pricing"
	"github.com/xenking/pos-checkout/internal/events"
	"github.com/xenking/pos-checkout/internal/handler"
	"github.com/xenking/pos-checkout/internal/repository"
	"github.com/xenking/pos-checkout/pkg/health"
	"github.com/xenking/pos-checkout/pkg/httpmiddleware"
)

const serviceName = "pos-checkout"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	rounding, err := pricing.ParseRoundingMode(cfg.Pricing.TaxRounding)
	if err != nil {
		return errors.Wrap(err, "tax rounding")
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	version, err := repository.Migrate(pool)
	if err != nil {
		return errors.Wrap(err, "run migrations")
	}
	lg.Info("Schema migrated", zap.Uint("version", version))

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Optional Redis: tax rate cache and shared rate limit counters.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = newRedis(cfg.Redis, m)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.RedisCheck(rdb))
	}

	// Optional AMQP publisher.
	var publisher pricing.Publisher = events.Nop{}
	if cfg.AMQP.URL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return errors.Wrap(err, "connect amqp")
		}
		defer func() { _ = amqpPub.Close() }()
		publisher = amqpPub
		lg.Info("Publishing order events", zap.String("exchange", cfg.AMQP.Exchange))
	}

	// Previews read the tax rate through the cache; commits use the
	// transaction's own stores.
	reads := repository.NewStores(pool)
	reads.Taxes = cache.NewTaxRates(rdb, reads.Taxes, cfg.Redis.TTL)

	checkout, err := pricing.NewService(reads, repository.NewTransactor(pool), pricing.Config{
		Rounding:  rounding,
		Publisher: publisher,
		Tracer:    m.TracerProvider().Tracer(serviceName),
		Meter:     m.MeterProvider().Meter(serviceName),
	})
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	authn := handler.NewAuthenticator(repository.NewAPIKeyRepository(pool), []byte(cfg.APIKeyPepper))
	h := handler.NewHandler(reads.Catalog, checkout, authn)

	limiterStore, err := newLimiterStore(rdb)
	if err != nil {
		return errors.Wrap(err, "create rate limit store")
	}

	router := httpmiddleware.NewRouter()
	healthSvc.Register(router)
	h.Register(router)
	routeFinder := httpmiddleware.ChiRouteFinder(router)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type", "Authorization", handler.APIKeyHeader,
					handler.IdempotencyKeyHeader, httpmiddleware.RequestIDHeader,
				},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Store:  limiterStore,
			}),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRedis connects to Redis and instruments the client. addr is either
// host:port or a redis:// URL.
func newRedis(cfg RedisConfig, m *app.Telemetry) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if strings.Contains(cfg.Addr, "://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb, redisotel.WithTracerProvider(m.TracerProvider())); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(rdb, redisotel.WithMeterProvider(m.MeterProvider())); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "instrument redis metrics")
	}
	return rdb, nil
}

// newLimiterStore shares rate limit counters through Redis when available.
func newLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	if rdb == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          serviceName,
			CleanUpInterval: time.Minute,
		}), nil
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: serviceName + ":ratelimit"})
}
