package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sage-warehouse/internal/cache"
	"github.com/xenking/sage-warehouse/internal/domain/address"
	"github.com/xenking/sage-warehouse/internal/domain/auth"
	"github.com/xenking/sage-warehouse/internal/domain/order"
	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/domain/review"
	"github.com/xenking/sage-warehouse/internal/domain/user"
	"github.com/xenking/sage-warehouse/internal/handler"
	"github.com/xenking/sage-warehouse/internal/outbox"
	"github.com/xenking/sage-warehouse/internal/repository"
	"github.com/xenking/sage-warehouse/internal/validate"
	"github.com/xenking/sage-warehouse/pkg/health"
	"github.com/xenking/sage-warehouse/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the outbox relay,
// and handles graceful shutdown. It is the single wiring point for the
// application. In production m is the *app.Telemetry of go-faster/sdk.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	txm := repository.NewTxManager(pool)
	productRepo := repository.NewProductRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	addressRepo := repository.NewAddressRepository(pool)
	reviewRepo := repository.NewReviewRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool)

	// Optional Redis: product cache and shared rate limiting.
	var (
		products    product.Repository = productRepo
		invalidator product.Invalidator
		limiter     httpmiddleware.Limiter
	)
	if cfg.RedisEnabled() {
		rdb, err := newRedisClient(cfg.Redis)
		if err != nil {
			return errors.Wrap(err, "create redis client")
		}
		defer func() { _ = rdb.Close() }()

		cached := cache.NewProducts(productRepo, rdb, cache.Options{
			TTL:    cfg.Redis.CacheTTL,
			Jitter: cfg.Redis.CacheTTL / 10,
		})
		products, invalidator = cached, cached
		limiter = httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		healthSvc.Add(health.Check{
			Name:    "redis",
			Kind:    health.Dependency,
			Timeout: 2 * time.Second,
			Func:    health.RedisCheck(rdb),
		})
		lg.Info("Redis enabled", zap.Duration("cache_ttl", cfg.Redis.CacheTTL))
	}

	// Domain services.
	v := validate.New()
	orderMetrics, err := order.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "order metrics")
	}
	// Stock checks bypass the cache: a stale entry would reject or admit
	// orders against stock the database no longer holds.
	assembler := order.NewAssembler(productRepo, v, order.AssemblerOptions{
		StrictPricing:  cfg.Orders.StrictPricing,
		TracerProvider: m.TracerProvider(),
	})
	orderOpts := []order.Option{order.WithMetrics(orderMetrics)}
	if invalidator != nil {
		orderOpts = append(orderOpts, order.WithCache(invalidator))
	}
	orderSvc := order.NewService(assembler, orderRepo, userRepo, productRepo, txm, outboxRepo, orderOpts...)

	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TTL)
	if err != nil {
		return errors.Wrap(err, "create token issuer")
	}

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		handler.Services{
			Orders:    orderSvc,
			Products:  product.NewService(products, productRepo, invalidator),
			Users:     user.NewService(userRepo, products, v),
			Addresses: address.NewService(addressRepo, txm, v),
			Reviews:   review.NewService(reviewRepo, products, productRepo, txm, v, invalidator),
			Auth:      auth.NewService(userRepo, tokens, v),
		},
	)

	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Get("/healthz", healthSvc.StatusEndpoint)
	root.Mount("/", h.Routes())

	g, gctx := errgroup.WithContext(ctx)

	if limiter == nil {
		mem := httpmiddleware.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		limiter = mem
		g.Go(func() error {
			mem.Run(gctx)
			return nil
		})
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(root,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				Limiter: limiter,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.RouteContext(),
			httpmiddleware.Instrument("sage-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	// Outbox relay: publish order events when a broker is configured.
	if len(cfg.Kafka.Brokers) > 0 {
		pub := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		relay := outbox.NewRelay(outboxRepo, pub, txm, outbox.Config{
			Interval:  cfg.Kafka.PollInterval,
			BatchSize: cfg.Kafka.BatchSize,
		}, lg.Named("outbox"))

		lg.Info("Outbox relay enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
		g.Go(func() error {
			return errors.Wrap(relay.Run(gctx), "outbox relay")
		})
	} else {
		lg.Warn("No Kafka brokers configured, order events stay in the outbox")
	}

	healthSvc.Start(gctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
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
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func newRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
