package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Openverse-iiitk/mess-rating/internal/auth"
	"github.com/Openverse-iiitk/mess-rating/internal/config"
	"github.com/Openverse-iiitk/mess-rating/internal/event"
	handler "github.com/Openverse-iiitk/mess-rating/internal/handler/http"
	"github.com/Openverse-iiitk/mess-rating/internal/menu"
	"github.com/Openverse-iiitk/mess-rating/internal/repository"
	"github.com/Openverse-iiitk/mess-rating/internal/repository/postgres"
	rediscache "github.com/Openverse-iiitk/mess-rating/internal/repository/redis"
	"github.com/Openverse-iiitk/mess-rating/internal/service"
	"github.com/Openverse-iiitk/mess-rating/migrations"
	"github.com/Openverse-iiitk/mess-rating/pkg/database"
	"github.com/Openverse-iiitk/mess-rating/pkg/health"
	"github.com/Openverse-iiitk/mess-rating/pkg/httpclient"
	pkgkafka "github.com/Openverse-iiitk/mess-rating/pkg/kafka"
	"github.com/Openverse-iiitk/mess-rating/pkg/middleware"
	"github.com/Openverse-iiitk/mess-rating/pkg/tracing"
)

const (
	serviceName      = "mess-rating"
	rateLimiterIdle  = 10 * time.Minute
	startupTimeout   = 30 * time.Second
	identityProvider = "google-identity"
)

// App wires together all dependencies and runs the mess rating service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	identity       *service.IdentityService
	limiter        *middleware.RateLimiter
	tracerShutdown tracing.ShutdownFunc
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Anything opened below is released if startup fails.
	var cleanup cleanupStack
	fail := func(err error) (*App, error) {
		cleanup.unwind()
		return nil, err
	}
	cleanup.push(func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown after failed startup", slog.String("error", err.Error()))
		}
	})

	database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return fail(fmt.Errorf("connect to postgres: %w", err))
	}
	cleanup.push(pool.Close)
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return fail(fmt.Errorf("run migrations: %w", err))
	}
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// The aggregate cache is optional; without Redis every read hits Postgres.
	var (
		redisClient *redis.Client
		cache       repository.AggregateCache
	)
	if cfg.RedisEnabled {
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis unavailable, aggregate cache disabled",
				slog.String("addr", cfg.Redis().Addr()),
				slog.String("error", err.Error()),
			)
		} else {
			cleanup.push(func() { _ = redisClient.Close() })
			cache = rediscache.NewAggregateCache(redisClient, cfg.AggregateCacheTTL)
			logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		}
	}

	// Kafka is opt-in. Events are best-effort either way.
	var (
		producer     *pkgkafka.Producer
		ratingEvents service.RatingEvents
		signInEvents service.IdentityEvents
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		cleanup.push(func() { _ = producer.Close() })
		events := event.NewProducer(producer, logger)
		ratingEvents, signInEvents = events, events
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	weekMenu, err := menu.Load()
	if err != nil {
		return fail(fmt.Errorf("load menu: %w", err))
	}

	// Identity provider client.
	googleClient := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig(identityProvider),
		logger,
	)
	verifier := auth.NewGoogleVerifier(auth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		TokenInfoURL: cfg.GoogleTokenInfoURL,
		TokenURL:     cfg.GoogleTokenURL,
	}, googleClient, logger)
	sessions := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)

	// Build the dependency graph.
	ratingRepo := postgres.NewRatingRepository(pool)
	profileRepo := postgres.NewProfileRepository(pool)
	ratingOpts := service.RatingOptions{
		RejectResubmit: cfg.RatingWriteOnce,
		EnforceWindow:  cfg.EnforceMealWindow,
	}
	if cfg.RequireMenuDish {
		ratingOpts.Menu = weekMenu
	}
	ratingService := service.NewRatingService(ratingRepo, cache, ratingEvents, logger, ratingOpts)
	identityService := service.NewIdentityService(verifier, sessions, profileRepo, signInEvents, logger)

	// Health checks.
	healthHandler := health.NewHandler(cfg.HealthCheckTimeout)
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimiterIdle, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Ratings:         handler.NewRatingHandler(ratingService, logger),
		Auth:            handler.NewAuthHandler(identityService, sessions.TTL(), cfg.CookieSecure, logger),
		Menu:            handler.NewMenuHandler(weekMenu),
		Health:          healthHandler,
		Sessions:        sessions.TokenValidator(),
		SessionCookie:   auth.SessionCookie,
		RateLimiter:     limiter,
		CORS:            corsCfg,
		MenuCacheMaxAge: cfg.MenuCacheMaxAgeSecs,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		identity:       identityService,
		limiter:        limiter,
		tracerShutdown: tracerShutdown,
		httpServer:     httpServer,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	defer stopLimiter()
	go a.limiter.Run(limiterCtx)

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components: HTTP first, then pending
// profile writes, then the tracer and the data stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if err := a.identity.Wait(shutdownCtx); err != nil {
		a.logger.Error("pending profile writes abandoned", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
