package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/sundayezeilo/linkstat/internal/analytics"
	"github.com/sundayezeilo/linkstat/internal/auth"
	"github.com/sundayezeilo/linkstat/internal/cache"
	"github.com/sundayezeilo/linkstat/internal/config"
	"github.com/sundayezeilo/linkstat/internal/db/migrations"
	db "github.com/sundayezeilo/linkstat/internal/db/sqlc"
	"github.com/sundayezeilo/linkstat/internal/httpx"
	"github.com/sundayezeilo/linkstat/internal/server"
	"github.com/sundayezeilo/linkstat/internal/shortener"
)

// App holds the application dependencies and configuration.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DBPool     *pgxpool.Pool
	Mongo      *mongo.Client
	Cache      cache.Cache
	Dispatcher *analytics.Dispatcher
	Limits     server.RateLimits
	Server     *server.Server
	Handler    *shortener.Handler
}

// New initializes and returns a new App instance with all dependencies wired up.
// Anything opened before a failure is closed again.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.App.LogLevel)

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"version", cfg.Observability.ServiceVersion,
	)

	a := &App{Config: cfg, Logger: logger}
	if err := a.wire(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if closeErr := a.Shutdown(closeCtx); closeErr != nil {
			logger.Error("cleanup after failed start", "error", closeErr)
		}
		return nil, err
	}

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	pool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DBPool = pool

	if cfg.Database.AutoMigrate {
		if err := runMigrations(cfg.Database.URL(), logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	mongoClient, err := analytics.ConnectMongo(ctx, cfg.Mongo, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	a.Mongo = mongoClient

	events := analytics.NewMongoEventStore(mongoClient.Database(cfg.Mongo.Database))
	if err := events.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create click indexes: %w", err)
	}

	// Falls back to a no-op cache when Redis is down.
	a.Cache = cache.Connect(ctx, cfg.Redis, logger)

	repo := shortener.NewRepository(db.New(pool), nil)

	recorder := analytics.NewRecorder(analytics.RecorderConfig{
		Events:      events,
		Counter:     repo,
		Cache:       a.Cache,
		Salt:        cfg.Analytics.IPHashSalt,
		StepTimeout: cfg.Analytics.StepTimeout,
		Logger:      logger,
	})
	a.Dispatcher = analytics.NewDispatcher(recorder, analytics.DispatcherConfig{
		Workers:   cfg.Analytics.Workers,
		QueueSize: cfg.Analytics.QueueSize,
		Logger:    logger,
	})

	svc := shortener.NewService(repo, &shortener.ServiceConfig{
		Cache:      a.Cache,
		Clicks:     events,
		Stats:      analytics.NewAggregator(events, nil),
		Dispatcher: a.Dispatcher,
		Logger:     logger,
	})
	a.Handler = shortener.NewHandler(shortener.HandlerConfig{
		Service:    svc,
		Logger:     logger,
		BaseURL:    cfg.Server.BaseURL,
		TrustProxy: cfg.Server.TrustProxy,
	})

	a.Limits = newRateLimits(cfg.RateLimit)
	authn := auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	a.Server = server.New(cfg, logger, a.Handler, authn, a.Limits)
	return nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown drains queued visits, then closes the stores in reverse order of
// opening. It is safe to call on a partially wired App.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var errs []error

	for _, rl := range []*httpx.RateLimiter{a.Limits.Redirect, a.Limits.API, a.Limits.Create} {
		if rl != nil {
			rl.Close()
		}
	}

	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain click dispatcher: %w", err))
		}
	}

	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}

	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		} else {
			a.Logger.Info("mongo connection closed")
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database connection closed")
	}

	return errors.Join(errs...)
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}

func runMigrations(databaseURL string, logger *slog.Logger) error {
	m, err := migrations.New(databaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close migrator", "error", err)
		}
	}()
	return m.Up()
}

// newRateLimits builds the per-IP limiters, or none when limiting is off.
func newRateLimits(cfg config.RateLimitConfig) server.RateLimits {
	if !cfg.Enabled {
		return server.RateLimits{}
	}
	return server.RateLimits{
		Redirect: httpx.NewRateLimiter(cfg.RedirectPerMinute, time.Minute),
		API:      httpx.NewRateLimiter(cfg.APIPer15Minutes, 15*time.Minute),
		Create:   httpx.NewRateLimiter(cfg.CreatePerHour, time.Hour),
	}
}
