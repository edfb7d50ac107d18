package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/memora-app/memora/internal/app"
	"github.com/memora-app/memora/internal/auth"
	"github.com/memora-app/memora/internal/observability"
	"github.com/memora-app/memora/internal/platform/db"
	"github.com/memora-app/memora/internal/quota"
	"github.com/memora-app/memora/internal/users"
	"github.com/memora-app/memora/jobs"
	"github.com/memora-app/memora/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := runMigrations(ctx, cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGQueryTimeout)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}

	sessionRepo := auth.NewSessionRepository(pool)
	sessionStore, err := auth.NewSessionStore(sessionRepo, cfg.LookupSecret, cfg.RefreshTTL)
	if err != nil {
		logger.Error("init session store", slog.Any("error", err))
		os.Exit(1)
	}

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	authService := auth.NewService(usersService, sessionStore, issuer, jobsClient)

	metrics := observability.NewMetrics()
	requireAuth := auth.RequireAuth(issuer, metrics)

	var googleVerifier auth.GoogleVerifier
	if cfg.GoogleClientID != "" {
		googleVerifier = auth.NewGoogleTokenVerifier(cfg.GoogleClientID, http.DefaultClient)
	}

	authHandler := auth.NewHandler(logger, authService, auth.HandlerConfig{
		CookieSecure:    cfg.IsProduction(),
		RefreshTTL:      cfg.RefreshTTL,
		CredentialLimit: app.CredentialRateLimit(),
	}, requireAuth, googleVerifier, metrics)

	quotaRepo := quota.NewRepository(pool)
	limitsCache := quota.NewLimitsCache(redisClient, quotaRepo, cfg.TierCacheTTL)
	enforcer := quota.NewEnforcer(quotaRepo, limitsCache)
	gate := quota.NewGate(logger, enforcer, metrics)
	usageHandler := quota.NewHandler(logger, enforcer)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		UsageHandler: usageHandler,
		RequireAuth:  requireAuth,
		Gate:         gate,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runMigrations(ctx context.Context, dsn string) error {
	migrationDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() {
		_ = migrationDB.Close()
	}()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, migrationDB, ".")
}
