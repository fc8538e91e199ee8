package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/calypso-pos/calypso-pos/internal/app"
	"github.com/calypso-pos/calypso-pos/internal/catalog"
	"github.com/calypso-pos/calypso-pos/internal/checkout"
	"github.com/calypso-pos/calypso-pos/internal/dashboard"
	"github.com/calypso-pos/calypso-pos/internal/platform/docstore"
	"github.com/calypso-pos/calypso-pos/internal/returns"
	"github.com/calypso-pos/calypso-pos/internal/shared"
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := docstore.NewPostgres(dbpool)
	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrate document store", slog.Any("error", err))
		os.Exit(1)
	}

	auditLogger := shared.NewAuditLogger(store)
	idempotencyStore := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)

	catalogRepo := catalog.NewRepository(store)
	catalogService := catalog.NewService(catalogRepo, auditLogger, catalog.ServiceConfig{CommitRetries: cfg.CommitRetries})
	catalogHandler := catalog.NewHandler(logger, catalogService)

	checkoutRepo := checkout.NewRepository(store)
	checkoutService := checkout.NewService(checkoutRepo, auditLogger, idempotencyStore, dashboardCache, checkout.ServiceConfig{CommitRetries: cfg.CommitRetries})
	checkoutHandler := checkout.NewHandler(logger, checkoutService, catalogService)

	returnsRepo := returns.NewRepository(store)
	returnsService := returns.NewService(returnsRepo, auditLogger, dashboardCache, returns.ServiceConfig{CommitRetries: cfg.CommitRetries})
	returnsHandler := returns.NewHandler(logger, returnsService)

	dashboardService := dashboard.NewService(checkoutRepo, catalogRepo, returnsRepo, dashboardCache)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		ActorResolver:    app.HeaderActorResolver,
		CatalogHandler:   catalogHandler,
		CheckoutHandler:  checkoutHandler,
		ReturnsHandler:   returnsHandler,
		DashboardHandler: dashboardHandler,
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
