package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/pos-engine/internal/ledgersim"
	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/idempotency"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "ledger-sim"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadLedgerSim()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "ledger-sim",
		Level:       logger.ParseLevel(cfg.LedgerSim.LogLevel),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.LedgerSim.DB(), logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "schema", dbClient.DB().WithContext(ctx).AutoMigrate(ledgersim.Models()...))

	svc, err := ledgersim.NewService(ledgersim.ServiceParams{
		Repo:   ledgersim.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Logger: logg,
	})
	requireResource(ctx, logg, "ledger service", err)

	params := ledgersim.HandlerParams{Service: svc, APIKey: cfg.LedgerSim.APIKey, Logger: logg}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer redisClient.Close()

		claims, err := idempotency.NewManager(redisClient, cfg.LedgerSim.ClaimTTL)
		requireResource(ctx, logg, "idempotency", err)
		params.Claims = claims
	}

	server := &http.Server{
		Addr:              ":" + cfg.LedgerSim.Port,
		Handler:           ledgersim.NewRouter(params),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(logg.WithField(ctx, "addr", server.Addr), "ledger simulator listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "server failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
