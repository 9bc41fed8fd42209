package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pos-engine/api/routes"
	"github.com/angelmondragon/pos-engine/internal/catalog"
	"github.com/angelmondragon/pos-engine/internal/checkout"
	"github.com/angelmondragon/pos-engine/internal/heldcarts"
	"github.com/angelmondragon/pos-engine/internal/operators"
	"github.com/angelmondragon/pos-engine/internal/scheduler"
	"github.com/angelmondragon/pos-engine/internal/shifts"
	"github.com/angelmondragon/pos-engine/internal/terminal"
	"github.com/angelmondragon/pos-engine/internal/transactions"
	"github.com/angelmondragon/pos-engine/pkg/auth/session"
	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/db"
	"github.com/angelmondragon/pos-engine/pkg/devices"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	"github.com/angelmondragon/pos-engine/pkg/ledger"
	"github.com/angelmondragon/pos-engine/pkg/logger"
	"github.com/angelmondragon/pos-engine/pkg/metrics"
	"github.com/angelmondragon/pos-engine/pkg/migrate"
	"github.com/angelmondragon/pos-engine/pkg/outbox"
	"github.com/angelmondragon/pos-engine/pkg/redis"
	"github.com/angelmondragon/pos-engine/pkg/square"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "register"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "register",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]string{"location_id": cfg.Register.LocationID},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithRegisterID(ctx, cfg.Register.ID)
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "register stopped with errors", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Redis is optional: a standalone register keeps sessions in memory and
	// runs maintenance under a process-local lock.
	var (
		redisClient  *redis.Client
		sessionStore session.Store = session.NewMemoryStore()
		jobLock      scheduler.Lock
		pinLimiter   operators.Limiter
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return fmt.Errorf("bootstrap redis: %w", err)
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()

		sessionStore = redisClient
		pinLimiter = operators.NewRedisLimiter(redisClient, 0, 0)
		jobLock, err = scheduler.NewRedisLock(redisClient, redisClient.LockKey("scheduler:"+cfg.Register.LocationID), cfg.Scheduler.LockTTL)
		if err != nil {
			return err
		}
	}

	reg := prometheus.DefaultRegisterer

	ledgerClient, err := ledger.NewClient(cfg.Ledger.BaseURL,
		ledger.WithAPIKey(cfg.Ledger.APIKey),
		ledger.WithRegisterID(cfg.Register.ID),
		ledger.WithTimeout(cfg.Ledger.Timeout),
	)
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}
	dispatcher, err := ledger.NewDispatcher(ledgerClient)
	if err != nil {
		return err
	}

	engine, err := outbox.NewEngine(outbox.EngineParams{
		Repository:   outbox.NewRepository(dbClient.DB()),
		Pusher:       dispatcher,
		Logger:       logg,
		Metrics:      metrics.NewOutboxMetrics(reg),
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		PushTimeout:  cfg.Outbox.PushTimeout,
	})
	if err != nil {
		return fmt.Errorf("outbox engine: %w", err)
	}

	txns, err := transactions.NewService(transactions.ServiceParams{
		Repo:          transactions.NewRepository(dbClient.DB()),
		Tx:            dbClient,
		Outbox:        engine,
		RegisterID:    cfg.Register.ID,
		LocationID:    cfg.Register.LocationID,
		ReceiptPrefix: cfg.Register.ReceiptPrefix,
		StoreName:     cfg.Register.StoreName,
		ReceiptWidth:  cfg.Printer.Width,
		Logger:        logg,
	})
	if err != nil {
		return err
	}

	cat, err := catalog.NewService(catalog.ServiceParams{
		Repo:   catalog.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Outbox: engine,
		Logger: logg,
	})
	if err != nil {
		return err
	}

	engine.OnDelivered(enums.SyncTransaction, txns.HandleDelivered)
	engine.OnDelivered(enums.SyncCustomer, cat.HandleDelivered)

	shiftSvc, err := shifts.NewService(shifts.ServiceParams{
		Repo:    shifts.NewRepository(dbClient.DB()),
		Feed:    txns,
		Logger:  logg,
		Metrics: metrics.NewShiftMetrics(reg),
	})
	if err != nil {
		return err
	}

	held, err := heldcarts.NewManager(heldcarts.ManagerParams{
		Repo:       heldcarts.NewRepository(dbClient.DB()),
		Tx:         dbClient,
		RegisterID: cfg.Register.ID,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	set, err := buildDevices(ctx, cfg, logg)
	if err != nil {
		return err
	}

	epsilon := cfg.Checkout.BalanceEpsilon
	checkouts, err := checkout.NewService(checkout.ServiceParams{
		Recorder:         txns,
		Devices:          set,
		Epsilon:          &epsilon,
		Currency:         cfg.Checkout.Currency,
		OpenDrawerOnCash: cfg.Checkout.OpenDrawerOnCash,
		Logger:           logg,
		Metrics:          metrics.NewCheckoutMetrics(reg),
	})
	if err != nil {
		return err
	}

	term, err := terminal.New(terminal.Params{
		RegisterID: cfg.Register.ID,
		Catalog:    cat,
		HeldCarts:  held,
		Checkouts:  checkouts,
		Shifts:     shiftSvc,
		Devices:    set,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	sessions, err := session.NewManager(sessionStore, cfg.Register.ID, cfg.JWT.Expiration())
	if err != nil {
		return err
	}
	ops, err := operators.NewService(operators.ServiceParams{
		Repo:       operators.NewRepository(dbClient.DB()),
		Sessions:   sessions,
		Shifts:     shiftSvc,
		Limiter:    pinLimiter,
		JWTConfig:  cfg.JWT,
		Password:   cfg.Password,
		RegisterID: cfg.Register.ID,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	probe, err := scheduler.NewConnectivityProbeJob(ledgerClient, engine, cfg.Scheduler.ProbeTimeout, logg)
	if err != nil {
		return err
	}
	gauges, err := scheduler.NewQueueGaugeJob(engine, logg)
	if err != nil {
		return err
	}
	registry := scheduler.NewRegistry(probe, gauges)
	if cfg.Scheduler.HeldCartMaxAge > 0 {
		purge, err := scheduler.NewHeldCartPurgeJob(held, cfg.Scheduler.HeldCartMaxAge, logg, nil)
		if err != nil {
			return err
		}
		registry.Register(purge)
	}
	jobs, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     jobLock,
		Metrics:  metrics.NewJobMetrics(reg),
		Interval: cfg.Scheduler.Interval,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Authorizer:   ops,
			Operators:    ops,
			Catalog:      cat,
			Terminal:     term,
			Transactions: txns,
			Shifts:       shiftSvc,
			Sync:         engine,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		runErrs error
	)
	collect := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				errMu.Lock()
				runErrs = multierr.Append(runErrs, fmt.Errorf("%s: %w", name, err))
				errMu.Unlock()
			}
		}()
	}

	collect("outbox", func() error { return engine.Run(ctx) })
	collect("scheduler", func() error { return jobs.Run(ctx) })
	collect("http", server.ListenAndServe)

	logg.Info(logg.WithField(ctx, "addr", server.Addr), "register ready")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	runErrs = multierr.Append(runErrs, server.Shutdown(shutdownCtx))
	wg.Wait()

	logg.Info(ctx, "register shut down")
	return runErrs
}

// buildDevices assembles the register's hardware. Without Square credentials
// card tenders go to the stub terminal, which approves every charge.
func buildDevices(ctx context.Context, cfg *config.Config, logg *logger.Logger) (devices.Set, error) {
	var set devices.Set

	printer, err := devices.NewPrinter(cfg.Printer, logg)
	if err != nil {
		return set, fmt.Errorf("printer: %w", err)
	}
	if printer != nil {
		set.Printer = printer
		set.Drawer = printer
	}

	card, err := buildCardTerminal(ctx, cfg, logg)
	if err != nil {
		return set, err
	}
	set.Terminal = card
	return set, nil
}

// buildCardTerminal returns nil when no terminal is configured, which makes
// card tenders fail with a device error.
func buildCardTerminal(ctx context.Context, cfg *config.Config, logg *logger.Logger) (devices.CardTerminal, error) {
	switch {
	case cfg.Square.Enabled():
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		card, err := devices.NewSquareTerminal(client, cfg.Square.SourceID, cfg.Checkout.Currency)
		if err != nil {
			return nil, err
		}
		return card, nil
	case cfg.FeatureFlags.StubCardTerminal && cfg.App.IsDev():
		logg.Warn(ctx, "stub card terminal approves every charge")
		return devices.NewStubTerminal(), nil
	default:
		logg.Warn(ctx, "no card terminal configured; card tenders are refused")
		return nil, nil
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
