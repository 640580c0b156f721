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

	"github.com/GrumioGrumio/sol-creator-tracker/internal/admin"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/alert"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/config"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/metrics"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/ratelimit"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/scan"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/scheduler"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/solana/rpc"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/store"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/store/file"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/store/postgres"
	redispkg "github.com/GrumioGrumio/sol-creator-tracker/internal/store/redis"
	"github.com/GrumioGrumio/sol-creator-tracker/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting sol-creator-tracker",
		"wallet", cfg.Wallet.Address,
		"rpc", cfg.Solana.RPCURL,
		"daily_call_limit", cfg.Solana.DailyCallLimit,
		"state_backend", cfg.State.Backend,
		"scan_times", cfg.Scan.ScheduleTimes,
	)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), "sol-creator-tracker", tracingEndpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	stateStore, db, err := buildStateStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize state store", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	budget := rpc.NewBudget(cfg.Solana.DailyCallLimit)
	client := rpc.NewClient(cfg.Solana.RPCURL, budget, logger,
		rpc.WithRetryPolicy(
			cfg.Solana.RateLimitRetries,
			cfg.Solana.ServerRetries,
			cfg.Solana.RateLimitBackoff,
			cfg.Solana.ServerRetryDelay,
		),
	)
	limiter := ratelimit.NewLimiter(cfg.Solana.RateLimitRPS, cfg.Solana.RateLimitBurst, "solana")

	paginator := scan.NewPaginator(client, limiter, cfg.Scan.PageSize, cfg.Scan.MaxPages, logger)
	fetcher := scan.NewFetcher(client, scan.FetcherConfig{
		Concurrency:           cfg.Scan.FetchConcurrency,
		PauseEvery:            cfg.Scan.PauseEvery,
		PauseFor:              cfg.Scan.PauseFor,
		ExcludeSelfTransfers:  cfg.Scan.ExcludeSelfTransfers,
		LargeTransferLamports: cfg.Scan.LargeTransferLamports,
	}, logger)

	alerter := buildAlerter(cfg, logger)

	var publisher scan.Publisher
	if cfg.Redis.URL != "" {
		redisPub, err := redispkg.NewPublisher(cfg.Redis.URL, cfg.Redis.Stream, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisPub.Close()
		publisher = redisPub
		logger.Info("redis scan event publishing enabled", "stream", cfg.Redis.Stream)
	}

	coordinator := scan.NewCoordinator(paginator, fetcher, stateStore, budget, alerter, publisher, scan.CoordinatorConfig{
		Address:          cfg.Wallet.Address,
		FullScanInterval: cfg.Scan.FullScanInterval,
		ScanTimeout:      cfg.Scan.ScanTimeout,
	}, logger)

	if state, err := stateStore.Load(context.Background()); err != nil {
		logger.Warn("failed to load persisted state at boot", "error", err)
	} else {
		coordinator.SeedStatus(state)
	}

	times, err := scheduler.ParseTimes(cfg.Scan.ScheduleTimes)
	if err != nil {
		logger.Error("invalid SCAN_TIMES", "error", err)
		os.Exit(1)
	}
	sched := scheduler.New(coordinator, times, logger)

	apiServer := admin.NewServer(coordinator, cfg.Wallet.Address, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	if db != nil {
		startDBPoolStatsPump(gCtx, db, logger)
	}

	rateLimiter := admin.NewRateLimitMiddleware(logger)
	defer rateLimiter.Stop()
	apiHandler := admin.AuditMiddleware(logger, rateLimiter.Wrap(apiServer.Handler()))

	g.Go(func() error {
		return runHTTPServer(gCtx, cfg.Server.Port, apiHandler, logger)
	})

	g.Go(func() error {
		return sched.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("tracker exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("tracker shut down gracefully")
}

func buildStateStore(cfg *config.Config, logger *slog.Logger) (store.StateStore, *postgres.DB, error) {
	switch cfg.State.Backend {
	case config.StateBackendPostgres:
		db, err := postgres.New(postgres.Config{
			URL:             cfg.DB.URL,
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("connected to database")
		return postgres.NewStateRepo(db), db, nil
	default:
		return file.NewStore(cfg.State.FilePath, logger), nil, nil
	}
}

func startDBPoolStatsPump(ctx context.Context, db *postgres.DB, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Second)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("db pool stats sampler stopped")
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBPoolOpen.Set(float64(stats.OpenConnections))
				metrics.DBPoolInUse.Set(float64(stats.InUse))
			}
		}
	}()
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var alerters []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		alerters = append(alerters, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		alerters = append(alerters, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(alerters) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, alerters...)
}

func runHTTPServer(ctx context.Context, port int, api http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/", api)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("http server shutdown error", "error", err)
		}
	}()

	logger.Info("http server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
