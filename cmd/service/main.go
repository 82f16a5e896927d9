// Command service runs the TRMNL quotes API and the periodic webhook push.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/clients"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/clients/acl"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/handlers"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/sources"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/storage/boltdb"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/storage/jsonfile"
	"github.com/jsamuelsen/trmnl-quotes/internal/app"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/config"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/logging"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/metrics"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/telemetry"
	"github.com/jsamuelsen/trmnl-quotes/internal/ports"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=... -X main.BuildTime=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// readinessCheckTimeout bounds each /-/ready check.
const readinessCheckTimeout = 2 * time.Second

// quoteStore is what both storage backends provide.
type quoteStore interface {
	ports.QuoteRepository
	ports.HealthChecker
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	logging.SetDefault(logger)

	logger.Info("starting service",
		slog.String("version", Version),
		slog.String("commit", Commit),
		slog.String("environment", cfg.App.Environment),
		slog.String("store_driver", cfg.Store.Driver),
	)

	ctx := context.Background()

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Endpoint:     cfg.Telemetry.Endpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      cfg.App.Version,
		Environment:  cfg.App.Environment,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", slog.Any("error", err))
		}
	}()

	store, closeStore, err := openStore(&cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := ports.NewHealthRegistry(ports.WithCheckTimeout(readinessCheckTimeout))
	if err := registry.Register(store); err != nil {
		return fmt.Errorf("registering store health check: %w", err)
	}

	promMetrics := metrics.New(nil)

	quotes := app.NewQuoteService(app.QuoteServiceConfig{
		Repository: store,
		Source:     sources.NewDailyStoic(time.Now),
		Metrics:    promMetrics,
		Logger:     logger,
	})

	if cfg.Dispatch.SeedOnStart {
		if err := seed(ctx, quotes, logger); err != nil {
			return err
		}
	}

	notifier, err := newNotifier(cfg, logger, registry)
	if err != nil {
		return err
	}

	scheduler := app.NewScheduler(app.SchedulerConfig{
		Deliverer: app.NewDispatcher(app.DispatcherConfig{
			Repository: store,
			Notifier:   notifier,
			Timeout:    cfg.Dispatch.Timeout,
			Metrics:    promMetrics,
			Logger:     logger,
		}),
		Interval: cfg.Dispatch.Interval(),
		Disabled: !cfg.Dispatch.Enabled,
		Logger:   logger,
	})

	server := http.New(&cfg.Server, logger)
	http.SetupRouter(server.Engine(), http.NewDefaultRouterConfig(logger, &cfg.App, &cfg.Auth,
		handlers.NewHealthHandler(registry, handlers.NewBuildInfo(Version, Commit, BuildTime),
			handlers.WithQuoteStatus(quotes, cfg.Dispatch.Interval())),
		handlers.NewQuoteHandler(quotes, scheduler),
		handlers.NewTRMNLHandler(quotes, cfg.Dispatch.Interval()),
	))

	logger.Debug("readiness checks registered", slog.Any("checks", registry.Names()))

	scheduler.Start()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serveUntilDone(sigCtx, logger, server, scheduler, cfg.Server.ShutdownTimeout)
}

// loadConfig reads the profile named by APP_ENVIRONMENT, "local" when unset,
// and validates it.
func loadConfig() (*config.Config, error) {
	profile := os.Getenv("APP_ENVIRONMENT")
	if profile == "" {
		profile = "local"
	}

	cfg, err := config.Load(profile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	file := cfg.Log.File

	return logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    file.Enabled,
			Path:       file.Path,
			MaxSizeMB:  file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAgeDays: file.MaxAgeDays,
			Compress:   file.Compress,
		},
	})
}

func seed(ctx context.Context, quotes *app.QuoteService, logger *slog.Logger) error {
	added, err := quotes.SeedIfEmpty(ctx)
	if err != nil {
		return fmt.Errorf("seeding quote store: %w", err)
	}

	if added > 0 {
		logger.Info("seeded empty quote store", slog.Int("added", added))
	}

	return nil
}

// openStore opens the configured backend. The returned func releases it.
func openStore(cfg *config.StoreConfig, logger *slog.Logger) (quoteStore, func(), error) {
	if cfg.Driver != "bolt" {
		return jsonfile.New(cfg.Path, jsonfile.WithLogger(logger)), func() {}, nil
	}

	store, err := boltdb.Open(&boltdb.Config{Path: cfg.Path, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("opening bolt store: %w", err)
	}

	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error("closing bolt store", slog.Any("error", err))
		}
	}, nil
}

// newNotifier builds the TRMNL webhook notifier. It returns nil when no
// webhook URL is configured, which makes every dispatch cycle a logged no-op.
func newNotifier(cfg *config.Config, logger *slog.Logger, registry ports.HealthRegistry) (ports.QuoteNotifier, error) {
	if cfg.Dispatch.WebhookURL == "" {
		logger.Warn("dispatch.webhook_url not set, quotes will not be pushed")
		return nil, nil
	}

	webhook, err := clients.New(&clients.Config{
		BaseURL:     cfg.Dispatch.WebhookURL,
		ServiceName: acl.TRMNLServiceName,
		Timeout:     cfg.Client.Timeout,
		Retry:       cfg.Client.Retry,
		Circuit:     cfg.Client.CircuitBreaker,
		Transport:   cfg.Client.Transport,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating webhook client: %w", err)
	}

	if err := registry.Register(webhook); err != nil {
		return nil, fmt.Errorf("registering webhook health check: %w", err)
	}

	return acl.NewTRMNLNotifier(acl.TRMNLNotifierConfig{Client: webhook, Logger: logger}), nil
}

// serveUntilDone runs the server until ctx is cancelled by a signal or the
// listener fails, then drains HTTP and lets an in-flight dispatch finish.
func serveUntilDone(
	ctx context.Context,
	logger *slog.Logger,
	server *http.Server,
	scheduler *app.Scheduler,
	shutdownTimeout time.Duration,
) error {
	var serveErr error

	select {
	case err, ok := <-server.Start():
		if ok && err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	// ctx is already done here; the drain gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info("initiating graceful shutdown", slog.Duration("timeout", shutdownTimeout))

	var errs []error
	if serveErr != nil {
		errs = append(errs, serveErr)
	} else if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if err := scheduler.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}
