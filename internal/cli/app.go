package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/access"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/audit"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/changes"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/config"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/intake"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/invoice"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/metrics"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/notify"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/outcome"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/quota"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

// loadConfig reads the config file named by --config and applies the --db
// override.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, commandError(KindConfig, "failed to load config", err)
	}
	if opts.DB != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = opts.DB
	}
	return cfg, nil
}

// setupLogging installs the default slog logger on w. --verbose forces
// debug level.
func setupLogging(cfg *config.Config, opts *RootOptions, w io.Writer) *slog.Logger {
	level, err := cfg.Log.SlogLevel()
	if err != nil || opts.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// openStore opens the configured backend. The schema is applied on open.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return store.Open(cfg.Path)
	}
}

func quotaService(cfg *config.Config, clock domain.Clock) (*quota.Service, error) {
	loc, err := time.LoadLocation(cfg.Quota.Timezone)
	if err != nil {
		return nil, fmt.Errorf("quota timezone: %w", err)
	}
	return quota.New(clock, loc), nil
}

// app is the fully wired service graph behind serve.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	intake  *intake.Service
	feed    *changes.Feed
	metrics *metrics.Metrics

	notifier notify.Notifier
	cache    outcome.Cache
}

// newApp wires the store, side-effect adapters and services from cfg.
// On error everything opened so far is closed again.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = openStore(ctx, cfg.Database)
	if err != nil {
		return nil, runtimeError(KindStore, "failed to open database", err)
	}

	switch cfg.Notify.Driver {
	case "amqp":
		a.notifier, err = notify.DialAMQP(cfg.Notify.URL, cfg.Notify.Exchange, cfg.Notify.PublishTimeout)
		if err != nil {
			return nil, runtimeError(KindBroker, "failed to connect to notification broker", err)
		}
	default:
		a.notifier = notify.LogNotifier{}
	}

	switch cfg.Cache.Driver {
	case "redis":
		a.cache, err = outcome.NewRedis(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.TTL)
		if err != nil {
			return nil, runtimeError(KindCache, "failed to connect to outcome cache", err)
		}
	case "memory":
		a.cache = outcome.NewMemory(cfg.Cache.Size)
	default:
		a.cache = outcome.None{}
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(nil)
	}

	clock := domain.SystemClock{}
	ids := domain.UUIDv7Generator{}
	q, err := quotaService(cfg, clock)
	if err != nil {
		return nil, commandError(KindConfig, "invalid quota configuration", err)
	}
	resolver := access.NewStoreResolver(a.store)

	a.intake = intake.New(
		a.store, resolver, q, invoice.New(clock, ids, cfg.Invoice.LeaseDays), clock, ids,
		intake.WithNotifier(a.notifier),
		intake.WithAudit(audit.NewSlogSink(logger)),
		intake.WithCache(a.cache),
		intake.WithMetrics(a.metrics),
	)
	a.feed = changes.NewFeed(a.store, resolver, q, clock)

	logger.Info("service wired",
		"database", cfg.Database.Driver,
		"notify", cfg.Notify.Driver,
		"cache", cfg.Cache.Driver,
		"metrics", cfg.Metrics.Enabled,
	)
	return a, nil
}

// Close releases the side-effect adapters and the store.
func (a *app) Close() error {
	var errs []error
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
