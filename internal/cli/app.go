package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/domain/matcher"
	"github.com/eshaffer321/reconcile/internal/infrastructure/config"
	"github.com/eshaffer321/reconcile/internal/infrastructure/lock"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

// App holds the wired components shared by every command.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *storage.Storage
	Service *service.ReconcileService

	closers []func() error
}

// MatcherConfig converts the reconcile section of the config.
func MatcherConfig(cfg config.ReconcileConfig) matcher.Config {
	return matcher.Config{
		Window:               cfg.Window(),
		AutoConfirmThreshold: cfg.AutoConfirmThreshold,
		Workers:              cfg.Workers,
		SplitSuggestions:     cfg.SplitsEnabled(),
		MaxSplitParts:        cfg.MaxSplitParts,
	}
}

// NewApp validates the config, opens storage and picks the lock backend.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Store: store}
	app.closers = append(app.closers, store.Close)

	locker, err := app.newLocker(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Service = service.NewReconcileService(store, locker, service.Options{
		Matcher:        MatcherConfig(cfg.Reconcile),
		StorageTimeout: cfg.Reconcile.StorageTimeout,
	}, logger)
	return app, nil
}

func (a *App) newLocker(ctx context.Context) (lock.Locker, error) {
	if a.Config.Lock.Backend != config.LockBackendRedis {
		return lock.NewLocalLocker(), nil
	}

	rdb, err := lock.Dial(ctx, a.Config.Lock.RedisAddr)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	a.Logger.Debug("using redis ledger lock", "addr", a.Config.Lock.RedisAddr, "ttl", a.Config.Lock.TTL)
	return lock.NewRedisLocker(rdb, a.Config.Lock.TTL), nil
}

// Close releases storage and lock connections in reverse order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
