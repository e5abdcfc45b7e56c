// Package app assembles a flag store from configuration: backend selection,
// schema or index bootstrap, cache wiring and the history purger.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/feature-flag-store/internal/config"
	"github.com/sandeepkv93/feature-flag-store/internal/evaluator"
	"github.com/sandeepkv93/feature-flag-store/internal/observability"
	"github.com/sandeepkv93/feature-flag-store/internal/service"
	"github.com/sandeepkv93/feature-flag-store/internal/storage"
	flagmongo "github.com/sandeepkv93/feature-flag-store/internal/storage/mongo"
	"github.com/sandeepkv93/feature-flag-store/internal/storage/sqlserver"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *service.FlagStore

	// Purger is non-nil only for the mongodb backend; other backends purge
	// on their own (TTL read-through in memory, permanent history in SQL).
	Purger *flagmongo.HistoryPurger

	shutdown []func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg, observability.NewLogger(cfg.LogLevel))
}

func NewWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	backend, err := a.buildBackend(ctx)
	if err != nil {
		return nil, err
	}

	opts := service.Options{
		EnableCaching:       cfg.EnableCaching,
		CacheAbsoluteTTL:    cfg.CacheAbsoluteTTL,
		CacheSlidingTTL:     cfg.CacheSlidingTTL,
		TreatMissingAsFalse: cfg.TreatMissingAsFalse,
	}
	a.Store = service.New(backend, evaluator.New(logger), opts, logger)
	a.shutdown = append(a.shutdown, func(context.Context) error {
		a.Store.Close()
		return nil
	})
	return a, nil
}

func (a *App) buildBackend(ctx context.Context) (storage.Backend, error) {
	cfg := a.Config
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryBackend(cfg.DeletionRetentionTTL), nil

	case config.BackendSQLServer:
		db, err := sqlserver.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlserver: %w", err)
		}
		backend := sqlserver.New(db, a.Logger)
		if err := backend.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to provision sqlserver schema: %w", err)
		}
		return backend, nil

	case config.BackendMongoDB:
		client, err := flagmongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.shutdown = append(a.shutdown, client.Disconnect)
		backend := flagmongo.New(client, flagmongo.Options{
			Database:             cfg.MongoDatabase,
			Collection:           cfg.MongoCollection,
			DeletionRetentionTTL: cfg.DeletionRetentionTTL,
		}, a.Logger)
		if err := backend.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		if cfg.DeletionRetentionTTL > 0 {
			a.Purger = flagmongo.NewHistoryPurger(backend, cfg.HistoryPurgeInterval)
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Close releases backend connections and stops the cache.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
