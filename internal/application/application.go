// Package application assembles the onboarding engine from configuration.
// Both the HTTP server and the operator CLI build their engine here.
package application

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/agrionboard/internal/config"
	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/JonMunkholm/agrionboard/internal/delivery"
	"github.com/JonMunkholm/agrionboard/internal/postgres"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App is a wired engine plus the resources it owns.
type App struct {
	Service *core.Service

	closers []func()
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Build connects the store, delivery channel and engine described by cfg.
// Background work started here (the pub/sub relay) stops when ctx ends.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}

	store, err := app.openStore(ctx, cfg.Database)
	if err != nil {
		app.Close()
		return nil, err
	}

	channel, err := app.openChannel(ctx, cfg.Delivery)
	if err != nil {
		app.Close()
		return nil, err
	}

	templates, err := core.NewTemplateRegistry(core.DefaultTemplates()...)
	if err != nil {
		app.Close()
		return nil, errors.Wrap(err, "seed templates")
	}
	dispatcher := core.NewDispatcher(templates, channel, cfg.Delivery.StrictTemplates, cfg.Delivery.Timeout)

	svc, err := core.NewService(store, dispatcher, EngineConfig(cfg))
	if err != nil {
		app.Close()
		return nil, errors.Wrap(err, "create service")
	}
	app.Service = svc
	return app, nil
}

// EngineConfig maps application settings onto core.Config.
func EngineConfig(cfg *config.Config) core.Config {
	return core.Config{
		CacheTTL:             cfg.Cache.TTL,
		CacheCleanupInterval: cfg.Cache.CleanupInterval,
		StoreTimeout:         cfg.Store.Timeout,
		ImportChunkSize:      cfg.Import.ChunkSize,
		MaxImportSize:        cfg.Import.MaxFileSize,
		MaxConcurrentImports: cfg.Import.MaxConcurrent,
		ImportMaxWait:        cfg.Import.MaxWaitTime,
	}
}

func (a *App) openStore(ctx context.Context, cfg config.DatabaseConfig) (core.Store, error) {
	if cfg.InMemory() {
		slog.Warn("DATABASE_URL not set, using in-memory store; records are lost on exit")
		return core.NewMemoryStore(), nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database URL")
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	a.onClose(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}

	store := postgres.NewRecordStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return store, nil
}

func (a *App) openChannel(ctx context.Context, cfg config.DeliveryConfig) (core.DeliveryChannel, error) {
	switch strings.ToLower(cfg.Mode) {
	case config.DeliveryHTTP:
		ch, err := delivery.NewHTTPChannel(delivery.HTTPConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
			RetryMax: cfg.Retries,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("delivery channel ready", "channel", ch.String())
		return ch, nil

	case config.DeliveryPubSub:
		bus := delivery.NewMemoryPubSub(64)
		relayCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := delivery.Relay(relayCtx, bus, cfg.Topic, delivery.NewLogChannel(nil)); err != nil {
				slog.Error("message relay failed", "error", err)
			}
		}()
		a.onClose(func() {
			cancel()
			<-done
			if err := bus.Close(); err != nil {
				slog.Warn("close message bus", "error", err)
			}
		})
		slog.Info("delivery channel ready", "channel", "pubsub", "topic", cfg.Topic)
		return delivery.NewPubSubChannel(bus, cfg.Topic), nil

	default:
		return delivery.NewLogChannel(nil), nil
	}
}
