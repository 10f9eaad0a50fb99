// Package app wires configuration into a ready identity service. The HTTP
// server and the registryctl CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/saturnino-fabrica-de-software/faceid/internal/audit"
	"github.com/saturnino-fabrica-de-software/faceid/internal/config"
	"github.com/saturnino-fabrica-de-software/faceid/internal/database"
	"github.com/saturnino-fabrica-de-software/faceid/internal/face"
	"github.com/saturnino-fabrica-de-software/faceid/internal/lock"
	"github.com/saturnino-fabrica-de-software/faceid/internal/matching"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
	"github.com/saturnino-fabrica-de-software/faceid/internal/repository"
	"github.com/saturnino-fabrica-de-software/faceid/internal/service"
)

// Store is what both the service and the readiness probe need
type Store interface {
	service.IdentityStore
	Ping(ctx context.Context) error
}

type App struct {
	Service  *service.IdentityService
	Store    Store
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	closers []func() error
}

// Build opens the configured store, lock and face pipeline. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	store, err := a.openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	engine := matching.NewEngine(logger).
		WithTolerance(cfg.MatchTolerance).
		WithScanTimeout(cfg.ScanTimeout).
		WithObserver(a.Metrics)

	pipeline, err := face.NewPipeline(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create face pipeline: %w", err)
	}

	a.Service = service.NewIdentityService(store, engine, logger).
		WithPipeline(pipeline).
		WithAudit(audit.NewSlogLogger(logger)).
		WithMetrics(a.Metrics)

	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.Service.WithLocker(lock.NewRedisLocker(client, cfg.EnrollLockTTL, logger))
		logger.Debug("enrollment lock shared through redis")
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg.StoreType == config.StoreTypeMemory {
		logger.Warn("using in-memory identity store, data is lost on restart")
		return repository.NewMemoryIdentityRepository(), nil
	}

	if cfg.AutoMigrate {
		if err := database.MigrateUp(ctx, cfg.DatabaseURL, cfg.DatabaseName); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database migrations applied")
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	return repository.NewIdentityRepository(pool), nil
}

// Close releases connections in reverse opening order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
