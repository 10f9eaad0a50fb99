package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/faceid/internal/api"
	"github.com/saturnino-fabrica-de-software/faceid/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/faceid/internal/app"
	"github.com/saturnino-fabrica-de-software/faceid/internal/config"
	"github.com/saturnino-fabrica-de-software/faceid/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting FaceID registry",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreType),
		slog.Float64("tolerance", cfg.MatchTolerance),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Error("close error", slog.Any("error", err))
		}
	}()

	router := api.NewRouter(logger, &api.Dependencies{
		Identities:   registry.Service,
		Store:        registry.Store,
		Gatherer:     registry.Registry,
		RateLimit:    middleware.RateLimiterConfig{Max: cfg.AuthRateLimit},
		MaxImageSize: int64(cfg.MaxImageSize),
		SwaggerHost:  fmt.Sprintf("localhost:%d", cfg.Port),
	})
	router.Setup()

	aggregator := metrics.NewAggregator(registry.Store, registry.Metrics, logger, cfg.StatsInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		aggregator.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		return router.Shutdown()
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
