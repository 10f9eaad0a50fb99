package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// StatsSource reports the current registry size
type StatsSource interface {
	Stats(ctx context.Context) (*domain.RegistryStats, error)
}

// Aggregator periodically refreshes the registry size gauges
type Aggregator struct {
	source   StatsSource
	metrics  *Metrics
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

// NewAggregator creates a new metrics aggregator worker
func NewAggregator(source StatsSource, m *Metrics, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}

	return &Aggregator{
		source:   source,
		metrics:  m,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the aggregation worker until ctx is cancelled or Stop is called
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)
	a.aggregate(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

func (a *Aggregator) aggregate(ctx context.Context) {
	stats, err := a.source.Stats(ctx)
	if err != nil {
		a.logger.Error("failed to read registry stats", "error", err)
		return
	}

	a.metrics.SetRegistrySize(stats.Identities, stats.Placeholders)
	a.logger.Debug("registry stats refreshed",
		"identities", stats.Identities,
		"placeholders", stats.Placeholders,
	)
}
