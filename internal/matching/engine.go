package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// IdentitySource is the read side of the identity store used by scans
type IdentitySource interface {
	GetByFingerprint(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Identity, error)
	Iterate(ctx context.Context, fn func(*domain.Identity) error) error
}

// Observer receives scan telemetry. metrics.Metrics implements it.
type Observer interface {
	CorruptEmbeddingSkipped()
	ScanCompleted(operation string, duration time.Duration, scanned int)
}

type noopObserver struct{}

func (noopObserver) CorruptEmbeddingSkipped()                 {}
func (noopObserver) ScanCompleted(string, time.Duration, int) {}

// Engine classifies enrollment candidates and authenticates probes against
// an identity source. It holds no identity state and is safe for concurrent use.
type Engine struct {
	tolerance   float64
	scanTimeout time.Duration
	logger      *slog.Logger
	observer    Observer
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tolerance: domain.DefaultMatchTolerance,
		logger:    logger,
		observer:  noopObserver{},
	}
}

// WithTolerance sets the match tolerance shared by classification and authentication
func (e *Engine) WithTolerance(tolerance float64) *Engine {
	e.tolerance = tolerance
	return e
}

// WithScanTimeout bounds scans whose context carries no deadline. Zero disables it.
func (e *Engine) WithScanTimeout(timeout time.Duration) *Engine {
	e.scanTimeout = timeout
	return e
}

func (e *Engine) WithObserver(observer Observer) *Engine {
	if observer != nil {
		e.observer = observer
	}
	return e
}

func (e *Engine) Tolerance() float64 {
	return e.tolerance
}

type candidate struct {
	identity *domain.Identity
	distance float64
}

// better reports whether d/key beats the current best: smaller distance,
// ties broken by the lexicographically smaller key
func (c *candidate) better(distance float64, key string) bool {
	if c == nil {
		return true
	}
	if distance != c.distance {
		return distance < c.distance
	}
	return key < c.identity.Key
}

// nearest scans every identity and returns the closest one within tolerance.
// Placeholders are skipped silently, corrupt embeddings with a warning.
func (e *Engine) nearest(ctx context.Context, operation string, probe domain.Embedding, src IdentitySource) (*candidate, error) {
	if _, ok := ctx.Deadline(); !ok && e.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.scanTimeout)
		defer cancel()
	}

	start := time.Now()
	scanned := 0
	var best *candidate

	err := src.Iterate(ctx, func(identity *domain.Identity) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		scanned++

		if identity.Embedding.IsEmpty() {
			return nil
		}

		distance, err := Distance(probe, identity.Embedding)
		if err != nil {
			e.logger.Warn("skipping identity with corrupt embedding",
				"unique_id", identity.Key,
				"dimension", len(identity.Embedding),
				"operation", operation,
			)
			e.observer.CorruptEmbeddingSkipped()
			return nil
		}

		if distance <= e.tolerance && best.better(distance, identity.Key) {
			best = &candidate{identity: identity, distance: distance}
		}
		return nil
	})

	e.observer.ScanCompleted(operation, time.Since(start), scanned)

	if err != nil {
		return nil, scanError(operation, err)
	}

	return best, nil
}

// scanError maps a failed scan to the timeout or store-unavailable family
func scanError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
		return domain.ErrTimeout.WithError(fmt.Errorf("%s scan: %w", operation, err))
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s scan: %w", operation, err)
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return domain.ErrStoreUnavailable.WithError(fmt.Errorf("%s scan: %w", operation, err))
}
