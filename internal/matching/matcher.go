package matching

import (
	"context"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// Authenticate returns the closest identity within tolerance, or nil when
// no stored embedding is close enough. It never modifies the source.
func (e *Engine) Authenticate(ctx context.Context, probe domain.Embedding, src IdentitySource) (*domain.MatchResult, error) {
	if err := probe.Validate(); err != nil {
		return nil, err
	}

	best, err := e.nearest(ctx, "authenticate", probe, src)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, nil
	}

	return &domain.MatchResult{
		IdentityKey:  best.identity.Key,
		IdentityName: best.identity.DisplayName,
		Distance:     best.distance,
	}, nil
}
