package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

type OutcomeKind int

const (
	Novel OutcomeKind = iota
	ExactDuplicate
	FaceAlreadyEnrolled
)

func (k OutcomeKind) String() string {
	switch k {
	case ExactDuplicate:
		return "exact_duplicate"
	case FaceAlreadyEnrolled:
		return "face_already_enrolled"
	default:
		return "novel"
	}
}

// Outcome is the classification of an enrollment candidate. Existing is set
// unless Kind is Novel; Distance only for FaceAlreadyEnrolled.
type Outcome struct {
	Kind     OutcomeKind
	Existing *domain.Identity
	Distance float64
}

// Classify decides whether candidate may be enrolled. The fingerprint is
// checked first; an empty fingerprint skips that check.
func (e *Engine) Classify(ctx context.Context, candidate domain.Embedding, fingerprint domain.Fingerprint, src IdentitySource) (Outcome, error) {
	if err := candidate.Validate(); err != nil {
		return Outcome{}, err
	}

	if fingerprint != "" {
		existing, err := src.GetByFingerprint(ctx, fingerprint)
		switch {
		case err == nil:
			return Outcome{Kind: ExactDuplicate, Existing: existing}, nil
		case !errors.Is(err, domain.ErrIdentityNotFound):
			return Outcome{}, scanError("classify", fmt.Errorf("fingerprint lookup: %w", err))
		}
	}

	best, err := e.nearest(ctx, "classify", candidate, src)
	if err != nil {
		return Outcome{}, err
	}
	if best != nil {
		return Outcome{Kind: FaceAlreadyEnrolled, Existing: best.identity, Distance: best.distance}, nil
	}

	return Outcome{Kind: Novel}, nil
}
