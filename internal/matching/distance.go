package matching

import (
	"errors"
	"math"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// ErrDimensionMismatch means one of the embeddings does not have
// domain.EmbeddingDimension components. On stored data it signals corruption.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrNonFinite means an embedding component is NaN or infinite
var ErrNonFinite = errors.New("embedding has non-finite components")

// Distance returns the Euclidean distance between two embeddings.
// Both must have exactly domain.EmbeddingDimension components.
func Distance(a, b domain.Embedding) (float64, error) {
	if len(a) != domain.EmbeddingDimension || len(b) != domain.EmbeddingDimension {
		return 0, ErrDimensionMismatch
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}

	distance := math.Sqrt(sum)
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return 0, ErrNonFinite
	}
	return distance, nil
}
