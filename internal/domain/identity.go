package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimension is the fixed length of every face embedding in the registry
const EmbeddingDimension = 128

// DefaultMatchTolerance is the maximum Euclidean distance at which two embeddings
// are treated as the same face, both for deduplication and for authentication
const DefaultMatchTolerance = 0.4

// Embedding is a face feature vector produced by the embedding extractor
type Embedding []float64

// IsEmpty reports whether the embedding carries no data (placeholder accounts)
func (e Embedding) IsEmpty() bool {
	return len(e) == 0
}

// Validate checks the embedding has the system-wide dimension and only
// finite components
func (e Embedding) Validate() error {
	if len(e) != EmbeddingDimension {
		return ErrInvalidEmbedding
	}
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidEmbedding
		}
	}
	return nil
}

// Fingerprint is the perceptual hash of a whole enrollment photo
type Fingerprint string

// Identity representa uma pessoa cadastrada no registro
type Identity struct {
	ID          uuid.UUID    `json:"id"`
	Key         string       `json:"unique_id"`
	DisplayName string       `json:"name"`
	Embedding   Embedding    `json:"-"`
	Fingerprint *Fingerprint `json:"fingerprint,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasFingerprint reports whether the identity was enrolled with a fingerprint.
// Legacy rows created before fingerprinting carry none.
func (i *Identity) HasFingerprint() bool {
	return i.Fingerprint != nil && *i.Fingerprint != ""
}

// MatchResult is the outcome of a successful authentication scan
type MatchResult struct {
	IdentityKey  string  `json:"unique_id"`
	IdentityName string  `json:"name"`
	Distance     float64 `json:"distance"`
}

// RegistryStats summarises the identity store contents
type RegistryStats struct {
	Identities   int `json:"identities"`
	Placeholders int `json:"placeholders"`
}
