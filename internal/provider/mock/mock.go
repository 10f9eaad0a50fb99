package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

// minImageSize below which the mock treats the payload as having no face
const minImageSize = 100

// Provider implementa detecção e extração determinísticas para testes e desenvolvimento
type Provider struct{}

var (
	_ provider.FaceDetector       = (*Provider)(nil)
	_ provider.EmbeddingExtractor = (*Provider)(nil)
)

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

// DetectFaces simula uma face ocupando o centro da imagem
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if len(image) < minImageSize {
		return []provider.DetectedFace{}, nil
	}

	return []provider.DetectedFace{
		{
			BoundingBox: provider.BoundingBox{
				X:      10,
				Y:      10,
				Width:  80,
				Height: 80,
			},
			Confidence:   0.99,
			QualityScore: 0.95,
		},
	}, nil
}

// ExtractEmbedding gera embedding determinístico baseado no hash da imagem.
// Identical bytes give identical embeddings; any other image lands far away.
func (p *Provider) ExtractEmbedding(ctx context.Context, image []byte, face *provider.DetectedFace) (domain.Embedding, error) {
	if len(image) < minImageSize {
		return nil, domain.ErrNoFaceDetected
	}

	return generateEmbedding(image), nil
}

// generateEmbedding expands sha256(image) into a unit vector
func generateEmbedding(image []byte) domain.Embedding {
	embedding := make(domain.Embedding, domain.EmbeddingDimension)
	seed := sha256.Sum256(image)

	var block [sha256.Size]byte
	var counter [4]byte
	for i := range embedding {
		if i%sha256.Size == 0 {
			binary.BigEndian.PutUint32(counter[:], uint32(i/sha256.Size))
			block = sha256.Sum256(append(seed[:], counter[:]...))
		}
		embedding[i] = (float64(block[i%sha256.Size])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}
