package deepface

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for quality scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Provider implements provider.FaceDetector and provider.EmbeddingExtractor
// on top of the DeepFace API
type Provider struct {
	client *Client
}

var (
	_ provider.FaceDetector       = (*Provider)(nil)
	_ provider.EmbeddingExtractor = (*Provider)(nil)
)

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// DetectFaces detects faces in the image
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	results, err := p.represent(ctx, image)
	if errors.Is(err, domain.ErrNoFaceDetected) {
		return []provider.DetectedFace{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(results))
	for _, result := range results {
		faces = append(faces, toDetectedFace(result))
	}

	return faces, nil
}

// ExtractEmbedding returns the embedding of the face whose area overlaps
// face the most, or of the first face when face is nil
func (p *Provider) ExtractEmbedding(ctx context.Context, image []byte, face *provider.DetectedFace) (domain.Embedding, error) {
	results, err := p.represent(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}
	if len(results) == 0 {
		return nil, domain.ErrNoFaceDetected
	}

	chosen := results[0]
	if face != nil && !face.BoundingBox.IsZero() {
		best := -1.0
		for _, result := range results {
			if iou := toDetectedFace(result).BoundingBox.IoU(face.BoundingBox); iou > best {
				best = iou
				chosen = result
			}
		}
	}

	if len(chosen.Embedding) != domain.EmbeddingDimension {
		return nil, fmt.Errorf("%w: model %q produced %d dimensions, want %d",
			ErrInvalidResponse, p.client.config.Model, len(chosen.Embedding), domain.EmbeddingDimension)
	}

	return domain.Embedding(chosen.Embedding), nil
}

// represent maps DeepFace's 400 answers: no face found, or an image it cannot read
func (p *Provider) represent(ctx context.Context, image []byte) ([]RepresentResult, error) {
	resp, err := p.client.Represent(ctx, base64.StdEncoding.EncodeToString(image))
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
			if strings.Contains(strings.ToLower(statusErr.Body), "face could not be detected") {
				return nil, domain.ErrNoFaceDetected
			}
			return nil, domain.ErrInvalidImage.WithError(err)
		}
		return nil, err
	}

	return resp.Results, nil
}

func toDetectedFace(result RepresentResult) provider.DetectedFace {
	faceArea := float64(result.FacialArea.W * result.FacialArea.H)
	confidence := result.FaceConfidence
	if confidence == 0 {
		confidence = calculateConfidence(faceArea)
	}

	return provider.DetectedFace{
		BoundingBox: provider.BoundingBox{
			X:      float64(result.FacialArea.X),
			Y:      float64(result.FacialArea.Y),
			Width:  float64(result.FacialArea.W),
			Height: float64(result.FacialArea.H),
		},
		Confidence:   confidence,
		QualityScore: calculateQuality(faceArea),
	}
}

// calculateConfidence estimates confidence from face area for DeepFace
// versions that do not report face_confidence
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5
	}
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// calculateQuality estimates quality score based on face area
func calculateQuality(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.4
	}
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.6 + (normalized * 0.35)
}
