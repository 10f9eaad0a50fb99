package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
)

// FaceDetector localiza faces numa imagem
type FaceDetector interface {
	// DetectFaces returns every face found, in provider order. No face is an
	// empty slice, not an error.
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)
}

// EmbeddingExtractor turns a face into a domain.EmbeddingDimension vector
type EmbeddingExtractor interface {
	// ExtractEmbedding extracts the embedding of face. A nil face means the
	// extractor detects on its own and uses the first face it finds.
	ExtractEmbedding(ctx context.Context, image []byte, face *DetectedFace) (domain.Embedding, error)
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox  BoundingBox `json:"bounding_box"`
	Confidence   float64     `json:"confidence"`
	QualityScore float64     `json:"quality_score"`
}

// BoundingBox is the face area in pixels
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) IsZero() bool {
	return b.Width == 0 || b.Height == 0
}

// IoU returns the intersection over union of two boxes
func (b BoundingBox) IoU(o BoundingBox) float64 {
	x1 := max(b.X, o.X)
	y1 := max(b.Y, o.Y)
	x2 := min(b.X+b.Width, o.X+o.Width)
	y2 := min(b.Y+b.Height, o.Y+o.Height)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := b.Width*b.Height + o.Width*o.Height - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Pipeline turns one image into one embedding. When Detector is nil the
// extractor detects faces itself.
type Pipeline struct {
	Detector  FaceDetector
	Extractor EmbeddingExtractor
}

// FirstFaceEmbedding extracts the embedding of the first detected face.
// Other faces in the image are ignored.
func (p *Pipeline) FirstFaceEmbedding(ctx context.Context, image []byte) (domain.Embedding, error) {
	var face *DetectedFace

	if p.Detector != nil {
		faces, err := p.Detector.DetectFaces(ctx, image)
		if err != nil {
			return nil, classify("detect faces", err)
		}
		if len(faces) == 0 {
			return nil, domain.ErrNoFaceDetected
		}
		face = &faces[0]
	}

	embedding, err := p.Extractor.ExtractEmbedding(ctx, image, face)
	if err != nil {
		return nil, classify("extract embedding", err)
	}
	if err := embedding.Validate(); err != nil {
		return nil, domain.ErrProviderUnavailable.WithError(
			fmt.Errorf("extractor returned %d-dimensional embedding", len(embedding)))
	}

	return embedding, nil
}

// classify keeps domain errors and reports anything else as a provider outage
func classify(op string, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.ErrProviderUnavailable.WithError(fmt.Errorf("%s: %w", op, err))
}
