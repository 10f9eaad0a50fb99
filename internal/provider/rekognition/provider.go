package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/faceid/internal/domain"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Provider implements provider.FaceDetector using AWS Rekognition.
// Rekognition exposes no embeddings, so it is only used for detection.
type Provider struct {
	api    RekognitionAPI
	config Config
}

var _ provider.FaceDetector = (*Provider)(nil)

// NewProvider creates a Rekognition detector backed by the AWS SDK
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	api, err := NewAPI(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return NewProviderWithAPI(api, cfg), nil
}

// NewProviderWithAPI wires an existing client, e.g. a stub in tests
func NewProviderWithAPI(api RekognitionAPI, cfg Config) *Provider {
	return &Provider{api: api, config: cfg}
}

// validateImage checks size limits and returns the pixel dimensions.
// Rekognition only accepts JPEG and PNG.
func validateImage(data []byte) (image.Config, error) {
	if len(data) < minImageSize {
		return image.Config{}, domain.ErrInvalidImage.WithError(
			fmt.Errorf("image too small (%d bytes, minimum %d)", len(data), minImageSize))
	}
	if len(data) > maxImageSize {
		return image.Config{}, domain.ErrInvalidImage.WithError(
			fmt.Errorf("image too large (%d bytes, maximum %d)", len(data), maxImageSize))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, domain.ErrInvalidImage.WithError(err)
	}
	if format != "jpeg" && format != "png" {
		return image.Config{}, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported format %s", format))
	}

	return cfg, nil
}

// DetectFaces detects faces using the Rekognition DetectFaces API.
// Bounding boxes are converted from ratios to pixels.
func (p *Provider) DetectFaces(ctx context.Context, data []byte) ([]provider.DetectedFace, error) {
	dims, err := validateImage(data)
	if err != nil {
		return nil, err
	}

	output, err := p.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image: &types.Image{
			Bytes: data,
		},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, parseError(err)
	}

	width := float64(dims.Width)
	height := float64(dims.Height)

	faces := make([]provider.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil {
			continue
		}
		confidence := float64(deref(detail.Confidence))
		if confidence < p.config.MinConfidence {
			continue
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(deref(detail.BoundingBox.Left)) * width,
				Y:      float64(deref(detail.BoundingBox.Top)) * height,
				Width:  float64(deref(detail.BoundingBox.Width)) * width,
				Height: float64(deref(detail.BoundingBox.Height)) * height,
			},
			Confidence:   confidence / 100,
			QualityScore: calculateQualityScore(detail.Quality),
		})
	}

	return faces, nil
}

// calculateQualityScore computes an overall quality score from Rekognition quality metrics
// Returns a score between 0.0 (poor quality) and 1.0 (excellent quality)
func calculateQualityScore(quality *types.ImageQuality) float64 {
	if quality == nil {
		return 0.0
	}

	brightness := float64(deref(quality.Brightness)) / 100.0
	sharpness := float64(deref(quality.Sharpness)) / 100.0

	// Weight sharpness more heavily as it's critical for face recognition
	return brightness*0.3 + sharpness*0.7
}

func deref(v *float32) float32 {
	if v == nil {
		return 0
	}
	return *v
}
