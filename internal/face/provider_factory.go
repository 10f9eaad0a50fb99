package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/faceid/internal/config"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/faceid/internal/provider/rekognition"
)

// NewPipeline assembles the detector and extractor selected by configuration
//
// Environment variables:
//   - PROVIDER_TYPE: "deepface" or "mock" (default: "deepface")
//   - DETECTOR_TYPE: "rekognition" to detect with AWS, empty to let the extractor detect
//   - DEEPFACE_URL / DEEPFACE_MODEL: DeepFace API and a 128-dimension model
//   - AWS_REGION: AWS region for Rekognition, credentials via the SDK chain
func NewPipeline(ctx context.Context, cfg *config.Config) (*provider.Pipeline, error) {
	pipeline := &provider.Pipeline{}

	switch cfg.ProviderType {
	case config.ProviderTypeMock:
		pipeline.Extractor = mock.New()

	case config.ProviderTypeDeepFace, "":
		pipeline.Extractor = createDeepFaceProvider(cfg)

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s)",
			cfg.ProviderType, config.ProviderTypeDeepFace, config.ProviderTypeMock)
	}

	switch cfg.DetectorType {
	case config.DetectorTypeRekognition:
		detector, err := rekognition.NewProvider(ctx, rekognition.Config{
			Region:        cfg.AWSRegion,
			MinConfidence: rekognition.DefaultConfig().MinConfidence,
		})
		if err != nil {
			return nil, fmt.Errorf("create rekognition detector: %w", err)
		}
		pipeline.Detector = detector

	case "":

	default:
		return nil, fmt.Errorf("unknown detector type: %s (supported: %s)", cfg.DetectorType, config.DetectorTypeRekognition)
	}

	return pipeline, nil
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		deepfaceConfig.Model = cfg.DeepFaceModel
	}

	return deepface.NewProvider(deepfaceConfig)
}
