package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreTypePostgres = "postgres"
	StoreTypeMemory   = "memory"

	ProviderTypeDeepFace = "deepface"
	ProviderTypeMock     = "mock"

	DetectorTypeRekognition = "rekognition"
)

type Config struct {
	// Server
	Port          int    `envconfig:"PORT" default:"3000"`
	Environment   string `envconfig:"ENV" default:"development"`
	MaxImageSize  int    `envconfig:"MAX_IMAGE_SIZE" default:"10485760"`
	AuthRateLimit int    `envconfig:"AUTH_RATE_LIMIT" default:"60"`

	// Store
	StoreType    string `envconfig:"STORE_TYPE" default:"postgres"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	DatabaseName string `envconfig:"DATABASE_NAME" default:"faceid"`
	AutoMigrate  bool   `envconfig:"AUTO_MIGRATE" default:"false"`

	// Matching
	MatchTolerance float64       `envconfig:"MATCH_TOLERANCE" default:"0.4"`
	ScanTimeout    time.Duration `envconfig:"SCAN_TIMEOUT" default:"5s"`

	// Provider
	ProviderType  string `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DetectorType  string `envconfig:"DETECTOR_TYPE"`
	DeepFaceURL   string `envconfig:"DEEPFACE_URL" default:"http://localhost:5000"`
	DeepFaceModel string `envconfig:"DEEPFACE_MODEL" default:"Facenet"`
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Enrollment lock
	RedisURL      string        `envconfig:"REDIS_URL"`
	EnrollLockTTL time.Duration `envconfig:"ENROLL_LOCK_TTL" default:"30s"`

	// Observability
	StatsInterval time.Duration `envconfig:"STATS_INTERVAL" default:"1m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig tags cannot express
func (c *Config) Validate() error {
	switch c.StoreType {
	case StoreTypePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_TYPE=postgres")
		}
	case StoreTypeMemory:
	default:
		return fmt.Errorf("unknown STORE_TYPE %q (supported: %s, %s)", c.StoreType, StoreTypePostgres, StoreTypeMemory)
	}

	switch c.ProviderType {
	case ProviderTypeDeepFace, ProviderTypeMock:
	default:
		return fmt.Errorf("unknown PROVIDER_TYPE %q (supported: %s, %s)", c.ProviderType, ProviderTypeDeepFace, ProviderTypeMock)
	}

	if c.DetectorType != "" && c.DetectorType != DetectorTypeRekognition {
		return fmt.Errorf("unknown DETECTOR_TYPE %q (supported: %s)", c.DetectorType, DetectorTypeRekognition)
	}

	if c.MatchTolerance <= 0 {
		return errors.New("MATCH_TOLERANCE must be positive")
	}
	if c.ScanTimeout < 0 {
		return errors.New("SCAN_TIMEOUT must not be negative")
	}
	if c.MaxImageSize <= 0 {
		return errors.New("MAX_IMAGE_SIZE must be positive")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
