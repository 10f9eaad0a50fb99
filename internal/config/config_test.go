package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*Config) bool
	}{
		{
			name: "loads with all required vars",
			envVars: map[string]string{
				"PORT":            "8080",
				"ENV":             "production",
				"DATABASE_URL":    "postgres://localhost/test",
				"MATCH_TOLERANCE": "0.35",
				"SCAN_TIMEOUT":    "2s",
				"REDIS_URL":       "redis://localhost:6379/0",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 8080 &&
					c.Environment == "production" &&
					c.DatabaseURL == "postgres://localhost/test" &&
					c.MatchTolerance == 0.35 &&
					c.ScanTimeout == 2*time.Second &&
					c.RedisURL == "redis://localhost:6379/0"
			},
		},
		{
			name: "uses defaults when optional vars missing",
			envVars: map[string]string{
				"DATABASE_URL": "postgres://localhost/test",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Port == 3000 &&
					c.Environment == "development" &&
					c.StoreType == StoreTypePostgres &&
					c.ProviderType == ProviderTypeDeepFace &&
					c.DeepFaceModel == "Facenet" &&
					c.MatchTolerance == 0.4 &&
					c.ScanTimeout == 5*time.Second &&
					c.EnrollLockTTL == 30*time.Second &&
					c.MaxImageSize == 10*1024*1024 &&
					c.AuthRateLimit == 60 &&
					c.DatabaseName == "faceid" &&
					!c.AutoMigrate &&
					c.StatsInterval == time.Minute
			},
		},
		{
			name: "memory store needs no database",
			envVars: map[string]string{
				"STORE_TYPE":    "memory",
				"PROVIDER_TYPE": "mock",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.StoreType == StoreTypeMemory && c.DatabaseURL == ""
			},
		},
		{
			name:    "fails when DATABASE_URL missing for postgres",
			envVars: map[string]string{},
			wantErr: true,
		},
		{
			name: "fails on unknown store type",
			envVars: map[string]string{
				"STORE_TYPE": "sqlite",
			},
			wantErr: true,
		},
		{
			name: "fails on unknown provider",
			envVars: map[string]string{
				"STORE_TYPE":    "memory",
				"PROVIDER_TYPE": "opencv",
			},
			wantErr: true,
		},
		{
			name: "fails on unknown detector",
			envVars: map[string]string{
				"STORE_TYPE":    "memory",
				"DETECTOR_TYPE": "mtcnn",
			},
			wantErr: true,
		},
		{
			name: "fails on non positive tolerance",
			envVars: map[string]string{
				"STORE_TYPE":      "memory",
				"MATCH_TOLERANCE": "0",
			},
			wantErr: true,
		},
		{
			name: "fails on malformed duration",
			envVars: map[string]string{
				"STORE_TYPE":   "memory",
				"SCAN_TIMEOUT": "soon",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}

			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Load() config check failed: %+v", cfg)
			}
		})
	}
}

func TestConfig_Environment(t *testing.T) {
	dev := &Config{Environment: "development"}
	if !dev.IsDevelopment() || dev.IsProduction() {
		t.Errorf("development config misreported")
	}

	prod := &Config{Environment: "production"}
	if prod.IsDevelopment() || !prod.IsProduction() {
		t.Errorf("production config misreported")
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"development", "production", "staging"} {
		if NewLogger(env) == nil {
			t.Errorf("NewLogger(%q) returned nil", env)
		}
	}
}

func TestNewLoggerTo_ProductionWritesJSON(t *testing.T) {
	var buf strings.Builder
	logger := NewLoggerTo(&buf, "production")

	logger.Debug("hidden")
	logger.Info("identity enrolled", "unique_id", "alice")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug records must be dropped in production: %s", out)
	}
	if !strings.Contains(out, `"unique_id":"alice"`) || !strings.Contains(out, `"service":"faceid"`) {
		t.Errorf("expected JSON attributes, got %s", out)
	}
}
