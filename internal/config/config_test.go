package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Survey.SoundSpeed != 1500.0 {
		t.Errorf("Expected default sound speed 1500, got %.1f", cfg.Survey.SoundSpeed)
	}
	if cfg.Solver.MaxIterations != 50 {
		t.Errorf("Expected default max iterations 50, got %d", cfg.Solver.MaxIterations)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"drop latitude", func(c *Config) { c.Survey.DropLatitude = 91 }, "drop latitude"},
		{"drop longitude", func(c *Config) { c.Survey.DropLongitude = -181 }, "drop longitude"},
		{"sound speed", func(c *Config) { c.Survey.SoundSpeed = 0 }, "sound speed"},
		{"transducer depth", func(c *Config) { c.Survey.TransducerDepth = -1 }, "transducer depth"},
		{"anchor depth", func(c *Config) { c.Survey.AnchorDepth = -5 }, "anchor depth"},
		{"latitude hemisphere", func(c *Config) { c.Survey.LatitudeHemisphere = "E" }, "latitude hemisphere"},
		{"longitude hemisphere", func(c *Config) { c.Survey.LongitudeHemisphere = "N" }, "longitude hemisphere"},
		{"iterations", func(c *Config) { c.Solver.MaxIterations = 0 }, "max iterations"},
		{"tolerance", func(c *Config) { c.Solver.Tolerance = 0 }, "tolerance"},
		{"jacobian", func(c *Config) { c.Solver.Jacobian = "finite" }, "jacobian"},
		{"workers", func(c *Config) { c.Processing.Workers = 0 }, "worker count"},
		{"format", func(c *Config) { c.Processing.OutputFormat = "shp" }, "output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateGPS(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateGPS(); err != nil {
		t.Fatalf("default GPS config should validate, got %v", err)
	}

	cfg.GPS.Mode = "manual"
	cfg.GPS.ManualLatitude = 95
	if err := cfg.ValidateGPS(); err == nil {
		t.Error("expected error for manual latitude out of range")
	}

	cfg = DefaultConfig()
	cfg.GPS.Mode = "gpsd"
	cfg.GPS.GPSDHost = ""
	if err := cfg.ValidateGPS(); err == nil {
		t.Error("expected error for missing gpsd host")
	}

	cfg = DefaultConfig()
	cfg.GPS.Mode = "bluetooth"
	if err := cfg.ValidateGPS(); err == nil {
		t.Error("expected error for unknown GPS mode")
	}
}

func TestLoadMergesFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `survey:
  drop_latitude: 35.951133
  drop_longitude: -75.130367
  sound_speed: 1490
solver:
  jacobian: numeric
gps:
  mode: manual
  timeout: 45s
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ANCHOR_SURVEY_TRANSDUCER_DEPTH", "7.5")
	t.Setenv("ANCHOR_PROCESSING_WORKERS", "8")

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig failed: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Survey.DropLatitude != 35.951133 || cfg.Survey.SoundSpeed != 1490 {
		t.Errorf("file values not applied: %+v", cfg.Survey)
	}
	if cfg.Survey.TransducerDepth != 7.5 {
		t.Errorf("Expected transducer depth 7.5 from environment, got %v", cfg.Survey.TransducerDepth)
	}
	if cfg.Processing.Workers != 8 {
		t.Errorf("Expected 8 workers from environment, got %d", cfg.Processing.Workers)
	}
	if cfg.GPS.Timeout != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %v", cfg.GPS.Timeout)
	}
	// Untouched keys keep their defaults
	if cfg.Solver.MaxIterations != 50 || cfg.Survey.LongitudeHemisphere != "W" {
		t.Errorf("defaults lost: %+v %+v", cfg.Solver, cfg.Survey)
	}

	opts, err := cfg.SolverOptions(nil)
	if err != nil || len(opts) != 4 {
		t.Errorf("Expected 4 solver options, got %d (%v)", len(opts), err)
	}
	if p := cfg.SurveyParams(); p.TransducerDepthM != 7.5 || p.SoundSpeedMPS != 1490 {
		t.Errorf("Unexpected survey params %+v", p)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("ANCHOR_SURVEY_SOUND_SPEED", "-1")
	if _, err := Load(viper.New()); err == nil {
		t.Error("Expected validation error for negative sound speed")
	}
}

func TestDropUnset(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.DropUnset() {
		t.Error("Expected default drop to be reported unset")
	}
	cfg.Survey.DropLatitude = 35.951133
	if cfg.DropUnset() {
		t.Error("Expected drop with a latitude to be set")
	}
	cfg.Survey.DropLatitude = 0
	cfg.Survey.DropLongitude = -75.130367
	if cfg.DropUnset() {
		t.Error("Expected drop with a longitude to be set")
	}
}
