package model

import (
	"testing"
)

func TestDefaultAppConfigValues(t *testing.T) {
	cfg := DefaultAppConfig()
	defaults := DefaultLayout()

	if cfg.Layout != defaults {
		t.Errorf("expected default layout %+v, got %+v", defaults, cfg.Layout)
	}
	if cfg.Raster.DPI != 300 {
		t.Errorf("expected raster DPI 300, got %d", cfg.Raster.DPI)
	}
	if cfg.Raster.Binary != "pdftoppm" {
		t.Errorf("expected pdftoppm, got %s", cfg.Raster.Binary)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("expected 1 worker, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.ContinueOnError {
		t.Error("expected abort-on-error by default")
	}
	if cfg.Export.OutputName != "merged_output.pdf" {
		t.Errorf("unexpected output name %s", cfg.Export.OutputName)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestAppConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"bad layout", func(c *AppConfig) { c.Layout.Padding = 5000 }},
		{"zero dpi", func(c *AppConfig) { c.Raster.DPI = 0 }},
		{"no workers", func(c *AppConfig) { c.Pipeline.Workers = 0 }},
		{"bad format", func(c *AppConfig) { c.Export.ImageFormat = "tiff" }},
		{"bad quality", func(c *AppConfig) { c.Export.JPEGQuality = 101 }},
		{"storage without bucket", func(c *AppConfig) { c.Storage.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
