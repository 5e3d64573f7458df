package model

import (
	"fmt"
	"time"
)

// AppConfig holds application-wide settings for the CLI and the service.
type AppConfig struct {
	Layout   Layout         `json:"layout"`
	Raster   RasterConfig   `json:"raster"`
	Pipeline PipelineConfig `json:"pipeline"`
	Export   ExportConfig   `json:"export"`
	Archive  ArchiveConfig  `json:"archive"`
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Log      LogConfig      `json:"log"`
}

// RasterConfig configures the external PDF rasterizer.
type RasterConfig struct {
	Binary  string        `json:"binary"`  // pdftoppm executable
	DPI     int           `json:"dpi"`     // Render resolution
	Timeout time.Duration `json:"timeout"` // Per-document limit
	TempDir string        `json:"temp_dir"`
}

// PipelineConfig controls how documents are scheduled.
type PipelineConfig struct {
	Workers         int           `json:"workers"`           // Documents rasterized in parallel
	ContinueOnError bool          `json:"continue_on_error"` // Skip documents that fail to rasterize
	JobTimeout      time.Duration `json:"job_timeout"`       // Deadline for a whole run
}

// ExportConfig controls how sheets are written to the output PDF.
type ExportConfig struct {
	ImageFormat string `json:"image_format"` // "jpeg" or "png"
	JPEGQuality int    `json:"jpeg_quality"`
	SummaryPage bool   `json:"summary_page"`
	OutputName  string `json:"output_name"`
}

// ArchiveConfig bounds what an uploaded ZIP may expand to.
type ArchiveConfig struct {
	MaxEntries    int   `json:"max_entries"`
	MaxEntryBytes int64 `json:"max_entry_bytes"`
	MaxTotalBytes int64 `json:"max_total_bytes"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port          string        `json:"port"`
	WorkDir       string        `json:"work_dir"`
	MaxUploadSize int64         `json:"max_upload_size"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	IdleTimeout   time.Duration `json:"idle_timeout"`
}

// StorageConfig configures optional S3-compatible delivery.
type StorageConfig struct {
	Enabled           bool          `json:"enabled"`
	Endpoint          string        `json:"endpoint"`
	Region            string        `json:"region"`
	Bucket            string        `json:"bucket"`
	Prefix            string        `json:"prefix"`
	AccessKey         string        `json:"access_key"`
	SecretKey         string        `json:"secret_key"`
	UsePathStyle      bool          `json:"use_path_style"`
	PresignExpiration time.Duration `json:"presign_expiration"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, console
	Output string `json:"output"` // stdout, stderr, or file path
}

// DefaultAppConfig returns an AppConfig populated with working defaults.
func DefaultAppConfig() AppConfig {
	layout := DefaultLayout()
	return AppConfig{
		Layout: layout,
		Raster: RasterConfig{
			Binary:  "pdftoppm",
			DPI:     layout.DPI,
			Timeout: 2 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Workers:    1,
			JobTimeout: 10 * time.Minute,
		},
		Export: ExportConfig{
			ImageFormat: "jpeg",
			JPEGQuality: 90,
			OutputName:  "merged_output.pdf",
		},
		Archive: ArchiveConfig{
			MaxEntries:    1000,
			MaxEntryBytes: 100 << 20,
			MaxTotalBytes: 500 << 20,
		},
		Server: ServerConfig{
			Port:          "8080",
			MaxUploadSize: 50 << 20,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  10 * time.Minute,
			IdleTimeout:   60 * time.Second,
		},
		Storage: StorageConfig{
			Region:            "us-east-1",
			PresignExpiration: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c AppConfig) Validate() error {
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	if c.Raster.DPI <= 0 {
		return fmt.Errorf("raster: dpi must be positive, got %d", c.Raster.DPI)
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline: workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	switch c.Export.ImageFormat {
	case "jpeg", "png":
	default:
		return fmt.Errorf("export: unsupported image format %q", c.Export.ImageFormat)
	}
	if c.Export.JPEGQuality < 1 || c.Export.JPEGQuality > 100 {
		return fmt.Errorf("export: jpeg quality must be 1-100, got %d", c.Export.JPEGQuality)
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage: bucket is required when storage is enabled")
	}
	return nil
}
