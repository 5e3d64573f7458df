// Package config loads application settings from files, the environment
// and built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/piwi3910/WaybillPack/internal/model"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WAYBILL_LAYOUT_PADDING.
const EnvPrefix = "WAYBILL"

// DefaultConfigDir returns ~/.waybillpack.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".waybillpack")
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads configuration.
//
// Priority (highest to lowest):
//  1. Environment variables with the WAYBILL_ prefix
//  2. The file at path, or config.{json,yaml,toml} found in . or ~/.waybillpack
//  3. model.DefaultAppConfig
//
// An explicit path must exist; a searched file may be absent.
func Load(path string) (model.AppConfig, error) {
	v := viper.New()
	setDefaults(v, model.DefaultAppConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return model.AppConfig{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := model.AppConfig{
		Layout: model.Layout{
			SheetWidth:  v.GetInt("layout.sheet_width"),
			SheetHeight: v.GetInt("layout.sheet_height"),
			Padding:     v.GetInt("layout.padding"),
			DPI:         v.GetInt("layout.dpi"),
		},
		Raster: model.RasterConfig{
			Binary:  v.GetString("raster.binary"),
			DPI:     v.GetInt("raster.dpi"),
			Timeout: v.GetDuration("raster.timeout"),
			TempDir: v.GetString("raster.temp_dir"),
		},
		Pipeline: model.PipelineConfig{
			Workers:         v.GetInt("pipeline.workers"),
			ContinueOnError: v.GetBool("pipeline.continue_on_error"),
			JobTimeout:      v.GetDuration("pipeline.job_timeout"),
		},
		Export: model.ExportConfig{
			ImageFormat: strings.ToLower(v.GetString("export.image_format")),
			JPEGQuality: v.GetInt("export.jpeg_quality"),
			SummaryPage: v.GetBool("export.summary_page"),
			OutputName:  v.GetString("export.output_name"),
		},
		Archive: model.ArchiveConfig{
			MaxEntries:    v.GetInt("archive.max_entries"),
			MaxEntryBytes: v.GetInt64("archive.max_entry_bytes"),
			MaxTotalBytes: v.GetInt64("archive.max_total_bytes"),
		},
		Server: model.ServerConfig{
			Port:          v.GetString("server.port"),
			WorkDir:       v.GetString("server.work_dir"),
			MaxUploadSize: v.GetInt64("server.max_upload_size"),
			ReadTimeout:   v.GetDuration("server.read_timeout"),
			WriteTimeout:  v.GetDuration("server.write_timeout"),
			IdleTimeout:   v.GetDuration("server.idle_timeout"),
		},
		Storage: model.StorageConfig{
			Enabled:           v.GetBool("storage.enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			Prefix:            v.GetString("storage.prefix"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Log: model.LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return model.AppConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d model.AppConfig) {
	v.SetDefault("layout.sheet_width", d.Layout.SheetWidth)
	v.SetDefault("layout.sheet_height", d.Layout.SheetHeight)
	v.SetDefault("layout.padding", d.Layout.Padding)
	v.SetDefault("layout.dpi", d.Layout.DPI)

	v.SetDefault("raster.binary", d.Raster.Binary)
	v.SetDefault("raster.dpi", d.Raster.DPI)
	v.SetDefault("raster.timeout", d.Raster.Timeout)
	v.SetDefault("raster.temp_dir", d.Raster.TempDir)

	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.continue_on_error", d.Pipeline.ContinueOnError)
	v.SetDefault("pipeline.job_timeout", d.Pipeline.JobTimeout)

	v.SetDefault("export.image_format", d.Export.ImageFormat)
	v.SetDefault("export.jpeg_quality", d.Export.JPEGQuality)
	v.SetDefault("export.summary_page", d.Export.SummaryPage)
	v.SetDefault("export.output_name", d.Export.OutputName)

	v.SetDefault("archive.max_entries", d.Archive.MaxEntries)
	v.SetDefault("archive.max_entry_bytes", d.Archive.MaxEntryBytes)
	v.SetDefault("archive.max_total_bytes", d.Archive.MaxTotalBytes)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.work_dir", d.Server.WorkDir)
	v.SetDefault("server.max_upload_size", d.Server.MaxUploadSize)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)

	v.SetDefault("storage.enabled", d.Storage.Enabled)
	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.region", d.Storage.Region)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.prefix", d.Storage.Prefix)
	v.SetDefault("storage.access_key", d.Storage.AccessKey)
	v.SetDefault("storage.secret_key", d.Storage.SecretKey)
	v.SetDefault("storage.use_path_style", d.Storage.UsePathStyle)
	v.SetDefault("storage.presign_expiration", d.Storage.PresignExpiration)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
}

// Save persists cfg to path as JSON, creating parent directories.
// Credentials are not written.
func Save(path string, cfg model.AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	cfg.Storage.AccessKey = ""
	cfg.Storage.SecretKey = ""
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
