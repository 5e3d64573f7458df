package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/piwi3910/WaybillPack/internal/archive"
	"github.com/piwi3910/WaybillPack/internal/config"
	"github.com/piwi3910/WaybillPack/internal/delivery"
	"github.com/piwi3910/WaybillPack/internal/export"
	"github.com/piwi3910/WaybillPack/internal/logger"
	"github.com/piwi3910/WaybillPack/internal/model"
	"github.com/piwi3910/WaybillPack/internal/pipeline"
	"github.com/piwi3910/WaybillPack/internal/raster"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type packFlags struct {
	output          string
	manifest        string
	summary         bool
	workers         int
	continueOnError bool
	format          string
	upload          bool
}

func newPackCmd(global *globalFlags) *cobra.Command {
	flags := &packFlags{}

	cmd := &cobra.Command{
		Use:   "pack <input>...",
		Short: "Pack waybills from PDFs, ZIP archives or directories into one PDF",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			applyPackFlags(cmd, flags, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runPack(cmd.Context(), cfg, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output PDF path (default: export.output_name)")
	cmd.Flags().StringVar(&flags.manifest, "manifest", "", "Also write an XLSX manifest to this path")
	cmd.Flags().BoolVar(&flags.summary, "summary", false, "Append a summary page with a QR code")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Documents rasterized in parallel")
	cmd.Flags().BoolVar(&flags.continueOnError, "continue-on-error", false, "Skip documents that fail to rasterize")
	cmd.Flags().StringVar(&flags.format, "format", "", "Sheet image encoding: jpeg or png")
	cmd.Flags().BoolVar(&flags.upload, "upload", false, "Upload the result to the configured S3 bucket")
	return cmd
}

// applyPackFlags overrides configuration with explicitly set flags.
func applyPackFlags(cmd *cobra.Command, flags *packFlags, cfg *model.AppConfig) {
	if cmd.Flags().Changed("summary") {
		cfg.Export.SummaryPage = flags.summary
	}
	if cmd.Flags().Changed("workers") {
		cfg.Pipeline.Workers = flags.workers
	}
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Pipeline.ContinueOnError = flags.continueOnError
	}
	if flags.format != "" {
		cfg.Export.ImageFormat = strings.ToLower(flags.format)
	}
}

func runPack(parent context.Context, cfg model.AppConfig, flags *packFlags, args []string) error {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Pipeline.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Pipeline.JobTimeout)
		defer cancel()
	}

	ws, err := archive.NewWorkspace(cfg.Raster.TempDir)
	if err != nil {
		return err
	}
	defer ws.Cleanup() //nolint:errcheck

	docs, err := collectDocuments(args, ws, cfg.Archive)
	if err != nil {
		return err
	}
	log.Info("Packing documents", zap.Int("documents", len(docs)), zap.Int("workers", cfg.Pipeline.Workers))

	poppler := raster.NewPoppler(cfg.Raster, log)
	if err := poppler.CheckAvailable(ctx); err != nil {
		return err
	}

	name := filepath.Base(cfg.Export.OutputName)
	coordinator := pipeline.NewFromConfig(poppler, cfg, log)
	result, err := coordinator.Build(ctx, docs, ws.Path(name), export.OptionsFromConfig(cfg.Layout, cfg.Export))
	if err != nil {
		log.Debug("Batch failed", zap.Error(err))
		return errors.New(delivery.FailureMessage(err))
	}

	if flags.manifest != "" {
		if err := export.ExportManifest(flags.manifest, result); err != nil {
			return err
		}
		log.Info("Manifest written", zap.String("path", flags.manifest))
	}

	deliverer, err := packDeliverer(ctx, cfg, flags, name, log)
	if err != nil {
		return err
	}
	receipt, err := deliverer.Deliver(ctx, delivery.Artifact{Path: ws.Path(name), Name: name, Result: result})
	if err != nil {
		return err
	}

	fmt.Println(receipt.Caption)
	fmt.Println(receipt.Location)
	if receipt.URL != "" {
		fmt.Println(receipt.URL)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", f.Document, f.Message)
	}
	return nil
}

func packDeliverer(ctx context.Context, cfg model.AppConfig, flags *packFlags, name string, log *zap.Logger) (delivery.Deliverer, error) {
	if flags.upload {
		if cfg.Storage.Bucket == "" {
			return nil, fmt.Errorf("--upload requires storage.bucket to be configured")
		}
		return delivery.NewS3Deliverer(ctx, cfg.Storage, delivery.WithLogger(log))
	}
	out := flags.output
	if out == "" {
		out = name
	}
	return delivery.NewFileDeliverer(out), nil
}

// collectDocuments expands inputs into PDF paths. Directories contribute
// the PDFs directly inside them and ZIP archives are extracted into ws.
func collectDocuments(inputs []string, ws *archive.Workspace, limits model.ArchiveConfig) ([]string, error) {
	var docs []string
	for i, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input not found: %s", in)
		}

		switch {
		case info.IsDir():
			found, err := archive.ListPDFs(in)
			if err != nil {
				return nil, err
			}
			docs = append(docs, found...)
		case strings.EqualFold(filepath.Ext(in), ".zip"):
			found, err := archive.ExtractPDFs(in, ws.Path(fmt.Sprintf("zip-%d", i)), limits)
			if err != nil {
				return nil, err
			}
			docs = append(docs, found...)
		case archive.IsPDF(in):
			docs = append(docs, in)
		default:
			return nil, fmt.Errorf("unsupported input %s: expected .pdf, .zip or a directory", in)
		}
	}
	return docs, nil
}

// loadConfig reads configuration and applies global flag overrides.
func loadConfig(global *globalFlags) (model.AppConfig, error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return model.AppConfig{}, err
	}
	if global.logLevel != "" {
		cfg.Log.Level = global.logLevel
	}
	return cfg, nil
}
