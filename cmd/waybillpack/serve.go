package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/piwi3910/WaybillPack/internal/delivery"
	"github.com/piwi3910/WaybillPack/internal/logger"
	"github.com/piwi3910/WaybillPack/internal/pipeline"
	"github.com/piwi3910/WaybillPack/internal/raster"
	"github.com/piwi3910/WaybillPack/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(global *globalFlags) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP packing service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}

			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			poppler := raster.NewPoppler(cfg.Raster, log)
			if err := poppler.CheckAvailable(ctx); err != nil {
				return err
			}

			var deliverer delivery.Deliverer
			if cfg.Storage.Enabled {
				s3, err := delivery.NewS3Deliverer(ctx, cfg.Storage, delivery.WithLogger(log))
				if err != nil {
					return err
				}
				deliverer = s3
				log.Info("Delivering results to S3", zap.String("bucket", cfg.Storage.Bucket))
			}

			if cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			builder := pipeline.NewFromConfig(poppler, cfg, log)
			return server.New(cfg, builder, deliverer, log).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (default: server.port)")
	return cmd
}
