// Package server exposes waybill packing over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/piwi3910/WaybillPack/internal/delivery"
	"github.com/piwi3910/WaybillPack/internal/export"
	"github.com/piwi3910/WaybillPack/internal/logger"
	"github.com/piwi3910/WaybillPack/internal/model"
	"go.uber.org/zap"
)

// GracefulShutdownTimeout bounds how long in-flight requests may finish.
const GracefulShutdownTimeout = 10 * time.Second

// Builder turns source documents into a merged output file.
type Builder interface {
	Build(ctx context.Context, docs []string, outPath string, opts export.Options) (*model.BatchResult, error)
}

// Server handles packing requests.
type Server struct {
	cfg       model.AppConfig
	builder   Builder
	deliverer delivery.Deliverer
	logger    *zap.Logger
	engine    *gin.Engine
}

// New creates a server. A nil deliverer returns documents in the response
// body; otherwise the response carries the delivery receipt.
func New(cfg model.AppConfig, builder Builder, deliverer delivery.Deliverer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		builder:   builder,
		deliverer: deliverer,
		logger:    log.Named("server"),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(logger.RequestID(), logger.GinMiddleware(s.logger), logger.Recovery(s.logger))
	r.MaxMultipartMemory = 8 << 20

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "waybillpack",
		})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/waybills", s.handlePack)
	}
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer returns an http.Server configured from ServerConfig.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", s.cfg.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := s.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.Int64("max_upload_size", s.cfg.Server.MaxUploadSize),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("Server exited gracefully")
	return nil
}
