// Package pipeline drives a batch from source documents to packed sheets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/piwi3910/WaybillPack/internal/archive"
	"github.com/piwi3910/WaybillPack/internal/engine"
	"github.com/piwi3910/WaybillPack/internal/export"
	"github.com/piwi3910/WaybillPack/internal/logger"
	"github.com/piwi3910/WaybillPack/internal/model"
	"github.com/piwi3910/WaybillPack/internal/raster"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Coordinator rasterizes documents, extracts waybills and packs them.
type Coordinator struct {
	rasterizer      raster.Rasterizer
	layout          model.Layout
	dpi             int
	workers         int
	continueOnError bool
	logger          *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDPI sets the rasterization resolution.
func WithDPI(dpi int) Option {
	return func(c *Coordinator) {
		if dpi > 0 {
			c.dpi = dpi
		}
	}
}

// WithWorkers sets how many documents are rasterized concurrently.
func WithWorkers(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithContinueOnError records failing documents instead of aborting the batch.
func WithContinueOnError(enabled bool) Option {
	return func(c *Coordinator) {
		c.continueOnError = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a coordinator. DPI defaults to the layout DPI.
func New(r raster.Rasterizer, layout model.Layout, opts ...Option) *Coordinator {
	c := &Coordinator{
		rasterizer: r,
		layout:     layout,
		dpi:        layout.DPI,
		workers:    1,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("pipeline")
	return c
}

// NewFromConfig creates a coordinator from application configuration.
func NewFromConfig(r raster.Rasterizer, cfg model.AppConfig, log *zap.Logger) *Coordinator {
	return New(r, cfg.Layout,
		WithDPI(cfg.Raster.DPI),
		WithWorkers(cfg.Pipeline.Workers),
		WithContinueOnError(cfg.Pipeline.ContinueOnError),
		WithLogger(log),
	)
}

// ExtractPage splits one page into quadrants and returns the non-blank ones,
// trimmed and detached from the page buffer, in quadrant order.
func (c *Coordinator) ExtractPage(doc string, pageNum int, page image.Image) ([]model.Waybill, error) {
	quads, err := engine.Split(page)
	if err != nil {
		return nil, fmt.Errorf("%s page %d: %w", doc, pageNum, err)
	}

	var out []model.Waybill
	for i, q := range quads {
		trimmed, ok := engine.Trim(q, engine.Background())
		if !ok {
			continue
		}
		// Quadrants keep page coordinates, so the trimmed bounds locate
		// the waybill on the page.
		out = append(out, model.NewWaybill(engine.Clone(trimmed), model.Origin{
			Document: doc,
			Page:     pageNum,
			Quadrant: model.Quadrants[i],
			Bounds:   trimmed.Bounds(),
		}))
	}
	return out, nil
}

// loggerFor prefers a request-scoped logger carried by ctx so batch logs
// keep its fields, such as the request ID.
func (c *Coordinator) loggerFor(ctx context.Context) *zap.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l.Named("pipeline")
	}
	return c.logger
}

// documentResult is the outcome of one document, stored by input index.
type documentResult struct {
	stats    model.DocumentStats
	waybills []model.Waybill
	err      error
}

// Run processes docs in file-name order and packs every waybill found.
// Documents may be rasterized in parallel; results are joined in input
// order so sheet contents follow (document, page, quadrant) order.
func (c *Coordinator) Run(ctx context.Context, docs []string) (*model.BatchResult, error) {
	if err := c.layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}

	log := c.loggerFor(ctx)
	sorted := archive.SortByName(docs)
	results := make([]documentResult, len(sorted))
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, doc := range sorted {
		g.Go(func() error {
			res := c.processDocument(gctx, doc)
			results[i] = res
			if res.err != nil && !c.continueOnError {
				return res.err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := model.NewBatchResult()
	var buffer []model.Waybill
	for _, res := range results {
		if res.err != nil {
			log.Warn("Skipping document",
				zap.String("document", res.stats.Name),
				zap.Error(res.err),
			)
			result.Failures = append(result.Failures, model.DocumentFailure{
				Document: res.stats.Name,
				Err:      res.err,
				Message:  res.err.Error(),
			})
			continue
		}
		result.Documents = append(result.Documents, res.stats)
		buffer = append(buffer, res.waybills...)
	}

	if len(buffer) == 0 {
		return nil, model.ErrEmptyResult
	}

	result.Sheets = engine.Compose(c.layout, buffer)

	log.Info("Batch packed",
		zap.String("batch", result.ID),
		zap.Int("documents", len(result.Documents)),
		zap.Int("failures", len(result.Failures)),
		zap.Int("pages", result.TotalPages()),
		zap.Int("waybills", len(buffer)),
		zap.Int("sheets", len(result.Sheets)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &result, nil
}

// processDocument rasterizes one document and extracts its waybills in page order.
func (c *Coordinator) processDocument(ctx context.Context, doc string) documentResult {
	log := c.loggerFor(ctx)
	name := filepath.Base(doc)
	res := documentResult{stats: model.DocumentStats{Name: name}}

	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	pages, err := c.rasterizer.Rasterize(ctx, doc, c.dpi)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.err = ctxErr
		} else {
			res.err = model.NewRasterizationError(name, err)
		}
		return res
	}
	res.stats.Pages = len(pages)

	for i, page := range pages {
		waybills, err := c.ExtractPage(name, i+1, page)
		if errors.Is(err, model.ErrInvalidDimensions) {
			log.Warn("Skipping page", zap.String("document", name), zap.Int("page", i+1), zap.Error(err))
			res.stats.SkippedPages++
			continue
		}
		if err != nil {
			res.err = err
			return res
		}
		res.waybills = append(res.waybills, waybills...)
	}
	res.stats.Waybills = len(res.waybills)

	log.Debug("Document processed",
		zap.String("document", name),
		zap.Int("pages", res.stats.Pages),
		zap.Int("waybills", res.stats.Waybills),
	)
	return res
}

// Build runs the batch and writes the merged document to outPath.
// No file is written when the run fails.
func (c *Coordinator) Build(ctx context.Context, docs []string, outPath string, opts export.Options) (*model.BatchResult, error) {
	result, err := c.Run(ctx, docs)
	if err != nil {
		return nil, err
	}
	opts.Layout = c.layout
	if err := export.ExportPDF(outPath, result, opts); err != nil {
		return nil, fmt.Errorf("failed to assemble document: %w", err)
	}
	return result, nil
}
