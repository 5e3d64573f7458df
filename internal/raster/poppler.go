package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/piwi3910/WaybillPack/internal/logger"
	"github.com/piwi3910/WaybillPack/internal/model"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single pdftoppm invocation.
const DefaultTimeout = 2 * time.Minute

// pagePrefix is the file name stem pdftoppm writes pages under.
const pagePrefix = "page"

// Poppler rasterizes documents with the pdftoppm command from poppler-utils.
type Poppler struct {
	binary  string
	timeout time.Duration
	tempDir string
	logger  *zap.Logger
}

// NewPoppler creates a rasterizer from configuration.
func NewPoppler(cfg model.RasterConfig, log *zap.Logger) *Poppler {
	if log == nil {
		log = zap.NewNop()
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "pdftoppm"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poppler{
		binary:  binary,
		timeout: timeout,
		tempDir: cfg.TempDir,
		logger:  log.Named("raster"),
	}
}

// CheckAvailable verifies the pdftoppm binary can be executed.
func (p *Poppler) CheckAvailable(ctx context.Context) error {
	if _, err := p.run(ctx, "-v"); err != nil {
		return fmt.Errorf("%s not available: %w", p.binary, err)
	}
	return nil
}

// Rasterize renders all pages of the PDF at path as PNG and decodes them.
func (p *Poppler) Rasterize(ctx context.Context, path string, dpi int) ([]image.Image, error) {
	if dpi <= 0 {
		return nil, fmt.Errorf("invalid dpi %d", dpi)
	}

	dir, err := os.MkdirTemp(p.tempDir, "raster-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create raster directory: %w", err)
	}
	defer os.RemoveAll(dir)

	start := time.Now()
	prefix := filepath.Join(dir, pagePrefix)
	if output, err := p.run(ctx, "-r", strconv.Itoa(dpi), "-png", path, prefix); err != nil {
		return nil, fmt.Errorf("%w\nOutput: %s", err, strings.TrimSpace(string(output)))
	}

	files, err := pageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no pages rendered")
	}

	pages := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := decodePNG(f)
		if err != nil {
			return nil, err
		}
		pages = append(pages, img)
	}

	log := p.logger
	if l, ok := logger.Lookup(ctx); ok {
		log = l.Named("raster")
	}
	log.Debug("Rasterized document",
		zap.String("document", filepath.Base(path)),
		zap.Int("pages", len(pages)),
		zap.Int("dpi", dpi),
		zap.Duration("elapsed", time.Since(start)),
	)
	return pages, nil
}

// run executes the binary with a timeout.
func (p *Poppler) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, args...)
	output, err := cmd.CombinedOutput()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("command timed out after %v", p.timeout)
	}
	if err != nil {
		return output, fmt.Errorf("command failed: %w", err)
	}
	return output, nil
}

// pageFiles lists the rendered PNGs ordered by numeric page number.
func pageFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pagePrefix+"-*.png"))
	if err != nil {
		return nil, err
	}

	type numbered struct {
		path string
		page int
	}
	pages := make([]numbered, 0, len(matches))
	for _, m := range matches {
		n, ok := pageNumber(filepath.Base(m))
		if !ok {
			continue
		}
		pages = append(pages, numbered{path: m, page: n})
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].page < pages[j].page
	})

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.path
	}
	return out, nil
}

// pageNumber extracts N from "page-N.png".
func pageNumber(name string) (int, bool) {
	s := strings.TrimSuffix(strings.TrimPrefix(name, pagePrefix+"-"), ".png")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
