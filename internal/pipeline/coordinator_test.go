package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/piwi3910/WaybillPack/internal/export"
	"github.com/piwi3910/WaybillPack/internal/logger"
	"github.com/piwi3910/WaybillPack/internal/model"
	"github.com/piwi3910/WaybillPack/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testLayout() model.Layout {
	return model.Layout{SheetWidth: 200, SheetHeight: 300, Padding: 10, DPI: 72}
}

// blankPage returns a white page of w x h pixels.
func blankPage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

// markQuadrants puts a small dark block in each listed quadrant of a 100x100 page.
func markQuadrants(qs ...model.Quadrant) *image.RGBA {
	page := blankPage(100, 100)
	for _, q := range qs {
		x0 := 10 + 50*(int(q)%2)
		y0 := 10 + 50*(int(q)/2)
		for y := y0; y < y0+20; y++ {
			for x := x0; x < x0+30; x++ {
				page.Set(x, y, color.Black)
			}
		}
	}
	return page
}

// fakeRasterizer serves pre-built pages by document base name.
func fakeRasterizer(pages map[string][]image.Image) raster.Rasterizer {
	return raster.Func(func(ctx context.Context, path string, dpi int) ([]image.Image, error) {
		p, ok := pages[filepath.Base(path)]
		if !ok {
			return nil, fmt.Errorf("pdftoppm: cannot open %s", path)
		}
		return p, nil
	})
}

func TestExtractPage_FourQuadrants(t *testing.T) {
	c := New(nil, testLayout())

	waybills, err := c.ExtractPage("a.pdf", 1, markQuadrants(model.Quadrants[:]...))
	require.NoError(t, err)
	require.Len(t, waybills, 4)

	for i, w := range waybills {
		assert.Equal(t, model.Quadrants[i], w.Origin.Quadrant)
		assert.Equal(t, "a.pdf", w.Origin.Document)
		assert.Equal(t, 1, w.Origin.Page)
		assert.Equal(t, 30, w.Image.Bounds().Dx(), "trimmed width")
		assert.Equal(t, 20, w.Image.Bounds().Dy(), "trimmed height")
		assert.Len(t, w.ID, 8)
	}
	// Bounds are in page coordinates.
	assert.Equal(t, image.Rect(60, 60, 90, 80), waybills[3].Origin.Bounds)
}

func TestExtractPage_BlankQuadrantsDropped(t *testing.T) {
	c := New(nil, testLayout())

	waybills, err := c.ExtractPage("a.pdf", 2, markQuadrants(model.TopRight))
	require.NoError(t, err)
	require.Len(t, waybills, 1)
	assert.Equal(t, model.TopRight, waybills[0].Origin.Quadrant)

	waybills, err = c.ExtractPage("a.pdf", 3, blankPage(100, 100))
	require.NoError(t, err)
	assert.Empty(t, waybills)
}

func TestExtractPage_DetachedFromPage(t *testing.T) {
	c := New(nil, testLayout())
	page := markQuadrants(model.TopLeft)

	waybills, err := c.ExtractPage("a.pdf", 1, page)
	require.NoError(t, err)
	require.Len(t, waybills, 1)

	// Mutating the page must not affect the extracted waybill.
	page.Set(10, 10, color.White)
	r, g, b, _ := waybills[0].Image.At(10, 10).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0}, [3]uint32{r, g, b})
}

func TestExtractPage_InvalidDimensions(t *testing.T) {
	c := New(nil, testLayout())

	_, err := c.ExtractPage("a.pdf", 1, image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, model.ErrInvalidDimensions)
}

func TestRun_FourContentQuadrantsFillOneSheet(t *testing.T) {
	c := New(fakeRasterizer(map[string][]image.Image{
		"a.pdf": {markQuadrants(model.Quadrants[:]...)},
	}), testLayout())

	result, err := c.Run(context.Background(), []string{"/in/a.pdf"})
	require.NoError(t, err)
	require.Len(t, result.Sheets, 1)
	assert.True(t, result.Sheets[0].Full())
	assert.Equal(t, 4, result.TotalWaybills())
	assert.Equal(t, 0, result.DroppedQuadrants())
}

func TestRun_SingleQuadrantUsesSlotZero(t *testing.T) {
	c := New(fakeRasterizer(map[string][]image.Image{
		"a.pdf": {markQuadrants(model.BottomLeft)},
	}), testLayout())

	result, err := c.Run(context.Background(), []string{"a.pdf"})
	require.NoError(t, err)
	require.Len(t, result.Sheets, 1)
	require.Equal(t, 1, result.Sheets[0].Count())
	assert.Equal(t, 0, result.Sheets[0].Placements[0].Slot)
	assert.Equal(t, model.BottomLeft, result.Sheets[0].Placements[0].Origin.Quadrant)
	assert.Equal(t, 3, result.DroppedQuadrants())
}

func TestRun_NoDocuments(t *testing.T) {
	c := New(fakeRasterizer(nil), testLayout())

	_, err := c.Run(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrEmptyResult)
}

func TestRun_AllBlank(t *testing.T) {
	c := New(fakeRasterizer(map[string][]image.Image{
		"a.pdf": {blankPage(100, 100), blankPage(100, 100)},
		"b.pdf": {blankPage(80, 60)},
	}), testLayout())

	_, err := c.Run(context.Background(), []string{"a.pdf", "b.pdf"})
	assert.ErrorIs(t, err, model.ErrEmptyResult)
}

func TestRun_OrderFollowsFileNamePageAndQuadrant(t *testing.T) {
	pages := map[string][]image.Image{
		"b.pdf": {markQuadrants(model.TopLeft, model.BottomRight)},
		"a.pdf": {markQuadrants(model.TopRight), markQuadrants(model.TopLeft, model.BottomLeft)},
		"c.pdf": {markQuadrants(model.Quadrants[:]...)},
	}
	// Slow down the first document so parallel workers finish out of order.
	base := fakeRasterizer(pages)
	r := raster.Func(func(ctx context.Context, path string, dpi int) ([]image.Image, error) {
		if filepath.Base(path) == "a.pdf" {
			time.Sleep(20 * time.Millisecond)
		}
		return base.Rasterize(ctx, path, dpi)
	})

	c := New(r, testLayout(), WithWorkers(3))
	result, err := c.Run(context.Background(), []string{"c.pdf", "b.pdf", "a.pdf"})
	require.NoError(t, err)

	type key struct {
		doc  string
		page int
		q    model.Quadrant
	}
	var got []key
	for _, s := range result.Sheets {
		for _, p := range s.Placements {
			got = append(got, key{p.Origin.Document, p.Origin.Page, p.Origin.Quadrant})
		}
	}
	want := []key{
		{"a.pdf", 1, model.TopRight},
		{"a.pdf", 2, model.TopLeft},
		{"a.pdf", 2, model.BottomLeft},
		{"b.pdf", 1, model.TopLeft},
		{"b.pdf", 1, model.BottomRight},
		{"c.pdf", 1, model.TopLeft},
		{"c.pdf", 1, model.TopRight},
		{"c.pdf", 1, model.BottomLeft},
		{"c.pdf", 1, model.BottomRight},
	}
	assert.Equal(t, want, got)
	require.Len(t, result.Sheets, 3)
	assert.Equal(t, 1, result.Sheets[2].Count())

	require.Len(t, result.Documents, 3)
	assert.Equal(t, "a.pdf", result.Documents[0].Name)
	assert.Equal(t, 2, result.Documents[0].Pages)
	assert.Equal(t, 3, result.Documents[0].Waybills)
}

func TestRun_UsesConfiguredDPI(t *testing.T) {
	var seen atomic.Int32
	r := raster.Func(func(ctx context.Context, path string, dpi int) ([]image.Image, error) {
		seen.Store(int32(dpi))
		return []image.Image{markQuadrants(model.TopLeft)}, nil
	})

	_, err := New(r, testLayout()).Run(context.Background(), []string{"a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, int32(72), seen.Load(), "defaults to layout DPI")

	_, err = New(r, testLayout(), WithDPI(300)).Run(context.Background(), []string{"a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, int32(300), seen.Load())
}

func TestRun_SkipsZeroSizedPages(t *testing.T) {
	c := New(fakeRasterizer(map[string][]image.Image{
		"a.pdf": {image.NewRGBA(image.Rect(0, 0, 0, 0)), markQuadrants(model.TopLeft)},
	}), testLayout())

	result, err := c.Run(context.Background(), []string{"a.pdf"})
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, 1, result.Documents[0].SkippedPages)
	assert.Equal(t, 2, result.Documents[0].Pages)
	assert.Equal(t, 1, result.TotalWaybills())
}

func TestRun_RasterizationFailureAbortsBatch(t *testing.T) {
	c := New(fakeRasterizer(map[string][]image.Image{
		"a.pdf": {markQuadrants(model.TopLeft)},
	}), testLayout())

	_, err := c.Run(context.Background(), []string{"a.pdf", "broken.pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRasterizationFailed)

	var rerr *model.RasterizationError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "broken.pdf", rerr.Document)
}

func TestRun_ContinueOnError(t *testing.T) {
	c := New(fakeRasterizer(map[string][]image.Image{
		"a.pdf": {markQuadrants(model.TopLeft)},
	}), testLayout(), WithContinueOnError(true), WithWorkers(2))

	result, err := c.Run(context.Background(), []string{"broken.pdf", "a.pdf"})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "broken.pdf", result.Failures[0].Document)
	assert.ErrorIs(t, result.Failures[0].Err, model.ErrRasterizationFailed)
	assert.Len(t, result.Documents, 1)
	assert.Equal(t, 1, result.TotalWaybills())
}

func TestRun_ContinueOnErrorAllFailed(t *testing.T) {
	c := New(fakeRasterizer(nil), testLayout(), WithContinueOnError(true))

	_, err := c.Run(context.Background(), []string{"x.pdf", "y.pdf"})
	assert.ErrorIs(t, err, model.ErrEmptyResult)
}

func TestRun_CancelledContext(t *testing.T) {
	r := raster.Func(func(ctx context.Context, path string, dpi int) ([]image.Image, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("command failed: %w", ctx.Err())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := New(r, testLayout()).Run(ctx, []string{"a.pdf"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, model.ErrRasterizationFailed)
}

func TestRun_InvalidLayout(t *testing.T) {
	layout := testLayout()
	layout.Padding = 1000

	_, err := New(fakeRasterizer(nil), layout).Run(context.Background(), []string{"a.pdf"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrEmptyResult)
}

func TestBuild_WritesDocument(t *testing.T) {
	c := New(fakeRasterizer(map[string][]image.Image{
		"a.pdf": {markQuadrants(model.Quadrants[:]...), markQuadrants(model.TopLeft)},
	}), testLayout())

	out := filepath.Join(t.TempDir(), "merged_output.pdf")
	result, err := c.Build(context.Background(), []string{"a.pdf"}, out, export.DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, result.Sheets, 2)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestBuild_NoFileOnEmptyResult(t *testing.T) {
	c := New(fakeRasterizer(map[string][]image.Image{
		"a.pdf": {blankPage(50, 50)},
	}), testLayout())

	out := filepath.Join(t.TempDir(), "merged_output.pdf")
	_, err := c.Build(context.Background(), []string{"a.pdf"}, out, export.DefaultOptions())
	assert.ErrorIs(t, err, model.ErrEmptyResult)
	assert.NoFileExists(t, out)
}

func TestNewFromConfig(t *testing.T) {
	cfg := model.DefaultAppConfig()
	cfg.Pipeline.Workers = 4
	cfg.Pipeline.ContinueOnError = true
	cfg.Raster.DPI = 150

	c := NewFromConfig(nil, cfg, nil)
	assert.Equal(t, 4, c.workers)
	assert.True(t, c.continueOnError)
	assert.Equal(t, 150, c.dpi)
	assert.Equal(t, cfg.Layout, c.layout)
}

func TestRun_LogsWithContextLogger(t *testing.T) {
	pages := map[string][]image.Image{"a.pdf": {markQuadrants(model.TopLeft)}}

	own, ownLogs := observer.New(zapcore.DebugLevel)
	c := New(fakeRasterizer(pages), testLayout(), WithLogger(zap.New(own)))

	req, reqLogs := observer.New(zapcore.DebugLevel)
	ctx := logger.WithContext(context.Background(), zap.New(req).With(zap.String("request_id", "req-9")))

	_, err := c.Run(ctx, []string{"a.pdf"})
	require.NoError(t, err)

	packed := reqLogs.FilterMessage("Batch packed").All()
	require.Len(t, packed, 1)
	assert.Equal(t, "req-9", packed[0].ContextMap()["request_id"])
	assert.Equal(t, "pipeline", packed[0].LoggerName)
	assert.Equal(t, 1, reqLogs.FilterMessage("Document processed").Len())
	assert.Zero(t, ownLogs.Len())

	// Without a context logger the coordinator's own logger is used.
	_, err = c.Run(context.Background(), []string{"a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, ownLogs.FilterMessage("Batch packed").Len())
}

func TestRun_DuplicateInputsProcessedOnce(t *testing.T) {
	var calls atomic.Int32
	page := markQuadrants(model.TopLeft, model.BottomRight)
	r := raster.Func(func(ctx context.Context, path string, dpi int) ([]image.Image, error) {
		calls.Add(1)
		return []image.Image{page}, nil
	})

	result, err := New(r, testLayout(), WithWorkers(2)).Run(context.Background(), []string{"/in/a.pdf", "/in/a.pdf", "/in/./a.pdf"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	require.Len(t, result.Documents, 1)
	assert.Equal(t, 2, result.TotalWaybills())
}
