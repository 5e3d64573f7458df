package export

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/piwi3910/WaybillPack/internal/model"
)

func testLayout() model.Layout {
	return model.Layout{SheetWidth: 200, SheetHeight: 300, Padding: 10, DPI: 72}
}

func newCanvas(layout model.Layout, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, layout.SheetWidth, layout.SheetHeight))
	for y := 0; y < layout.SheetHeight; y++ {
		for x := 0; x < layout.SheetWidth; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// buildTestResult creates a two-sheet batch: one full sheet and one with a
// single waybill.
func buildTestResult(layout model.Layout) *model.BatchResult {
	result := model.NewBatchResult()
	result.Documents = []model.DocumentStats{
		{Name: "a.pdf", Pages: 1, Waybills: 4},
		{Name: "b.pdf", Pages: 2, Waybills: 1, SkippedPages: 1},
	}

	full := model.Sheet{Index: 0, Canvas: newCanvas(layout, color.RGBA{200, 0, 0, 255})}
	for i, q := range model.Quadrants {
		full.Placements = append(full.Placements, model.Placement{
			WaybillID: "wb" + q.String(),
			Origin:    model.Origin{Document: "a.pdf", Page: 1, Quadrant: q, Bounds: image.Rect(1, 2, 30, 40)},
			Slot:      i,
		})
	}
	partial := model.Sheet{Index: 1, Canvas: newCanvas(layout, color.White)}
	partial.Placements = []model.Placement{{
		WaybillID: "last",
		Origin:    model.Origin{Document: "b.pdf", Page: 2, Quadrant: model.BottomRight},
		Slot:      0,
	}}

	result.Sheets = []model.Sheet{full, partial}
	return &result
}

func TestExportPDF_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merged_output.pdf")

	opts := DefaultOptions()
	opts.Layout = testLayout()

	if err := ExportPDF(path, buildTestResult(opts.Layout), opts); err != nil {
		t.Fatalf("ExportPDF returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("PDF file was not created: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatal("output does not start with a PDF header")
	}
	if got := countPages(data); got != 2 {
		t.Errorf("expected 2 pages, got %d", got)
	}
}

func TestExportPDF_EmptyResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.pdf")

	result := model.NewBatchResult()
	err := ExportPDF(path, &result, DefaultOptions())
	if err == nil {
		t.Fatal("expected error for empty result, got nil")
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("no file should be left behind on failure")
	}
}

func TestWritePDF_NilResult(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, nil, DefaultOptions()); err == nil {
		t.Fatal("expected error for nil result")
	}
}

func TestWritePDF_PNGFormat(t *testing.T) {
	opts := DefaultOptions()
	opts.Layout = testLayout()
	opts.ImageFormat = FormatPNG

	var buf bytes.Buffer
	if err := WritePDF(&buf, buildTestResult(opts.Layout), opts); err != nil {
		t.Fatalf("WritePDF returned error: %v", err)
	}
	if countPages(buf.Bytes()) != 2 {
		t.Errorf("expected 2 pages, got %d", countPages(buf.Bytes()))
	}
}

func TestWritePDF_UnsupportedFormat(t *testing.T) {
	opts := DefaultOptions()
	opts.Layout = testLayout()
	opts.ImageFormat = "tiff"

	var buf bytes.Buffer
	if err := WritePDF(&buf, buildTestResult(opts.Layout), opts); err == nil {
		t.Fatal("expected error for unsupported image format")
	}
}

func TestWritePDF_MissingCanvas(t *testing.T) {
	opts := DefaultOptions()
	opts.Layout = testLayout()
	result := buildTestResult(opts.Layout)
	result.Sheets[1].Canvas = nil

	var buf bytes.Buffer
	if err := WritePDF(&buf, result, opts); err == nil {
		t.Fatal("expected error for sheet without canvas")
	}
}

func TestWritePDF_InvalidLayout(t *testing.T) {
	opts := DefaultOptions()
	opts.Layout.DPI = 0

	var buf bytes.Buffer
	if err := WritePDF(&buf, buildTestResult(testLayout()), opts); err == nil {
		t.Fatal("expected error for invalid layout")
	}
}

func TestWritePDF_SummaryPage(t *testing.T) {
	opts := DefaultOptions()
	opts.SummaryPage = true
	result := buildTestResult(opts.Layout)
	result.Failures = []model.DocumentFailure{{Document: "broken.pdf", Message: "rasterize broken.pdf: exit status 1"}}

	var buf bytes.Buffer
	if err := WritePDF(&buf, result, opts); err != nil {
		t.Fatalf("WritePDF returned error: %v", err)
	}
	if got := countPages(buf.Bytes()); got != 3 {
		t.Errorf("expected 2 sheets plus summary, got %d pages", got)
	}
}

func TestWritePDF_PageSizeFollowsLayout(t *testing.T) {
	opts := DefaultOptions()
	result := buildTestResult(opts.Layout)

	var buf bytes.Buffer
	if err := WritePDF(&buf, result, opts); err != nil {
		t.Fatalf("WritePDF returned error: %v", err)
	}
	// 2480x3508 px at 300 DPI in points.
	if !strings.Contains(buf.String(), "/MediaBox [0 0 595.20 841.92]") {
		t.Error("expected the media box to follow the layout")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := model.DefaultAppConfig()
	cfg.Export.ImageFormat = FormatPNG
	cfg.Export.SummaryPage = true

	opts := OptionsFromConfig(cfg.Layout, cfg.Export)
	if opts.ImageFormat != FormatPNG || !opts.SummaryPage {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.Layout != cfg.Layout {
		t.Error("layout not carried over")
	}
}

func TestSummarize(t *testing.T) {
	result := buildTestResult(testLayout())
	result.Failures = []model.DocumentFailure{{Document: "broken.pdf"}}

	s := Summarize(result)
	if s.BatchID != result.ID {
		t.Errorf("expected batch id %s, got %s", result.ID, s.BatchID)
	}
	if s.Pages != 3 || s.Waybills != 5 || s.Sheets != 2 {
		t.Errorf("unexpected totals: %+v", s)
	}
	// a.pdf: 4 scanned, 4 found; b.pdf: 4 scanned, 1 found.
	if s.Dropped != 3 {
		t.Errorf("expected 3 dropped quadrants, got %d", s.Dropped)
	}
	if len(s.Documents) != 2 || s.Documents[0] != "a.pdf" {
		t.Errorf("unexpected documents: %v", s.Documents)
	}
	if len(s.Failed) != 1 || s.Failed[0] != "broken.pdf" {
		t.Errorf("unexpected failures: %v", s.Failed)
	}
}

// countPages counts page objects in an uncompressed-dictionary PDF.
func countPages(data []byte) int {
	return bytes.Count(data, []byte("/Type /Page\n")) + bytes.Count(data, []byte("/Type /Page\r"))
}
