// Package export writes packed waybill sheets to print-ready documents.
package export

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/go-pdf/fpdf"
	"github.com/piwi3910/WaybillPack/internal/model"
)

// Image formats accepted for embedding sheet canvases.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// Options controls PDF assembly.
type Options struct {
	Layout      model.Layout
	ImageFormat string
	JPEGQuality int
	SummaryPage bool
}

// DefaultOptions returns JPEG output on the default A4 layout.
func DefaultOptions() Options {
	return Options{
		Layout:      model.DefaultLayout(),
		ImageFormat: FormatJPEG,
		JPEGQuality: 90,
	}
}

// OptionsFromConfig builds Options from application configuration.
func OptionsFromConfig(layout model.Layout, cfg model.ExportConfig) Options {
	return Options{
		Layout:      layout,
		ImageFormat: cfg.ImageFormat,
		JPEGQuality: cfg.JPEGQuality,
		SummaryPage: cfg.SummaryPage,
	}
}

// ExportPDF writes one page per sheet to path, in sheet order.
func ExportPDF(path string, result *model.BatchResult, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WritePDF(f, result, opts); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// WritePDF renders the document to w. Every page has the physical size of
// the layout; each sheet canvas fills its page edge to edge.
func WritePDF(w io.Writer, result *model.BatchResult, opts Options) error {
	if result == nil || len(result.Sheets) == 0 {
		return fmt.Errorf("no sheets to export")
	}
	if err := opts.Layout.Validate(); err != nil {
		return fmt.Errorf("invalid layout: %w", err)
	}

	pageW, pageH := opts.Layout.PageSizeMM()
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Packed waybills", true)
	pdf.SetCreator("WaybillPack", true)

	for _, sheet := range result.Sheets {
		if err := addSheetPage(pdf, sheet, opts, pageW, pageH); err != nil {
			return err
		}
	}

	if opts.SummaryPage {
		pdf.AddPage()
		if err := renderSummaryPage(pdf, result, pageW, pageH); err != nil {
			return err
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// addSheetPage embeds one canvas as a full-page image.
func addSheetPage(pdf *fpdf.Fpdf, sheet model.Sheet, opts Options, pageW, pageH float64) error {
	if sheet.Canvas == nil {
		return fmt.Errorf("sheet %d has no canvas", sheet.Index+1)
	}

	data, imageType, err := encodeCanvas(sheet.Canvas, opts)
	if err != nil {
		return fmt.Errorf("failed to encode sheet %d: %w", sheet.Index+1, err)
	}

	name := fmt.Sprintf("sheet_%d", sheet.Index)
	imgOpts := fpdf.ImageOptions{ImageType: imageType}
	pdf.AddPage()
	pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(data))
	pdf.ImageOptions(name, 0, 0, pageW, pageH, false, imgOpts, 0, "")
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to place sheet %d: %w", sheet.Index+1, err)
	}
	return nil
}

// encodeCanvas serializes a canvas in the configured format and returns the
// fpdf image type for it.
func encodeCanvas(img image.Image, opts Options) ([]byte, string, error) {
	var buf bytes.Buffer
	switch opts.ImageFormat {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "PNG", nil
	case FormatJPEG, "":
		quality := opts.JPEGQuality
		if quality < 1 || quality > 100 {
			quality = jpeg.DefaultQuality
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "JPG", nil
	default:
		return nil, "", fmt.Errorf("unsupported image format %q", opts.ImageFormat)
	}
}
