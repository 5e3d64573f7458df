package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/piwi3910/WaybillPack/internal/model"
	qrcode "github.com/skip2/go-qrcode"
)

// BatchSummary is the data encoded into the summary page QR code.
type BatchSummary struct {
	BatchID   string   `json:"batch"`
	Documents []string `json:"documents"`
	Pages     int      `json:"pages"`
	Waybills  int      `json:"waybills"`
	Sheets    int      `json:"sheets"`
	Dropped   int      `json:"dropped"`
	Failed    []string `json:"failed,omitempty"`
}

// Summary page layout in mm.
const (
	summaryMargin = 15.0
	summaryQRSize = 40.0
	rowHeight     = 6.0
)

// Summarize collects the batch statistics shown on the summary page.
func Summarize(result *model.BatchResult) BatchSummary {
	s := BatchSummary{
		BatchID:   result.ID,
		Documents: make([]string, 0, len(result.Documents)),
		Pages:     result.TotalPages(),
		Waybills:  result.TotalWaybills(),
		Sheets:    len(result.Sheets),
		Dropped:   result.DroppedQuadrants(),
	}
	for _, d := range result.Documents {
		s.Documents = append(s.Documents, d.Name)
	}
	for _, f := range result.Failures {
		s.Failed = append(s.Failed, f.Document)
	}
	return s
}

// renderSummaryPage draws batch statistics, a per-document table, failures
// and a QR code on the current page.
func renderSummaryPage(pdf *fpdf.Fpdf, result *model.BatchResult, pageW, pageH float64) error {
	summary := Summarize(result)
	enc := textEncoder(pdf)
	contentW := pageW - 2*summaryMargin

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(summaryMargin, summaryMargin)
	pdf.CellFormat(contentW, 10, "Waybill Packing Summary", "", 0, "L", false, 0, "")

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	pdf.Line(summaryMargin, summaryMargin+12, pageW-summaryMargin, summaryMargin+12)

	if err := placeQR(pdf, summary, pageW-summaryMargin-summaryQRSize, summaryMargin+16); err != nil {
		return err
	}

	y := summaryMargin + 18
	items := []struct {
		label string
		value string
	}{
		{"Batch", summary.BatchID},
		{"Documents", fmt.Sprintf("%d", len(result.Documents))},
		{"Source Pages", fmt.Sprintf("%d", summary.Pages)},
		{"Waybills Placed", fmt.Sprintf("%d", summary.Waybills)},
		{"Blank Quadrants Dropped", fmt.Sprintf("%d", summary.Dropped)},
		{"Output Sheets", fmt.Sprintf("%d", summary.Sheets)},
		{"Pages Saved", fmt.Sprintf("%d", result.SheetsSaved())},
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.SetXY(summaryMargin+5, y)
		pdf.CellFormat(55, rowHeight, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(70, rowHeight, item.value, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		y += rowHeight + 1
	}

	y = max(y, summaryMargin+16+summaryQRSize) + 6

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(summaryMargin, y)
	pdf.CellFormat(100, 7, "Documents", "", 0, "L", false, 0, "")
	y += 9

	colWidths := []float64{contentW - 90, 30, 30, 30}
	headers := []string{"Document", "Pages", "Waybills", "Skipped"}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	x := summaryMargin
	for i, header := range headers {
		pdf.SetXY(x, y)
		pdf.CellFormat(colWidths[i], rowHeight, header, "1", 0, "C", true, 0, "")
		x += colWidths[i]
	}
	y += rowHeight

	pdf.SetFont("Helvetica", "", 9)
	for i, d := range result.Documents {
		if y > pageH-summaryMargin-rowHeight {
			pdf.AddPage()
			y = summaryMargin
		}
		if i%2 == 0 {
			pdf.SetFillColor(245, 245, 245)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		row := []string{
			truncate(pdf, enc, d.Name, colWidths[0]-2),
			fmt.Sprintf("%d", d.Pages),
			fmt.Sprintf("%d", d.Waybills),
			fmt.Sprintf("%d", d.SkippedPages),
		}
		x = summaryMargin
		for j, cell := range row {
			align := "C"
			if j == 0 {
				align = "L"
			}
			pdf.SetXY(x, y)
			pdf.CellFormat(colWidths[j], rowHeight, cell, "1", 0, align, true, 0, "")
			x += colWidths[j]
		}
		y += rowHeight
	}

	if len(result.Failures) > 0 {
		y += 8
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(200, 0, 0)
		pdf.SetXY(summaryMargin, y)
		pdf.CellFormat(contentW, 7, "WARNING: Documents Skipped", "", 0, "L", false, 0, "")
		y += 8

		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0, 0, 0)
		for _, f := range result.Failures {
			if y > pageH-summaryMargin-5 {
				pdf.AddPage()
				y = summaryMargin
			}
			pdf.SetXY(summaryMargin+5, y)
			text := truncate(pdf, enc, fmt.Sprintf("- %s: %s", f.Document, f.Message), contentW-5)
			pdf.CellFormat(contentW-5, 5, text, "", 0, "L", false, 0, "")
			y += 5
		}
	}

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.SetXY(summaryMargin, pageH-summaryMargin)
	pdf.CellFormat(contentW, 4, "Generated by WaybillPack", "", 0, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	return pdf.Error()
}

// placeQR draws the batch summary as a QR code with its top-left at (x, y).
func placeQR(pdf *fpdf.Fpdf, summary BatchSummary, x, y float64) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal batch summary: %w", err)
	}

	qrPNG, err := qrcode.Encode(string(data), qrcode.Medium, 256)
	if err != nil {
		// Large batches can exceed QR capacity; fall back to the batch ID.
		qrPNG, err = qrcode.Encode(summary.BatchID, qrcode.Medium, 256)
		if err != nil {
			return fmt.Errorf("failed to generate QR code: %w", err)
		}
	}

	name := "qr_" + summary.BatchID
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions(name, x, y, summaryQRSize, summaryQRSize, false, opts, 0, "")
	return nil
}
