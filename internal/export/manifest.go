package export

import (
	"fmt"

	"github.com/piwi3910/WaybillPack/internal/model"
	"github.com/xuri/excelize/v2"
)

// ManifestRow describes one placed waybill.
type ManifestRow struct {
	Sheet     int // 1-based
	Slot      int // 1-based
	Document  string
	Page      int
	Quadrant  string
	Bounds    string
	WaybillID string
}

var manifestHeaders = []string{"Sheet", "Slot", "Document", "Page", "Quadrant", "Bounds", "Waybill ID"}

// CollectManifestRows flattens the placements of every sheet in output order.
func CollectManifestRows(result *model.BatchResult) []ManifestRow {
	var rows []ManifestRow
	for _, sheet := range result.Sheets {
		for _, p := range sheet.Placements {
			b := p.Origin.Bounds
			rows = append(rows, ManifestRow{
				Sheet:     sheet.Index + 1,
				Slot:      p.Slot + 1,
				Document:  p.Origin.Document,
				Page:      p.Origin.Page,
				Quadrant:  p.Origin.Quadrant.String(),
				Bounds:    fmt.Sprintf("%d,%d-%d,%d", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y),
				WaybillID: p.WaybillID,
			})
		}
	}
	return rows
}

// ExportManifest writes an XLSX workbook listing where every waybill came
// from and where it was placed. A second sheet lists per-document totals.
func ExportManifest(path string, result *model.BatchResult) error {
	rows := CollectManifestRows(result)
	if len(rows) == 0 {
		return fmt.Errorf("no waybills to list")
	}

	f := excelize.NewFile()
	defer f.Close()

	placements := "Placements"
	if err := f.SetSheetName(f.GetSheetName(0), placements); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := writeRow(f, placements, 1, toCells(manifestHeaders)); err != nil {
		return err
	}
	for i, r := range rows {
		cells := []interface{}{r.Sheet, r.Slot, r.Document, r.Page, r.Quadrant, r.Bounds, r.WaybillID}
		if err := writeRow(f, placements, i+2, cells); err != nil {
			return err
		}
	}

	documents := "Documents"
	if _, err := f.NewSheet(documents); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}
	if err := writeRow(f, documents, 1, toCells([]string{"Document", "Pages", "Waybills", "Skipped Pages", "Error"})); err != nil {
		return err
	}
	line := 2
	for _, d := range result.Documents {
		if err := writeRow(f, documents, line, []interface{}{d.Name, d.Pages, d.Waybills, d.SkippedPages, ""}); err != nil {
			return err
		}
		line++
	}
	for _, failure := range result.Failures {
		if err := writeRow(f, documents, line, []interface{}{failure.Document, 0, 0, 0, failure.Message}); err != nil {
			return err
		}
		line++
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	for col, v := range cells {
		ref, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to create cell reference: %w", err)
		}
		if err := f.SetCellValue(sheet, ref, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", ref, err)
		}
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
