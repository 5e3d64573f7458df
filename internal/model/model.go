package model

import (
	"fmt"
	"image"

	"github.com/google/uuid"
)

// Quadrant identifies one of the four equal divisions of a page.
type Quadrant int

const (
	TopLeft     Quadrant = iota // First in traversal order
	TopRight                    // Second
	BottomLeft                  // Third
	BottomRight                 // Fourth
)

// Quadrants lists every quadrant in traversal order.
var Quadrants = [4]Quadrant{TopLeft, TopRight, BottomLeft, BottomRight}

func (q Quadrant) String() string {
	switch q {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	default:
		return fmt.Sprintf("quadrant(%d)", int(q))
	}
}

// Origin records where a waybill was found.
type Origin struct {
	Document string          `json:"document"` // Source file name
	Page     int             `json:"page"`     // 1-based page number within the document
	Quadrant Quadrant        `json:"quadrant"`
	Bounds   image.Rectangle `json:"bounds"` // Trimmed box in page pixel coordinates
}

func (o Origin) String() string {
	return fmt.Sprintf("%s p%d %s", o.Document, o.Page, o.Quadrant)
}

// Waybill is a trimmed quadrant holding one shipping document.
// It is never mutated after creation.
type Waybill struct {
	ID     string      `json:"id"`
	Image  image.Image `json:"-"`
	Origin Origin      `json:"origin"`
}

func NewWaybill(img image.Image, origin Origin) Waybill {
	return Waybill{
		ID:     uuid.New().String()[:8],
		Image:  img,
		Origin: origin,
	}
}

// Layout describes the fixed print target in pixels.
type Layout struct {
	SheetWidth  int `json:"sheet_width"`  // px
	SheetHeight int `json:"sheet_height"` // px
	Padding     int `json:"padding"`      // px between and around slots
	DPI         int `json:"dpi"`          // Resolution used to size output pages
}

// SlotsPerSheet is the capacity of the 2x2 grid.
const SlotsPerSheet = 4

// DefaultLayout returns A4 portrait at 300 DPI with 60px padding.
func DefaultLayout() Layout {
	return Layout{
		SheetWidth:  2480,
		SheetHeight: 3508,
		Padding:     60,
		DPI:         300,
	}
}

// Validate reports whether the layout leaves room for a positive slot size.
func (l Layout) Validate() error {
	if l.SheetWidth <= 0 || l.SheetHeight <= 0 {
		return fmt.Errorf("sheet size must be positive, got %dx%d", l.SheetWidth, l.SheetHeight)
	}
	if l.Padding < 0 {
		return fmt.Errorf("padding must not be negative, got %d", l.Padding)
	}
	if l.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %d", l.DPI)
	}
	if l.SheetWidth-3*l.Padding < 2 || l.SheetHeight-3*l.Padding < 2 {
		return fmt.Errorf("padding %d leaves no room for slots on a %dx%d sheet", l.Padding, l.SheetWidth, l.SheetHeight)
	}
	return nil
}

// PageSizeMM returns the physical sheet size implied by the DPI.
func (l Layout) PageSizeMM() (w, h float64) {
	const mmPerInch = 25.4
	return float64(l.SheetWidth) / float64(l.DPI) * mmPerInch,
		float64(l.SheetHeight) / float64(l.DPI) * mmPerInch
}

// Placement is one waybill drawn into a sheet slot.
type Placement struct {
	WaybillID string          `json:"waybill_id"`
	Origin    Origin          `json:"origin"`
	Slot      int             `json:"slot"` // 0-based, row-major
	Rect      image.Rectangle `json:"rect"` // Slot rectangle on the canvas
}

// Sheet is one output page holding up to four waybills.
type Sheet struct {
	Index      int         `json:"index"` // 0-based creation order
	Canvas     *image.RGBA `json:"-"`
	Placements []Placement `json:"placements"`
}

// Count returns the number of waybills placed on the sheet.
func (s Sheet) Count() int {
	return len(s.Placements)
}

// Full reports whether every slot is taken.
func (s Sheet) Full() bool {
	return len(s.Placements) >= SlotsPerSheet
}

// DocumentStats summarizes what one source document contributed.
type DocumentStats struct {
	Name         string `json:"name"`
	Pages        int    `json:"pages"`
	Waybills     int    `json:"waybills"`
	SkippedPages int    `json:"skipped_pages"` // Pages rejected as malformed
}

// DocumentFailure records a document that could not be processed.
type DocumentFailure struct {
	Document string `json:"document"`
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

// BatchResult holds the full outcome of one run.
type BatchResult struct {
	ID        string            `json:"id"`
	Documents []DocumentStats   `json:"documents"`
	Sheets    []Sheet           `json:"sheets"`
	Failures  []DocumentFailure `json:"failures,omitempty"`
}

func NewBatchResult() BatchResult {
	return BatchResult{
		ID:        uuid.New().String(),
		Documents: []DocumentStats{},
		Sheets:    []Sheet{},
	}
}

// TotalWaybills returns the number of waybills placed across all sheets.
func (r BatchResult) TotalWaybills() int {
	total := 0
	for _, s := range r.Sheets {
		total += s.Count()
	}
	return total
}

// TotalPages returns the number of source pages rasterized.
func (r BatchResult) TotalPages() int {
	total := 0
	for _, d := range r.Documents {
		total += d.Pages
	}
	return total
}

// DroppedQuadrants returns how many quadrants were discarded as blank.
func (r BatchResult) DroppedQuadrants() int {
	scanned := 0
	found := 0
	for _, d := range r.Documents {
		scanned += (d.Pages - d.SkippedPages) * len(Quadrants)
		found += d.Waybills
	}
	return scanned - found
}

// SheetsSaved returns source pages minus output sheets. It can be negative
// when the sources were already densely packed.
func (r BatchResult) SheetsSaved() int {
	return r.TotalPages() - len(r.Sheets)
}
