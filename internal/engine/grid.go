// Package engine implements the waybill geometry: splitting pages into
// quadrants, trimming blank margins, and packing waybills four per sheet.
package engine

import (
	"image"

	"github.com/piwi3910/WaybillPack/internal/model"
)

// Grid computes the 2x2 slot geometry for a layout.
type Grid struct {
	Layout model.Layout
}

func NewGrid(layout model.Layout) Grid {
	return Grid{Layout: layout}
}

// SlotSize returns the size every waybill is scaled to.
func (g Grid) SlotSize() (w, h int) {
	p := g.Layout.Padding
	return (g.Layout.SheetWidth - 3*p) / 2, (g.Layout.SheetHeight - 3*p) / 2
}

// SlotRect returns the canvas rectangle of slot i (0-based, row-major).
func (g Grid) SlotRect(i int) image.Rectangle {
	w, h := g.SlotSize()
	p := g.Layout.Padding
	x := (i%2)*(w+p) + p
	y := (i/2)*(h+p) + p
	return image.Rect(x, y, x+w, y+h)
}

// SheetRect returns the full canvas rectangle.
func (g Grid) SheetRect() image.Rectangle {
	return image.Rect(0, 0, g.Layout.SheetWidth, g.Layout.SheetHeight)
}
