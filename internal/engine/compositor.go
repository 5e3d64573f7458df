package engine

import (
	"image"

	"github.com/piwi3910/WaybillPack/internal/model"
	xdraw "golang.org/x/image/draw"
)

// Compositor packs waybills four per sheet in arrival order.
//
// It is a small state machine: while fewer than four waybills are placed the
// current sheet accumulates; the fourth insertion emits it and the next Add
// starts a fresh canvas. Flush emits a partially filled sheet.
type Compositor struct {
	grid    Grid
	scaler  xdraw.Scaler
	current *model.Sheet
	emitted int
}

// NewCompositor creates a compositor for the given layout.
func NewCompositor(layout model.Layout) *Compositor {
	return &Compositor{
		grid:   NewGrid(layout),
		scaler: xdraw.CatmullRom,
	}
}

// Pending returns the number of waybills on the sheet being accumulated.
func (c *Compositor) Pending() int {
	if c.current == nil {
		return 0
	}
	return c.current.Count()
}

// Add places w into the next free slot. When that fills the sheet, the
// sheet is returned with ok set.
func (c *Compositor) Add(w model.Waybill) (sheet model.Sheet, ok bool) {
	if c.current == nil {
		c.current = c.newSheet()
	}

	slot := c.current.Count()
	rect := c.grid.SlotRect(slot)
	c.scaler.Scale(c.current.Canvas, rect, w.Image, w.Image.Bounds(), xdraw.Src, nil)
	c.current.Placements = append(c.current.Placements, model.Placement{
		WaybillID: w.ID,
		Origin:    w.Origin,
		Slot:      slot,
		Rect:      rect,
	})

	if c.current.Full() {
		return c.emit(), true
	}
	return model.Sheet{}, false
}

// Flush returns the partially filled sheet, if any. A sheet with zero
// waybills is never emitted.
func (c *Compositor) Flush() (model.Sheet, bool) {
	if c.current == nil || c.current.Count() == 0 {
		return model.Sheet{}, false
	}
	return c.emit(), true
}

func (c *Compositor) emit() model.Sheet {
	sheet := *c.current
	c.current = nil
	c.emitted++
	return sheet
}

// newSheet allocates a white canvas for the next sheet.
func (c *Compositor) newSheet() *model.Sheet {
	r := c.grid.SheetRect()
	canvas := image.NewRGBA(r)
	xdraw.Draw(canvas, r, image.NewUniform(background), image.Point{}, xdraw.Src)
	return &model.Sheet{
		Index:      c.emitted,
		Canvas:     canvas,
		Placements: make([]model.Placement, 0, model.SlotsPerSheet),
	}
}

// Compose packs all waybills and returns ceil(n/4) sheets.
func Compose(layout model.Layout, waybills []model.Waybill) []model.Sheet {
	c := NewCompositor(layout)
	sheets := make([]model.Sheet, 0, (len(waybills)+model.SlotsPerSheet-1)/model.SlotsPerSheet)
	for _, w := range waybills {
		if s, ok := c.Add(w); ok {
			sheets = append(sheets, s)
		}
	}
	if s, ok := c.Flush(); ok {
		sheets = append(sheets, s)
	}
	return sheets
}
