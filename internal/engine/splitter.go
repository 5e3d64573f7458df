package engine

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/piwi3910/WaybillPack/internal/model"
)

// subImager is implemented by every concrete image type in the standard library.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// QuadrantRects returns the four half-size rectangles of bounds in traversal
// order. An odd remainder row or column is dropped.
func QuadrantRects(bounds image.Rectangle) [4]image.Rectangle {
	hw := bounds.Dx() / 2
	hh := bounds.Dy() / 2
	x0, y0 := bounds.Min.X, bounds.Min.Y

	return [4]image.Rectangle{
		model.TopLeft:     image.Rect(x0, y0, x0+hw, y0+hh),
		model.TopRight:    image.Rect(x0+hw, y0, x0+2*hw, y0+hh),
		model.BottomLeft:  image.Rect(x0, y0+hh, x0+hw, y0+2*hh),
		model.BottomRight: image.Rect(x0+hw, y0+hh, x0+2*hw, y0+2*hh),
	}
}

// Split divides a page into its four quadrants.
func Split(page image.Image) ([4]image.Image, error) {
	var quads [4]image.Image
	b := page.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return quads, fmt.Errorf("page is %dx%d: %w", b.Dx(), b.Dy(), model.ErrInvalidDimensions)
	}

	for i, r := range QuadrantRects(b) {
		quads[i] = crop(page, r)
	}
	return quads, nil
}

// crop returns the part of img inside r, sharing pixels where the image type allows it.
func crop(img image.Image, r image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(r)
	draw.Draw(dst, r, img, r.Min, draw.Src)
	return dst
}
