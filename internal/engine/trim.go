package engine

import (
	"image"
	"image/color"
	"image/draw"
)

var background = color.RGBA{0xff, 0xff, 0xff, 0xff}

// Background returns the paper color removed around waybills and used to
// fill empty slots: pure white.
func Background() color.Color {
	return background
}

// rgb8 is an 8-bit RGB triple; alpha is ignored like the source scans have none.
type rgb8 struct {
	r, g, b uint8
}

func toRGB8(c color.Color) rgb8 {
	r, g, b, _ := c.RGBA()
	return rgb8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// BoundingBox returns the smallest rectangle containing every pixel whose
// color differs from bg in any channel. ok is false when the image is
// entirely background.
func BoundingBox(img image.Image, bg color.Color) (box image.Rectangle, ok bool) {
	b := img.Bounds()
	if b.Empty() {
		return image.Rectangle{}, false
	}
	ref := toRGB8(bg)

	var isContent func(x, y int) bool
	switch src := img.(type) {
	case *image.RGBA:
		isContent = func(x, y int) bool {
			i := src.PixOffset(x, y)
			p := src.Pix[i : i+3 : i+3]
			return p[0] != ref.r || p[1] != ref.g || p[2] != ref.b
		}
	case *image.NRGBA:
		isContent = func(x, y int) bool {
			i := src.PixOffset(x, y)
			p := src.Pix[i : i+3 : i+3]
			return p[0] != ref.r || p[1] != ref.g || p[2] != ref.b
		}
	default:
		isContent = func(x, y int) bool {
			return toRGB8(img.At(x, y)) != ref
		}
	}

	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !isContent(x, y) {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}

	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// Trim crops img to the bounding box of its non-background content.
// It returns false when there is no content, meaning the quadrant is dropped.
// An image that is already tight is returned unchanged.
func Trim(img image.Image, bg color.Color) (image.Image, bool) {
	box, ok := BoundingBox(img, bg)
	if !ok {
		return nil, false
	}
	if box == img.Bounds() {
		return img, true
	}
	return crop(img, box), true
}

// Clone copies img into a standalone RGBA with the same bounds, releasing
// any reference to a larger parent buffer.
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}
