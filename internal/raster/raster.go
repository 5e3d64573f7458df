// Package raster turns PDF documents into page images.
package raster

import (
	"context"
	"image"
)

// Rasterizer renders every page of a PDF at the given resolution, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, dpi int) ([]image.Image, error)
}

// Func adapts a plain function to the Rasterizer interface.
type Func func(ctx context.Context, path string, dpi int) ([]image.Image, error)

func (f Func) Rasterize(ctx context.Context, path string, dpi int) ([]image.Image, error) {
	return f(ctx, path, dpi)
}
