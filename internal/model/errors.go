package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDimensions is returned for a page with zero width or height.
	// Only that page is skipped.
	ErrInvalidDimensions = errors.New("invalid page dimensions")

	// ErrEmptyResult is returned when no waybill was found in any input.
	ErrEmptyResult = errors.New("no waybill content found in any input document")

	// ErrRasterizationFailed matches every *RasterizationError.
	ErrRasterizationFailed = errors.New("rasterization failed")

	// ErrInvalidArchive is returned for unreadable or unsafe uploads.
	ErrInvalidArchive = errors.New("invalid archive")
)

// RasterizationError wraps a failure from the external rasterizer for one document.
type RasterizationError struct {
	Document string
	Cause    error
}

func NewRasterizationError(document string, cause error) *RasterizationError {
	return &RasterizationError{Document: document, Cause: cause}
}

func (e *RasterizationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rasterize %s: %v", e.Document, e.Cause)
	}
	return fmt.Sprintf("rasterize %s", e.Document)
}

func (e *RasterizationError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrRasterizationFailed) match.
func (e *RasterizationError) Is(target error) bool {
	return target == ErrRasterizationFailed
}
