// Package screen provides region sampling of the desktop.
package screen

import (
	"fmt"
	"image"

	apperrors "github.com/clickpilot/clickpilot/internal/errors"
)

// Region is a pixel rectangle in absolute desktop coordinates.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Contains reports whether the point lies inside the region.
func (r Region) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Valid reports whether the region has positive area.
func (r Region) Valid() bool {
	return r.W > 0 && r.H > 0
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", r.W, r.H, r.X, r.Y)
}

// Sampler captures a pixel rectangle as a raster. Capture must be
// cheap and repeatable; the loop calls it dozens of times a second.
// Failure is non-fatal: callers treat it as an UNKNOWN sample.
type Sampler interface {
	Capture(r Region) (*image.RGBA, error)
}

// NewCaptureError builds the non-fatal capture failure for a region.
func NewCaptureError(r Region, cause error) error {
	return apperrors.Wrapf(cause, apperrors.CaptureFailed, "capture %s", r)
}
