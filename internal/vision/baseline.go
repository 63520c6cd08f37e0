// Package vision classifies trigger-control readiness by comparing
// screen samples against a captured baseline.
package vision

import (
	"image"
	"time"

	"github.com/clickpilot/clickpilot/internal/screen"
)

// Baseline is the reference capture of the idle trigger control:
// raster plus summary statistics and the click anchor. Immutable once
// built; a recapture wholly replaces it.
type Baseline struct {
	Region     screen.Region
	Anchor     image.Point
	Image      *image.RGBA
	MeanRGB    [3]float64
	Brightness float64
	CapturedAt time.Time
}

// NewBaseline builds a baseline from a fresh capture.
func NewBaseline(region screen.Region, anchor image.Point, img *image.RGBA) *Baseline {
	return &Baseline{
		Region:     region,
		Anchor:     anchor,
		Image:      img,
		MeanRGB:    MeanRGB(img),
		Brightness: Brightness(img),
		CapturedAt: time.Now(),
	}
}

// Valid reports whether the baseline carries pixels to compare
// against. Restored sessions have geometry but no raster and must be
// recaptured before a run starts.
func (b *Baseline) Valid() bool {
	return b != nil && b.Image != nil && b.Region.Valid()
}

// Geometry returns a pixel-free copy for persistence. A stale raster
// is unsafe to resume with, so only the rectangle and anchor survive
// a snapshot round trip.
func (b *Baseline) Geometry() (screen.Region, image.Point) {
	if b == nil {
		return screen.Region{}, image.Point{}
	}
	return b.Region, b.Anchor
}
