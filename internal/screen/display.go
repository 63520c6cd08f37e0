package screen

import (
	"image"

	"github.com/kbinani/screenshot"

	apperrors "github.com/clickpilot/clickpilot/internal/errors"
)

// Display samples the physical desktop via the OS capture API.
type Display struct{}

// NewDisplay creates a desktop sampler.
func NewDisplay() *Display {
	return &Display{}
}

// Capture grabs the region. Regions outside the virtual screen fail
// with a CaptureFailed error rather than returning clipped pixels: a
// clipped baseline would silently shift every later comparison.
func (d *Display) Capture(r Region) (*image.RGBA, error) {
	if !r.Valid() {
		return nil, apperrors.Newf(apperrors.CaptureFailed, "empty region %s", r)
	}
	if !r.Rect().In(VirtualBounds()) {
		return nil, apperrors.Newf(apperrors.CaptureFailed, "region %s off screen", r)
	}

	img, err := screenshot.CaptureRect(r.Rect())
	if err != nil {
		return nil, NewCaptureError(r, err)
	}
	return img, nil
}

// VirtualBounds returns the union of all active display bounds.
func VirtualBounds() image.Rectangle {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}
	}
	bounds := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		bounds = bounds.Union(screenshot.GetDisplayBounds(i))
	}
	return bounds
}
