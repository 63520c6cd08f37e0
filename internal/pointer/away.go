package pointer

import (
	"image"

	"github.com/clickpilot/clickpilot/internal/screen"
)

// awayMargin is how far outside the capture region dismiss clicks
// land. Close enough to hit the same window, far enough to miss the
// trigger control.
const awayMargin = 60

// AwayPoint picks a click target deliberately outside the capture
// region, for dismissing overlays without re-triggering the control.
// Preference order: below, above, right, left of the region; each
// candidate is clamped to the screen and discarded if clamping pushed
// it back inside the region. Pure function.
func AwayPoint(anchor image.Point, region screen.Region, bounds image.Rectangle) image.Point {
	candidates := []image.Point{
		{X: anchor.X, Y: region.Y + region.H + awayMargin},
		{X: anchor.X, Y: region.Y - awayMargin},
		{X: region.X + region.W + awayMargin, Y: anchor.Y},
		{X: region.X - awayMargin, Y: anchor.Y},
	}

	for _, c := range candidates {
		c = clampToBounds(c, bounds)
		if !region.Contains(c.X, c.Y) {
			return c
		}
	}

	// Degenerate geometry (region covering the screen): the corner
	// farthest from the anchor is the least bad option.
	corners := []image.Point{
		{X: bounds.Min.X, Y: bounds.Min.Y},
		{X: bounds.Max.X - 1, Y: bounds.Min.Y},
		{X: bounds.Min.X, Y: bounds.Max.Y - 1},
		{X: bounds.Max.X - 1, Y: bounds.Max.Y - 1},
	}
	best := corners[0]
	bestDist := 0
	for _, c := range corners {
		d := sqDist(c, anchor)
		if d > bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func clampToBounds(p image.Point, bounds image.Rectangle) image.Point {
	if p.X < bounds.Min.X {
		p.X = bounds.Min.X
	}
	if p.X > bounds.Max.X-1 {
		p.X = bounds.Max.X - 1
	}
	if p.Y < bounds.Min.Y {
		p.Y = bounds.Min.Y
	}
	if p.Y > bounds.Max.Y-1 {
		p.Y = bounds.Max.Y - 1
	}
	return p
}

func sqDist(a, b image.Point) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}
