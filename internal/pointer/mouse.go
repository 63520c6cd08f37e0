// Package pointer provides the pointer-control boundary and click
// placement policies.
package pointer

import (
	"image"
	"math/rand/v2"
	"time"
)

// Mouse is the OS pointer boundary. Calls block until the OS has
// accepted the motion; they must run off any UI thread.
type Mouse interface {
	// MoveTo moves the pointer to absolute desktop coordinates,
	// spending roughly travel on the way there.
	MoveTo(x, y int, travel time.Duration)
	// Click presses and releases the primary button at the current
	// pointer position.
	Click()
	// Location returns the current pointer position.
	Location() (x, y int)
}

// Clicker issues move-then-click gestures with positional jitter.
// Identical pixel-perfect clicks are a tell for anti-automation
// heuristics in the target application.
type Clicker struct {
	mouse  Mouse
	jitter int
	travel time.Duration
}

// NewClicker wraps a mouse with jitter amplitude and travel time.
func NewClicker(mouse Mouse, jitterPx int, travel time.Duration) *Clicker {
	return &Clicker{mouse: mouse, jitter: jitterPx, travel: travel}
}

// ClickAt moves to pt plus jitter and clicks. Returns the jittered
// point actually clicked.
func (c *Clicker) ClickAt(pt image.Point) image.Point {
	target := image.Pt(pt.X+c.offset(), pt.Y+c.offset())
	c.mouse.MoveTo(target.X, target.Y, c.travel)
	c.mouse.Click()
	return target
}

// Waggle wiggles the pointer around center without clicking, as an
// anti-idle gesture.
func (c *Clicker) Waggle(center image.Point, amp int) {
	if amp < 1 {
		amp = 1
	}
	c.mouse.MoveTo(center.X+amp, center.Y, c.travel)
	c.mouse.MoveTo(center.X-amp, center.Y, c.travel)
	c.mouse.MoveTo(center.X, center.Y, c.travel)
}

func (c *Clicker) offset() int {
	if c.jitter <= 0 {
		return 0
	}
	return rand.IntN(2*c.jitter+1) - c.jitter
}
