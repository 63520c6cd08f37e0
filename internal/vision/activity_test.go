package vision

import (
	"image"
	"image/color"
	"testing"
	"time"
)

// makePattern creates images with distinct frequency content so their
// perceptual hashes land far apart.
func makePattern(pattern int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			var c color.RGBA
			switch pattern {
			case 0: // solid gray
				c = color.RGBA{R: 128, G: 128, B: 128, A: 255}
			case 1: // checkerboard
				if (x/8+y/8)%2 == 0 {
					c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
				} else {
					c = color.RGBA{R: 0, G: 0, B: 0, A: 255}
				}
			case 2: // horizontal gradient
				c = color.RGBA{R: uint8(x * 4), G: 0, B: uint8(255 - x*4), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestActivityFirstFrameInactive(t *testing.T) {
	a := NewActivity(6)

	if a.Observe(makePattern(0)) {
		t.Error("first frame should not count as active")
	}
}

func TestActivityStableFramesInactive(t *testing.T) {
	a := NewActivity(6)

	a.Observe(makePattern(0))
	if a.Observe(makePattern(0)) {
		t.Error("identical frames should be inactive")
	}
}

func TestActivityChangingFramesActive(t *testing.T) {
	a := NewActivity(6)

	a.Observe(makePattern(1))
	if !a.Observe(makePattern(2)) {
		t.Error("distinct patterns should count as active")
	}
}

func TestActivityWindow(t *testing.T) {
	a := NewActivity(6)

	if a.ActiveWithin(time.Minute) {
		t.Error("no activity observed yet")
	}

	a.Observe(makePattern(1))
	a.Observe(makePattern(2))

	if !a.ActiveWithin(time.Minute) {
		t.Error("recent activity should be inside the window")
	}
	if a.ActiveWithin(0) {
		t.Error("zero window should exclude past activity")
	}
}

func TestActivityReset(t *testing.T) {
	a := NewActivity(6)
	a.Observe(makePattern(1))
	a.Observe(makePattern(2))

	a.Reset()

	if a.ActiveWithin(time.Minute) {
		t.Error("Reset should clear activity history")
	}
	if a.Observe(makePattern(0)) {
		t.Error("frame after Reset is a first frame again")
	}
}

func TestActivityNilFrame(t *testing.T) {
	a := NewActivity(6)
	if a.Observe(nil) {
		t.Error("nil frame should be inactive")
	}
}
