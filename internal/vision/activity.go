package vision

import (
	"image"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
)

// Activity watches a secondary region (bonus-sequence indicator) for
// ongoing visual change via perceptual hashing. Clicking the trigger
// while that region is animating is unsafe, so the loop holds while
// the monitor reports recent activity.
type Activity struct {
	maxDistance int

	mu         sync.Mutex
	last       *goimagehash.ImageHash
	lastActive time.Time
}

// NewActivity creates a monitor. Frames whose perceptual-hash Hamming
// distance from the previous frame exceeds maxDistance count as
// active.
func NewActivity(maxDistance int) *Activity {
	return &Activity{maxDistance: maxDistance}
}

// Observe feeds the next frame and reports whether it differs from
// the previous one beyond the distance threshold. The first frame and
// hash failures report inactive.
func (a *Activity) Observe(img image.Image) bool {
	if img == nil {
		return false
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.last == nil {
		a.last = hash
		return false
	}

	dist, err := a.last.Distance(hash)
	a.last = hash
	if err != nil {
		return false
	}
	if dist > a.maxDistance {
		a.lastActive = time.Now()
		return true
	}
	return false
}

// ActiveWithin reports whether any frame within the window was active.
// Gives hold sequences an exit grace after the animation settles.
func (a *Activity) ActiveWithin(window time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.lastActive.IsZero() && time.Since(a.lastActive) <= window
}

// Reset clears history, e.g. when the hold region is recaptured.
func (a *Activity) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = nil
	a.lastActive = time.Time{}
}
