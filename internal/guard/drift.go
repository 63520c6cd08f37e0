// Package guard watches physical pointer activity: drift away from
// the automated position, and user clicks landing inside the target
// region.
package guard

import (
	"context"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Drift event channel depth. Drift flips are rare; the buffer only
// smooths over a momentarily busy consumer.
const driftEventBuffer = 8

// Drift detects the user taking the mouse back. The automation
// records where it last parked the pointer; when the observed
// position stays far from that for several consecutive ticks, a
// drift event fires so the session can pause instead of fighting
// the user for the cursor.
type Drift struct {
	locate        func() (int, int)
	thresholdPx   int
	interval      time.Duration
	debounceTicks int

	events chan bool

	mu            sync.Mutex
	expected      image.Point
	hasExpected   bool
	active        bool
	suppressUntil time.Time
	strikes       int
	drifted       bool
}

// NewDrift builds a drift watcher over a pointer location source.
func NewDrift(locate func() (int, int), thresholdPx int, interval time.Duration, debounceTicks int) *Drift {
	if debounceTicks < 1 {
		debounceTicks = 1
	}
	return &Drift{
		locate:        locate,
		thresholdPx:   thresholdPx,
		interval:      interval,
		debounceTicks: debounceTicks,
		events:        make(chan bool, driftEventBuffer),
	}
}

// Events delivers true when drift is detected and false when the
// pointer has come back. Sends are lossy under a stuck consumer.
func (d *Drift) Events() <-chan bool {
	return d.events
}

// SetExpected records where the automation just parked the pointer.
func (d *Drift) SetExpected(pt image.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expected = pt
	d.hasExpected = true
	d.strikes = 0
}

// SetActive enables or disables watching. Deactivating clears any
// pending drift state without emitting.
func (d *Drift) SetActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = active
	if !active {
		d.strikes = 0
		d.drifted = false
	}
}

// Suppress mutes the watcher for dur. Called around automated mouse
// travel so our own moves are never mistaken for the user's.
func (d *Drift) Suppress(dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suppressUntil = time.Now().Add(dur)
	d.strikes = 0
}

// Drifted reports whether the watcher currently considers the
// pointer taken over.
func (d *Drift) Drifted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drifted
}

// Run ticks the watcher until ctx is cancelled.
func (d *Drift) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(time.Now())
		}
	}
}

func (d *Drift) tick(now time.Time) {
	d.mu.Lock()
	if !d.active || !d.hasExpected {
		d.mu.Unlock()
		return
	}
	if now.Before(d.suppressUntil) {
		d.strikes = 0
		d.mu.Unlock()
		return
	}
	expected := d.expected
	d.mu.Unlock()

	// Locate outside the lock; on some platforms it round-trips to
	// the window server.
	x, y := d.locate()
	dist := math.Hypot(float64(x-expected.X), float64(y-expected.Y))

	d.mu.Lock()
	defer d.mu.Unlock()

	if dist > float64(d.thresholdPx) {
		d.strikes++
		if d.strikes >= d.debounceTicks && !d.drifted {
			d.drifted = true
			d.emit(true)
			slog.Info("pointer drift detected", "distance_px", int(dist), "threshold_px", d.thresholdPx)
		}
		return
	}

	d.strikes = 0
	if d.drifted {
		d.drifted = false
		d.emit(false)
		slog.Info("pointer returned")
	}
}

func (d *Drift) emit(drifted bool) {
	select {
	case d.events <- drifted:
	default:
		slog.Warn("drift event dropped, consumer busy")
	}
}
