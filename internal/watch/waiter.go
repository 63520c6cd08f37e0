// Package watch provides debounced waiting on classified screen state.
// There is no push notification for pixels, so polling is the correct
// mechanism; cadence is configurable and backs off while nothing
// changes to bound busy-wait CPU.
package watch

import (
	"context"
	"time"

	"github.com/clickpilot/clickpilot/internal/vision"
)

// Source produces the current classification of the watched region.
// Capture failures surface as vision.Unknown.
type Source func() vision.State

const (
	minInterval = 5 * time.Millisecond
	// Cancellation and pause flags must be observed at sub-100ms
	// granularity, which caps how far backoff may stretch the cadence.
	maxInterval = 100 * time.Millisecond

	// Unchanged samples before the poll cadence doubles.
	backoffAfter = 50
)

// Waiter polls a Source with debounce semantics. Pause time does not
// count against stick durations or timeouts: a paused wait resumes
// where it left off instead of expiring under the operator.
type Waiter struct {
	source   Source
	interval time.Duration
	paused   func() bool
}

// NewWaiter creates a waiter polling at the given cadence (clamped to
// 5-100 ms). paused may be nil.
func NewWaiter(source Source, interval time.Duration, paused func() bool) *Waiter {
	if interval < minInterval {
		interval = minInterval
	}
	if interval > maxInterval {
		interval = maxInterval
	}
	if paused == nil {
		paused = func() bool { return false }
	}
	return &Waiter{source: source, interval: interval, paused: paused}
}

// WaitForState blocks until the source has reported target
// continuously for at least minStick. Any reversal resets the stick
// clock. Returns (false, nil) on timeout, (false, ctx.Err()) on
// cancellation. timeout == 0 waits forever; that is the operator's
// explicit escape hatch, never a default.
func (w *Waiter) WaitForState(ctx context.Context, target vision.State, minStick, timeout time.Duration) (bool, error) {
	var elapsed, stick time.Duration
	inTarget := false
	unchanged := 0
	interval := w.interval
	var prev vision.State

	last := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		now := time.Now()
		dt := now.Sub(last)
		last = now

		if w.paused() {
			// Stickiness does not survive a pause; the control may
			// have changed while automation stood down.
			inTarget = false
			stick = 0
		} else {
			elapsed += dt

			state := w.source()
			if state == prev {
				unchanged++
			} else {
				unchanged = 0
				interval = w.interval
			}
			prev = state

			if state == target {
				if inTarget {
					stick += dt
				} else {
					inTarget = true
					stick = 0
				}
				if stick >= minStick {
					return true, nil
				}
			} else {
				inTarget = false
				stick = 0
			}

			if timeout > 0 && elapsed >= timeout {
				return false, nil
			}

			if unchanged > 0 && unchanged%backoffAfter == 0 && interval < maxInterval {
				interval *= 2
				if interval > maxInterval {
					interval = maxInterval
				}
			}
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// WaitForChange is the non-sticky variant: it returns on the first
// sample matching the requested direction. becomeChanged waits for
// NOT_READY, otherwise for READY. Used for quick single-sample checks
// before issuing a click.
func (w *Waiter) WaitForChange(ctx context.Context, becomeChanged bool, timeout time.Duration) (bool, error) {
	target := vision.Ready
	if becomeChanged {
		target = vision.NotReady
	}
	return w.WaitForState(ctx, target, 0, timeout)
}
