package guard

import (
	"context"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/clickpilot/clickpilot/internal/screen"
)

const clickEventBuffer = 16

// ClickEvent is a confirmed user click inside the watched region.
type ClickEvent struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Clicks counts the user's own presses that land inside the target
// region while a manual-assist variant is active. Telemetry only:
// a missed press never corrupts the round count, it just goes
// unreported.
type Clicks struct {
	locate func() (int, int)
	events chan ClickEvent

	mu     sync.Mutex
	region screen.Region
	active bool
	count  int
}

// NewClicks builds a click tracker over a pointer location source.
func NewClicks(locate func() (int, int)) *Clicks {
	return &Clicks{
		locate: locate,
		events: make(chan ClickEvent, clickEventBuffer),
	}
}

// Events delivers confirmed clicks. Sends are lossy.
func (c *Clicks) Events() <-chan ClickEvent {
	return c.events
}

// SetRegion sets the region presses must land in to count.
func (c *Clicks) SetRegion(region screen.Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.region = region
}

// SetActive enables or disables counting.
func (c *Clicks) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
}

// Count returns confirmed clicks since the last Reset.
func (c *Clicks) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Reset zeroes the confirmed click count.
func (c *Clicks) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
}

// Observe records a press at (x, y); returns true when it counted.
func (c *Clicks) Observe(x, y int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active || !c.region.Contains(x, y) {
		return false
	}
	c.count++

	select {
	case c.events <- ClickEvent{X: x, Y: y}:
	default:
		slog.Warn("click event dropped, consumer busy")
	}
	return true
}

// Run attaches to the global mouse hook and feeds presses through
// Observe until ctx is cancelled. The hook position is sampled via
// locate rather than trusted from the event; hook coordinates lag on
// scaled displays.
func (c *Clicks) Run(ctx context.Context) {
	evCh := hook.Start()
	defer hook.End()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-evCh:
			if !ok {
				slog.Warn("mouse hook channel closed")
				return
			}
			if ev.Kind != hook.MouseDown {
				continue
			}
			x, y := c.locate()
			c.Observe(x, y)
		}
	}
}
