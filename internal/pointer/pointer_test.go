package pointer

import (
	"image"
	"testing"
	"time"

	"github.com/clickpilot/clickpilot/internal/screen"
)

type fakeMouse struct {
	moves  []image.Point
	clicks int
	x, y   int
}

func (m *fakeMouse) MoveTo(x, y int, _ time.Duration) {
	m.moves = append(m.moves, image.Pt(x, y))
	m.x, m.y = x, y
}

func (m *fakeMouse) Click()               { m.clicks++ }
func (m *fakeMouse) Location() (int, int) { return m.x, m.y }

func TestClickAtMoveThenClick(t *testing.T) {
	m := &fakeMouse{}
	c := NewClicker(m, 0, 0)

	got := c.ClickAt(image.Pt(100, 200))

	if got != image.Pt(100, 200) {
		t.Errorf("ClickAt = %v, want exact point with zero jitter", got)
	}
	if len(m.moves) != 1 || m.moves[0] != image.Pt(100, 200) {
		t.Errorf("moves = %v, want single move to target", m.moves)
	}
	if m.clicks != 1 {
		t.Errorf("clicks = %d, want 1", m.clicks)
	}
	// Click happened at the moved-to position.
	if m.x != 100 || m.y != 200 {
		t.Errorf("pointer at (%d,%d), want (100,200)", m.x, m.y)
	}
}

func TestClickAtJitterBounded(t *testing.T) {
	m := &fakeMouse{}
	c := NewClicker(m, 2, 0)
	anchor := image.Pt(500, 500)

	for i := 0; i < 50; i++ {
		got := c.ClickAt(anchor)
		if got.X < 498 || got.X > 502 || got.Y < 498 || got.Y > 502 {
			t.Fatalf("jittered point %v outside +/-2 of anchor", got)
		}
	}
}

func TestWaggleReturnsToCenter(t *testing.T) {
	m := &fakeMouse{}
	c := NewClicker(m, 1, 0)
	center := image.Pt(300, 300)

	c.Waggle(center, 10)

	if m.clicks != 0 {
		t.Error("waggle must never click")
	}
	if len(m.moves) != 3 {
		t.Fatalf("moves = %d, want 3", len(m.moves))
	}
	if m.moves[0] != image.Pt(310, 300) || m.moves[1] != image.Pt(290, 300) {
		t.Errorf("waggle excursions = %v, want +/-amp around center", m.moves[:2])
	}
	if m.moves[2] != center {
		t.Errorf("final move = %v, want back at center", m.moves[2])
	}
}

func TestAwayPointOutsideRegion(t *testing.T) {
	bounds := image.Rect(0, 0, 1920, 1080)

	cases := []struct {
		name   string
		anchor image.Point
		region screen.Region
	}{
		{"center", image.Pt(960, 540), screen.Region{X: 940, Y: 520, W: 40, H: 40}},
		{"bottom edge", image.Pt(960, 1060), screen.Region{X: 940, Y: 1040, W: 40, H: 40}},
		{"top left corner", image.Pt(10, 10), screen.Region{X: 0, Y: 0, W: 40, H: 40}},
		{"right edge", image.Pt(1900, 540), screen.Region{X: 1880, Y: 520, W: 40, H: 40}},
		{"tall region", image.Pt(960, 540), screen.Region{X: 900, Y: 0, W: 120, H: 1080}},
	}

	for _, tc := range cases {
		pt := AwayPoint(tc.anchor, tc.region, bounds)
		if tc.region.Contains(pt.X, pt.Y) {
			t.Errorf("%s: AwayPoint %v landed inside region %v", tc.name, pt, tc.region)
		}
		if !pt.In(bounds) {
			t.Errorf("%s: AwayPoint %v outside screen %v", tc.name, pt, bounds)
		}
	}
}

func TestAwayPointPrefersBelow(t *testing.T) {
	bounds := image.Rect(0, 0, 1920, 1080)
	region := screen.Region{X: 940, Y: 520, W: 40, H: 40}
	anchor := image.Pt(960, 540)

	pt := AwayPoint(anchor, region, bounds)

	if pt.Y <= region.Y+region.H {
		t.Errorf("AwayPoint %v should land below the region when space allows", pt)
	}
	if pt.X != anchor.X {
		t.Errorf("AwayPoint X = %d, want anchor column %d", pt.X, anchor.X)
	}
}

func TestAwayPointDeterministic(t *testing.T) {
	bounds := image.Rect(0, 0, 1920, 1080)
	region := screen.Region{X: 100, Y: 100, W: 50, H: 50}
	anchor := image.Pt(125, 125)

	a := AwayPoint(anchor, region, bounds)
	b := AwayPoint(anchor, region, bounds)
	if a != b {
		t.Errorf("AwayPoint not deterministic: %v vs %v", a, b)
	}
}
