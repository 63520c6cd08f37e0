// Package session owns all mutable run state. A single coordinator
// goroutine consumes commands and loop notifications over channels;
// everyone else reads immutable snapshots. There are no shared flags
// to race on.
package session

import (
	"context"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	apperrors "github.com/clickpilot/clickpilot/internal/errors"
	"github.com/clickpilot/clickpilot/internal/journal"
	"github.com/clickpilot/clickpilot/internal/screen"
	"github.com/clickpilot/clickpilot/internal/syncx"
	"github.com/clickpilot/clickpilot/internal/vision"
)

const (
	commandBuffer   = 16
	subscriberQueue = 32
)

// Variant is the automation mode that owns the session. Exactly one
// variant runs at a time; starting one stops whichever was active.
type Variant int

const (
	Stopped Variant = iota
	AutoRun      // continuous click-and-confirm rounds
	ManualAssist // one round per explicit step command
	TargetRun    // AutoRun that stops at the completion target
)

func (v Variant) String() string {
	switch v {
	case AutoRun:
		return "auto"
	case ManualAssist:
		return "manual"
	case TargetRun:
		return "target"
	default:
		return "stopped"
	}
}

// Running reports whether the variant drives rounds.
func (v Variant) Running() bool { return v != Stopped }

// ParseVariant maps a wire name to a variant.
func ParseVariant(name string) (Variant, bool) {
	switch name {
	case "auto":
		return AutoRun, true
	case "manual":
		return ManualAssist, true
	case "target":
		return TargetRun, true
	default:
		return Stopped, false
	}
}

// Snapshot is an immutable copy of session state. The coordinator
// publishes a fresh one after every mutation.
type Snapshot struct {
	Variant         Variant       `json:"-"`
	VariantName     string        `json:"variant"`
	Region          screen.Region `json:"region"`
	Anchor          image.Point   `json:"anchor"`
	HoldRegion      screen.Region `json:"hold_region"`
	CaptureValid    bool          `json:"capture_valid"`
	Completed       int           `json:"completed"`
	Target          int           `json:"target"`
	Budget          float64       `json:"budget"`
	UnitCost        float64       `json:"unit_cost"`
	ConfirmedClicks int           `json:"confirmed_clicks"`
	UserPaused      bool          `json:"user_paused"`
	DriftPaused     bool          `json:"drift_paused"`
	StopReason      string        `json:"stop_reason,omitempty"`
	StartedAt       time.Time     `json:"started_at,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Paused reports whether the loop should idle: either pause source
// holds the run equally.
func (s Snapshot) Paused() bool { return s.UserPaused || s.DriftPaused }

// TargetReached applies the completion law. A target of rounds and a
// budget of spend are independent stop conditions; either one
// finishes the run. Zero values disable their condition.
func (s Snapshot) TargetReached() bool {
	if s.Target > 0 && s.Completed >= s.Target {
		return true
	}
	if s.Budget > 0 && s.UnitCost > 0 && float64(s.Completed)*s.UnitCost >= s.Budget {
		return true
	}
	return false
}

// Event is a session state change fanned out to subscribers.
type Event struct {
	Kind     string      `json:"kind"` // state | round | halted | drift | click
	Snapshot Snapshot    `json:"snapshot"`
	Reason   string      `json:"reason,omitempty"`
	Click    image.Point `json:"click,omitempty"`
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdPause
	cmdResume
	cmdStop
	cmdSetTarget
	cmdSetBudget
	cmdCalculator
	cmdResetCounts
	cmdSetCapture
	cmdSetHold
	cmdStep
	cmdRestoreGeometry
	cmdCheckTarget
	cmdRoundComplete
	cmdHalted
	cmdDrift
	cmdClick
)

type command struct {
	kind     cmdKind
	variant  Variant
	n        int
	amount   float64
	mult     float64
	unit     float64
	drifted  bool
	point    image.Point
	baseline *vision.Baseline
	region   screen.Region
	reason   string
	restored persistedSession
	reply    chan cmdResult
}

type cmdResult struct {
	target int
	err    error
}

// Coordinator serializes every session mutation through one
// goroutine. Loop, guards and server all talk to it the same way.
type Coordinator struct {
	cmds     chan command
	steps    chan struct{}
	snap     *syncx.RWGuard[Snapshot]
	baseline *syncx.RWGuard[*vision.Baseline]
	journal  *journal.Journal

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
}

// NewCoordinator creates a stopped session.
func NewCoordinator(jrnl *journal.Journal) *Coordinator {
	return &Coordinator{
		cmds:     make(chan command, commandBuffer),
		steps:    make(chan struct{}, 1),
		snap:     syncx.NewGuard(Snapshot{VariantName: Stopped.String(), UpdatedAt: time.Now()}),
		baseline: syncx.NewGuard[*vision.Baseline](nil),
		journal:  jrnl,
	}
}

// Run consumes commands until ctx is cancelled. Exactly one Run per
// coordinator.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.cmds:
			c.handle(cmd)
		}
	}
}

// Snapshot returns the current published state.
func (c *Coordinator) Snapshot() Snapshot {
	return c.snap.Get()
}

// Baseline returns the current capture, nil before the first one.
func (c *Coordinator) Baseline() *vision.Baseline {
	return c.baseline.Get()
}

// Subscribe registers an event listener; the returned func detaches
// it. Delivery is lossy under a slow consumer.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberQueue)

	c.subsMu.Lock()
	if c.subs == nil {
		c.subs = make(map[chan Event]struct{})
	}
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()

	return ch, func() {
		c.subsMu.Lock()
		delete(c.subs, ch)
		c.subsMu.Unlock()
	}
}

// Start activates a variant. Any other running variant is stopped
// first. Fails with NoCapture until a baseline exists.
func (c *Coordinator) Start(v Variant) error {
	return c.send(command{kind: cmdStart, variant: v}).err
}

// Pause holds the loop between rounds.
func (c *Coordinator) Pause() error { return c.send(command{kind: cmdPause}).err }

// Resume clears a user pause and any halt reason.
func (c *Coordinator) Resume() error { return c.send(command{kind: cmdResume}).err }

// Stop ends the run.
func (c *Coordinator) Stop() error { return c.send(command{kind: cmdStop}).err }

// SetTarget sets the completion target; 0 disables it.
func (c *Coordinator) SetTarget(n int) error {
	return c.send(command{kind: cmdSetTarget, n: n}).err
}

// SetBudget sets the spend budget and per-round cost; 0 disables it.
func (c *Coordinator) SetBudget(budget, unitCost float64) error {
	return c.send(command{kind: cmdSetBudget, amount: budget, unit: unitCost}).err
}

// ApplyCalculator derives target and budget from a wagering
// requirement: target = round(amount * multiplier / unitCost).
// Returns the computed target.
func (c *Coordinator) ApplyCalculator(amount, multiplier, unitCost float64) (int, error) {
	res := c.send(command{kind: cmdCalculator, amount: amount, mult: multiplier, unit: unitCost})
	return res.target, res.err
}

// ResetCounts zeroes completed rounds and confirmed clicks.
func (c *Coordinator) ResetCounts() error {
	return c.send(command{kind: cmdResetCounts}).err
}

// SetCapture installs a fresh baseline. Rejected while a variant is
// running; recapturing mid-run would silently change what "ready"
// means.
func (c *Coordinator) SetCapture(b *vision.Baseline) error {
	return c.send(command{kind: cmdSetCapture, baseline: b}).err
}

// SetHoldRegion sets the secondary region watched for bonus-sequence
// activity; the zero region clears it.
func (c *Coordinator) SetHoldRegion(region screen.Region) error {
	return c.send(command{kind: cmdSetHold, region: region}).err
}

// RequestStep queues one manual-assist round. Coalesces: a step
// requested while one is already pending is a no-op.
func (c *Coordinator) RequestStep() error {
	return c.send(command{kind: cmdStep}).err
}

// Steps delivers queued manual-assist step requests to the loop.
func (c *Coordinator) Steps() <-chan struct{} {
	return c.steps
}

func (c *Coordinator) restoreState(p persistedSession) error {
	return c.send(command{kind: cmdRestoreGeometry, restored: p}).err
}

// RoundComplete records a confirmed NOT_READY -> READY round.
func (c *Coordinator) RoundComplete() {
	c.send(command{kind: cmdRoundComplete})
}

// CheckTarget stops a running session whose completion law is already
// satisfied, for example after a restore carried the count in past the
// target. The loop consults it before every round.
func (c *Coordinator) CheckTarget() {
	c.send(command{kind: cmdCheckTarget})
}

// Halted pauses the session with a reason; the run resumes only on
// an explicit Resume.
func (c *Coordinator) Halted(code apperrors.ErrorCode, reason string) {
	c.send(command{kind: cmdHalted, reason: code.String() + ": " + reason})
}

// DriftChanged flips the drift pause flag.
func (c *Coordinator) DriftChanged(drifted bool) {
	c.send(command{kind: cmdDrift, drifted: drifted})
}

// ConfirmedClick records a user click inside the capture region.
func (c *Coordinator) ConfirmedClick(pt image.Point) {
	c.send(command{kind: cmdClick, point: pt})
}

func (c *Coordinator) send(cmd command) cmdResult {
	cmd.reply = make(chan cmdResult, 1)
	c.cmds <- cmd
	return <-cmd.reply
}

func (c *Coordinator) handle(cmd command) {
	var res cmdResult

	switch cmd.kind {
	case cmdStart:
		res.err = c.start(cmd.variant)
	case cmdPause:
		c.mutate("state", "", func(s *Snapshot) { s.UserPaused = true })
		c.log("paused")
	case cmdResume:
		c.mutate("state", "", func(s *Snapshot) {
			s.UserPaused = false
			s.StopReason = ""
		})
		c.log("resumed")
	case cmdStop:
		c.stop("stopped by user")
	case cmdSetTarget:
		if cmd.n < 0 {
			res.err = apperrors.Newf(apperrors.ConfigInvalid, "target %d must be >= 0", cmd.n)
			break
		}
		c.mutate("state", "", func(s *Snapshot) { s.Target = cmd.n })
		c.log("target set to %d", cmd.n)
		c.stopIfTargetReached()
	case cmdSetBudget:
		if cmd.amount < 0 || cmd.unit < 0 {
			res.err = apperrors.New(apperrors.ConfigInvalid, "budget and unit cost must be >= 0")
			break
		}
		c.mutate("state", "", func(s *Snapshot) {
			s.Budget = cmd.amount
			s.UnitCost = cmd.unit
		})
		c.stopIfTargetReached()
	case cmdCalculator:
		res.target, res.err = c.calculator(cmd.amount, cmd.mult, cmd.unit)
	case cmdResetCounts:
		c.mutate("state", "", func(s *Snapshot) {
			s.Completed = 0
			s.ConfirmedClicks = 0
		})
		c.log("counters reset")
	case cmdSetCapture:
		res.err = c.setCapture(cmd.baseline)
	case cmdSetHold:
		if cmd.region != (screen.Region{}) && !cmd.region.Valid() {
			res.err = apperrors.Newf(apperrors.ConfigInvalid, "hold region %s invalid", cmd.region)
			break
		}
		c.mutate("state", "", func(s *Snapshot) { s.HoldRegion = cmd.region })
	case cmdStep:
		if c.snap.Get().Variant != ManualAssist {
			res.err = apperrors.New(apperrors.SessionBusy, "step requires the manual variant")
			break
		}
		select {
		case c.steps <- struct{}{}:
		default:
		}
	case cmdRestoreGeometry:
		res.err = c.restore(cmd.restored)
	case cmdCheckTarget:
		c.stopIfTargetReached()
	case cmdRoundComplete:
		c.roundComplete()
	case cmdHalted:
		c.mutate("halted", cmd.reason, func(s *Snapshot) {
			s.UserPaused = true
			s.StopReason = cmd.reason
		})
		c.log("halted: %s", cmd.reason)
	case cmdDrift:
		c.mutate("drift", "", func(s *Snapshot) { s.DriftPaused = cmd.drifted })
		if cmd.drifted {
			c.log("pointer drift, pausing")
		} else {
			c.log("pointer back, resuming")
		}
	case cmdClick:
		c.mutateClick(cmd.point)
	}

	cmd.reply <- res
}

func (c *Coordinator) start(v Variant) error {
	if v == Stopped {
		return apperrors.New(apperrors.ConfigInvalid, "cannot start the stopped variant")
	}
	if !c.baseline.Get().Valid() {
		return apperrors.New(apperrors.NoCapture, "capture the trigger region first")
	}

	prev := c.snap.Get().Variant
	if prev.Running() && prev != v {
		c.log("stopping %s for %s", prev, v)
	}

	c.mutate("state", "", func(s *Snapshot) {
		s.Variant = v
		s.VariantName = v.String()
		s.UserPaused = false
		s.DriftPaused = false
		s.StopReason = ""
		s.StartedAt = time.Now()
	})
	c.log("%s started", v)
	return nil
}

func (c *Coordinator) stop(reason string) {
	c.mutate("state", reason, func(s *Snapshot) {
		s.Variant = Stopped
		s.VariantName = Stopped.String()
		s.UserPaused = false
		s.DriftPaused = false
		s.StopReason = reason
	})
	c.log("%s", reason)
}

func (c *Coordinator) calculator(amount, mult, unit float64) (int, error) {
	if amount <= 0 || mult <= 0 || unit <= 0 {
		return 0, apperrors.New(apperrors.ConfigInvalid, "calculator inputs must be > 0")
	}
	target := int(math.Round(amount * mult / unit))
	budget := amount * mult

	c.mutate("state", "", func(s *Snapshot) {
		s.Target = target
		s.Budget = budget
		s.UnitCost = unit
	})
	c.log("calculator: %.2f x %.1f / %.2f => target %d", amount, mult, unit, target)
	c.stopIfTargetReached()
	return target, nil
}

func (c *Coordinator) setCapture(b *vision.Baseline) error {
	if c.snap.Get().Variant.Running() {
		return apperrors.New(apperrors.SessionBusy, "stop the run before recapturing")
	}
	if !b.Valid() {
		return apperrors.New(apperrors.NoCapture, "capture has no pixels")
	}

	c.baseline.Set(b)
	region, anchor := b.Geometry()
	c.mutate("state", "", func(s *Snapshot) {
		s.Region = region
		s.Anchor = anchor
		s.CaptureValid = true
	})
	c.log("captured %s anchor (%d,%d)", region, anchor.X, anchor.Y)
	return nil
}

// restore installs persisted geometry and counts. The baseline is
// dropped on purpose: a stale raster must never classify a live
// screen, so the capture stays invalid until the user recaptures.
func (c *Coordinator) restore(p persistedSession) error {
	if c.snap.Get().Variant.Running() {
		return apperrors.New(apperrors.SessionBusy, "stop the run before restoring")
	}
	if !p.Region.Valid() {
		return apperrors.Newf(apperrors.ConfigInvalid, "restored region %s invalid", p.Region)
	}

	c.baseline.Set(nil)
	c.mutate("state", "", func(s *Snapshot) {
		s.Region = p.Region
		s.Anchor = p.Anchor
		s.HoldRegion = p.HoldRegion
		s.CaptureValid = false
		s.Completed = p.Completed
		s.Target = p.Target
		s.Budget = p.Budget
		s.UnitCost = p.UnitCost
		s.ConfirmedClicks = p.ConfirmedClicks
		s.StopReason = ""
	})
	c.log("session restored, recapture required")
	return nil
}

func (c *Coordinator) roundComplete() {
	c.mutate("round", "", func(s *Snapshot) { s.Completed++ })
	c.log("round %d complete", c.snap.Get().Completed)
	c.stopIfTargetReached()
}

// stopIfTargetReached ends a running session whose completion law
// already holds. Reached both by round completions and by target or
// budget edits that land at or below the completed count.
func (c *Coordinator) stopIfTargetReached() {
	snap := c.snap.Get()
	if snap.Variant.Running() && snap.TargetReached() {
		c.stop("target reached")
	}
}

func (c *Coordinator) mutateClick(pt image.Point) {
	c.snap.Write(func(s *Snapshot) {
		s.ConfirmedClicks++
		s.UpdatedAt = time.Now()
	})
	c.publish(Event{Kind: "click", Snapshot: c.snap.Get(), Click: pt})
}

// mutate applies fn, stamps the snapshot and publishes an event of
// the given kind.
func (c *Coordinator) mutate(kind, reason string, fn func(*Snapshot)) {
	c.snap.Write(func(s *Snapshot) {
		fn(s)
		s.VariantName = s.Variant.String()
		s.UpdatedAt = time.Now()
	})
	c.publish(Event{Kind: kind, Snapshot: c.snap.Get(), Reason: reason})
}

func (c *Coordinator) publish(ev Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("session event dropped, subscriber busy", "kind", ev.Kind)
		}
	}
}

func (c *Coordinator) log(format string, args ...interface{}) {
	if c.journal != nil {
		c.journal.Append(format, args...)
	}
}
