// Package driver runs the click-and-confirm automation loop. One
// iteration is one round: wait for the trigger to be ready, click it,
// confirm the click took, wait for ready again. Everything else in
// the loop exists to keep that cycle honest on a screen it does not
// control.
package driver

import (
	"context"
	"image"
	"strconv"
	"time"

	"github.com/clickpilot/clickpilot/internal/config"
	apperrors "github.com/clickpilot/clickpilot/internal/errors"
	"github.com/clickpilot/clickpilot/internal/guard"
	"github.com/clickpilot/clickpilot/internal/journal"
	"github.com/clickpilot/clickpilot/internal/ocr"
	"github.com/clickpilot/clickpilot/internal/pointer"
	"github.com/clickpilot/clickpilot/internal/resilience"
	"github.com/clickpilot/clickpilot/internal/screen"
	"github.com/clickpilot/clickpilot/internal/session"
	"github.com/clickpilot/clickpilot/internal/trace"
	"github.com/clickpilot/clickpilot/internal/vision"
	"github.com/clickpilot/clickpilot/internal/watch"
)

const (
	// idleInterval paces the outer loop while paused or stopped
	// between manual steps.
	idleInterval = 100 * time.Millisecond

	// driftSuppressPad extends drift suppression past the pointer
	// travel time so the guard never sees our own gesture land.
	driftSuppressPad = 500 * time.Millisecond

	// holdPollInterval paces hold-sequence probes; OCR is too slow
	// for the classifier cadence.
	holdPollInterval = 250 * time.Millisecond
)

// Loop drives rounds for the active session variant.
type Loop struct {
	cfg     *config.Config
	sampler screen.Sampler
	clicker *pointer.Clicker
	sess    *session.Coordinator
	jrnl    *journal.Journal
	bounds  image.Rectangle

	drift    *guard.Drift
	reader   *ocr.Reader
	activity *vision.Activity
	debug    *screen.DebugSink

	lastWaggle time.Time
}

// NewLoop wires the loop over its boundaries. bounds is the virtual
// desktop rectangle away-clicks must stay inside.
func NewLoop(cfg *config.Config, sampler screen.Sampler, clicker *pointer.Clicker, sess *session.Coordinator, jrnl *journal.Journal, bounds image.Rectangle) *Loop {
	return &Loop{
		cfg:        cfg,
		sampler:    sampler,
		clicker:    clicker,
		sess:       sess,
		jrnl:       jrnl,
		bounds:     bounds,
		lastWaggle: time.Now(),
	}
}

// WithDrift attaches the drift guard for suppression around
// automated gestures.
func (l *Loop) WithDrift(d *guard.Drift) *Loop {
	l.drift = d
	return l
}

// WithReader attaches the numeric readout extractor for hold
// sequences.
func (l *Loop) WithReader(r *ocr.Reader) *Loop {
	l.reader = r
	return l
}

// WithActivity attaches the hold-region activity monitor.
func (l *Loop) WithActivity(a *vision.Activity) *Loop {
	l.activity = a
	return l
}

// WithDebug attaches a frame dumper for threshold tuning.
func (l *Loop) WithDebug(d *screen.DebugSink) *Loop {
	l.debug = d
	return l
}

// Run drives rounds until ctx is cancelled. It never returns on
// session stop; a later Start picks the loop back up.
func (l *Loop) Run(ctx context.Context) error {
	noops := 0
	shortRounds := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap := l.sess.Snapshot()
		if !snap.Variant.Running() {
			noops, shortRounds = 0, 0
			if l.drift != nil {
				l.drift.SetActive(false)
			}
			if !l.sleep(ctx, idleInterval) {
				return ctx.Err()
			}
			continue
		}

		if l.drift != nil {
			l.drift.SetActive(true)
		}

		// Completion is checked before the round, not only after: a
		// target lowered under the completed count must stop the run
		// here rather than let one more click through.
		if snap.TargetReached() {
			l.sess.CheckTarget()
			continue
		}

		if snap.Paused() {
			if !l.sleep(ctx, idleInterval) {
				return ctx.Err()
			}
			continue
		}

		if snap.Variant == session.ManualAssist && !l.awaitStep(ctx) {
			continue
		}

		baseline := l.sess.Baseline()
		if !baseline.Valid() {
			l.sess.Halted(apperrors.NoCapture, "capture lost mid-run")
			continue
		}

		l.maybeWaggle(baseline.Anchor)

		outcome := l.round(ctx, snap, baseline, &noops, &shortRounds)
		if outcome == roundCancelled && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type roundOutcome int

const (
	roundCounted roundOutcome = iota
	roundRetried              // no-op click or not-ready; same iteration rules apply
	roundHalted
	roundCancelled
)

// round runs one full iteration against a fixed baseline. A session
// stop cancels the round's waits; the synchronous click itself is
// never interrupted.
func (l *Loop) round(parent context.Context, snap session.Snapshot, b *vision.Baseline, noops, shortRounds *int) roundOutcome {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go l.cancelOnStop(ctx, cancel)

	ctx, span := trace.StartSpan(ctx, "driver.round")
	defer span.End()

	th := l.thresholds()
	waiter := watch.NewWaiter(l.classifySource(ctx, b, th), l.cfg.PollInterval, l.pausedFn())

	// Bounded wait for READY before touching anything.
	ready, err := waiter.WaitForState(ctx, vision.Ready, l.cfg.StickDuration, l.cfg.InitialWait)
	if err != nil {
		return roundCancelled
	}
	if !ready {
		return l.recoverNotReady(ctx, snap, b, waiter, span)
	}

	start := time.Now()
	l.clickAnchor(b.Anchor)
	span.SetAttr("clicked", "true")

	// The click must visibly take: READY -> NOT_READY within the
	// confirm window, else it was a no-op and nothing is counted.
	confirmed, err := waiter.WaitForState(ctx, vision.NotReady, l.cfg.StickDuration, l.cfg.ConfirmWindow)
	if err != nil {
		return roundCancelled
	}
	if !confirmed {
		*noops++
		l.jrnl.Append("click had no effect (%d/%d)", *noops, l.cfg.MaxClickNoOps)
		l.dumpFrame("noop", b.Region)
		if *noops >= l.cfg.MaxClickNoOps {
			*noops = 0
			l.sess.Halted(apperrors.ClickNoOp, "repeated clicks with no state change")
			return roundHalted
		}
		return roundRetried
	}
	*noops = 0

	ready, err = l.awaitReady(ctx, b, waiter)
	if err != nil {
		return roundCancelled
	}
	if !ready {
		l.dumpFrame("timeout", b.Region)
		l.sess.Halted(apperrors.WaitTimeout, "trigger never returned to ready")
		return roundHalted
	}

	dur := time.Since(start)
	span.SetAttr("round_ms", strconv.FormatInt(dur.Milliseconds(), 10))
	l.sess.RoundComplete()

	// Suspiciously fast rounds still count, but a run of them means
	// the classifier is oscillating, not the application cycling.
	if dur < l.cfg.MinRoundDuration {
		*shortRounds++
		l.jrnl.Append("short round %s (%d/%d)", dur.Round(time.Millisecond), *shortRounds, l.cfg.StallRounds)
		if *shortRounds >= l.cfg.StallRounds {
			*shortRounds = 0
			l.sess.Halted(apperrors.StallDetected, "consecutive short rounds")
			return roundHalted
		}
	} else {
		*shortRounds = 0
	}
	return roundCounted
}

// recoverNotReady handles an iteration that starts without READY:
// hold sequences first, then overlay dismissal, then a halt.
func (l *Loop) recoverNotReady(ctx context.Context, snap session.Snapshot, b *vision.Baseline, waiter *watch.Waiter, span *trace.Span) roundOutcome {
	if l.holdActive(ctx, snap.HoldRegion) {
		span.SetAttr("hold", "true")
		if !l.holdUntilDone(ctx, snap.HoldRegion) {
			return roundCancelled
		}
		return roundRetried
	}

	for attempt := 1; attempt <= l.cfg.OverlayClicks; attempt++ {
		away := pointer.AwayPoint(b.Anchor, b.Region, l.bounds)
		l.jrnl.Append("not ready, dismiss click %d/%d at (%d,%d)", attempt, l.cfg.OverlayClicks, away.X, away.Y)
		l.clickAway(away)

		ready, err := waiter.WaitForState(ctx, vision.Ready, l.cfg.StickDuration, l.cfg.InitialWait)
		if err != nil {
			return roundCancelled
		}
		if ready {
			return roundRetried
		}
	}

	l.dumpFrame("stuck", b.Region)
	l.sess.Halted(apperrors.WaitTimeout, "trigger not ready after dismiss clicks")
	return roundHalted
}

// awaitReady waits for the control to cycle back. The grace window
// passes with no corrective action at all; after it, exactly one
// nudge click away from the trigger, then the wait continues to the
// hard deadline. ReadyTimeout 0 waits forever.
func (l *Loop) awaitReady(ctx context.Context, b *vision.Baseline, waiter *watch.Waiter) (bool, error) {
	grace := l.cfg.GraceWindow
	if l.cfg.ReadyTimeout > 0 && grace > l.cfg.ReadyTimeout {
		grace = l.cfg.ReadyTimeout
	}

	ready, err := waiter.WaitForState(ctx, vision.Ready, l.cfg.StickDuration, grace)
	if err != nil || ready {
		return ready, err
	}

	away := pointer.AwayPoint(b.Anchor, b.Region, l.bounds)
	l.jrnl.Append("still busy after %s, nudge at (%d,%d)", grace, away.X, away.Y)
	l.clickAway(away)

	remaining := time.Duration(0) // 0 = wait forever
	if l.cfg.ReadyTimeout > 0 {
		remaining = l.cfg.ReadyTimeout - grace
		if remaining <= 0 {
			return false, nil
		}
	}
	return waiter.WaitForState(ctx, vision.Ready, l.cfg.StickDuration, remaining)
}

// holdActive probes whether the hold region shows a live bonus
// sequence: recent visual churn, or a countdown above zero.
func (l *Loop) holdActive(ctx context.Context, hold screen.Region) bool {
	if !hold.Valid() {
		return false
	}

	img, err := l.capture(ctx, hold)
	if err == nil && l.activity != nil && l.activity.Observe(img) {
		return true
	}

	if l.reader != nil && l.reader.Available() {
		if v, err := l.reader.ReadCounter(ctx, hold); err == nil && v > 0 {
			return true
		}
	}
	return false
}

// holdUntilDone waits out a bonus sequence: no clicking while the
// counter runs, then an exit grace after the last visible activity.
// Returns false on cancellation.
func (l *Loop) holdUntilDone(ctx context.Context, hold screen.Region) bool {
	l.jrnl.Append("hold sequence active, standing by")
	deadline := time.Time{}
	if l.cfg.ReadyTimeout > 0 {
		deadline = time.Now().Add(l.cfg.ReadyTimeout)
	}

	for {
		if !l.sleep(ctx, holdPollInterval) {
			return false
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			l.jrnl.Append("hold sequence exceeded %s, abandoning", l.cfg.ReadyTimeout)
			return true
		}
		if snap := l.sess.Snapshot(); !snap.Variant.Running() || snap.Paused() {
			return true
		}

		img, err := l.capture(ctx, hold)
		if err != nil {
			continue
		}
		if l.activity != nil {
			l.activity.Observe(img)
		}

		counting := false
		if l.reader != nil && l.reader.Available() {
			if v, rerr := l.reader.ReadCounter(ctx, hold); rerr == nil && v > 0 {
				counting = true
			}
		}
		settled := l.activity == nil || !l.activity.ActiveWithin(l.cfg.HoldExitGrace)
		if !counting && settled {
			l.jrnl.Append("hold sequence finished")
			return true
		}
	}
}

func (l *Loop) clickAnchor(anchor image.Point) {
	l.suppressDrift()
	pt := l.clicker.ClickAt(anchor)
	if l.drift != nil {
		l.drift.SetExpected(pt)
	}
}

func (l *Loop) clickAway(pt image.Point) {
	l.suppressDrift()
	clicked := l.clicker.ClickAt(pt)
	if l.drift != nil {
		l.drift.SetExpected(clicked)
	}
}

func (l *Loop) suppressDrift() {
	if l.drift != nil {
		l.drift.Suppress(l.cfg.MoveDuration + driftSuppressPad)
	}
}

// maybeWaggle performs the periodic anti-idle gesture between rounds.
func (l *Loop) maybeWaggle(anchor image.Point) {
	if !l.cfg.WaggleEnabled || time.Since(l.lastWaggle) < l.cfg.WagglePeriod {
		return
	}
	l.lastWaggle = time.Now()
	l.suppressDrift()
	l.clicker.Waggle(anchor, l.cfg.WaggleAmpPx)
	if l.drift != nil {
		l.drift.SetExpected(anchor)
	}
}

// awaitStep blocks until a manual step is queued; returns false when
// the loop should re-check session state instead.
func (l *Loop) awaitStep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-l.sess.Steps():
		return true
	case <-time.After(idleInterval):
		return false
	}
}

func (l *Loop) classifySource(ctx context.Context, b *vision.Baseline, th vision.Thresholds) watch.Source {
	return func() vision.State {
		img, err := l.capture(ctx, b.Region)
		if err != nil {
			return vision.Unknown
		}
		return vision.Classify(img, b, th)
	}
}

// capture grabs a region with a short retry; a failed grab is
// usually a transient occlusion.
func (l *Loop) capture(ctx context.Context, region screen.Region) (*image.RGBA, error) {
	var img *image.RGBA
	err := resilience.Retry(ctx, resilience.CaptureRetryConfig(), func() error {
		var cerr error
		img, cerr = l.sampler.Capture(region)
		return cerr
	})
	return img, err
}

func (l *Loop) thresholds() vision.Thresholds {
	return vision.Thresholds{
		ReadyRMS:   l.cfg.ReadyRMS,
		ChangedRMS: l.cfg.ChangedRMS,
		BrightTol:  l.cfg.BrightTol,
		ColorTol:   l.cfg.ColorTol,
	}
}

func (l *Loop) pausedFn() func() bool {
	return func() bool { return l.sess.Snapshot().Paused() }
}

func (l *Loop) dumpFrame(tag string, region screen.Region) {
	if l.debug == nil || !l.debug.Enabled() {
		return
	}
	if img, err := l.sampler.Capture(region); err == nil {
		l.debug.Save(tag, img)
	}
}

// cancelOnStop cancels the round context when the session stops, so
// a Stop command does not wait out a 40 second ready deadline.
func (l *Loop) cancelOnStop(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(idleInterval):
			if !l.sess.Snapshot().Variant.Running() {
				cancel()
				return
			}
		}
	}
}

// sleep waits d or until cancellation; false means cancelled.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
