// Package config handles clickpilot configuration
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every tunable knob of the automation core. Readiness
// thresholds and wait windows are empirically tuned per target
// application; the defaults below are observed working values, not
// universal constants.
type Config struct {
	HTTPAddr string

	// Classifier thresholds
	ReadyRMS   float64 // sample counts as READY when luma RMS <= this
	ChangedRMS float64 // sample counts as NOT_READY when luma RMS >= this
	BrightTol  float64 // tolerated brightness drop vs baseline (fraction)
	ColorTol   float64 // tolerated mean RGB distance vs baseline

	// Debounce / wait timing
	PollInterval  time.Duration // classifier poll cadence
	StickDuration time.Duration // state must persist this long to be trusted
	InitialWait   time.Duration // bounded wait for READY at iteration start
	ConfirmWindow time.Duration // window for NOT_READY after a click
	GraceWindow   time.Duration // no corrective action before this elapses
	ReadyTimeout  time.Duration // hard AwaitReady deadline; 0 = wait forever

	// Click mechanics
	OverlayClicks int           // max away-from-anchor dismiss attempts
	ClickJitterPx int           // +/- jitter applied to anchor clicks
	MoveDuration  time.Duration // pointer travel time per move

	// Round accounting
	MinRoundDuration time.Duration // rounds faster than this are suspect
	StallRounds      int           // consecutive short rounds before halting
	MaxClickNoOps    int           // consecutive no-op clicks before halting

	// Drift guard
	DriftThresholdPx   int
	DriftInterval      time.Duration
	DriftDebounceTicks int

	// Numeric readout (hold sequences)
	OCRSamples       int
	OCRMinValue      int
	OCRMaxValue      int
	HoldExitGrace    time.Duration
	HoldHashDistance int // phash Hamming distance counting as "active"

	// Anti-idle waggle
	WaggleEnabled bool
	WagglePeriod  time.Duration
	WaggleAmpPx   int

	// Bookkeeping
	JournalSize  int
	SnapshotPath string
	DebugDir     string // dump captures here when set
}

func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8020"),

		ReadyRMS:   getEnvFloat("READY_RMS", 7.5),
		ChangedRMS: getEnvFloat("CHANGED_RMS", 14.0),
		BrightTol:  getEnvFloat("BRIGHT_TOL", 0.14),
		ColorTol:   getEnvFloat("COLOR_TOL", 18.0),

		PollInterval:  getEnvDuration("POLL_INTERVAL", 40*time.Millisecond),
		StickDuration: getEnvDuration("STICK_DURATION", 180*time.Millisecond),
		InitialWait:   getEnvDuration("INITIAL_WAIT", 2500*time.Millisecond),
		ConfirmWindow: getEnvDuration("CONFIRM_WINDOW", 2500*time.Millisecond),
		GraceWindow:   getEnvDuration("GRACE_WINDOW", 8*time.Second),
		ReadyTimeout:  getEnvDuration("READY_TIMEOUT", 40*time.Second),

		OverlayClicks: getEnvInt("OVERLAY_CLICKS", 3),
		ClickJitterPx: getEnvInt("CLICK_JITTER_PX", 1),
		MoveDuration:  getEnvDuration("MOVE_DURATION", 50*time.Millisecond),

		MinRoundDuration: getEnvDuration("MIN_ROUND_DURATION", time.Second),
		StallRounds:      getEnvInt("STALL_ROUNDS", 5),
		MaxClickNoOps:    getEnvInt("MAX_CLICK_NOOPS", 5),

		DriftThresholdPx:   getEnvInt("DRIFT_THRESHOLD_PX", 80),
		DriftInterval:      getEnvDuration("DRIFT_INTERVAL", 150*time.Millisecond),
		DriftDebounceTicks: getEnvInt("DRIFT_DEBOUNCE_TICKS", 3),

		OCRSamples:       getEnvInt("OCR_SAMPLES", 5),
		OCRMinValue:      getEnvInt("OCR_MIN_VALUE", 0),
		OCRMaxValue:      getEnvInt("OCR_MAX_VALUE", 999),
		HoldExitGrace:    getEnvDuration("HOLD_EXIT_GRACE", 2*time.Second),
		HoldHashDistance: getEnvInt("HOLD_HASH_DISTANCE", 6),

		WaggleEnabled: getEnvBool("WAGGLE_ENABLED", false),
		WagglePeriod:  getEnvDuration("WAGGLE_PERIOD", 25*time.Second),
		WaggleAmpPx:   getEnvInt("WAGGLE_AMP_PX", 10),

		JournalSize:  getEnvInt("JOURNAL_SIZE", 200),
		SnapshotPath: getEnv("SNAPSHOT_PATH", defaultSnapshotPath()),
		DebugDir:     getEnv("DEBUG_DIR", ""),
	}
}

func defaultSnapshotPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clickpilot_session.json"
	}
	return home + "/.clickpilot_session.json"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}
