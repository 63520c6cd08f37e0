package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"HTTP_ADDR", "READY_RMS", "CHANGED_RMS", "BRIGHT_TOL", "COLOR_TOL",
		"POLL_INTERVAL", "STICK_DURATION", "INITIAL_WAIT", "CONFIRM_WINDOW",
		"GRACE_WINDOW", "READY_TIMEOUT", "OVERLAY_CLICKS", "CLICK_JITTER_PX",
		"MOVE_DURATION", "MIN_ROUND_DURATION", "STALL_ROUNDS", "MAX_CLICK_NOOPS",
		"DRIFT_THRESHOLD_PX", "DRIFT_INTERVAL", "DRIFT_DEBOUNCE_TICKS",
		"OCR_SAMPLES", "OCR_MIN_VALUE", "OCR_MAX_VALUE", "HOLD_EXIT_GRACE",
		"HOLD_HASH_DISTANCE", "WAGGLE_ENABLED", "WAGGLE_PERIOD", "WAGGLE_AMP_PX",
		"JOURNAL_SIZE", "SNAPSHOT_PATH", "DEBUG_DIR",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.HTTPAddr != ":8020" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8020")
	}
	if cfg.ReadyRMS != 7.5 {
		t.Errorf("ReadyRMS = %f, want 7.5", cfg.ReadyRMS)
	}
	if cfg.ChangedRMS != 14.0 {
		t.Errorf("ChangedRMS = %f, want 14.0", cfg.ChangedRMS)
	}
	if cfg.BrightTol != 0.14 {
		t.Errorf("BrightTol = %f, want 0.14", cfg.BrightTol)
	}
	if cfg.ColorTol != 18.0 {
		t.Errorf("ColorTol = %f, want 18.0", cfg.ColorTol)
	}
	if cfg.PollInterval != 40*time.Millisecond {
		t.Errorf("PollInterval = %v, want 40ms", cfg.PollInterval)
	}
	if cfg.StickDuration != 180*time.Millisecond {
		t.Errorf("StickDuration = %v, want 180ms", cfg.StickDuration)
	}
	if cfg.GraceWindow != 8*time.Second {
		t.Errorf("GraceWindow = %v, want 8s", cfg.GraceWindow)
	}
	if cfg.ReadyTimeout != 40*time.Second {
		t.Errorf("ReadyTimeout = %v, want 40s", cfg.ReadyTimeout)
	}
	if cfg.OverlayClicks != 3 {
		t.Errorf("OverlayClicks = %d, want 3", cfg.OverlayClicks)
	}
	if cfg.StallRounds != 5 {
		t.Errorf("StallRounds = %d, want 5", cfg.StallRounds)
	}
	if cfg.WaggleEnabled {
		t.Error("WaggleEnabled should default to false")
	}
	if cfg.SnapshotPath == "" {
		t.Error("SnapshotPath should not be empty")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("READY_RMS", "5.0")
	t.Setenv("STICK_DURATION", "250ms")
	t.Setenv("READY_TIMEOUT", "0s")
	t.Setenv("WAGGLE_ENABLED", "true")
	t.Setenv("DRIFT_THRESHOLD_PX", "120")

	cfg := Load()

	if cfg.ReadyRMS != 5.0 {
		t.Errorf("ReadyRMS = %f, want 5.0", cfg.ReadyRMS)
	}
	if cfg.StickDuration != 250*time.Millisecond {
		t.Errorf("StickDuration = %v, want 250ms", cfg.StickDuration)
	}
	// Zero is the explicit infinite-wait escape hatch, never the default.
	if cfg.ReadyTimeout != 0 {
		t.Errorf("ReadyTimeout = %v, want 0", cfg.ReadyTimeout)
	}
	if !cfg.WaggleEnabled {
		t.Error("WaggleEnabled should be true")
	}
	if cfg.DriftThresholdPx != 120 {
		t.Errorf("DriftThresholdPx = %d, want 120", cfg.DriftThresholdPx)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("READY_RMS", "not-a-number")
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("STALL_ROUNDS", "3.5")

	cfg := Load()

	if cfg.ReadyRMS != 7.5 {
		t.Errorf("ReadyRMS = %f, want default 7.5", cfg.ReadyRMS)
	}
	if cfg.PollInterval != 40*time.Millisecond {
		t.Errorf("PollInterval = %v, want default 40ms", cfg.PollInterval)
	}
	if cfg.StallRounds != 5 {
		t.Errorf("StallRounds = %d, want default 5", cfg.StallRounds)
	}
}
