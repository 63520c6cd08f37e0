// clickpilotd - visual readiness detection and click automation daemon
package main

import (
	"context"
	"image"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clickpilot/clickpilot/internal/config"
	"github.com/clickpilot/clickpilot/internal/driver"
	"github.com/clickpilot/clickpilot/internal/guard"
	"github.com/clickpilot/clickpilot/internal/journal"
	"github.com/clickpilot/clickpilot/internal/ocr"
	"github.com/clickpilot/clickpilot/internal/pointer"
	"github.com/clickpilot/clickpilot/internal/screen"
	"github.com/clickpilot/clickpilot/internal/server"
	"github.com/clickpilot/clickpilot/internal/session"
	"github.com/clickpilot/clickpilot/internal/vision"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()

	jrnl := journal.New(cfg.JournalSize, 64)
	sess := session.NewCoordinator(jrnl)

	// Hardware boundaries
	display := screen.NewDisplay()
	mouse := pointer.NewRobot()
	clicker := pointer.NewClicker(mouse, cfg.ClickJitterPx, cfg.MoveDuration)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sess.Run(ctx)

	// Resume bookkeeping from a previous run when a snapshot exists;
	// the capture itself never survives a restart.
	if _, err := os.Stat(cfg.SnapshotPath); err == nil {
		if err := sess.Restore(cfg.SnapshotPath); err != nil {
			slog.Warn("session restore failed", "path", cfg.SnapshotPath, "error", err)
		} else {
			slog.Info("session restored", "path", cfg.SnapshotPath)
		}
	}

	// Guards
	drift := guard.NewDrift(mouse.Location, cfg.DriftThresholdPx, cfg.DriftInterval, cfg.DriftDebounceTicks)
	go drift.Run(ctx)
	go func() {
		for drifted := range drift.Events() {
			sess.DriftChanged(drifted)
		}
	}()

	clicks := guard.NewClicks(mouse.Location)
	go clicks.Run(ctx)
	go func() {
		for ev := range clicks.Events() {
			sess.ConfirmedClick(image.Pt(ev.X, ev.Y))
		}
	}()
	go trackClickRegion(ctx, sess, clicks)

	// Automation loop
	loop := driver.NewLoop(cfg, display, clicker, sess, jrnl, screen.VirtualBounds()).
		WithDrift(drift).
		WithActivity(vision.NewActivity(cfg.HoldHashDistance)).
		WithDebug(screen.NewDebugSink(cfg.DebugDir))

	if rec, err := ocr.NewTesseract(); err != nil {
		slog.Warn("ocr unavailable, hold sequences degrade to image-only", "error", err)
	} else {
		defer func() { _ = rec.Close() }()
		loop.WithReader(ocr.NewReader(display, rec, cfg.OCRSamples, cfg.OCRMinValue, cfg.OCRMaxValue))
	}

	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("loop error", "error", err)
		}
	}()

	// HTTP/WebSocket surface
	srv := server.New(cfg, sess, display, jrnl)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("clickpilotd starting", "http", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	_ = sess.Stop()
	if err := sess.Save(cfg.SnapshotPath); err != nil {
		slog.Warn("session save failed", "error", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
}

// trackClickRegion keeps the click counter aligned with the session:
// counting only while a variant runs, inside the current capture
// region.
func trackClickRegion(ctx context.Context, sess *session.Coordinator, clicks *guard.Clicks) {
	events, cancel := sess.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			clicks.SetRegion(ev.Snapshot.Region)
			clicks.SetActive(ev.Snapshot.Variant.Running() && !ev.Snapshot.Paused())
		}
	}
}
