package screen

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vcaesar/imgo"
)

// DebugSink saves captured frames to disk for threshold tuning.
// Inactive when dir is empty.
type DebugSink struct {
	dir string
	seq int
}

// NewDebugSink creates a frame dumper writing into dir.
func NewDebugSink(dir string) *DebugSink {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("debug dir unavailable", "dir", dir, "error", err)
			dir = ""
		}
	}
	return &DebugSink{dir: dir}
}

// Enabled reports whether frames are being saved.
func (s *DebugSink) Enabled() bool { return s.dir != "" }

// Save writes the frame tagged with a label and sequence number.
func (s *DebugSink) Save(tag string, img image.Image) {
	if s.dir == "" || img == nil {
		return
	}
	s.seq++
	name := fmt.Sprintf("%s_%s_%04d.png", time.Now().Format("150405"), tag, s.seq)
	if err := imgo.Save(filepath.Join(s.dir, name), img); err != nil {
		slog.Debug("debug frame save failed", "tag", tag, "error", err)
	}
}
