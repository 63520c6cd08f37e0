// Package journal keeps a bounded in-memory run log for the
// surrounding application: the WebSocket stream tails it live and
// session snapshots embed the most recent lines.
package journal

import (
	"fmt"
	"sync"
	"time"
)

// Line is one journal entry.
type Line struct {
	Timestamp time.Time `json:"ts"`
	Text      string    `json:"text"`
}

// Journal is a ring buffer of timestamped lines with a non-blocking
// event feed.
type Journal struct {
	mu       sync.RWMutex
	lines    []Line
	maxSize  int
	eventsCh chan Line
}

// New creates a journal holding at most maxLines entries.
func New(maxLines, eventBuffer int) *Journal {
	if maxLines <= 0 {
		maxLines = 200
	}
	return &Journal{
		lines:    make([]Line, 0, maxLines),
		maxSize:  maxLines,
		eventsCh: make(chan Line, eventBuffer),
	}
}

// Append records a line and emits it to the event feed. The feed drop
// policy is lossy: a slow subscriber never blocks the loop.
func (j *Journal) Append(format string, args ...interface{}) {
	line := Line{Timestamp: time.Now(), Text: fmt.Sprintf(format, args...)}

	j.mu.Lock()
	j.lines = append(j.lines, line)
	if len(j.lines) > j.maxSize {
		j.lines = j.lines[len(j.lines)-j.maxSize:]
	}
	j.mu.Unlock()

	select {
	case j.eventsCh <- line:
	default:
	}
}

// Recent returns up to n most recent lines, oldest first.
func (j *Journal) Recent(n int) []Line {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > len(j.lines) {
		n = len(j.lines)
	}
	out := make([]Line, n)
	copy(out, j.lines[len(j.lines)-n:])
	return out
}

// Since returns lines recorded at or after the cutoff, oldest first.
func (j *Journal) Since(cutoff time.Time) []Line {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Line
	for _, l := range j.lines {
		if !l.Timestamp.Before(cutoff) {
			out = append(out, l)
		}
	}
	return out
}

// Events returns the live line feed.
func (j *Journal) Events() <-chan Line {
	return j.eventsCh
}
