package journal

import (
	"testing"
	"time"
)

func TestAppendAndRecent(t *testing.T) {
	j := New(10, 10)

	j.Append("round %d complete", 1)
	j.Append("round %d complete", 2)

	lines := j.Recent(0)
	if len(lines) != 2 {
		t.Fatalf("Recent() = %d lines, want 2", len(lines))
	}
	if lines[0].Text != "round 1 complete" {
		t.Errorf("lines[0] = %q, want oldest first", lines[0].Text)
	}
	if lines[1].Text != "round 2 complete" {
		t.Errorf("lines[1] = %q, want newest last", lines[1].Text)
	}
}

func TestRingEviction(t *testing.T) {
	j := New(3, 10)

	for i := 1; i <= 5; i++ {
		j.Append("line %d", i)
	}

	lines := j.Recent(0)
	if len(lines) != 3 {
		t.Fatalf("Recent() = %d lines, want 3", len(lines))
	}
	if lines[0].Text != "line 3" {
		t.Errorf("oldest kept = %q, want %q", lines[0].Text, "line 3")
	}
}

func TestRecentLimit(t *testing.T) {
	j := New(10, 10)
	for i := 0; i < 5; i++ {
		j.Append("line %d", i)
	}

	lines := j.Recent(2)
	if len(lines) != 2 {
		t.Fatalf("Recent(2) = %d lines, want 2", len(lines))
	}
	if lines[1].Text != "line 4" {
		t.Errorf("last = %q, want %q", lines[1].Text, "line 4")
	}
}

func TestSince(t *testing.T) {
	j := New(10, 10)
	j.Append("old")
	cutoff := time.Now()
	time.Sleep(time.Millisecond)
	j.Append("new")

	lines := j.Since(cutoff)
	if len(lines) != 1 || lines[0].Text != "new" {
		t.Errorf("Since() = %v, want just the new line", lines)
	}
}

func TestEventsNonBlocking(t *testing.T) {
	j := New(10, 1)

	// Buffer of 1: second append must not block even with no reader.
	j.Append("first")
	done := make(chan struct{})
	go func() {
		j.Append("second")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Append blocked on full event channel")
	}

	evt := <-j.Events()
	if evt.Text != "first" {
		t.Errorf("event = %q, want %q", evt.Text, "first")
	}
}
