package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := New(DefaultConfig())

	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() = %v, want nil", err)
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{Threshold: 3, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})

	for i := 0; i < 3; i++ {
		b.Failure()
	}

	if b.State() != Open {
		t.Errorf("State() = %v, want Open after threshold failures", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New(Config{Threshold: 3, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed (success reset the count)", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 1})

	b.Failure()
	if b.State() != Open {
		t.Fatalf("State() = %v, want Open", b.State())
	}

	time.Sleep(5 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after reset timeout = %v, want nil (half-open probe)", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("State() = %v, want HalfOpen", b.State())
	}

	b.Success()
	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed after half-open success", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 1})

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()
	b.Failure()

	if b.State() != Open {
		t.Errorf("State() = %v, want Open after half-open failure", b.State())
	}
}

func TestBreakerExecute(t *testing.T) {
	b := New(Config{Threshold: 2, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	boom := errors.New("ocr crashed")

	if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Execute() = %v, want underlying error", err)
	}
	_ = b.Execute(func() error { return boom })

	// Breaker now open: fn must not run.
	ran := false
	err := b.Execute(func() error { ran = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute() = %v, want ErrOpen", err)
	}
	if ran {
		t.Error("fn must not run while breaker is open")
	}
}

func TestBreakerHook(t *testing.T) {
	var transitions [][2]State
	b := New(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 1}).
		WithHook(func(from, to State) {
			transitions = append(transitions, [2]State{from, to})
		})

	b.Failure()

	if len(transitions) != 1 || transitions[0] != [2]State{Closed, Open} {
		t.Errorf("transitions = %v, want [[Closed Open]]", transitions)
	}
}
