package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/mkoresh/forgeline/internal/domain"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newBreaker(domain.FailureTransient, 5, time.Minute)
	now := time.Now()

	for i := 0; i < 4; i++ {
		if err := b.Allow(now); err != nil {
			t.Fatalf("call %d should be allowed: %v", i+1, err)
		}
		b.RecordFailure(now)
	}

	if got := b.State(); got != domain.BreakerClosed {
		t.Errorf("expected CLOSED after 4 failures, got %s", got)
	}

	// Пятый отказ подряд открывает breaker.
	if err := b.Allow(now); err != nil {
		t.Fatalf("5th call should be allowed: %v", err)
	}
	b.RecordFailure(now)

	if got := b.State(); got != domain.BreakerOpen {
		t.Errorf("expected OPEN after 5 failures, got %s", got)
	}

	// Шестой вызов отклоняется мгновенно.
	if err := b.Allow(now); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	b := newBreaker(domain.FailureTransient, 1, 10*time.Millisecond)
	now := time.Now()

	b.RecordFailure(now)
	if got := b.State(); got != domain.BreakerOpen {
		t.Fatalf("expected OPEN, got %s", got)
	}

	// До истечения cooldown — отклоняется.
	if err := b.Allow(now); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen before cooldown, got %v", err)
	}

	// После cooldown — ровно одна проба.
	later := now.Add(20 * time.Millisecond)
	if err := b.Allow(later); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	if got := b.State(); got != domain.BreakerHalfOpen {
		t.Errorf("expected HALF_OPEN, got %s", got)
	}
	if err := b.Allow(later); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe should be rejected, got %v", err)
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := newBreaker(domain.FailureTransient, 1, time.Millisecond)
	now := time.Now()

	b.RecordFailure(now)
	later := now.Add(5 * time.Millisecond)
	if err := b.Allow(later); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}

	b.RecordSuccess()

	if got := b.State(); got != domain.BreakerClosed {
		t.Errorf("expected CLOSED after probe success, got %s", got)
	}
	if got := b.Snapshot().ConsecutiveFailures; got != 0 {
		t.Errorf("counter should be zeroed, got %d", got)
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := newBreaker(domain.FailureTransient, 1, time.Millisecond)
	now := time.Now()

	b.RecordFailure(now)
	later := now.Add(5 * time.Millisecond)
	if err := b.Allow(later); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}

	// Проба упала — обратно в OPEN с новым cooldown.
	b.RecordFailure(later)

	if got := b.State(); got != domain.BreakerOpen {
		t.Fatalf("expected OPEN after probe failure, got %s", got)
	}
	if err := b.Allow(later); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen right after reopen, got %v", err)
	}
}

func TestRegistry_PerClassIsolation(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Minute})

	r.RecordFailure(domain.FailureTransient)

	if err := r.Allow(domain.FailureTransient); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("transient breaker should be open, got %v", err)
	}
	if err := r.Allow(domain.FailureCorrectable); err != nil {
		t.Errorf("correctable breaker should stay closed, got %v", err)
	}
}

func TestRegistry_TransitionHook(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Minute})

	var gotClass domain.FailureClass
	var gotState domain.BreakerState
	r.OnTransition(func(class domain.FailureClass, state domain.BreakerState) {
		gotClass = class
		gotState = state
	})

	r.RecordFailure(domain.FailureTransient)

	if gotClass != domain.FailureTransient || gotState != domain.BreakerOpen {
		t.Errorf("expected transition hook (TRANSIENT, OPEN), got (%s, %s)", gotClass, gotState)
	}
}
