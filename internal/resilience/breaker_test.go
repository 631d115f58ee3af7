package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"studyrag/internal/fn"
)

var errFail = errors.New("fail")

func failing(calls *int) func(context.Context) fn.Result[int] {
	return func(context.Context) fn.Result[int] {
		*calls++
		return fn.Err[int](errFail)
	}
}

func succeeding(calls *int) func(context.Context) fn.Result[int] {
	return func(context.Context) fn.Result[int] {
		*calls++
		return fn.Ok(1)
	}
}

func TestBreakerStartsClosed(t *testing.T) {
	b := NewBreaker(BreakerOpts{})
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
	if b.opts != DefaultBreakerOpts {
		t.Errorf("expected defaults, got %+v", b.opts)
	}
}

func TestBreakerOpensAndSkipsCalls(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()
	calls := 0

	Call(ctx, b, failing(&calls))
	Call(ctx, b, failing(&calls))
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	res := Call(ctx, b, succeeding(&calls))
	if !errors.Is(res.Error(), ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", res.Error())
	}
	if calls != 2 {
		t.Errorf("backend called %d times while open", calls)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})
	ctx := context.Background()
	calls := 0

	Call(ctx, b, failing(&calls))
	Call(ctx, b, succeeding(&calls))
	Call(ctx, b, failing(&calls))
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: 5 * time.Second})
	b.now = func() time.Time { return now }
	ctx := context.Background()
	calls := 0

	Call(ctx, b, failing(&calls))
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	now = now.Add(6 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}

	// failed probe reopens
	Call(ctx, b, failing(&calls))
	if b.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %v", b.State())
	}

	now = now.Add(6 * time.Second)
	res := Call(ctx, b, succeeding(&calls))
	if res.Error() != nil || b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v (%v)", b.State(), res.Error())
	}
	if calls != 3 {
		t.Errorf("expected 3 backend calls, got %d", calls)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d: got %q want %q", s, s.String(), want)
		}
	}
}
