package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(t *testing.T) (*Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.UnixMilli(0)}
	r := NewRegistry(Options{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second, SlowCallThreshold: time.Second})
	r.SetClock(clock.now)
	return r, clock
}

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestOpensAfterThresholdFailures(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if r.StateOf("db.write") != Closed {
			t.Fatalf("should stay closed before threshold, failure %d", i)
		}
		if err := r.Do(ctx, "db.write", fail); !errors.Is(err, errBoom) {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if r.StateOf("db.write") != Open {
		t.Fatalf("expected open after 5 failures, got %v", r.StateOf("db.write"))
	}
	if err := r.Do(ctx, "db.write", ok); !errors.Is(err, ErrOpen) {
		t.Fatalf("open circuit should fail fast, got %v", err)
	}
}

func TestHalfOpenThenClosedOnSuccess(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = r.Do(ctx, "op", fail)
	}
	clock.advance(31 * time.Second)
	if err := r.Do(ctx, "op", ok); err != nil {
		t.Fatalf("half-open probe should run: %v", err)
	}
	if r.StateOf("op") != Closed {
		t.Fatalf("success in half-open should close, got %v", r.StateOf("op"))
	}
}

func TestHalfOpenThenOpenOnFailure(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = r.Do(ctx, "op", fail)
	}
	clock.advance(31 * time.Second)
	if err := r.Do(ctx, "op", fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe should invoke fn: %v", err)
	}
	if r.StateOf("op") != Open {
		t.Fatalf("failure in half-open should reopen, got %v", r.StateOf("op"))
	}
	// still open before another full recovery interval
	clock.advance(10 * time.Second)
	if err := r.Do(ctx, "op", ok); !errors.Is(err, ErrOpen) {
		t.Fatalf("should fail fast until recovery elapses: %v", err)
	}
}

func TestSlowCallsCountHalf(t *testing.T) {
	r, clock := newTestRegistry(t)
	ctx := context.Background()
	slow := func(context.Context) error {
		clock.advance(2 * time.Second)
		return nil
	}
	// 10 slow successes accumulate 5.0 failure score
	for i := 0; i < 9; i++ {
		if err := r.Do(ctx, "agg", slow); err != nil {
			t.Fatalf("slow call should still succeed: %v", err)
		}
	}
	if r.StateOf("agg") != Closed {
		t.Fatalf("9 soft failures (4.5) should not open yet")
	}
	_ = r.Do(ctx, "agg", slow)
	if r.StateOf("agg") != Open {
		t.Fatalf("sustained slowness should trip the breaker")
	}
}

func TestFastSuccessResetsScore(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = r.Do(ctx, "op", fail)
	}
	if err := r.Do(ctx, "op", ok); err != nil {
		t.Fatalf("success: %v", err)
	}
	// threshold requires 5 consecutive failures again
	for i := 0; i < 4; i++ {
		_ = r.Do(ctx, "op", fail)
	}
	if r.StateOf("op") != Closed {
		t.Fatalf("score should have reset on success")
	}
}

func TestIndependentCircuits(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = r.Do(ctx, "flaky", fail)
	}
	if r.StateOf("flaky") != Open {
		t.Fatalf("flaky should be open")
	}
	if err := r.Do(ctx, "healthy", ok); err != nil {
		t.Fatalf("independent circuit affected: %v", err)
	}
	if r.StateOf("healthy") != Closed {
		t.Fatalf("healthy should stay closed")
	}
}
