// Package breaker implements a circuit breaker that treats sustained high
// latency as a soft failure. Slow-but-successful calls count half a failure,
// so degradation trips the breaker even without hard errors. State lives in
// process memory only; a restart starts closed, which is acceptable because
// the breaker's job is transient load shedding, not correctness.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when a protected operation is skipped because its
// circuit is open.
var ErrOpen = errors.New("circuit open")

// State of one protected operation.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Options configures breaker behavior per protected operation.
type Options struct {
	// FailureThreshold is the failure score that opens the circuit. Hard
	// failures count 1, slow successes 0.5.
	FailureThreshold float64
	// RecoveryTimeout is the open interval before a half-open probe.
	RecoveryTimeout time.Duration
	// SlowCallThreshold marks a successful call as a soft failure.
	SlowCallThreshold time.Duration
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		SlowCallThreshold: time.Second,
	}
}

type circuit struct {
	mu            sync.Mutex
	state         State
	failureScore  float64
	lastFailureAt time.Time
	openedAt      time.Time
}

// Registry holds independent breaker state per operation name. It is an
// explicitly constructed, injectable service with create-on-first-use
// lifetime, safe for concurrent callers.
type Registry struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
}

// NewRegistry returns a Registry with the given options.
func NewRegistry(opts Options) *Registry {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = 30 * time.Second
	}
	if opts.SlowCallThreshold <= 0 {
		opts.SlowCallThreshold = time.Second
	}
	return &Registry{opts: opts, now: time.Now, circuits: map[string]*circuit{}}
}

// SetClock overrides the time source. Test use only.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

func (r *Registry) circuitFor(name string) *circuit {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.circuits[name]
	if !ok {
		c = &circuit{state: Closed}
		r.circuits[name] = c
	}
	return c
}

// StateOf reports the current state of a named circuit.
func (r *Registry) StateOf(name string) State {
	c := r.circuitFor(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Do invokes fn under the named circuit. While open, it fails fast with
// ErrOpen instead of invoking fn; after the recovery timeout the next call
// runs half-open, closing on success and reopening on failure.
func (r *Registry) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	c := r.circuitFor(name)

	c.mu.Lock()
	switch c.state {
	case Open:
		if r.now().Sub(c.openedAt) < r.opts.RecoveryTimeout {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrOpen, name)
		}
		c.state = HalfOpen
	case HalfOpen, Closed:
	}
	c.mu.Unlock()

	start := r.now()
	err := fn(ctx)
	elapsed := r.now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		r.recordFailure(c, 1)
		return err
	}
	if elapsed >= r.opts.SlowCallThreshold {
		// soft failure: success, but slow enough to count as degradation
		r.recordFailure(c, 0.5)
		return nil
	}
	c.state = Closed
	c.failureScore = 0
	return nil
}

func (r *Registry) recordFailure(c *circuit, weight float64) {
	c.lastFailureAt = r.now()
	if c.state == HalfOpen {
		c.state = Open
		c.openedAt = r.now()
		return
	}
	c.failureScore += weight
	if c.failureScore >= r.opts.FailureThreshold {
		c.state = Open
		c.openedAt = r.now()
		c.failureScore = 0
	}
}
