package backpressure

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verbatimhq/verbatim/internal/config"
	"github.com/verbatimhq/verbatim/pkg/log"
)

// Kind classifies a unit of work for accounting purposes.
type Kind string

const (
	KindQuery     Kind = "query"
	KindWrite     Kind = "write"
	KindSubscribe Kind = "subscribe"
)

// Usage is a snapshot of a subject's consumption inside the current window.
type Usage struct {
	Requests      int   `json:"requests"`
	Subscriptions int   `json:"subscriptions"`
	Bytes         int64 `json:"bytes"`
	WindowMs      int64 `json:"windowMs"`
}

// Decision is the outcome of a CanProceed check.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
	Usage        Usage  `json:"usage"`
}

// window is one fixed-width accounting window. Counters reset when the
// window elapses; the mutex serializes resets against increments.
type window struct {
	mu            sync.Mutex
	startMs       int64
	requests      int
	subscriptions int
	bytes         int64
}

func (w *window) snapshot(nowMs, widthMs int64) (Usage, int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rollLocked(nowMs, widthMs)
	remaining := w.startMs + widthMs - nowMs
	return Usage{
		Requests:      w.requests,
		Subscriptions: w.subscriptions,
		Bytes:         w.bytes,
		WindowMs:      widthMs,
	}, remaining
}

func (w *window) add(nowMs, widthMs int64, kind Kind, bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rollLocked(nowMs, widthMs)
	switch kind {
	case KindSubscribe:
		w.subscriptions++
	default:
		w.requests++
	}
	w.bytes += bytes
}

func (w *window) release(kind Kind) {
	if kind != KindSubscribe {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subscriptions > 0 {
		w.subscriptions--
	}
}

func (w *window) rollLocked(nowMs, widthMs int64) {
	if nowMs-w.startMs < widthMs {
		return
	}
	w.startMs = nowMs
	w.requests = 0
	w.subscriptions = 0
	w.bytes = 0
}

// subject pairs a window with a last-touch timestamp used for idle eviction.
type subject struct {
	win         window
	lastTouchMs int64
}

// Limiter enforces per-subject tier ceilings plus a global window covering
// all subjects. The global check runs in addition to the per-subject check,
// never instead of it. Safe for concurrent use.
type Limiter struct {
	cfg      config.Backpressure
	tiers    map[string]config.Tier
	global   config.GlobalLimits
	subjects sync.Map // subjectID -> *subject
	all      window

	// Shared, when non-nil, replaces the local global window with
	// cross-process counters. Failures fall back to the local window.
	Shared GlobalWindow

	log   log.Logger
	nowMs func() int64
}

// NewLimiter builds a Limiter from configuration.
func NewLimiter(cfg config.Config, logger log.Logger) *Limiter {
	return &Limiter{
		cfg:    cfg.Backpressure,
		tiers:  cfg.Tiers,
		global: cfg.Global,
		log:    logger.With(log.Component("backpressure.limiter")),
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}
}

func (l *Limiter) lookup(subjectID string) *subject {
	now := l.nowMs()
	if v, ok := l.subjects.Load(subjectID); ok {
		s := v.(*subject)
		atomic.StoreInt64(&s.lastTouchMs, now)
		return s
	}
	fresh := &subject{lastTouchMs: now}
	fresh.win.startMs = now
	if v, loaded := l.subjects.LoadOrStore(subjectID, fresh); loaded {
		s := v.(*subject)
		atomic.StoreInt64(&s.lastTouchMs, now)
		return s
	}
	return fresh
}

func (l *Limiter) tier(name string) config.Tier {
	if t, ok := l.tiers[name]; ok {
		return t
	}
	// Unknown tiers get the most restrictive ceilings on the books.
	if t, ok := l.tiers["limited"]; ok {
		return t
	}
	return config.Tier{RequestsPerMin: 60, MaxSubscriptions: 2, BytesPerMin: 4 << 20}
}

// CanProceed reports whether one unit of work of the given kind and
// estimated byte cost may proceed for the subject. A denial carries the
// limiting reason and how long to wait before the window resets. CanProceed
// does not consume quota; pair it with RecordUsage once the work is accepted.
func (l *Limiter) CanProceed(ctx context.Context, subjectID string, kind Kind, estimatedBytes int64, tierName string) Decision {
	now := l.nowMs()
	tier := l.tier(tierName)
	s := l.lookup(subjectID)

	usage, remaining := s.win.snapshot(now, l.cfg.SubjectWindowMs)
	if remaining < 0 {
		remaining = 0
	}
	switch {
	case kind == KindSubscribe && usage.Subscriptions+1 > tier.MaxSubscriptions:
		return Decision{Reason: "subscription ceiling reached for tier " + tierName, RetryAfterMs: remaining, Usage: usage}
	case kind != KindSubscribe && usage.Requests+1 > tier.RequestsPerMin:
		return Decision{Reason: "request ceiling reached for tier " + tierName, RetryAfterMs: remaining, Usage: usage}
	case usage.Bytes+estimatedBytes > tier.BytesPerMin:
		return Decision{Reason: "byte ceiling reached for tier " + tierName, RetryAfterMs: remaining, Usage: usage}
	}

	if d, ok := l.globalCheck(ctx, kind, estimatedBytes, usage); !ok {
		return d
	}
	return Decision{Allowed: true, Usage: usage}
}

func (l *Limiter) globalCheck(ctx context.Context, kind Kind, estimatedBytes int64, usage Usage) (Decision, bool) {
	width := l.cfg.GlobalWindowMs
	var g Usage
	if l.Shared != nil {
		shared, err := l.sharedSnapshot(ctx, width)
		if err != nil {
			l.log.Warn("shared global window unavailable, using local", log.Err(err))
		} else {
			g = shared
		}
	}
	if g.WindowMs == 0 {
		g, _ = l.all.snapshot(l.nowMs(), width)
	}
	switch {
	case kind == KindSubscribe && g.Subscriptions+1 > l.global.Subscriptions:
		return Decision{Reason: "global subscription ceiling reached", RetryAfterMs: width, Usage: usage}, false
	case kind != KindSubscribe && g.Requests+1 > l.global.Requests:
		return Decision{Reason: "global request ceiling reached", RetryAfterMs: width, Usage: usage}, false
	case g.Bytes+estimatedBytes > l.global.Bytes:
		return Decision{Reason: "global byte ceiling reached", RetryAfterMs: width, Usage: usage}, false
	}
	return Decision{}, true
}

func (l *Limiter) sharedSnapshot(ctx context.Context, widthMs int64) (Usage, error) {
	ttl := time.Duration(widthMs) * time.Millisecond
	req, err := l.Shared.Incr(ctx, "requests", 0, ttl)
	if err != nil {
		return Usage{}, err
	}
	subs, err := l.Shared.Incr(ctx, "subscriptions", 0, ttl)
	if err != nil {
		return Usage{}, err
	}
	bytes, err := l.Shared.Incr(ctx, "bytes", 0, ttl)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Requests: int(req), Subscriptions: int(subs), Bytes: bytes, WindowMs: widthMs}, nil
}

// RecordUsage consumes quota for a unit of work that was accepted.
func (l *Limiter) RecordUsage(ctx context.Context, subjectID string, kind Kind, bytes int64) {
	now := l.nowMs()
	s := l.lookup(subjectID)
	s.win.add(now, l.cfg.SubjectWindowMs, kind, bytes)

	if l.Shared != nil {
		ttl := time.Duration(l.cfg.GlobalWindowMs) * time.Millisecond
		field, delta := "requests", int64(1)
		if kind == KindSubscribe {
			field = "subscriptions"
		}
		if _, err := l.Shared.Incr(ctx, field, delta, ttl); err != nil {
			l.log.Warn("shared global window increment failed", log.Err(err))
		} else if bytes > 0 {
			if _, err := l.Shared.Incr(ctx, "bytes", bytes, ttl); err != nil {
				l.log.Warn("shared global window increment failed", log.Err(err))
			}
		}
		return
	}
	l.all.add(now, l.cfg.GlobalWindowMs, kind, bytes)
}

// ReleaseSubscription returns one active-subscription slot for the subject,
// e.g. when a tail stream disconnects.
func (l *Limiter) ReleaseSubscription(subjectID string) {
	if v, ok := l.subjects.Load(subjectID); ok {
		v.(*subject).win.release(KindSubscribe)
	}
	if l.Shared == nil {
		l.all.release(KindSubscribe)
	}
}

// Cleanup evicts subjects idle longer than the configured staleness bound
// and returns how many were removed. Run it periodically.
func (l *Limiter) Cleanup() int {
	cutoff := l.nowMs() - l.cfg.IdleEvictMs
	evicted := 0
	l.subjects.Range(func(key, value any) bool {
		if atomic.LoadInt64(&value.(*subject).lastTouchMs) < cutoff {
			l.subjects.Delete(key)
			evicted++
		}
		return true
	})
	if evicted > 0 {
		l.log.Debug("evicted idle subjects", log.Int("count", evicted))
	}
	return evicted
}
