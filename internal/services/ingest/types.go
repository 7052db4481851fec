package ingestsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/verbatimhq/verbatim/internal/backpressure"
	"github.com/verbatimhq/verbatim/internal/config"
	"github.com/verbatimhq/verbatim/internal/transcript"
)

// StreamConfig overrides a session's ingestion defaults for one submission.
// Zero-valued fields keep the session's setting.
type StreamConfig struct {
	BatchSize          int   `json:"batchSize,omitempty"`
	CoalescingWindowMs int64 `json:"coalescingWindowMs,omitempty"`
	MaxLatencyMs       int64 `json:"maxLatencyMs,omitempty"`
	// EnableCoalescing is a pointer so "absent" and "false" stay distinct.
	EnableCoalescing *bool `json:"enableCoalescing,omitempty"`
}

func (c StreamConfig) applyTo(d config.StreamDefaults) config.StreamDefaults {
	if c.BatchSize > 0 {
		d.BatchSize = c.BatchSize
	}
	if c.CoalescingWindowMs > 0 {
		d.CoalescingWindowMs = c.CoalescingWindowMs
	}
	if c.MaxLatencyMs > 0 {
		d.MaxLatencyMs = c.MaxLatencyMs
	}
	if c.EnableCoalescing != nil {
		d.EnableCoalescing = *c.EnableCoalescing
	}
	return d
}

// ItemError records a per-item rejection inside a batch submission.
type ItemError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchMetrics summarizes the performance of one Submit call.
type BatchMetrics struct {
	ChunksProcessed           int     `json:"chunksProcessed"`
	BatchesProcessed          int     `json:"batchesProcessed"`
	LatencyMs                 int64   `json:"latencyMs"`
	ThroughputChunksPerSecond float64 `json:"throughputChunksPerSecond"`
}

// Result is the structured outcome of a batch submission. It is returned
// even on partial failure; only pipeline-level faults (unknown session,
// rate limiting) surface as errors.
type Result struct {
	Processed int                  `json:"processed"`
	Failed    int                  `json:"failed"`
	Errors    []ItemError          `json:"errors,omitempty"`
	Metrics   BatchMetrics         `json:"metrics"`
	Verdict   backpressure.Verdict `json:"verdict"`
}

// ThrottledError is returned when the bandwidth limiter rejects a
// submission outright.
type ThrottledError struct {
	Decision backpressure.Decision
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("ingest: rate limited: %s (retry after %dms)", e.Decision.Reason, e.Decision.RetryAfterMs)
}

// IsThrottled reports whether err is a limiter rejection.
func IsThrottled(err error) bool {
	var te *ThrottledError
	return errors.As(err, &te)
}

// RangeOptions bound a sequence-ordered Range read.
type RangeOptions struct {
	FromSequence uint64 `json:"fromSequence,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Reverse      bool   `json:"reverse,omitempty"`
}

// TailOptions control a blocking Tail read.
type TailOptions struct {
	// FromSequence is the first sequence to deliver (exclusive of already
	// committed history when zero: zero starts at the current tail).
	FromSequence uint64
	// Filter is an optional CEL expression evaluated per fragment.
	Filter string
	// Limit stops delivery after this many fragments; zero runs until the
	// sink's context ends.
	Limit int
	// Group, when set, commits a durable cursor as fragments are delivered.
	Group string
}

// TailSink receives fragments from Tail. Transports implement it.
type TailSink interface {
	Send(frag transcript.StoredFragment) error
	Context() context.Context
}

// SessionStats summarizes a session's stored fragments.
type SessionStats struct {
	SessionID     string `json:"sessionId"`
	Count         uint64 `json:"count"`
	Bytes         uint64 `json:"bytes"`
	FirstSequence uint64 `json:"firstSequence"`
	LastSequence  uint64 `json:"lastSequence"`
	LastStartMs   int64  `json:"lastStartMs"`
}
