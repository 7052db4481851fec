package backpressure

import (
	"fmt"

	"github.com/verbatimhq/verbatim/internal/config"
	"github.com/verbatimhq/verbatim/internal/telemetry"
	"github.com/verbatimhq/verbatim/pkg/log"
)

// Action is the qualitative verdict of one load evaluation.
type Action string

const (
	ActionContinue Action = "continue"
	ActionThrottle Action = "throttle"
	ActionPause    Action = "pause"
	ActionAlert    Action = "alert"
)

// LoadSample is one ephemeral reading of ingestion load for a subject.
type LoadSample struct {
	SubjectID    string
	Throughput   float64 // chunks per second
	AvgLatencyMs int64
	QueueDepth   int
	TimestampMs  int64
}

// Tuning holds the live ingestion knobs a verdict adjusts.
type Tuning struct {
	BatchSize          int
	CoalescingWindowMs int64
}

// Verdict is the controller's response to a sample: the action plus the
// recommended knob settings. Producers apply BatchSize and
// CoalescingWindowMs to their next batch.
type Verdict struct {
	Action             Action `json:"action"`
	ShouldThrottle     bool   `json:"shouldThrottle"`
	BatchSize          int    `json:"batchSize"`
	CoalescingWindowMs int64  `json:"coalescingWindowMs"`
	Reason             string `json:"reason"`
}

// Alerter receives the actionable alert raised by pause and alert verdicts.
// *telemetry.AlertStore satisfies it.
type Alerter interface {
	Upsert(a telemetry.Alert) error
}

// Controller turns load samples into verdicts using ordered threshold
// checks. Each decision depends only on the sample it is given, never on
// history, so callers should evaluate every processed sub-batch. Thresholds
// come from configuration and are tuning defaults, not contracts.
type Controller struct {
	cfg     config.Backpressure
	alerter Alerter
	log     log.Logger
}

// NewController builds a Controller. alerter may be nil when no alert sink
// is wired (tests, offline tools).
func NewController(cfg config.Backpressure, alerter Alerter, logger log.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		alerter: alerter,
		log:     logger.With(log.Component("backpressure.controller")),
	}
}

// Evaluate applies the ordered threshold checks to one sample. Pause and
// alert verdicts upsert exactly one actionable alert keyed by the subject;
// every other verdict is side-effect free.
func (c *Controller) Evaluate(sample LoadSample, cur Tuning) Verdict {
	cur = c.clamp(cur)

	switch {
	case sample.AvgLatencyMs >= 2*c.cfg.HardLatencyMs || sample.QueueDepth >= 2*c.cfg.HardQueueDepth:
		c.raise(sample, telemetry.SeverityCritical, "ingestion severely overloaded")
		return Verdict{
			Action:             ActionAlert,
			ShouldThrottle:     true,
			BatchSize:          c.cfg.MinBatchSize,
			CoalescingWindowMs: c.cfg.MaxWindowMs,
			Reason:             fmt.Sprintf("load far beyond hard ceiling: latency %dms, queue %d", sample.AvgLatencyMs, sample.QueueDepth),
		}

	case sample.AvgLatencyMs >= c.cfg.HardLatencyMs || sample.QueueDepth >= c.cfg.HardQueueDepth:
		c.raise(sample, telemetry.SeverityCritical, "ingestion paused under load")
		return Verdict{
			Action:             ActionPause,
			ShouldThrottle:     true,
			BatchSize:          c.cfg.MinBatchSize,
			CoalescingWindowMs: c.cfg.MaxWindowMs,
			Reason:             fmt.Sprintf("hard ceiling reached: latency %dms, queue %d", sample.AvgLatencyMs, sample.QueueDepth),
		}

	case sample.AvgLatencyMs >= c.cfg.WarnLatencyMs || sample.Throughput >= c.cfg.WarnThroughput:
		return Verdict{
			Action:             ActionThrottle,
			ShouldThrottle:     true,
			BatchSize:          c.shrink(cur.BatchSize),
			CoalescingWindowMs: c.widen(cur.CoalescingWindowMs),
			Reason:             fmt.Sprintf("warning ceiling reached: latency %dms, throughput %.1f/s", sample.AvgLatencyMs, sample.Throughput),
		}

	case sample.AvgLatencyMs <= c.cfg.LowLatencyMs && sample.Throughput <= c.cfg.LowThroughput:
		return Verdict{
			Action:             ActionContinue,
			BatchSize:          c.grow(cur.BatchSize),
			CoalescingWindowMs: c.narrow(cur.CoalescingWindowMs),
			Reason:             "load low, raising batch efficiency",
		}
	}

	return Verdict{
		Action:             ActionContinue,
		BatchSize:          cur.BatchSize,
		CoalescingWindowMs: cur.CoalescingWindowMs,
		Reason:             "load nominal",
	}
}

func (c *Controller) raise(sample LoadSample, sev telemetry.Severity, title string) {
	if c.alerter == nil {
		return
	}
	a := telemetry.Alert{
		ID:       "backpressure-overload-" + sample.SubjectID,
		Severity: sev,
		Category: "backpressure",
		Title:    title,
		Message: fmt.Sprintf("session %s: avg latency %dms, queue depth %d, throughput %.1f chunks/s",
			sample.SubjectID, sample.AvgLatencyMs, sample.QueueDepth, sample.Throughput),
		Metadata: map[string]string{
			"sessionId":    sample.SubjectID,
			"avgLatencyMs": fmt.Sprintf("%d", sample.AvgLatencyMs),
			"queueDepth":   fmt.Sprintf("%d", sample.QueueDepth),
		},
		Actionable: true,
	}
	if err := c.alerter.Upsert(a); err != nil {
		c.log.Error("alert upsert failed", log.Str("alert", a.ID), log.Err(err))
	}
}

func (c *Controller) clamp(t Tuning) Tuning {
	if t.BatchSize < c.cfg.MinBatchSize {
		t.BatchSize = c.cfg.MinBatchSize
	}
	if t.BatchSize > c.cfg.MaxBatchSize {
		t.BatchSize = c.cfg.MaxBatchSize
	}
	if t.CoalescingWindowMs < c.cfg.MinWindowMs {
		t.CoalescingWindowMs = c.cfg.MinWindowMs
	}
	if t.CoalescingWindowMs > c.cfg.MaxWindowMs {
		t.CoalescingWindowMs = c.cfg.MaxWindowMs
	}
	return t
}

func (c *Controller) shrink(batch int) int {
	next := batch * 3 / 4
	if next < c.cfg.MinBatchSize {
		return c.cfg.MinBatchSize
	}
	return next
}

func (c *Controller) grow(batch int) int {
	next := batch + batch/4
	if next == batch {
		next = batch + 1
	}
	if next > c.cfg.MaxBatchSize {
		return c.cfg.MaxBatchSize
	}
	return next
}

func (c *Controller) widen(windowMs int64) int64 {
	next := windowMs + windowMs/4
	if next > c.cfg.MaxWindowMs {
		return c.cfg.MaxWindowMs
	}
	return next
}

func (c *Controller) narrow(windowMs int64) int64 {
	next := windowMs * 3 / 4
	if next < c.cfg.MinWindowMs {
		return c.cfg.MinWindowMs
	}
	return next
}
