package backpressure

import (
	"testing"

	"github.com/verbatimhq/verbatim/internal/config"
	"github.com/verbatimhq/verbatim/internal/telemetry"
)

type captureAlerter struct {
	alerts []telemetry.Alert
}

func (c *captureAlerter) Upsert(a telemetry.Alert) error {
	c.alerts = append(c.alerts, a)
	return nil
}

func newTestController(t *testing.T) (*Controller, *captureAlerter) {
	t.Helper()
	sink := &captureAlerter{}
	return NewController(config.Default().Backpressure, sink, testLogger()), sink
}

func TestEvaluatePausesAboveHardCeiling(t *testing.T) {
	c, sink := newTestController(t)
	cur := Tuning{BatchSize: 20, CoalescingWindowMs: 250}

	v := c.Evaluate(LoadSample{SubjectID: "s1", AvgLatencyMs: 600, QueueDepth: 10, Throughput: 40}, cur)
	if v.Action != ActionPause {
		t.Fatalf("action = %s, want pause", v.Action)
	}
	if !v.ShouldThrottle {
		t.Fatal("pause must throttle")
	}
	if v.BatchSize != c.cfg.MinBatchSize || v.CoalescingWindowMs != c.cfg.MaxWindowMs {
		t.Fatalf("pause should shrink batch and widen window: %+v", v)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("want exactly one alert, got %d", len(sink.alerts))
	}
	a := sink.alerts[0]
	if a.ID != "backpressure-overload-s1" || a.Severity != telemetry.SeverityCritical || !a.Actionable {
		t.Fatalf("alert: %+v", a)
	}
}

func TestEvaluateAlertsFarBeyondHardCeiling(t *testing.T) {
	c, sink := newTestController(t)
	v := c.Evaluate(LoadSample{SubjectID: "s1", AvgLatencyMs: 1500, QueueDepth: 20}, Tuning{BatchSize: 20, CoalescingWindowMs: 250})
	if v.Action != ActionAlert || !v.ShouldThrottle {
		t.Fatalf("verdict: %+v", v)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("alerts: %d", len(sink.alerts))
	}
}

func TestEvaluateThrottlesAboveWarningCeiling(t *testing.T) {
	c, sink := newTestController(t)
	cur := Tuning{BatchSize: 20, CoalescingWindowMs: 250}

	v := c.Evaluate(LoadSample{SubjectID: "s1", AvgLatencyMs: 300, Throughput: 30}, cur)
	if v.Action != ActionThrottle || !v.ShouldThrottle {
		t.Fatalf("verdict: %+v", v)
	}
	if v.BatchSize >= cur.BatchSize {
		t.Fatalf("throttle should shrink batch: %d", v.BatchSize)
	}
	if v.CoalescingWindowMs <= cur.CoalescingWindowMs {
		t.Fatalf("throttle should widen window: %d", v.CoalescingWindowMs)
	}
	if len(sink.alerts) != 0 {
		t.Fatalf("throttle is side-effect free, got %d alerts", len(sink.alerts))
	}
}

func TestEvaluateContinuesBelowWarning(t *testing.T) {
	c, sink := newTestController(t)
	cur := Tuning{BatchSize: 20, CoalescingWindowMs: 250}

	v := c.Evaluate(LoadSample{SubjectID: "s1", AvgLatencyMs: 80, Throughput: 15}, cur)
	if v.Action != ActionContinue || v.ShouldThrottle {
		t.Fatalf("verdict: %+v", v)
	}
	if v.BatchSize != cur.BatchSize || v.CoalescingWindowMs != cur.CoalescingWindowMs {
		t.Fatalf("nominal load should leave knobs unchanged: %+v", v)
	}
	if len(sink.alerts) != 0 {
		t.Fatalf("continue must not alert, got %d", len(sink.alerts))
	}
}

func TestEvaluateGrowsBatchWhenIdle(t *testing.T) {
	c, _ := newTestController(t)
	cur := Tuning{BatchSize: 20, CoalescingWindowMs: 400}

	v := c.Evaluate(LoadSample{SubjectID: "s1", AvgLatencyMs: 50, Throughput: 5}, cur)
	if v.Action != ActionContinue {
		t.Fatalf("action: %s", v.Action)
	}
	if v.BatchSize <= cur.BatchSize {
		t.Fatalf("idle load should grow batch: %d", v.BatchSize)
	}
	if v.CoalescingWindowMs >= cur.CoalescingWindowMs {
		t.Fatalf("idle load should narrow window: %d", v.CoalescingWindowMs)
	}
}

func TestEvaluateClampsRecommendations(t *testing.T) {
	c, _ := newTestController(t)

	v := c.Evaluate(LoadSample{SubjectID: "s1", AvgLatencyMs: 50, Throughput: 5},
		Tuning{BatchSize: c.cfg.MaxBatchSize, CoalescingWindowMs: c.cfg.MinWindowMs})
	if v.BatchSize != c.cfg.MaxBatchSize {
		t.Fatalf("batch must not exceed max: %d", v.BatchSize)
	}
	if v.CoalescingWindowMs != c.cfg.MinWindowMs {
		t.Fatalf("window must not go below min: %d", v.CoalescingWindowMs)
	}

	v = c.Evaluate(LoadSample{SubjectID: "s1", AvgLatencyMs: 300, Throughput: 60},
		Tuning{BatchSize: c.cfg.MinBatchSize, CoalescingWindowMs: c.cfg.MaxWindowMs})
	if v.BatchSize != c.cfg.MinBatchSize || v.CoalescingWindowMs != c.cfg.MaxWindowMs {
		t.Fatalf("throttle clamp: %+v", v)
	}
}

func TestEvaluateRepeatedPausesUpsertSameAlert(t *testing.T) {
	c, sink := newTestController(t)
	s := LoadSample{SubjectID: "s1", AvgLatencyMs: 700, QueueDepth: 9}
	cur := Tuning{BatchSize: 20, CoalescingWindowMs: 250}

	c.Evaluate(s, cur)
	c.Evaluate(s, cur)
	if len(sink.alerts) != 2 {
		t.Fatalf("two evaluations raise two upserts: %d", len(sink.alerts))
	}
	if sink.alerts[0].ID != sink.alerts[1].ID {
		t.Fatalf("alert ID must be stable: %s vs %s", sink.alerts[0].ID, sink.alerts[1].ID)
	}
}

func TestEvaluateNilAlerter(t *testing.T) {
	c := NewController(config.Default().Backpressure, nil, testLogger())
	v := c.Evaluate(LoadSample{SubjectID: "s1", AvgLatencyMs: 600, QueueDepth: 10}, Tuning{BatchSize: 20, CoalescingWindowMs: 250})
	if v.Action != ActionPause {
		t.Fatalf("action: %s", v.Action)
	}
}
