package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the process-level Prometheus collectors. Construct one per
// process and share it; pass a fresh registry in tests.
type Metrics struct {
	FragmentsIngested *prometheus.CounterVec
	FragmentsRejected prometheus.Counter
	BatchesFlushed    prometheus.Counter
	FlushLatency      prometheus.Histogram
	AllocateRetries   prometheus.Counter
	QueueDepth        prometheus.Gauge
	BackpressureState *prometheus.GaugeVec
	StoreCommits      prometheus.Counter
	StoreCommitBytes  prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FragmentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verbatim_fragments_ingested_total",
			Help: "Fragments accepted for persistence, by session outcome",
		}, []string{"outcome"}),
		FragmentsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verbatim_fragments_rejected_total",
			Help: "Fragments rejected by validation",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verbatim_batches_flushed_total",
			Help: "Completed batch flushes",
		}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verbatim_flush_latency_seconds",
			Help:    "End-to-end latency of a batch flush",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		AllocateRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verbatim_sequence_allocate_retries_total",
			Help: "Sequence allocations that needed a collision retry",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verbatim_batch_queue_depth",
			Help: "Items accepted but not yet flushed",
		}),
		BackpressureState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verbatim_backpressure_action",
			Help: "Most recent load controller action (1 = active)",
		}, []string{"action"}),
		StoreCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verbatim_store_commits_total",
			Help: "Batch commits against the durable store",
		}),
		StoreCommitBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verbatim_store_commit_bytes_total",
			Help: "Bytes committed to the durable store",
		}),
	}
	reg.MustRegister(
		m.FragmentsIngested, m.FragmentsRejected, m.BatchesFlushed, m.FlushLatency,
		m.AllocateRetries, m.QueueDepth, m.BackpressureState, m.StoreCommits, m.StoreCommitBytes,
	)
	return m
}

// SetAction marks the current backpressure action gauge, clearing the others.
func (m *Metrics) SetAction(action string) {
	for _, a := range []string{"continue", "throttle", "pause", "alert"} {
		v := 0.0
		if a == action {
			v = 1.0
		}
		m.BackpressureState.WithLabelValues(a).Set(v)
	}
}

// StoreHook adapts Metrics to the storage layer's observation surface.
type StoreHook struct{ M *Metrics }

func (h StoreHook) ObserveWrite(time.Duration, int) {}
func (h StoreHook) ObserveRead(time.Duration, int)  {}
func (h StoreHook) ObserveBatchCommit(_ time.Duration, bytes int) {
	h.M.StoreCommits.Inc()
	h.M.StoreCommitBytes.Add(float64(bytes))
}
