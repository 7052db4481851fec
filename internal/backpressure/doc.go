// Package backpressure meters ingestion load and decides how producers
// should adapt.
//
// Two cooperating pieces live here. The Limiter gates individual units of
// work (queries, writes, subscriptions) against per-subject tier ceilings
// and a shorter global window protecting the whole process. The Controller
// turns throughput/latency/queue-depth samples into a qualitative verdict
// (continue, throttle, pause, alert) plus concrete batch-size and
// coalescing-window recommendations.
//
// All state is process memory. An optional Redis-backed GlobalWindow shares
// the global counters across processes when several ingesters front the
// same store.
package backpressure
