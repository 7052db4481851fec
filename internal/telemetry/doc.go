// Package telemetry records the pipeline's outbound signals: per-batch
// throughput/latency samples persisted with age-based retention, alert
// records upserted by stable ID, and Prometheus collectors for process-level
// observation.
package telemetry
