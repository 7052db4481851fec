// Package pebblestore wraps a Pebble database with Verbatim's durability
// policy and the small key/value surface the pipeline needs: point get/set,
// atomic batches, bounded iterators, and range deletes. The fragment store,
// sequence counters, alerts, and telemetry samples all live in one keyspace
// behind this wrapper.
package pebblestore
