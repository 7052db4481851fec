// Package id generates 128-bit, time-prefixed identifiers whose byte
// representation sorts lexicographically by creation time. Telemetry samples
// are keyed by these IDs so that age-based retention can walk them in order.
package id
