// Package maintsvc runs age-based retention: deleting transcript fragments
// past their configured lifetime and telemetry samples past a much shorter
// one. Deletes are batched and throttled so sweeps never starve foreground
// writes, and re-running a sweep with the same cutoff deletes nothing.
package maintsvc
