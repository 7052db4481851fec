// Package sequencer owns per-session monotonic sequence allocation and
// time-bucket assignment. It is the only component that touches the durable
// sequence counter.
//
// Allocation is serialized by a single in-process owner per session (a keyed
// mutex) on top of the store's atomic batch commit, so concurrent allocations
// for one session are linearized rather than raced. A defensive check against
// the (session, sequence) index guards against a counter that fell behind a
// co-existing write path: a colliding candidate advances past the existing
// sequence and retries, bounded at five attempts.
package sequencer
