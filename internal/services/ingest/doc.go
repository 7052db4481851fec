// Package ingestsvc is the transcript ingestion pipeline: validation,
// coalescing, sequence allocation, durable batch writes, and the feedback
// loop that re-tunes batch size and coalescing window from live load
// samples.
//
// Submit is the write path. Events are validated per item (a bad fragment
// never fails the whole batch), coalesced when enabled, then processed in
// sub-batches: each sub-batch reserves a contiguous sequence range, writes
// primary and index rows in one atomic commit, and feeds a load sample to
// the backpressure controller, whose verdict adjusts the next sub-batch.
//
// Reads come in three shapes: Range (sequence- or time-ordered pages),
// Search (CEL-filtered scan), and Tail (blocking follow for live
// subscribers). Consumer groups track their position with durable cursors.
package ingestsvc
