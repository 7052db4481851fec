// Package batch provides a generic accumulate-then-flush primitive bounded
// by size and wait time, with an optional coalescing strategy that merges
// compatible items in place instead of growing the batch.
//
// Each processor owns a single mailbox goroutine: producers enqueue through
// a buffered channel and the loop alone mutates the batch, so arrivals
// during a flush are buffered rather than racing the slice being flushed.
// Flush failures are retried with the configured backoff unless the caller
// supplies an error handler; Shutdown drains and flushes what remains before
// returning.
package batch
