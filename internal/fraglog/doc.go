// Package fraglog stores transcript fragments for one session as an
// ordered, append-only log over the shared key-value store.
//
// Fragments land under two key families: the primary
// sess/{id}/frag/{bucket}/{seq} rows carry the encoded record, and the
// sess/{id}/byseq/{seq} index maps a sequence back to its bucket so reads
// in sequence order stay cheap across bucket boundaries. Both rows for a
// fragment are written in one atomic batch.
//
// A Log also keeps durable per-group cursors and supports age-based
// trimming in bounded, throttled delete batches.
package fraglog
