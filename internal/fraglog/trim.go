package fraglog

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/verbatimhq/verbatim/internal/transcript"
)

// TrimOlderThan deletes fragments with startMs < cutoffMs along with their
// index rows. Deletes are committed in batches of up to batchLimit keys
// with an optional throttle between commits, so retention never starves
// foreground writes. Returns the number of fragments deleted.
//
// Primary keys order by (bucket, sequence) and a fragment's startMs always
// falls inside its bucket, so the scan stops at the first bucket that
// starts at or beyond the cutoff. Re-running with the same cutoff deletes
// nothing.
func (l *Log) TrimOlderThan(ctx context.Context, cutoffMs int64, batchLimit int, throttle time.Duration) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}

	low := transcript.KeyFragmentPrefix(l.sessionID)
	// Buckets at or beyond the cutoff's bucket may still hold newer
	// fragments; everything past the cutoff bucket cannot be older.
	hi := transcript.KeyFragmentBucketPrefix(l.sessionID, transcript.BucketFor(cutoffMs))
	hi = append(hi, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00)

	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	deleted := 0
	for ok := iter.First(); ok; {
		b := l.db.NewBatch()
		n := 0
		for ok && n < batchLimit {
			if ms, valid := transcript.HeaderStartMs(iter.Value()); valid && ms < cutoffMs {
				seq := transcript.SequenceFromFragmentKey(iter.Key())
				if err := b.Delete(iter.Key(), nil); err != nil {
					b.Close()
					return deleted, err
				}
				if err := b.Delete(transcript.KeyBySequence(l.sessionID, seq), nil); err != nil {
					b.Close()
					return deleted, err
				}
				deleted++
				n++
			}
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			continue
		}
		if err := l.db.CommitBatch(ctx, b); err != nil {
			b.Close()
			return deleted, err
		}
		b.Close()
		if throttle > 0 && ok {
			select {
			case <-ctx.Done():
				return deleted, ctx.Err()
			case <-time.After(throttle):
			}
		}
	}
	return deleted, nil
}
