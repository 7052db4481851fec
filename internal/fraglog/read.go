package fraglog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
	"github.com/verbatimhq/verbatim/internal/transcript"
)

// ReadOptions bound a sequence-ordered read.
type ReadOptions struct {
	// FromSequence is the first sequence to return (inclusive). Zero means
	// the start of the log, or the end when Reverse is set.
	FromSequence uint64
	Limit        int
	Reverse      bool
}

// Read returns up to Limit fragments in sequence order via the byseq index,
// plus the sequence to resume from on the next call (0 when exhausted).
func (l *Log) Read(opts ReadOptions) ([]transcript.StoredFragment, uint64, error) {
	low := transcript.KeyBySequence(l.sessionID, 0)
	hi := transcript.KeyBySequence(l.sessionID, ^uint64(0))
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	out := make([]transcript.StoredFragment, 0, maxInt(1, opts.Limit))
	advance := iter.Next
	var positioned bool
	if opts.Reverse {
		advance = iter.Prev
		if opts.FromSequence == 0 {
			positioned = iter.Last()
		} else {
			positioned = iter.SeekLT(transcript.KeyBySequence(l.sessionID, opts.FromSequence+1))
		}
	} else {
		if opts.FromSequence == 0 {
			positioned = iter.First()
		} else {
			positioned = iter.SeekGE(transcript.KeyBySequence(l.sessionID, opts.FromSequence))
		}
	}

	for positioned && (opts.Limit == 0 || len(out) < opts.Limit) {
		seq := transcript.SequenceFromIndexKey(iter.Key())
		bucket := int64(binary.BigEndian.Uint64(iter.Value()))
		frag, err := l.getFragment(bucket, seq)
		if err != nil {
			if pebblestore.IsNotFound(err) {
				// index row outlived a trimmed record
				positioned = advance()
				continue
			}
			return out, 0, err
		}
		out = append(out, frag)
		positioned = advance()
	}

	var next uint64
	if iter.Valid() {
		next = transcript.SequenceFromIndexKey(iter.Key())
	}
	return out, next, nil
}

// ReadTimeRange returns fragments with startMs in [fromMs, toMs), scanning
// only the buckets that can overlap the range. Results follow primary key
// order: ascending bucket, then sequence.
func (l *Log) ReadTimeRange(fromMs, toMs int64, limit int) ([]transcript.StoredFragment, error) {
	if toMs <= fromMs {
		return nil, nil
	}
	low := transcript.KeyFragmentBucketPrefix(l.sessionID, transcript.BucketFor(fromMs))
	hi := transcript.KeyFragmentBucketPrefix(l.sessionID, transcript.BucketFor(toMs-1))
	hi = append(hi, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []transcript.StoredFragment
	for ok := iter.First(); ok && (limit == 0 || len(out) < limit); ok = iter.Next() {
		frag, decoded := transcript.DecodeFragment(iter.Value())
		if !decoded {
			continue
		}
		if frag.StartMs >= fromMs && frag.StartMs < toMs {
			out = append(out, frag)
		}
	}
	return out, nil
}

// MaxSequence returns the highest committed sequence, or 0 for an empty log.
func (l *Log) MaxSequence() (uint64, error) {
	low := transcript.KeyBySequence(l.sessionID, 0)
	hi := transcript.KeyBySequence(l.sessionID, ^uint64(0))
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, nil
	}
	return transcript.SequenceFromIndexKey(iter.Key()), nil
}

func (l *Log) getFragment(bucketMs int64, seq uint64) (transcript.StoredFragment, error) {
	val, err := l.db.Get(transcript.KeyFragment(l.sessionID, bucketMs, seq))
	if err != nil {
		return transcript.StoredFragment{}, err
	}
	frag, ok := transcript.DecodeFragment(val)
	if !ok {
		return transcript.StoredFragment{}, pebblestore.ErrNotFound
	}
	return frag, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
