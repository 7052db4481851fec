package sequencer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
	"github.com/verbatimhq/verbatim/internal/transcript"
)

// MaxAllocAttempts bounds the collision-retry loop for one allocation.
const MaxAllocAttempts = 5

// ErrAllocationExhausted is returned when the retry bound is hit. The item
// must fail rather than silently reuse a sequence.
var ErrAllocationExhausted = errors.New("sequence allocation exhausted")

// AllocationError carries enough context to alert on an exhausted allocation.
type AllocationError struct {
	SessionID string
	Candidate uint64
	Attempts  int
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("sequence allocation exhausted: session=%s candidate=%d attempts=%d",
		e.SessionID, e.Candidate, e.Attempts)
}

func (e *AllocationError) Unwrap() error { return ErrAllocationExhausted }

// Sequencer allocates collision-free, strictly increasing sequence numbers
// per session.
type Sequencer struct {
	db    *pebblestore.DB
	locks sync.Map // sessionID -> *sync.Mutex

	// OnRetry, when set, is invoked once per collision retry. Set it
	// before the first allocation.
	OnRetry func()
}

// New returns a Sequencer over the given store.
func New(db *pebblestore.DB) *Sequencer {
	return &Sequencer{db: db}
}

// BucketFor maps a fragment start time to its 5-minute bucket.
func (s *Sequencer) BucketFor(startMs int64) int64 { return transcript.BucketFor(startMs) }

// Allocate returns the next sequence for the session.
func (s *Sequencer) Allocate(ctx context.Context, sessionID string) (uint64, error) {
	seqs, err := s.AllocateBatch(ctx, sessionID, 1)
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AllocateBatch reserves n contiguous sequences in one atomic counter update,
// reducing store round-trips for pre-sorted event batches.
func (s *Sequencer) AllocateBatch(ctx context.Context, sessionID string, n int) ([]uint64, error) {
	if n <= 0 {
		return nil, nil
	}
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	last, err := s.loadCounter(sessionID)
	if err != nil {
		return nil, err
	}

	var candidate uint64
	for attempt := 1; attempt <= MaxAllocAttempts; attempt++ {
		candidate = last + 1
		// Defensive existence check: a fragment already holding any sequence
		// in [candidate, candidate+n) means the counter fell behind. Advance
		// past the highest existing sequence and retry.
		highest, collided, err := s.highestExisting(sessionID, candidate, uint64(n))
		if err != nil {
			return nil, err
		}
		if collided {
			if s.OnRetry != nil {
				s.OnRetry()
			}
			last = highest
			continue
		}
		if err := s.storeCounter(ctx, sessionID, candidate+uint64(n)-1); err != nil {
			return nil, err
		}
		seqs := make([]uint64, n)
		for i := range seqs {
			seqs[i] = candidate + uint64(i)
		}
		return seqs, nil
	}
	return nil, &AllocationError{SessionID: sessionID, Candidate: candidate, Attempts: MaxAllocAttempts}
}

// Counter returns the session's last allocated sequence and its update time.
// A session that never allocated reports (0, zero time).
func (s *Sequencer) Counter(sessionID string) (uint64, time.Time, error) {
	b, err := s.db.Get(transcript.KeySequenceCounter(sessionID))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return 0, time.Time{}, nil
		}
		return 0, time.Time{}, err
	}
	if len(b) < 16 {
		return 0, time.Time{}, fmt.Errorf("sequencer: malformed counter row for %s", sessionID)
	}
	last := binary.BigEndian.Uint64(b[:8])
	ms := int64(binary.BigEndian.Uint64(b[8:16]))
	return last, time.UnixMilli(ms), nil
}

func (s *Sequencer) lockFor(sessionID string) *sync.Mutex {
	if v, ok := s.locks.Load(sessionID); ok {
		return v.(*sync.Mutex)
	}
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// loadCounter reads the counter row, lazily seeding it from the highest
// existing fragment sequence when absent.
func (s *Sequencer) loadCounter(sessionID string) (uint64, error) {
	b, err := s.db.Get(transcript.KeySequenceCounter(sessionID))
	if err == nil && len(b) >= 8 {
		return binary.BigEndian.Uint64(b[:8]), nil
	}
	if err != nil && !pebblestore.IsNotFound(err) {
		return 0, err
	}
	return s.maxExistingSequence(sessionID)
}

// maxExistingSequence scans the tail of the byseq index.
func (s *Sequencer) maxExistingSequence(sessionID string) (uint64, error) {
	low := transcript.KeyBySequence(sessionID, 0)
	hi := transcript.KeyBySequence(sessionID, ^uint64(0))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, nil
	}
	return transcript.SequenceFromIndexKey(iter.Key()), nil
}

// highestExisting reports whether any sequence in [from, from+count) is
// already held by a fragment, returning the highest such sequence.
func (s *Sequencer) highestExisting(sessionID string, from, count uint64) (uint64, bool, error) {
	low := transcript.KeyBySequence(sessionID, from)
	hi := transcript.KeyBySequence(sessionID, from+count-1)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
	if err != nil {
		return 0, false, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, false, nil
	}
	return transcript.SequenceFromIndexKey(iter.Key()), true, nil
}

func (s *Sequencer) storeCounter(ctx context.Context, sessionID string, last uint64) error {
	var row [16]byte
	binary.BigEndian.PutUint64(row[:8], last)
	binary.BigEndian.PutUint64(row[8:16], uint64(time.Now().UnixMilli()))
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(transcript.KeySequenceCounter(sessionID), row[:], nil); err != nil {
		return err
	}
	return s.db.CommitBatch(ctx, b)
}
