package sequencer

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"
	"sync"
	"testing"

	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
	"github.com/verbatimhq/verbatim/internal/transcript"
)

func newTestSequencer(t *testing.T) (*Sequencer, *pebblestore.DB) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), db
}

// markAllocated simulates a persisted fragment holding a sequence.
func markAllocated(t *testing.T, db *pebblestore.DB, sessionID string, seq uint64) {
	t.Helper()
	var bucket [8]byte
	if err := db.Set(transcript.KeyBySequence(sessionID, seq), bucket[:]); err != nil {
		t.Fatalf("mark seq %d: %v", seq, err)
	}
}

func TestFirstAllocationIsOne(t *testing.T) {
	s, _ := newTestSequencer(t)
	seq, err := s.Allocate(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if seq != 1 {
		t.Fatalf("want 1, got %d", seq)
	}
}

func TestConcurrentAllocationsContiguous(t *testing.T) {
	s, _ := newTestSequencer(t)
	ctx := context.Background()
	const n = 64

	var wg sync.WaitGroup
	results := make([]uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := s.Allocate(ctx, "live")
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			results[i] = seq
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, seq := range results {
		if seq != uint64(i+1) {
			t.Fatalf("want contiguous range starting at 1, got %v", results)
		}
	}
}

func TestAllocateBatchContiguous(t *testing.T) {
	s, _ := newTestSequencer(t)
	ctx := context.Background()
	first, err := s.AllocateBatch(ctx, "s", 5)
	if err != nil {
		t.Fatalf("batch1: %v", err)
	}
	second, err := s.AllocateBatch(ctx, "s", 3)
	if err != nil {
		t.Fatalf("batch2: %v", err)
	}
	if len(first) != 5 || first[0] != 1 || first[4] != 5 {
		t.Fatalf("first range: %v", first)
	}
	if len(second) != 3 || second[0] != 6 || second[2] != 8 {
		t.Fatalf("second range: %v", second)
	}
}

func TestCounterSeededFromExistingFragments(t *testing.T) {
	s, db := newTestSequencer(t)
	// fragments exist but the counter row does not (legacy write path)
	markAllocated(t, db, "old", 7)
	markAllocated(t, db, "old", 12)

	seq, err := s.Allocate(context.Background(), "old")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if seq != 13 {
		t.Fatalf("want 13, got %d", seq)
	}
}

func TestCollisionAdvancesPastExisting(t *testing.T) {
	s, db := newTestSequencer(t)
	ctx := context.Background()
	// counter says 5, but 6 and 7 are already taken
	var row [16]byte
	binary.BigEndian.PutUint64(row[:8], 5)
	if err := db.Set(transcript.KeySequenceCounter("race"), row[:]); err != nil {
		t.Fatalf("seed counter: %v", err)
	}
	markAllocated(t, db, "race", 6)
	markAllocated(t, db, "race", 7)

	var retries int
	s.OnRetry = func() { retries++ }

	seq, err := s.Allocate(ctx, "race")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if seq != 8 {
		t.Fatalf("want 8, got %d", seq)
	}
	if retries == 0 {
		t.Fatal("collision retries must be observable via OnRetry")
	}
}

func TestAllocationExhausted(t *testing.T) {
	s, db := newTestSequencer(t)
	ctx := context.Background()
	var row [16]byte
	binary.BigEndian.PutUint64(row[:8], 0)
	if err := db.Set(transcript.KeySequenceCounter("stuck"), row[:]); err != nil {
		t.Fatalf("seed counter: %v", err)
	}
	// every retry lands on another occupied sequence
	for seq := uint64(1); seq <= MaxAllocAttempts+1; seq++ {
		markAllocated(t, db, "stuck", seq)
	}

	_, err := s.Allocate(ctx, "stuck")
	if !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("expected ErrAllocationExhausted, got %v", err)
	}
	var ae *AllocationError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AllocationError, got %T", err)
	}
	if ae.SessionID != "stuck" || ae.Attempts != MaxAllocAttempts {
		t.Fatalf("missing context: %+v", ae)
	}
}

func TestCounterDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := New(db)
	ctx := context.Background()
	if _, err := s.AllocateBatch(ctx, "durable", 4); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	s2 := New(db2)
	seq, err := s2.Allocate(ctx, "durable")
	if err != nil {
		t.Fatalf("allocate after reopen: %v", err)
	}
	if seq != 5 {
		t.Fatalf("want 5 after reopen, got %d", seq)
	}
}
