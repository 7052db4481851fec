package telemetry

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
	"github.com/verbatimhq/verbatim/internal/transcript"
	"github.com/verbatimhq/verbatim/pkg/id"
)

// Sample is one per-batch throughput/latency record.
type Sample struct {
	SessionID                 string  `json:"sessionId"`
	ChunksProcessed           int     `json:"chunksProcessed"`
	BatchesProcessed          int     `json:"batchesProcessed"`
	LatencyMs                 int64   `json:"latencyMs"`
	ThroughputChunksPerSecond float64 `json:"throughputChunksPerSecond"`
	TimestampMs               int64   `json:"timestamp"`
}

// SampleStore persists samples under time-sorted keys so retention can walk
// them oldest-first.
type SampleStore struct {
	db  *pebblestore.DB
	gen *id.Generator
}

// NewSampleStore returns a SampleStore over db.
func NewSampleStore(db *pebblestore.DB) *SampleStore {
	return &SampleStore{db: db, gen: id.NewGenerator()}
}

// Append stores one sample.
func (s *SampleStore) Append(sample Sample) error {
	if sample.TimestampMs == 0 {
		sample.TimestampMs = id.NowMs()
	}
	b, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	return s.db.Set(transcript.KeyMetric(s.gen.Next().Bytes()), b)
}

// ListSince returns samples with timestamps at or after sinceMs, oldest
// first, bounded by limit (0 means no bound).
func (s *SampleStore) ListSince(sinceMs int64, limit int) ([]Sample, error) {
	prefix := transcript.KeyMetricPrefix()
	upper := append(append([]byte(nil), prefix...), 0xff)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Sample
	for ok := iter.First(); ok; ok = iter.Next() {
		var sm Sample
		if err := json.Unmarshal(iter.Value(), &sm); err != nil {
			continue
		}
		if sm.TimestampMs < sinceMs {
			continue
		}
		out = append(out, sm)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// PurgeOlderThan deletes samples created before cutoffMs and returns how many
// were removed. Running it again with the same cutoff deletes nothing.
func (s *SampleStore) PurgeOlderThan(ctx context.Context, cutoffMs int64) (int, error) {
	prefix := transcript.KeyMetricPrefix()
	// IDs sort by time, so the cutoff is a key boundary.
	var boundID [16]byte
	binary.BigEndian.PutUint64(boundID[:8], uint64(cutoffMs))
	cutoff := transcript.KeyMetric(boundID[:])

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: cutoff})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		deleted++
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, nil
	}
	if err := s.db.DeleteRange(ctx, prefix, cutoff); err != nil {
		return 0, err
	}
	return deleted, nil
}
