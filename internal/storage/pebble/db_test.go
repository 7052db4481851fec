package pebblestore

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
)

type testMetrics struct {
	writes  int
	reads   int
	commits int
}

func (m *testMetrics) ObserveWrite(time.Duration, int)       { m.writes++ }
func (m *testMetrics) ObserveRead(time.Duration, int)        { m.reads++ }
func (m *testMetrics) ObserveBatchCommit(time.Duration, int) { m.commits++ }

func openTestDB(t *testing.T, metrics MetricsHook) *DB {
	t.Helper()
	db, err := Open(Options{DataDir: t.TempDir(), Fsync: FsyncModeAlways, Metrics: metrics})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSetGetDelete(t *testing.T) {
	db := openTestDB(t, nil)
	if err := db.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q", got)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k")); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHas(t *testing.T) {
	db := openTestDB(t, nil)
	ok, err := db.Has([]byte("missing"))
	if err != nil || ok {
		t.Fatalf("expected absent: ok=%v err=%v", ok, err)
	}
	if err := db.Set([]byte("present"), []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err = db.Has([]byte("present"))
	if err != nil || !ok {
		t.Fatalf("expected present: ok=%v err=%v", ok, err)
	}
}

func TestDeleteRange(t *testing.T) {
	db := openTestDB(t, nil)
	for _, k := range []string{"a/1", "a/2", "b/1"} {
		if err := db.Set([]byte(k), []byte("x")); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if err := db.DeleteRange(context.Background(), []byte("a/"), []byte("a0")); err != nil {
		t.Fatalf("delete range: %v", err)
	}
	if ok, _ := db.Has([]byte("a/1")); ok {
		t.Fatalf("a/1 should be gone")
	}
	if ok, _ := db.Has([]byte("b/1")); !ok {
		t.Fatalf("b/1 should remain")
	}
}

func TestBatchCommitAndIter(t *testing.T) {
	metrics := &testMetrics{}
	db := openTestDB(t, metrics)
	b := db.NewBatch()
	_ = b.Set([]byte("x/1"), []byte("1"), nil)
	_ = b.Set([]byte("x/2"), []byte("2"), nil)
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()
	if metrics.commits == 0 {
		t.Fatalf("expected commit observation")
	}

	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: []byte("x/"), UpperBound: []byte("x0")})
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	if n != 2 {
		t.Fatalf("want 2 keys, got %d", n)
	}
}
