package runtime

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/verbatimhq/verbatim/internal/config"
	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
	"github.com/verbatimhq/verbatim/internal/transcript"
)

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenIntervalFsync(t *testing.T) {
	rt, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         pebblestore.FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Config:        cfgpkg.Default(),
	})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()

	log := rt.Fragments("meeting-1")
	if err := log.Append(context.Background(), []transcript.StoredFragment{{
		Event:    transcript.Event{SessionID: "meeting-1", Text: "hi", StartMs: 1000, EndMs: 1100},
		Sequence: 1,
		BucketMs: 0,
	}}); err != nil {
		t.Fatalf("append under interval fsync: %v", err)
	}
}

func TestEnsureSessionAndFragments(t *testing.T) {
	rt, err := Open(Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	m, err := rt.EnsureSession("meeting-1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if m.Stream.BatchSize != cfgpkg.Default().Stream.BatchSize {
		t.Fatalf("defaults not applied: %+v", m)
	}
	if _, err := rt.Session("meeting-1"); err != nil {
		t.Fatalf("session: %v", err)
	}

	a := rt.Fragments("meeting-1")
	b := rt.Fragments("meeting-1")
	if a != b {
		t.Fatal("fragment logs must be shared per session")
	}
	if rt.Fragments("meeting-2") == a {
		t.Fatal("sessions must not share a log")
	}
}
