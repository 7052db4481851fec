package fraglog

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
	"github.com/verbatimhq/verbatim/internal/transcript"
)

// Log provides fragment persistence for a single session. Appends through
// one Log instance are serialized; waiters registered on the same instance
// are woken on every append.
type Log struct {
	db        *pebblestore.DB
	sessionID string

	mu       sync.Mutex
	notifyCh chan struct{}
}

// Open returns a Log for the session. Opening is cheap; no state is loaded.
func Open(db *pebblestore.DB, sessionID string) *Log {
	return &Log{db: db, sessionID: sessionID, notifyCh: make(chan struct{})}
}

// SessionID returns the session this log belongs to.
func (l *Log) SessionID() string { return l.sessionID }

// Append persists the fragments as one atomic batch: each fragment's
// primary row plus its sequence-index row. Sequences must already be
// assigned. Waiters blocked in WaitForAppend are woken on success.
func (l *Log) Append(ctx context.Context, frags []transcript.StoredFragment) error {
	if len(frags) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	var bucket [8]byte
	for _, f := range frags {
		val, err := transcript.EncodeFragment(f)
		if err != nil {
			return fmt.Errorf("fraglog: encode seq %d: %w", f.Sequence, err)
		}
		if err := b.Set(transcript.KeyFragment(l.sessionID, f.BucketMs, f.Sequence), val, nil); err != nil {
			return err
		}
		binary.BigEndian.PutUint64(bucket[:], uint64(f.BucketMs))
		if err := b.Set(transcript.KeyBySequence(l.sessionID, f.Sequence), bucket[:], nil); err != nil {
			return err
		}
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return nil
}

// WaitForAppend blocks until a new append happens on this instance or the
// timeout elapses. Returns true when woken by an append. Callers tailing a
// session should use a short timeout and re-check the index, since appends
// through other Log instances do not wake this one.
func (l *Log) WaitForAppend(timeout time.Duration) bool {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
