package fraglog

import (
	"encoding/binary"

	"github.com/verbatimhq/verbatim/internal/transcript"
)

// CommitCursor durably records the last sequence a consumer group has
// processed. Commits never move a cursor backwards; a stale commit is a
// no-op, which keeps retried deliveries idempotent.
func (l *Log) CommitCursor(group string, seq uint64) error {
	key := transcript.KeyCursor(l.sessionID, group)
	cur, err := l.db.Get(key)
	if err == nil && len(cur) >= 8 {
		if seq <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return l.db.Set(key, b[:])
}

// Cursor returns the committed sequence for a group, or false when the
// group has never committed.
func (l *Log) Cursor(group string) (uint64, bool) {
	cur, err := l.db.Get(transcript.KeyCursor(l.sessionID, group))
	if err != nil || len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}
