// Package session maintains the per-session metadata records that scope
// sequence numbers and time buckets. Sessions are lazily created on first
// ingestion when auto-create is enabled; otherwise an unknown session is a
// pipeline-level fault.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/verbatimhq/verbatim/internal/config"
	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
	"github.com/verbatimhq/verbatim/internal/transcript"
)

// ErrUnknownSession is returned when a session does not exist and auto-create
// is disabled.
var ErrUnknownSession = errors.New("unknown session")

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Meta holds session metadata and ingestion overrides.
type Meta struct {
	ID          string                `json:"id"`
	CreatedAtMs int64                 `json:"createdAtMs"`
	Tier        string                `json:"tier"`
	Stream      config.StreamDefaults `json:"stream"`
}

// ValidateID checks a caller-supplied session identifier.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("session: invalid id %q", id)
	}
	return nil
}

// Ensure creates a session meta record if absent, returning the effective
// meta. Idempotent: an existing record is returned unchanged.
func Ensure(db *pebblestore.DB, id string, defaults config.StreamDefaults) (Meta, error) {
	if err := ValidateID(id); err != nil {
		return Meta{}, err
	}
	key := transcript.KeySessionMeta(id)
	if b, err := db.Get(key); err == nil && len(b) > 0 {
		var m Meta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// corrupted record: fall through and rewrite
	}
	m := Meta{ID: id, CreatedAtMs: time.Now().UnixMilli(), Tier: "standard", Stream: defaults}
	b, err := json.Marshal(m)
	if err != nil {
		return Meta{}, err
	}
	if err := db.Set(key, b); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Get returns the meta for an existing session or ErrUnknownSession.
func Get(db *pebblestore.DB, id string) (Meta, error) {
	b, err := db.Get(transcript.KeySessionMeta(id))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Meta{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
		}
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// List returns every session record, ordered by ID.
func List(db *pebblestore.DB) ([]Meta, error) {
	prefix := []byte("sess/")
	upper := []byte("sess0") // '0' is '/'+1
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Meta
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		if !bytes.HasSuffix(key, []byte("/m")) {
			continue
		}
		rest := key[len(prefix) : len(key)-2]
		if bytes.ContainsRune(rest, '/') {
			continue
		}
		var m Meta
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
