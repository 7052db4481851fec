package id

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ID is a 16-byte identifier: 8 bytes big-endian Unix milliseconds followed
// by 8 bytes big-endian per-process sequence. Byte order equals time order.
type ID [16]byte

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// String returns the lowercase hex encoding.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// UnixMilli returns the timestamp component.
func (i ID) UnixMilli() int64 { return int64(binary.BigEndian.Uint64(i[0:8])) }

// FromBytes parses a 16-byte slice produced by Bytes.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != 16 {
		return id, errors.New("id: want 16 bytes")
	}
	copy(id[:], b)
	return id, nil
}

// NowMs returns current time in milliseconds. Overridable in tests.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Generator produces monotonically increasing IDs for one process.
type Generator struct {
	mu     sync.Mutex
	lastMs int64
	seq    uint64
}

// NewGenerator returns a zeroed Generator.
func NewGenerator() *Generator { return &Generator{} }

// Next returns a new ID strictly greater than any previously returned by this
// generator. A clock moving backwards reuses the last observed millisecond and
// keeps incrementing the sequence.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs {
		g.seq++
	} else {
		g.seq = 0
	}
	g.lastMs = ms

	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], g.seq)
	return id
}
