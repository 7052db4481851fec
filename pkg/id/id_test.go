package id

import (
	"bytes"
	"testing"
)

func TestNextMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		next := g.Next()
		if bytes.Compare(next[:], prev[:]) <= 0 {
			t.Fatalf("ids not strictly increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestClockBackwards(t *testing.T) {
	orig := NowMs
	defer func() { NowMs = orig }()

	ms := int64(5000)
	NowMs = func() int64 { return ms }
	g := NewGenerator()
	a := g.Next()
	ms = 4000 // clock regression
	b := g.Next()
	if bytes.Compare(b[:], a[:]) <= 0 {
		t.Fatalf("regressed clock broke ordering: %s then %s", a, b)
	}
	if b.UnixMilli() != 5000 {
		t.Fatalf("expected reuse of last ms, got %d", b.UnixMilli())
	}
}

func TestRoundTrip(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	back, err := FromBytes(a.Bytes())
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if back != a {
		t.Fatalf("round trip mismatch")
	}
	if _, err := FromBytes([]byte("short")); err == nil {
		t.Fatalf("expected error on short input")
	}
}
