package transcript

import (
	"bytes"
	"strings"
	"testing"
)

func TestBucketFor(t *testing.T) {
	if BucketFor(0) != 0 {
		t.Fatalf("bucket of 0")
	}
	// same 5-minute window
	if BucketFor(1000) != BucketFor(299_999) {
		t.Fatalf("same window should share a bucket")
	}
	// crossing the boundary yields a strictly greater bucket
	if !(BucketFor(300_000) > BucketFor(299_999)) {
		t.Fatalf("boundary crossing should increase bucket")
	}
	if BucketFor(615_000) != 600_000 {
		t.Fatalf("got %d", BucketFor(615_000))
	}
	// idempotent
	if BucketFor(BucketFor(615_000)) != BucketFor(615_000) {
		t.Fatalf("not idempotent")
	}
}

func TestValidate(t *testing.T) {
	valid := Event{SessionID: "s", Text: "hello", Confidence: 0.9, StartMs: 100, EndMs: 200}
	if err := Validate(valid); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(*Event)
	}{
		{"empty text", func(e *Event) { e.Text = "" }},
		{"oversize text", func(e *Event) { e.Text = strings.Repeat("x", MaxTextChars+1) }},
		{"confidence below range", func(e *Event) { e.Confidence = -0.1 }},
		{"confidence above range", func(e *Event) { e.Confidence = 1.1 }},
		{"inverted time range", func(e *Event) { e.StartMs, e.EndMs = 200, 100 }},
		{"zero-width time range", func(e *Event) { e.EndMs = e.StartMs }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := valid
			tc.mut(&ev)
			err := Validate(ev)
			if err == nil {
				t.Fatalf("expected rejection")
			}
			if !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	f := StoredFragment{
		Event: Event{
			SessionID: "s1", SpeakerID: "spk-a", Text: "I think so",
			Confidence: 0.87, StartMs: 1_000, EndMs: 1_200, Language: "en",
		},
		BucketMs: 0,
		Sequence: 42,
	}
	b, err := EncodeFragment(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, ok := DecodeFragment(b)
	if !ok {
		t.Fatalf("decode failed")
	}
	if got.Text != f.Text || got.Sequence != 42 || got.SpeakerID != "spk-a" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	ms, ok := HeaderStartMs(b)
	if !ok || ms != 1_000 {
		t.Fatalf("header start ms: %d ok=%v", ms, ok)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	f := StoredFragment{Event: Event{SessionID: "s", Text: "x", Confidence: 1, StartMs: 1, EndMs: 2}}
	b, err := EncodeFragment(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b[len(b)/2] ^= 0xff
	if _, ok := DecodeFragment(b); ok {
		t.Fatalf("corrupted record should not decode")
	}
	if _, ok := DecodeFragment([]byte{0x01}); ok {
		t.Fatalf("truncated record should not decode")
	}
}

func TestFragmentKeyOrdering(t *testing.T) {
	// sequence order within a bucket
	a := KeyFragment("s", 0, 1)
	b := KeyFragment("s", 0, 2)
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("seq ordering broken")
	}
	// bucket order dominates
	c := KeyFragment("s", BucketWidthMs, 1)
	if bytes.Compare(b, c) >= 0 {
		t.Fatalf("bucket ordering broken")
	}
	if got := SequenceFromFragmentKey(b); got != 2 {
		t.Fatalf("extract seq: %d", got)
	}
}

func TestKeyPrefixes(t *testing.T) {
	k := KeyFragment("s1", 600_000, 7)
	if !bytes.HasPrefix(k, KeyFragmentPrefix("s1")) {
		t.Fatalf("fragment prefix mismatch")
	}
	if !bytes.HasPrefix(k, KeyFragmentBucketPrefix("s1", 600_000)) {
		t.Fatalf("bucket prefix mismatch")
	}
	idx := KeyBySequence("s1", 7)
	if !bytes.HasPrefix(idx, KeyBySequencePrefix("s1")) {
		t.Fatalf("byseq prefix mismatch")
	}
	if SequenceFromIndexKey(idx) != 7 {
		t.Fatalf("extract idx seq")
	}
}
