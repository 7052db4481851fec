package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"Warn":  WarnLevel,
		"error": ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestTextFormatterFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(DebugLevel), WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Info("hello", Str("b", "two"), Str("a", "one"))
	out := buf.String()
	if !strings.Contains(out, "INFO hello") {
		t.Fatalf("missing level/message: %q", out)
	}
	if strings.Index(out, "a=one") > strings.Index(out, "b=two") {
		t.Fatalf("fields not sorted: %q", out)
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Info("batch flushed", Int("items", 7))
	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("invalid json: %v (%q)", err, buf.String())
	}
	if obj["msg"] != "batch flushed" || obj["level"] != "INFO" {
		t.Fatalf("unexpected object: %v", obj)
	}
	if obj["items"] != float64(7) {
		t.Fatalf("missing field: %v", obj)
	}
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(WarnLevel), WithOutput(NewWriterOutput(&buf)))
	l.Info("dropped")
	l.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info should be gated: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn should pass: %q", out)
	}
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(NewWriterOutput(&buf)))
	child := l.With(Component("ingest"))
	child.Info("ready")
	if !strings.Contains(buf.String(), "component=ingest") {
		t.Fatalf("component field missing: %q", buf.String())
	}
}
