package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/verbatimhq/verbatim/internal/transcript"
)

func TestSessionCreate_PrintsStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/create" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "s1"})
	}))
	defer ts.Close()

	cmd := newSessionCreateCommand(func() string { return ts.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--id", "s1"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "status:") {
		t.Fatalf("expected status in output, got: %s", buf.String())
	}
}

func TestTranscriptSubmit_SendsEvents(t *testing.T) {
	var got struct {
		SessionID string             `json:"sessionId"`
		Events    []transcript.Event `json:"events"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"processed": len(got.Events)})
	}))
	defer ts.Close()

	cmd := newTranscriptSubmitCommand(func() string { return ts.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--session", "s1", "--text", "hello there", "--speaker", "sp1", "--start-ms", "1000", "--end-ms", "1400"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.SessionID != "s1" || len(got.Events) != 1 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Events[0].Text != "hello there" || got.Events[0].SpeakerID != "sp1" {
		t.Fatalf("unexpected event: %+v", got.Events[0])
	}
}

func TestTranscriptSubmit_DefaultSpanIsNonEmpty(t *testing.T) {
	var got struct {
		Events []transcript.Event `json:"events"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]int{"processed": len(got.Events)})
	}))
	defer ts.Close()

	cmd := newTranscriptSubmitCommand(func() string { return ts.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--session", "s1", "--text", "hello"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(got.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got.Events))
	}
	ev := got.Events[0]
	if ev.StartMs >= ev.EndMs {
		t.Fatalf("flag-built event must have startMs < endMs, got %d..%d", ev.StartMs, ev.EndMs)
	}
	if err := transcript.Validate(ev); err != nil {
		t.Fatalf("flag-built event must pass validation: %v", err)
	}
}

func TestTranscriptSubmit_FromStdin(t *testing.T) {
	var count int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Events []transcript.Event `json:"events"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		count = len(req.Events)
		_ = json.NewEncoder(w).Encode(map[string]int{"processed": count})
	}))
	defer ts.Close()

	cmd := newTranscriptSubmitCommand(func() string { return ts.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(`[{"text":"a","startMs":1,"endMs":2},{"text":"b","startMs":3,"endMs":4}]`))
	cmd.SetArgs([]string{"--session", "s1", "--file", "-"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 events submitted, got %d", count)
	}
}

func TestTranscriptTail_PrintsFragments(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sessionId"); got != "s1" {
			t.Errorf("sessionId = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: {\"sequence\":%d,\"text\":\"frag-%d\"}\n\n", i+1, i+1)
		}
	}))
	defer ts.Close()

	cmd := newTranscriptTailCommand(func() string { return ts.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--session", "s1"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"frag-1", "frag-2", "frag-3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output: %s", want, out)
		}
	}
	if strings.Contains(out, "data:") {
		t.Fatalf("output should strip the event prefix: %s", out)
	}
}

func TestPurge_ErrorStatusReturnsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unknown session"}`, http.StatusNotFound)
	}))
	defer ts.Close()

	cmd := newPurgeCommand(func() string { return ts.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--session", "nope"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}
