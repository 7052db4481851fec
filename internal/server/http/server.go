package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verbatimhq/verbatim/internal/runtime"
	ingestsvc "github.com/verbatimhq/verbatim/internal/services/ingest"
	maintsvc "github.com/verbatimhq/verbatim/internal/services/maintenance"
	"github.com/verbatimhq/verbatim/internal/session"
	"github.com/verbatimhq/verbatim/internal/telemetry"
	"github.com/verbatimhq/verbatim/internal/transcript"
	logpkg "github.com/verbatimhq/verbatim/pkg/log"
)

type Server struct {
	rt     *runtime.Runtime
	svc    *ingestsvc.Service
	maint  *maintsvc.Service
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

func New(rt *runtime.Runtime, logger logpkg.Logger) *Server {
	reg := prometheus.NewRegistry()
	return NewWithMetrics(rt, reg, telemetry.NewMetrics(reg), logger)
}

// NewWithMetrics builds the server around a caller-owned registry, so the
// process can share the collectors with the storage layer.
func NewWithMetrics(rt *runtime.Runtime, reg *prometheus.Registry, metrics *telemetry.Metrics, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("http"))
	}
	svc := ingestsvc.New(ingestsvc.Options{Runtime: rt, Metrics: metrics, Logger: logger})

	mux := http.NewServeMux()
	s := &Server{
		rt:     rt,
		svc:    svc,
		maint:  maintsvc.New(rt, logger),
		srv:    &http.Server{Handler: cors(mux)},
		logger: logger,
	}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/sessions/create", s.handleSessionCreate)
	mux.HandleFunc("/v1/sessions/list", s.handleSessionList)
	mux.HandleFunc("/v1/transcripts/submit", s.handleSubmit)
	mux.HandleFunc("/v1/transcripts/range", s.handleRange)
	mux.HandleFunc("/v1/transcripts/search", s.handleSearch)
	mux.HandleFunc("/v1/transcripts/tail", s.handleTailSSE)
	mux.HandleFunc("/v1/transcripts/cursor/commit", s.handleCursorCommit)
	mux.HandleFunc("/v1/transcripts/cursor", s.handleCursorGet)
	mux.HandleFunc("/v1/alerts", s.handleAlerts)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/maintenance/purge", s.handlePurge)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return s.svc.Close(cctx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// failStatus maps a pipeline fault to its HTTP status.
func failStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return http.StatusNotFound
	case ingestsvc.IsThrottled(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sessionCreateReq struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sessionCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	meta, err := s.rt.EnsureSession(req.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	metas, err := session.List(s.rt.DB())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": metas})
}

type submitReq struct {
	SessionID string                  `json:"sessionId"`
	Events    []transcript.Event      `json:"events"`
	Config    *ingestsvc.StreamConfig `json:"config,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("events required"))
		return
	}
	res, err := s.svc.Submit(r.Context(), req.SessionID, req.Events, req.Config)
	if err != nil {
		writeError(w, failStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	if fromStr, toStr := q.Get("fromMs"), q.Get("toMs"); fromStr != "" || toStr != "" {
		fromMs, _ := strconv.ParseInt(fromStr, 10, 64)
		toMs, _ := strconv.ParseInt(toStr, 10, 64)
		frags, err := s.svc.RangeTime(sessionID, fromMs, toMs, queryInt(q.Get("limit")))
		if err != nil {
			writeError(w, failStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fragments": frags})
		return
	}
	from, _ := strconv.ParseUint(q.Get("fromSequence"), 10, 64)
	frags, next, err := s.svc.Range(sessionID, ingestsvc.RangeOptions{
		FromSequence: from,
		Limit:        queryInt(q.Get("limit")),
		Reverse:      q.Get("reverse") == "true",
	})
	if err != nil {
		writeError(w, failStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fragments": frags, "nextSequence": next})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	from, _ := strconv.ParseUint(q.Get("fromSequence"), 10, 64)
	frags, err := s.svc.Search(q.Get("sessionId"), q.Get("filter"), from, queryInt(q.Get("limit")))
	if err != nil {
		writeError(w, failStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fragments": frags})
}

type sseSink struct {
	w http.ResponseWriter
	r *http.Request
}

func (s sseSink) Send(frag transcript.StoredFragment) error {
	if _, err := fmt.Fprint(s.w, "data: "); err != nil {
		return err
	}
	if err := json.NewEncoder(s.w).Encode(frag); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
func (s sseSink) Context() context.Context { return s.r.Context() }

func (s *Server) handleTailSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	from, _ := strconv.ParseUint(q.Get("fromSequence"), 10, 64)
	opts := ingestsvc.TailOptions{
		FromSequence: from,
		Filter:       q.Get("filter"),
		Limit:        queryInt(q.Get("limit")),
		Group:        q.Get("group"),
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	err := s.svc.Tail(r.Context(), q.Get("sessionId"), opts, sseSink{w: w, r: r})
	if err != nil && !errors.Is(err, context.Canceled) {
		writeError(w, failStatus(err), err)
	}
}

type cursorCommitReq struct {
	SessionID string `json:"sessionId"`
	Group     string `json:"group"`
	Sequence  uint64 `json:"sequence"`
}

func (s *Server) handleCursorCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cursorCommitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.svc.CommitCursor(req.SessionID, req.Group, req.Sequence); err != nil {
		writeError(w, failStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCursorGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	seq, ok, err := s.svc.Cursor(q.Get("sessionId"), q.Get("group"))
	if err != nil {
		writeError(w, failStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sequence": seq, "committed": ok})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	alerts, err := s.svc.Alerts().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	sessionID := q.Get("sessionId")
	st, err := s.svc.Stats(sessionID)
	if err != nil {
		writeError(w, failStatus(err), err)
		return
	}
	sinceMs, _ := strconv.ParseInt(q.Get("sinceMs"), 10, 64)
	samples, err := s.svc.Samples().ListSince(sinceMs, queryInt(q.Get("limit")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": st, "samples": samples})
}

type purgeReq struct {
	SessionID string `json:"sessionId,omitempty"`
	MaxAgeMs  int64  `json:"maxAgeMs,omitempty"`
	Metrics   bool   `json:"metrics,omitempty"`
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req purgeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	maxAge := time.Duration(req.MaxAgeMs) * time.Millisecond
	var (
		n   int
		err error
	)
	if req.Metrics {
		n, err = s.maint.PurgeMetrics(r.Context(), maxAge)
	} else {
		n, err = s.maint.PurgeFragments(r.Context(), maxAge, req.SessionID)
	}
	if err != nil {
		writeError(w, failStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func queryInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
