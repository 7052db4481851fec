package ingestsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verbatimhq/verbatim/internal/backpressure"
	"github.com/verbatimhq/verbatim/internal/batch"
	"github.com/verbatimhq/verbatim/internal/breaker"
	"github.com/verbatimhq/verbatim/internal/coalesce"
	"github.com/verbatimhq/verbatim/internal/runtime"
	"github.com/verbatimhq/verbatim/internal/sequencer"
	"github.com/verbatimhq/verbatim/internal/session"
	"github.com/verbatimhq/verbatim/internal/telemetry"
	"github.com/verbatimhq/verbatim/internal/transcript"
	logpkg "github.com/verbatimhq/verbatim/pkg/log"
)

const appendOp = "fraglog.append"

// Service is the transcript ingestion pipeline over a Runtime.
type Service struct {
	rt         *runtime.Runtime
	seq        *sequencer.Sequencer
	breakers   *breaker.Registry
	limiter    *backpressure.Limiter
	controller *backpressure.Controller
	alerts     *telemetry.AlertStore
	samples    *telemetry.SampleStore
	metrics    *telemetry.Metrics
	sampleProc *batch.Processor[telemetry.Sample]
	logger     logpkg.Logger

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// Options inject the service's collaborators. Metrics may be nil.
type Options struct {
	Runtime *runtime.Runtime
	Metrics *telemetry.Metrics
	Logger  logpkg.Logger
}

// New constructs the ingestion service and its feedback loop from the
// runtime's configuration.
func New(opts Options) *Service {
	rt := opts.Runtime
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("ingest"))
	}
	cfg := rt.Config()
	alerts := telemetry.NewAlertStore(rt.DB())
	samples := telemetry.NewSampleStore(rt.DB())
	s := &Service{
		rt:   rt,
		seq:  sequencer.New(rt.DB()),
		breakers: breaker.NewRegistry(breaker.Options{
			FailureThreshold:  cfg.Breaker.FailureThreshold,
			RecoveryTimeout:   time.Duration(cfg.Breaker.RecoveryTimeoutMs) * time.Millisecond,
			SlowCallThreshold: time.Duration(cfg.Breaker.SlowCallMs) * time.Millisecond,
		}),
		limiter:     backpressure.NewLimiter(cfg, logger),
		controller:  backpressure.NewController(cfg.Backpressure, alerts, logger),
		alerts:      alerts,
		samples:     samples,
		metrics:     opts.Metrics,
		logger:      logger,
		cleanupStop: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	if cfg.RedisAddr != "" {
		s.limiter.Shared = backpressure.NewRedisWindowAddr(cfg.RedisAddr)
		logger.Info("sharing global bandwidth window", logpkg.Str("redis", cfg.RedisAddr))
	}
	if s.metrics != nil {
		s.seq.OnRetry = s.metrics.AllocateRetries.Inc
	}
	// Samples are high-frequency and advisory; batch their writes so the
	// telemetry path never competes with fragment commits.
	s.sampleProc = batch.New(batch.Options[telemetry.Sample]{
		MaxSize: 32,
		MaxWait: 500 * time.Millisecond,
		Flush: func(_ context.Context, items []telemetry.Sample) error {
			for _, sm := range items {
				if err := samples.Append(sm); err != nil {
					return err
				}
			}
			return nil
		},
		Logger: logger,
	})
	go s.cleanupLoop(time.Duration(cfg.Backpressure.IdleEvictMs) * time.Millisecond)
	return s
}

// cleanupLoop evicts idle limiter subjects on the idle-evict interval so the
// per-subject window map stays bounded over long uptimes.
func (s *Service) cleanupLoop(interval time.Duration) {
	defer close(s.cleanupDone)
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.cleanupStop:
			return
		case <-t.C:
			if n := s.limiter.Cleanup(); n > 0 {
				s.logger.Debug("evicted idle limiter subjects", logpkg.Int("count", n))
			}
		}
	}
}

// Close stops the eviction loop and drains the telemetry batcher.
func (s *Service) Close(ctx context.Context) error {
	close(s.cleanupStop)
	<-s.cleanupDone
	return s.sampleProc.Shutdown(ctx)
}

// Alerts exposes the alert store for transports.
func (s *Service) Alerts() *telemetry.AlertStore { return s.alerts }

// Samples exposes the sample store for transports.
func (s *Service) Samples() *telemetry.SampleStore { return s.samples }

// Limiter exposes the bandwidth limiter so transports can gate
// subscriptions and periodic jobs can evict idle subjects.
func (s *Service) Limiter() *backpressure.Limiter { return s.limiter }

// Submit runs the write path for one batch of events. Per-item validation
// failures are isolated into Result.Errors; the returned error is non-nil
// only for pipeline-level faults: unknown session, rate limiting, or a
// write path that failed entirely.
func (s *Service) Submit(ctx context.Context, sessionID string, events []transcript.Event, override *StreamConfig) (Result, error) {
	meta, err := s.lookupSession(sessionID)
	if err != nil {
		return Result{}, err
	}

	estBytes := estimateBytes(events)
	if d := s.limiter.CanProceed(ctx, sessionID, backpressure.KindWrite, estBytes, meta.Tier); !d.Allowed {
		return Result{}, &ThrottledError{Decision: d}
	}
	s.limiter.RecordUsage(ctx, sessionID, backpressure.KindWrite, estBytes)

	sc := meta.Stream
	if override != nil {
		sc = override.applyTo(sc)
	}

	var res Result
	valid := make([]transcript.Event, 0, len(events))
	for i, ev := range events {
		ev.SessionID = sessionID
		if err := transcript.Validate(ev); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, ItemError{Index: i, Reason: err.Error()})
			if s.metrics != nil {
				s.metrics.FragmentsRejected.Inc()
			}
			continue
		}
		valid = append(valid, ev)
	}

	if sc.EnableCoalescing {
		valid = coalesce.Merge(valid, sc.CoalescingWindowMs)
	} else {
		valid = coalesce.SortByStart(valid)
	}

	tuning := backpressure.Tuning{BatchSize: sc.BatchSize, CoalescingWindowMs: sc.CoalescingWindowMs}
	started := time.Now()
	batches := 0
	for off := 0; off < len(valid); {
		size := tuning.BatchSize
		if size <= 0 {
			size = 1
		}
		if off+size > len(valid) {
			size = len(valid) - off
		}
		chunk := valid[off : off+size]

		batchStart := time.Now()
		written, err := s.writeChunk(ctx, sessionID, chunk)
		latency := time.Since(batchStart)
		if err != nil {
			res.Failed += len(chunk)
			res.Errors = append(res.Errors, ItemError{Index: off, Reason: err.Error()})
			if errors.Is(err, breaker.ErrOpen) || sequencerExhausted(err) {
				// Nothing downstream will accept more work right now.
				s.logger.Warn("submit aborted mid-batch",
					logpkg.Str("session", sessionID), logpkg.Int("remaining", len(valid)-off), logpkg.Err(err))
				res.Failed += len(valid) - off - len(chunk)
				break
			}
			off += size
			continue
		}
		res.Processed += written
		batches++
		off += size

		sample := backpressure.LoadSample{
			SubjectID:    sessionID,
			Throughput:   throughput(written, latency),
			AvgLatencyMs: latency.Milliseconds(),
			QueueDepth:   s.sampleProc.QueueSize(),
			TimestampMs:  time.Now().UnixMilli(),
		}
		verdict := s.controller.Evaluate(sample, tuning)
		tuning.BatchSize = verdict.BatchSize
		tuning.CoalescingWindowMs = verdict.CoalescingWindowMs
		res.Verdict = verdict
		s.observeBatch(sessionID, written, latency, verdict)
	}

	elapsed := time.Since(started)
	res.Metrics = BatchMetrics{
		ChunksProcessed:           res.Processed,
		BatchesProcessed:          batches,
		LatencyMs:                 elapsed.Milliseconds(),
		ThroughputChunksPerSecond: throughput(res.Processed, elapsed),
	}
	return res, nil
}

// writeChunk allocates a contiguous sequence range for the chunk and
// commits primary plus index rows atomically, behind the circuit breaker.
func (s *Service) writeChunk(ctx context.Context, sessionID string, chunk []transcript.Event) (int, error) {
	seqs, err := s.seq.AllocateBatch(ctx, sessionID, len(chunk))
	if err != nil {
		return 0, err
	}
	frags := make([]transcript.StoredFragment, len(chunk))
	for i, ev := range chunk {
		frags[i] = transcript.StoredFragment{
			Event:    ev,
			BucketMs: transcript.BucketFor(ev.StartMs),
			Sequence: seqs[i],
		}
	}
	l := s.rt.Fragments(sessionID)
	err = s.breakers.Do(ctx, appendOp, func(ctx context.Context) error {
		return l.Append(ctx, frags)
	})
	if err != nil {
		return 0, fmt.Errorf("ingest: write session %s: %w", sessionID, err)
	}
	return len(frags), nil
}

func (s *Service) observeBatch(sessionID string, written int, latency time.Duration, verdict backpressure.Verdict) {
	if s.metrics != nil {
		s.metrics.FragmentsIngested.WithLabelValues("processed").Add(float64(written))
		s.metrics.BatchesFlushed.Inc()
		s.metrics.FlushLatency.Observe(latency.Seconds())
		s.metrics.SetAction(string(verdict.Action))
	}
	sample := telemetry.Sample{
		SessionID:                 sessionID,
		ChunksProcessed:           written,
		BatchesProcessed:          1,
		LatencyMs:                 latency.Milliseconds(),
		ThroughputChunksPerSecond: throughput(written, latency),
		TimestampMs:               time.Now().UnixMilli(),
	}
	if err := s.sampleProc.Add(sample); err != nil && !errors.Is(err, batch.ErrClosed) {
		s.logger.Warn("telemetry sample dropped", logpkg.Err(err))
	}
	if s.metrics != nil {
		s.metrics.QueueDepth.Set(float64(s.sampleProc.QueueSize()))
	}
}

func (s *Service) lookupSession(sessionID string) (session.Meta, error) {
	meta, err := s.rt.Session(sessionID)
	if err == nil {
		return meta, nil
	}
	if errors.Is(err, session.ErrUnknownSession) && s.rt.Config().AllowAutoCreateSessions {
		return s.rt.EnsureSession(sessionID)
	}
	return session.Meta{}, err
}

func sequencerExhausted(err error) bool {
	return errors.Is(err, sequencer.ErrAllocationExhausted)
}

func estimateBytes(events []transcript.Event) int64 {
	var n int64
	for _, ev := range events {
		n += int64(len(ev.Text)) + 64
	}
	return n
}

func throughput(n int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	return float64(n) / elapsed.Seconds()
}
