package maintsvc

import (
	"context"
	"time"

	"github.com/verbatimhq/verbatim/internal/runtime"
	"github.com/verbatimhq/verbatim/internal/session"
	"github.com/verbatimhq/verbatim/internal/telemetry"
	logpkg "github.com/verbatimhq/verbatim/pkg/log"
)

const (
	trimBatchLimit = 1024
	trimThrottle   = 5 * time.Millisecond
)

// Service performs retention sweeps over the runtime's store.
type Service struct {
	rt      *runtime.Runtime
	samples *telemetry.SampleStore
	logger  logpkg.Logger
	nowMs   func() int64
}

// New builds the maintenance service.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("maintenance"))
	}
	return &Service{
		rt:      rt,
		samples: telemetry.NewSampleStore(rt.DB()),
		logger:  logger,
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}
}

// PurgeFragments deletes fragments older than maxAge, across every session
// or scoped to one when sessionID is non-empty. A non-positive maxAge uses
// the configured default. Returns the number of fragments deleted.
func (s *Service) PurgeFragments(ctx context.Context, maxAge time.Duration, sessionID string) (int, error) {
	if maxAge <= 0 {
		maxAge = time.Duration(s.rt.Config().Retention.FragmentMaxAgeMs) * time.Millisecond
	}
	cutoffMs := s.nowMs() - maxAge.Milliseconds()

	var ids []string
	if sessionID != "" {
		if _, err := s.rt.Session(sessionID); err != nil {
			return 0, err
		}
		ids = []string{sessionID}
	} else {
		metas, err := session.List(s.rt.DB())
		if err != nil {
			return 0, err
		}
		for _, m := range metas {
			ids = append(ids, m.ID)
		}
	}

	total := 0
	for _, id := range ids {
		n, err := s.rt.Fragments(id).TrimOlderThan(ctx, cutoffMs, trimBatchLimit, trimThrottle)
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			s.logger.Info("trimmed fragments",
				logpkg.Str("session", id), logpkg.Int("deleted", n), logpkg.Int64("cutoffMs", cutoffMs))
		}
	}
	return total, nil
}

// PurgeMetrics deletes telemetry samples older than maxAge. A non-positive
// maxAge uses the configured default.
func (s *Service) PurgeMetrics(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = time.Duration(s.rt.Config().Retention.MetricsMaxAgeMs) * time.Millisecond
	}
	cutoffMs := s.nowMs() - maxAge.Milliseconds()
	n, err := s.samples.PurgeOlderThan(ctx, cutoffMs)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.logger.Info("purged telemetry samples", logpkg.Int("deleted", n), logpkg.Int64("cutoffMs", cutoffMs))
	}
	return n, nil
}
