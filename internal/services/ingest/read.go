package ingestsvc

import (
	"context"
	"time"

	"github.com/verbatimhq/verbatim/internal/backpressure"
	"github.com/verbatimhq/verbatim/internal/fraglog"
	"github.com/verbatimhq/verbatim/internal/transcript"
	logpkg "github.com/verbatimhq/verbatim/pkg/log"
)

// tailPoll bounds how long a tail waiter sleeps before re-checking the
// index, so appends from other processes are still picked up promptly.
const tailPoll = 50 * time.Millisecond

// Range returns a sequence-ordered page of fragments plus the sequence to
// resume from.
func (s *Service) Range(sessionID string, opts RangeOptions) ([]transcript.StoredFragment, uint64, error) {
	if _, err := s.rt.Session(sessionID); err != nil {
		return nil, 0, err
	}
	return s.rt.Fragments(sessionID).Read(fraglog.ReadOptions{
		FromSequence: opts.FromSequence,
		Limit:        opts.Limit,
		Reverse:      opts.Reverse,
	})
}

// RangeTime returns fragments whose startMs falls in [fromMs, toMs).
func (s *Service) RangeTime(sessionID string, fromMs, toMs int64, limit int) ([]transcript.StoredFragment, error) {
	if _, err := s.rt.Session(sessionID); err != nil {
		return nil, err
	}
	return s.rt.Fragments(sessionID).ReadTimeRange(fromMs, toMs, limit)
}

// Search scans a session's fragments in sequence order, returning those
// matching the CEL expression. An empty expression matches everything.
func (s *Service) Search(sessionID, expr string, fromSequence uint64, limit int) ([]transcript.StoredFragment, error) {
	if _, err := s.rt.Session(sessionID); err != nil {
		return nil, err
	}
	filter, err := newCELFilter(expr)
	if err != nil {
		return nil, err
	}
	l := s.rt.Fragments(sessionID)
	var out []transcript.StoredFragment
	next := fromSequence
	for {
		page, nxt, err := l.Read(fraglog.ReadOptions{FromSequence: next, Limit: 256})
		if err != nil {
			return out, err
		}
		for _, frag := range page {
			if filter.Eval(frag) {
				out = append(out, frag)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
		if nxt == 0 {
			return out, nil
		}
		next = nxt
	}
}

// Tail follows a session's fragment log, delivering committed fragments to
// the sink until its context ends or the limit is reached. One tail counts
// as one active subscription against the session's tier.
func (s *Service) Tail(ctx context.Context, sessionID string, opts TailOptions, sink TailSink) error {
	meta, err := s.lookupSession(sessionID)
	if err != nil {
		return err
	}
	if d := s.limiter.CanProceed(ctx, sessionID, backpressure.KindSubscribe, 0, meta.Tier); !d.Allowed {
		return &ThrottledError{Decision: d}
	}
	s.limiter.RecordUsage(ctx, sessionID, backpressure.KindSubscribe, 0)
	defer s.limiter.ReleaseSubscription(sessionID)

	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return err
	}
	l := s.rt.Fragments(sessionID)

	next := opts.FromSequence
	if next == 0 {
		tail, err := l.MaxSequence()
		if err != nil {
			return err
		}
		next = tail + 1
	}

	delivered := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sink.Context().Done():
			return nil
		default:
		}

		page, _, err := l.Read(fraglog.ReadOptions{FromSequence: next, Limit: 128})
		if err != nil {
			return err
		}
		for _, frag := range page {
			next = frag.Sequence + 1
			if !filter.Eval(frag) {
				continue
			}
			if err := sink.Send(frag); err != nil {
				return err
			}
			if opts.Group != "" {
				if err := l.CommitCursor(opts.Group, frag.Sequence); err != nil {
					s.logger.Warn("cursor commit failed",
						logpkg.Str("session", sessionID), logpkg.Str("group", opts.Group), logpkg.Err(err))
				}
			}
			delivered++
			if opts.Limit > 0 && delivered >= opts.Limit {
				return nil
			}
		}
		if len(page) == 0 {
			l.WaitForAppend(tailPoll)
		}
	}
}

// CommitCursor records a consumer group's position for a session.
func (s *Service) CommitCursor(sessionID, group string, seq uint64) error {
	if _, err := s.rt.Session(sessionID); err != nil {
		return err
	}
	return s.rt.Fragments(sessionID).CommitCursor(group, seq)
}

// Cursor returns a consumer group's committed position.
func (s *Service) Cursor(sessionID, group string) (uint64, bool, error) {
	if _, err := s.rt.Session(sessionID); err != nil {
		return 0, false, err
	}
	seq, ok := s.rt.Fragments(sessionID).Cursor(group)
	return seq, ok, nil
}
