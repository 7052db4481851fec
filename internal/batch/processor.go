package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	logpkg "github.com/verbatimhq/verbatim/pkg/log"
)

// ErrClosed is returned by Add after Shutdown has started.
var ErrClosed = errors.New("batch: processor closed")

// Coalescer merges a new item into a compatible queued one, bounding batch
// growth under bursty mergeable traffic (latest-state-wins presence, adjacent
// transcript fragments).
type Coalescer[T any] interface {
	ShouldCoalesce(queued, next T) bool
	Coalesce(queued, next T) T
}

// Options configures a Processor.
type Options[T any] struct {
	// MaxSize triggers an immediate flush when the batch reaches it.
	MaxSize int
	// MaxWait flushes a non-empty batch that has waited this long.
	MaxWait time.Duration
	// Flush persists a batch. Called from the processor goroutine only.
	Flush func(ctx context.Context, items []T) error
	// Coalescer optionally merges new items into queued ones.
	Coalescer Coalescer[T]
	// OnError receives items whose flush failed. When nil, failed batches
	// are retried per Retry and logged if the bound is hit.
	OnError func(items []T, err error)
	// Retry applies when OnError is nil.
	Retry RetryPolicy
	// MailboxSize bounds buffered arrivals; defaults to 4*MaxSize, min 64.
	MailboxSize int
	Logger      logpkg.Logger
}

// Processor accumulates items and flushes them by size or age.
type Processor[T any] struct {
	opts    Options[T]
	mailbox chan T
	done    chan struct{}
	exited  chan struct{}
	pending atomic.Int64
	flushed atomic.Int64
	closed  atomic.Bool
}

// New starts a processor and its mailbox goroutine.
func New[T any](opts Options[T]) *Processor[T] {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 20
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = time.Second
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.WarnLevel))
	}
	mailboxSize := opts.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = 4 * opts.MaxSize
		if mailboxSize < 64 {
			mailboxSize = 64
		}
	}
	p := &Processor[T]{
		opts:    opts,
		mailbox: make(chan T, mailboxSize),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Add enqueues an item. It blocks only while the mailbox is full (a flush is
// mid-flight and the buffer saturated), never indefinitely past Shutdown.
func (p *Processor[T]) Add(item T) error {
	if p.closed.Load() {
		return ErrClosed
	}
	select {
	case p.mailbox <- item:
		p.pending.Add(1)
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// QueueSize reports items accepted but not yet flushed.
func (p *Processor[T]) QueueSize() int { return int(p.pending.Load()) }

// Flushed reports the total number of completed flushes.
func (p *Processor[T]) Flushed() int64 { return p.flushed.Load() }

// Shutdown stops intake, drains the mailbox, flushes the remainder, and
// returns when the processor goroutine has exited or ctx is done.
func (p *Processor[T]) Shutdown(ctx context.Context) error {
	if p.closed.CompareAndSwap(false, true) {
		close(p.done)
	}
	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor[T]) run() {
	defer close(p.exited)

	var items []T
	timer := time.NewTimer(p.opts.MaxWait)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	disarm := func() {
		if timerArmed && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timerArmed = false
	}
	flush := func() {
		if len(items) == 0 {
			return
		}
		disarm()
		p.flush(items)
		p.pending.Add(int64(-len(items)))
		items = nil
	}
	accept := func(item T) {
		if p.opts.Coalescer != nil {
			for i := range items {
				if p.opts.Coalescer.ShouldCoalesce(items[i], item) {
					items[i] = p.opts.Coalescer.Coalesce(items[i], item)
					p.pending.Add(-1)
					return
				}
			}
		}
		items = append(items, item)
		if len(items) >= p.opts.MaxSize {
			flush()
			return
		}
		if !timerArmed {
			timer.Reset(p.opts.MaxWait)
			timerArmed = true
		}
	}

	for {
		select {
		case item := <-p.mailbox:
			accept(item)
		case <-timer.C:
			timerArmed = false
			flush()
		case <-p.done:
			// drain buffered arrivals, then flush everything left
			for {
				select {
				case item := <-p.mailbox:
					accept(item)
					continue
				default:
				}
				break
			}
			flush()
			return
		}
	}
}

// flush delivers one batch, retrying per policy when no error handler is set.
// A batch is never abandoned silently: the retry bound logs the loss.
func (p *Processor[T]) flush(items []T) {
	ctx := context.Background()
	err := p.opts.Flush(ctx, items)
	if err == nil {
		p.flushed.Add(1)
		return
	}
	if p.opts.OnError != nil {
		p.opts.OnError(items, err)
		return
	}
	maxAttempts := p.opts.Retry.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	for attempt := uint32(1); attempt <= maxAttempts; attempt++ {
		if d := p.opts.Retry.Delay(attempt); d > 0 {
			time.Sleep(d)
		}
		if err = p.opts.Flush(ctx, items); err == nil {
			p.flushed.Add(1)
			return
		}
	}
	p.opts.Logger.Error("batch dropped after flush retries exhausted",
		logpkg.Int("items", len(items)),
		logpkg.Int("attempts", int(maxAttempts)),
		logpkg.Err(err),
	)
}
