package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	cfgpkg "github.com/verbatimhq/verbatim/internal/config"
	"github.com/verbatimhq/verbatim/internal/fraglog"
	"github.com/verbatimhq/verbatim/internal/session"
	pebblestore "github.com/verbatimhq/verbatim/internal/storage/pebble"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Fsync   pebblestore.FsyncMode
	// FsyncInterval is the group-commit window for FsyncModeInterval.
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Metrics, when set, observes storage commits.
	Metrics pebblestore.MetricsHook
}

// Runtime wires storage, config, and per-session fragment logs for a
// single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logs   sync.Map // sessionID -> *fraglog.Log
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, FsyncInterval: opts.FsyncInterval, Metrics: opts.Metrics})
	if err != nil {
		return nil, err
	}
	return &Runtime{db: db, config: opts.Config}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// EnsureSession creates a session record if absent, applying the
// configured stream defaults.
func (r *Runtime) EnsureSession(id string) (session.Meta, error) {
	return session.Ensure(r.db, id, r.config.Stream)
}

// Session loads an existing session record.
func (r *Runtime) Session(id string) (session.Meta, error) {
	return session.Get(r.db, id)
}

// Fragments returns the shared fragment log for a session. All callers in
// the process get the same instance, so tail waiters see every append.
func (r *Runtime) Fragments(sessionID string) *fraglog.Log {
	if v, ok := r.logs.Load(sessionID); ok {
		return v.(*fraglog.Log)
	}
	fresh := fraglog.Open(r.db, sessionID)
	if v, loaded := r.logs.LoadOrStore(sessionID, fresh); loaded {
		return v.(*fraglog.Log)
	}
	return fresh
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
