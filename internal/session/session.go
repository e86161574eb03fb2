// Package session implements the listing session: the state machine behind
// one open directory view.
//
//	Idle -> Loading -> Ready | Failed
//	          ^            |
//	          +-- change --+
//
// Close moves any state to Closed. Every reload gets a new generation and
// only the result of the newest generation is applied.
package session

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/justyntemme/fexplorer/internal/debug"
	"github.com/justyntemme/fexplorer/internal/fs"
	"github.com/justyntemme/fexplorer/internal/logging"
	"github.com/justyntemme/fexplorer/internal/metrics"
	"github.com/justyntemme/fexplorer/internal/notify"
)

// Phase is the state of a session.
type Phase int

const (
	Idle Phase = iota
	Loading
	Ready
	Failed
	Closed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// State is an immutable view of a session for rendering.
type State struct {
	Phase   Phase
	Path    string
	Entries []fs.Entry // Ready; while Loading, the previous listing if any
	Err     error      // Failed
	Gen     int64      // generation the state belongs to
}

// Lister lists a directory. fs.Lister and *fs.System both satisfy it.
type Lister interface {
	List(ctx context.Context, path string, opts fs.ListOptions) ([]fs.Entry, error)
}

// Subscriber registers for change events. *notify.Bus satisfies it.
type Subscriber interface {
	Subscribe(pred notify.Predicate, handler notify.Handler) *notify.Subscription
}

// Watcher reports external changes of a directory into the bus.
type Watcher interface {
	Watch(path string) error
	Unwatch(path string)
}

// ErrAlreadyOpen is returned by Open on anything but an idle session.
var ErrAlreadyOpen = errors.New("session already opened")

// Option configures a Session.
type Option func(*Session)

// WithListOptions sets the options passed to every listing.
func WithListOptions(opts fs.ListOptions) Option {
	return func(s *Session) { s.opts = opts }
}

// WithWatcher makes the session watch its directory while open.
func WithWatcher(w Watcher) Option {
	return func(s *Session) { s.watcher = w }
}

// Session tracks one directory view. It is safe for concurrent use.
type Session struct {
	lister  Lister
	bus     Subscriber
	watcher Watcher
	opts    fs.ListOptions
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	gen      int64
	inflight context.CancelFunc
	sub      *notify.Subscription
	watching bool

	updates chan struct{}
}

// New creates an idle session.
func New(lister Lister, bus Subscriber, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		lister:  lister,
		bus:     bus,
		log:     logging.Named("session"),
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts the first listing of path and subscribes to changes of it.
// It returns once Loading has been entered.
func (s *Session) Open(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state.Phase != Idle {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.state.Path = abs
	// Subscribe before the first listing so no change can fall in between.
	s.sub = s.bus.Subscribe(notify.PathIs(abs), func(notify.Event) {
		debug.Log(debug.SESSION, "change event for %q", abs)
		s.Reload()
	})
	s.startLocked()
	s.mu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Watch(abs); err != nil {
			s.log.Warn("cannot watch directory", logging.String("path", abs), logging.Err(err))
		} else {
			s.mu.Lock()
			closed := s.state.Phase == Closed
			s.watching = !closed
			s.mu.Unlock()
			if closed {
				s.watcher.Unwatch(abs)
			}
		}
	}
	return nil
}

// Reload re-lists the directory, superseding any listing still in flight.
// It does nothing before Open or after Close.
func (s *Session) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Phase {
	case Loading, Ready, Failed:
		s.startLocked()
	}
}

func (s *Session) startLocked() {
	if s.inflight != nil {
		s.inflight()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.ctx)
	s.inflight = cancel
	s.state = State{Phase: Loading, Path: s.state.Path, Entries: s.state.Entries, Gen: gen}
	debug.Log(debug.SESSION, "%q: loading gen=%d", s.state.Path, gen)
	s.signal()

	go s.load(ctx, s.state.Path, gen)
}

func (s *Session) load(ctx context.Context, path string, gen int64) {
	entries, err := s.lister.List(ctx, path, s.opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state.Phase != Loading {
		debug.Log(debug.SESSION, "%q: discarding gen=%d (current %d, %s)", path, gen, s.gen, s.state.Phase)
		metrics.SessionReload(false)
		return
	}
	s.inflight()
	s.inflight = nil

	if err != nil {
		s.state = State{Phase: Failed, Path: path, Err: err, Gen: gen}
		s.log.Debug("listing failed", logging.String("path", path), logging.Err(err))
	} else {
		s.state = State{Phase: Ready, Path: path, Entries: entries, Gen: gen}
	}
	debug.Log(debug.SESSION, "%q: %s gen=%d entries=%d", path, s.state.Phase, gen, len(entries))
	metrics.SessionReload(true)
	s.signal()
}

// Close unsubscribes and moves the session to Closed. Results still in
// flight are dropped on arrival. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state.Phase == Closed {
		s.mu.Unlock()
		return
	}
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	s.state = State{Phase: Closed, Path: s.state.Path, Gen: s.gen}
	sub, watching, path := s.sub, s.watching, s.state.Path
	s.sub, s.watching = nil, false
	s.signal()
	s.mu.Unlock()

	s.cancel()
	if sub != nil {
		sub.Unsubscribe()
	}
	if watching {
		s.watcher.Unwatch(path)
	}
	debug.Log(debug.SESSION, "%q: closed", path)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Entries = slices.Clone(st.Entries)
	return st
}

// Updates is signalled after every transition. Signals coalesce, so read
// Snapshot after receiving one.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// Await blocks until the state satisfies cond or ctx is done. It consumes
// Updates, so it should not be combined with another reader.
func (s *Session) Await(ctx context.Context, cond func(State) bool) (State, error) {
	for {
		st := s.Snapshot()
		if cond(st) {
			return st, nil
		}
		select {
		case <-s.updates:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}
}

// Settled reports whether st is a final result: Ready, Failed or Closed.
func Settled(st State) bool {
	return st.Phase == Ready || st.Phase == Failed || st.Phase == Closed
}
