package store

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Patch is a single partial update of a state value.
//
// A Patch receives a pointer to a shallow copy of the current state and
// assigns the fields it owns. Patches must not mutate maps or slices shared
// with the previous snapshot; they replace them instead, so that identity
// comparison in projections keeps working.
type Patch[S any] func(*S)

// Option configures a [Store] during construction.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used to report recovered listener panics.
// Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

type listener[S any] struct {
	fn      func(S)
	removed atomic.Bool
}

// Store holds the canonical state of type S and fans out change
// notifications to listeners.
//
// Store is safe for concurrent use. Updates are serialised and their
// notifications are delivered in update order, never concurrently with each
// other. A listener may call [Store.GetState] and [Store.Update] from within
// its callback; a nested update is delivered after the current notification
// round completes.
type Store[S any] struct {
	mu      sync.RWMutex
	state   S
	version uint64

	lmu       sync.Mutex
	listeners []*listener[S]

	// delivery queue; whoever finds it idle drains it
	dmu         sync.Mutex
	pending     []S
	dispatching bool

	logger *zap.Logger
}

// New creates a [Store] holding initial.
func New[S any](initial S, opts ...Option) *Store[S] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[S]{
		state:  initial,
		logger: o.logger,
	}
}

// GetState returns the current state snapshot.
//
// The returned value is a shallow copy: maps and slices inside it are shared
// with the store and must be treated as read-only.
func (s *Store[S]) GetState() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Version returns the number of updates applied so far.
func (s *Store[S]) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Update applies patches, in order, to one copy of the current state,
// publishes the result as the new snapshot and notifies every listener.
//
// All patches of one call are applied atomically: no reader observes an
// intermediate state, and listeners receive a single notification. Calling
// Update without patches still counts as an update and notifies listeners.
//
// Notifications are delivered synchronously before Update returns, unless
// another goroutine (or an enclosing listener callback) is already
// delivering; in that case the snapshot is queued and delivered by the
// active dispatcher, preserving update order.
func (s *Store[S]) Update(patches ...Patch[S]) {
	s.mu.Lock()
	next := s.state
	for _, p := range patches {
		if p != nil {
			p(&next)
		}
	}
	s.state = next
	s.version++

	// enqueue while still holding mu so queue order matches version order
	s.dmu.Lock()
	s.pending = append(s.pending, next)
	s.dmu.Unlock()
	s.mu.Unlock()

	s.drain()
}

// AddListener registers fn to be called with the new state after every
// update. Listeners are called in registration order.
//
// The returned function unregisters the listener. It is idempotent: calls
// after the first have no effect. A listener unregistered while a
// notification round is in progress is not called again, including for the
// remainder of that round.
func (s *Store[S]) AddListener(fn func(S)) (unregister func()) {
	if fn == nil {
		return func() {}
	}

	l := &listener[S]{fn: fn}
	s.lmu.Lock()
	s.listeners = append(s.listeners, l)
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.removed.Store(true)
			s.lmu.Lock()
			defer s.lmu.Unlock()
			for i, cur := range s.listeners {
				if cur == l {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// ListenerCount returns the number of registered listeners.
func (s *Store[S]) ListenerCount() int {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	return len(s.listeners)
}

// drain delivers queued snapshots until the queue is empty. Only one
// goroutine drains at a time.
func (s *Store[S]) drain() {
	s.dmu.Lock()
	if s.dispatching {
		s.dmu.Unlock()
		return
	}
	s.dispatching = true

	for len(s.pending) > 0 {
		var zero S
		next := s.pending[0]
		s.pending[0] = zero
		s.pending = s.pending[1:]
		s.dmu.Unlock()

		s.notify(next)

		s.dmu.Lock()
	}
	s.pending = nil
	s.dispatching = false
	s.dmu.Unlock()
}

// notify calls every live listener with state.
func (s *Store[S]) notify(state S) {
	s.lmu.Lock()
	listeners := make([]*listener[S], len(s.listeners))
	copy(listeners, s.listeners)
	s.lmu.Unlock()

	for _, l := range listeners {
		if l.removed.Load() {
			continue
		}
		s.invokeSafe(l.fn, state)
	}
}

// invokeSafe calls a listener with panic recovery.
// Panics are logged with a correlation id and do not stop delivery to the
// remaining listeners.
func (s *Store[S]) invokeSafe(fn func(S), state S) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store listener panicked",
				zap.String("correlation_id", uuid.NewString()),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn(state)
}
