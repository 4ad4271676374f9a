package store

import (
	"reflect"
	"sync"
)

// SelectOption configures a [Projection] created by [Select].
type SelectOption[T any] func(*selectConfig[T])

type selectConfig[T any] struct {
	equal  func(a, b T) bool
	always bool
}

// WithEqual replaces the default identity comparison ([Same]) used to decide
// whether the derived value changed.
func WithEqual[T any](equal func(a, b T) bool) SelectOption[T] {
	return func(c *selectConfig[T]) {
		if equal != nil {
			c.equal = equal
		}
	}
}

// AlwaysEmit makes the projection invoke its callback on every update,
// regardless of whether the derived value changed.
func AlwaysEmit[T any]() SelectOption[T] {
	return func(c *selectConfig[T]) {
		c.always = true
	}
}

// Projection is a derived, memoised view of a [Store]'s state.
//
// A Projection keeps the last derived value and invokes its callback only
// when a notification produces a value that is not the same as the previous
// one. It stays attached until [Projection.Close] is called.
type Projection[T any] struct {
	mu         sync.Mutex
	value      T
	unregister func()
	closeOnce  sync.Once
}

// Select attaches a projection of st's state computed by mapFn.
//
// The initial value is computed immediately from [Store.GetState]; onChange
// is not called for it. On every later update mapFn is applied to the new
// state and onChange is called with the result if it differs from the
// previous value. onChange may be nil, in which case the projection only
// tracks [Projection.Value].
//
// mapFn must be pure and must not retain or mutate the state it receives.
func Select[S, T any](st *Store[S], mapFn func(S) T, onChange func(T), opts ...SelectOption[T]) *Projection[T] {
	cfg := selectConfig[T]{
		equal: func(a, b T) bool { return Same(a, b) },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Projection[T]{}

	// hold p.mu across registration so a concurrent notification waits for
	// the initial value instead of racing with it
	p.mu.Lock()
	p.unregister = st.AddListener(func(state S) {
		next := mapFn(state)

		p.mu.Lock()
		if !cfg.always && cfg.equal(p.value, next) {
			p.mu.Unlock()
			return
		}
		p.value = next
		p.mu.Unlock()

		if onChange != nil {
			onChange(next)
		}
	})
	p.value = mapFn(st.GetState())
	p.mu.Unlock()

	return p
}

// Watch attaches an identity projection: onChange receives the full state
// after every update.
func Watch[S any](st *Store[S], onChange func(S)) *Projection[S] {
	return Select(st, func(s S) S { return s }, onChange, AlwaysEmit[S]())
}

// Value returns the most recent derived value.
func (p *Projection[T]) Value() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Close detaches the projection from its store. The underlying listener is
// unregistered exactly once; further calls are no-ops.
func (p *Projection[T]) Close() {
	p.closeOnce.Do(func() {
		if p.unregister != nil {
			p.unregister()
		}
	})
}

// Same reports whether a and b are the same value by identity.
//
// Slices are the same when they share a backing array and length. Maps,
// pointers, channels and functions are the same when they point to the same
// object. Other comparable values are compared with ==. Values that are not
// comparable (for example structs holding slices) are never the same, so
// projections returning them always emit.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Slice:
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() && vb.IsNil()
		}
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}

	if !va.Comparable() {
		return false
	}
	return va.Equal(vb)
}
