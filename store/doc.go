// Package store provides an observable application-state container.
//
// A [Store] owns exactly one canonical state value. Writers apply partial
// updates with [Store.Update]; every update produces a new snapshot and is
// delivered, in order, to every registered listener. Readers never see a
// torn snapshot.
//
// Consumers that only care about a slice of the state attach a [Projection]
// with [Select]. A projection recomputes its derived value on every
// notification and invokes its callback only when that value changed by
// identity (see [Same]). [Watch] attaches an identity projection, which
// re-emits on every update.
//
// The main components are:
//
//   - [Store]: state holder with listener fan-out
//   - [Patch]: one partial update, applied to a shallow copy of the state
//   - [Projection]: derived, memoised view of the state
//
// Typical use:
//
//	st := store.New(news.DefaultState())
//	p := store.Select(st, func(s news.State) bool { return s.NewsEnabled },
//	    func(enabled bool) { log.Println("enabled:", enabled) })
//	defer p.Close()
//
//	st.Update(news.WithNewsEnabled(true)) // prints "enabled: true"
package store
