package server

import (
	"fmt"
	"strings"
	"sync"

	"github.com/t-webber/ntpnews/news"
	"github.com/t-webber/ntpnews/store"
)

// hub hands store notifications to streaming clients.
//
// Every subscription owns a one-slot mailbox: a notification overwrites the
// previous unread state and signals the client. Slow clients therefore see
// coalesced updates and never hold up the store's listener loop.
type hub struct {
	st *store.Store[news.State]

	mu          sync.Mutex
	subscribers map[*subscription]struct{}
}

func newHub(st *store.Store[news.State]) *hub {
	return &hub{
		st:          st,
		subscribers: make(map[*subscription]struct{}),
	}
}

// subscription is one client's view of the store.
type subscription struct {
	ready chan struct{}

	mu     sync.Mutex
	latest news.State

	unregister func()
}

// subscribe registers a new subscription. The caller must call unsubscribe
// when done.
func (h *hub) subscribe() *subscription {
	sub := &subscription{ready: make(chan struct{}, 1)}
	sub.unregister = h.st.AddListener(sub.offer)

	// read after registering so no update falls between the two
	sub.mu.Lock()
	sub.latest = h.st.GetState()
	sub.mu.Unlock()

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// unsubscribe detaches sub from the store. Safe to call more than once.
func (h *hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
	sub.unregister()
}

// count returns the number of live subscriptions.
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// offer stores s as the latest state and signals the reader without
// blocking.
func (s *subscription) offer(state news.State) {
	s.mu.Lock()
	s.latest = state
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
		// reader has not consumed the previous signal yet
	}
}

// current returns the most recent state.
func (s *subscription) current() news.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// fieldSet tracks the last value sent for each selected field.
type fieldSet struct {
	names  []string
	sels   []news.Selector
	prev   []any
	primed bool
}

// newFieldSet validates names. An empty list selects every field.
func newFieldSet(names []string) (*fieldSet, error) {
	if len(names) == 0 {
		names = news.Fields()
	}
	fs := &fieldSet{
		names: make([]string, 0, len(names)),
		sels:  make([]news.Selector, 0, len(names)),
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		sel, ok := news.FieldSelector(name)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		seen[name] = true
		fs.names = append(fs.names, name)
		fs.sels = append(fs.sels, sel)
	}
	fs.prev = make([]any, len(fs.names))
	return fs, nil
}

// parseFields splits a comma separated field list.
func parseFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// diff returns the fields whose projection changed since the last call.
// The first call returns every field.
func (f *fieldSet) diff(state news.State) map[string]any {
	out := make(map[string]any)
	for i, sel := range f.sels {
		v := sel(state)
		if f.primed && store.Same(f.prev[i], v) {
			continue
		}
		f.prev[i] = v
		out[f.names[i]] = v
	}
	f.primed = true
	return out
}
