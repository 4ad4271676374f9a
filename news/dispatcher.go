package news

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend"
	"github.com/t-webber/ntpnews/store"
)

// Load outcomes reported to a [LoadObserver].
const (
	LoadLoaded   = "loaded"
	LoadError    = "error"
	LoadStale    = "stale"
	LoadCanceled = "canceled"
)

// LoadObserver is told about every finished feed load.
type LoadObserver func(outcome string, elapsed time.Duration)

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher's logger. The default discards output.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSpecifierStore restores the selected feed from specs on start and
// saves it after every load.
func WithSpecifierStore(specs *SpecifierStore) DispatcherOption {
	return func(d *Dispatcher) {
		d.specs = specs
	}
}

// WithLoadObserver registers a hook called after every feed load.
func WithLoadObserver(fn LoadObserver) DispatcherOption {
	return func(d *Dispatcher) {
		d.observe = fn
	}
}

// Dispatcher connects a news [State] store to a [backend.Controller]. It
// implements [Actions] and owns the feed loader.
//
// Backend pushes (configuration, feed updates, publishers, channels) are
// folded into the store as they arrive. Feed loads run in the background;
// at most one is in flight at a time.
type Dispatcher struct {
	st      *store.Store[State]
	ctrl    backend.Controller
	conv    *Converter
	logger  *zap.Logger
	specs   *SpecifierStore
	observe LoadObserver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	config       *backend.Configuration
	lastFeedHash string
	loading      bool
	visible      bool
	generation   uint64
	closed       bool
	unsubscribe  []func()
}

var _ Actions = (*Dispatcher)(nil)

// Initialize wires st to ctrl and returns the dispatcher.
//
// The persisted feed specifier is restored first, then backend listeners
// are registered and signals and locale are fetched in the background.
// No feed is loaded until the user has opted in and [Dispatcher.OnNewsVisible]
// has been called.
func Initialize(st *store.Store[State], ctrl backend.Controller, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		st:     st,
		ctrl:   ctrl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.conv = NewConverter(d.logger)
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if d.specs != nil {
		if spec, ok := d.specs.Load(); ok {
			st.Update(WithCurrentNewsFeed(spec))
		}
	}

	unsubscribe := []func(){
		ctrl.AddConfigurationListener(d.onConfiguration),
		ctrl.AddFeedListener(d.onFeedUpdate),
		ctrl.AddPublishersListener(d.onPublishers),
		ctrl.AddChannelsListener(d.onChannels),
	}
	d.mu.Lock()
	d.unsubscribe = unsubscribe
	d.mu.Unlock()

	d.wg.Add(2)
	go d.fetchSignals()
	go d.fetchLocale()

	return d
}

func (d *Dispatcher) fetchSignals() {
	defer d.wg.Done()
	signals, err := d.ctrl.GetSignals(d.ctx)
	if err != nil {
		d.logger.Warn("failed to fetch news signals", zap.Error(err))
		return
	}
	d.st.Update(WithSignals(d.conv.Signals(signals)))
}

func (d *Dispatcher) fetchLocale() {
	defer d.wg.Done()
	locale, err := d.ctrl.GetLocale(d.ctx)
	if err != nil {
		d.logger.Warn("failed to fetch news locale", zap.Error(err))
		return
	}
	d.st.Update(WithLocale(locale))
}

func (d *Dispatcher) onConfiguration(cfg backend.Configuration) {
	d.mu.Lock()
	d.config = &cfg
	neverLoaded := d.lastFeedHash == ""
	d.mu.Unlock()

	d.st.Update(WithNewsEnabled(cfg.IsOptedIn), WithShowNewsWidget(cfg.ShowOnNTP))
	d.st.Update(WithUpdateAvailable(true))
	if neverLoaded {
		d.loadFeed()
	}
}

func (d *Dispatcher) onFeedUpdate(hash string) {
	d.mu.Lock()
	changed := hash != d.lastFeedHash
	d.mu.Unlock()
	if changed {
		d.st.Update(WithUpdateAvailable(true))
	}
}

func (d *Dispatcher) onPublishers(ev backend.PublishersEvent) {
	d.st.Update(func(s *State) {
		next := make(map[string]Publisher, len(s.NewsPublishers)+len(ev.AddedOrUpdated))
		for k, v := range s.NewsPublishers {
			next[k] = v
		}
		for id, p := range ev.AddedOrUpdated {
			next[id] = d.conv.Publisher(id, p)
		}
		for _, id := range ev.Removed {
			delete(next, id)
		}
		s.NewsPublishers = next
	})
}

func (d *Dispatcher) onChannels(ev backend.ChannelsEvent) {
	d.st.Update(func(s *State) {
		next := make(map[string]Channel, len(s.NewsChannels)+len(ev.AddedOrUpdated))
		for k, v := range s.NewsChannels {
			next[k] = v
		}
		for name, ch := range ev.AddedOrUpdated {
			next[name] = d.conv.Channel(name, ch)
		}
		for _, name := range ev.Removed {
			delete(next, name)
		}
		s.NewsChannels = next
	})
}

func (d *Dispatcher) currentConfig() (backend.Configuration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.config == nil {
		return backend.Configuration{}, false
	}
	return *d.config, true
}

// SetShowNewsWidget is a no-op until the backend configuration is known.
func (d *Dispatcher) SetShowNewsWidget(ctx context.Context, show bool) error {
	cfg, ok := d.currentConfig()
	if !ok {
		return nil
	}
	cfg.ShowOnNTP = show
	if err := d.ctrl.SetConfiguration(ctx, cfg); err != nil {
		return fmt.Errorf("failed to set news widget visibility: %w", err)
	}
	return nil
}

// SetNewsEnabled is a no-op until the backend configuration is known.
func (d *Dispatcher) SetNewsEnabled(ctx context.Context, enabled bool) error {
	cfg, ok := d.currentConfig()
	if !ok {
		return nil
	}
	cfg.IsOptedIn = enabled
	if err := d.ctrl.SetConfiguration(ctx, cfg); err != nil {
		return fmt.Errorf("failed to set news enabled: %w", err)
	}
	return nil
}

// SetNewsPublisherEnabled records the user's choice for publisherID. The
// store changes when the backend reports the updated publisher.
func (d *Dispatcher) SetNewsPublisherEnabled(ctx context.Context, publisherID string, enabled bool) error {
	status := backend.UserEnabledDisabled
	if enabled {
		status = backend.UserEnabledEnabled
	}
	if err := d.ctrl.SetPublisherPref(ctx, publisherID, status); err != nil {
		return fmt.Errorf("failed to set publisher %s preference: %w", publisherID, err)
	}
	return nil
}

// SetNewsChannelEnabled subscribes or unsubscribes channel in the current
// news locale.
func (d *Dispatcher) SetNewsChannelEnabled(ctx context.Context, channel string, enabled bool) error {
	locale := d.st.GetState().NewsLocale
	if err := d.ctrl.SetChannelSubscribed(ctx, locale, channel, enabled); err != nil {
		return fmt.Errorf("failed to set channel %s subscription: %w", channel, err)
	}
	return nil
}

// SubscribeToDirectNewsFeed adds feedURL as a direct publisher.
func (d *Dispatcher) SubscribeToDirectNewsFeed(ctx context.Context, feedURL string) error {
	if err := d.ctrl.SubscribeToNewDirectFeed(ctx, feedURL); err != nil {
		return fmt.Errorf("failed to subscribe to feed %s: %w", feedURL, err)
	}
	return nil
}

// GetSuggestedNewsPublishers returns suggested publisher IDs, never nil.
func (d *Dispatcher) GetSuggestedNewsPublishers(ctx context.Context) ([]string, error) {
	ids, err := d.ctrl.GetSuggestedPublisherIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get suggested publishers: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// FindNewsFeeds lists the feeds advertised by the page at pageURL.
func (d *Dispatcher) FindNewsFeeds(ctx context.Context, pageURL string) ([]FindFeedResult, error) {
	results, err := d.ctrl.FindFeeds(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to find feeds on %s: %w", pageURL, err)
	}
	out := make([]FindFeedResult, 0, len(results))
	for _, r := range results {
		out = append(out, FindFeedResult{FeedURL: r.FeedURL, FeedTitle: r.FeedTitle})
	}
	return out, nil
}

// UpdateNewsFeed clears the items, showing the loading view, and requests
// a load. A request while a load is in flight only clears the items.
func (d *Dispatcher) UpdateNewsFeed() {
	d.st.Update(WithFeedItems(nil))
	d.loadFeed()
}

// SetCurrentNewsFeed switches feeds. If a load for the previous feed is in
// flight its result is discarded and the new feed is loaded once it ends.
func (d *Dispatcher) SetCurrentNewsFeed(spec Specifier) {
	d.st.Update(WithCurrentNewsFeed(spec), WithFeedItems(nil))

	d.mu.Lock()
	if d.loading {
		d.generation++
	}
	d.mu.Unlock()

	d.loadFeed()
}

// OnNewsVisible records that news is on screen. Only the first call has
// an effect.
func (d *Dispatcher) OnNewsVisible() {
	d.mu.Lock()
	first := !d.visible
	d.visible = true
	d.mu.Unlock()

	if first {
		d.loadFeed()
	}
}

// Wait blocks until background work started so far has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close unregisters backend listeners, cancels background loads and waits
// for them. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	d.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	d.cancel()
	d.wg.Wait()
}
