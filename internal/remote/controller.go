package remote

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"reflect"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/t-webber/ntpnews/backend"
	"github.com/t-webber/ntpnews/internal/discovery"
	"github.com/t-webber/ntpnews/internal/metrics"
	"github.com/t-webber/ntpnews/internal/poller"
)

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records every request in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFinder replaces the feed finder used by FindFeeds.
func WithFinder(f *discovery.Finder) Option {
	return func(c *Controller) {
		if f != nil {
			c.finder = f
		}
	}
}

// Controller talks to a remote news service. It is safe for concurrent use.
type Controller struct {
	cfg     Config
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics
	finder  *discovery.Finder

	configListeners    backend.Listeners[backend.Configuration]
	feedListeners      backend.Listeners[string]
	publisherListeners backend.Listeners[backend.PublishersEvent]
	channelListeners   backend.Listeners[backend.ChannelsEvent]

	// emitMu orders each state swap with its emit so listeners see
	// updates in the order they were applied.
	emitMu sync.Mutex

	mu         sync.Mutex
	config     *backend.Configuration
	feedHash   string
	publishers map[string]backend.Publisher
	channels   map[string]backend.Channel
	scheduler  *poller.Scheduler
	done       chan struct{}
	closed     bool
}

var (
	_ backend.Controller = (*Controller)(nil)
	_ backend.Lifecycle  = (*Controller)(nil)
)

// New creates a controller. Listener events only flow after [Controller.Start].
func New(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:     cfg,
		limiter: newLimiter(cfg.RateLimit),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = newHTTPClient(cfg, c.logger)
	if c.finder == nil {
		c.finder = discovery.New(discovery.WithLogger(c.logger.Named("discovery")))
	}
	return c, nil
}

// Start begins polling the service for changes. Calling Start again, or
// after Close, is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil || c.closed {
		return nil
	}

	probes := []poller.Probe{
		{Name: probeConfiguration, Run: func(ctx context.Context) (any, error) { return c.fetchConfiguration(ctx) }},
		{Name: probeFeedHash, Run: func(ctx context.Context) (any, error) { return c.fetchFeedHash(ctx) }},
		{Name: probePublishers, Run: func(ctx context.Context) (any, error) { return c.fetchPublishers(ctx) }},
		{Name: probeChannels, Run: func(ctx context.Context) (any, error) { return c.fetchChannels(ctx) }},
	}
	c.scheduler = poller.NewScheduler(probes, c.cfg.PollInterval, len(probes), c.logger.Named("poller"))
	c.done = make(chan struct{})
	c.scheduler.Start(ctx)

	go c.consume(c.scheduler.Results(), c.done)
	c.logger.Info("polling news service",
		zap.String("url", c.cfg.BaseURL),
		zap.Duration("interval", c.cfg.PollInterval),
	)
	return nil
}

// Close stops polling and waits for in-flight probes.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	scheduler, done := c.scheduler, c.done
	c.mu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
		<-done
	}
	return nil
}

func (c *Controller) consume(results <-chan poller.Result, done chan<- struct{}) {
	defer close(done)
	for r := range results {
		if r.Err != nil {
			level := zap.ErrorLevel
			if isUnavailable(r.Err) || errors.Is(r.Err, context.Canceled) {
				level = zap.WarnLevel
			}
			c.logger.Log(level, "poll failed", zap.String("probe", r.Probe), zap.Error(r.Err))
			continue
		}
		c.apply(r.Probe, r.Value)
	}
}

// Refresh fetches everything listeners observe and emits any changes.
func (c *Controller) Refresh(ctx context.Context) error {
	var errs []error
	for _, name := range []string{probeConfiguration, probeFeedHash, probePublishers, probeChannels} {
		if err := c.refresh(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetLocale fetches the news locale.
func (c *Controller) GetLocale(ctx context.Context) (string, error) {
	var out struct {
		Locale string `json:"locale"`
	}
	err := c.call(ctx, "locale", http.MethodGet, "/v1/locale", func(r *resty.Request) {
		r.SetResult(&out)
	})
	if err != nil {
		return "", err
	}
	return out.Locale, nil
}

// GetFeedV2 fetches the combined feed.
func (c *Controller) GetFeedV2(ctx context.Context) (*backend.FeedV2, error) {
	return c.getFeed(ctx, "feed", "/v1/feed", nil)
}

// GetFollowingFeed fetches the feed of followed sources.
func (c *Controller) GetFollowingFeed(ctx context.Context) (*backend.FeedV2, error) {
	return c.getFeed(ctx, "feed_following", "/v1/feed/following", nil)
}

// GetChannelFeed fetches a single channel's feed.
func (c *Controller) GetChannelFeed(ctx context.Context, channel string) (*backend.FeedV2, error) {
	return c.getFeed(ctx, "feed_channel", "/v1/feed/channels/{channel}", map[string]string{"channel": channel})
}

// GetPublisherFeed fetches a single publisher's feed.
func (c *Controller) GetPublisherFeed(ctx context.Context, publisherID string) (*backend.FeedV2, error) {
	return c.getFeed(ctx, "feed_publisher", "/v1/feed/publishers/{publisherId}", map[string]string{"publisherId": publisherID})
}

func (c *Controller) getFeed(ctx context.Context, endpoint, path string, params map[string]string) (*backend.FeedV2, error) {
	feed := &backend.FeedV2{}
	err := c.call(ctx, endpoint, http.MethodGet, path, func(r *resty.Request) {
		r.SetPathParams(params).SetResult(feed)
	})
	if err != nil {
		return nil, err
	}
	if feed.Items == nil {
		feed.Items = []backend.FeedItemV2{}
	}
	return feed, nil
}

// GetSignals fetches engagement signals keyed by publisher or channel.
func (c *Controller) GetSignals(ctx context.Context) (map[string]backend.Signal, error) {
	signals := map[string]backend.Signal{}
	err := c.call(ctx, "signals", http.MethodGet, "/v1/signals", func(r *resty.Request) {
		r.SetResult(&signals)
	})
	if err != nil {
		return nil, err
	}
	return signals, nil
}

// SetConfiguration writes cfg, then re-reads the configuration so
// listeners see the stored value.
func (c *Controller) SetConfiguration(ctx context.Context, cfg backend.Configuration) error {
	err := c.call(ctx, "set_configuration", http.MethodPut, "/v1/configuration", func(r *resty.Request) {
		r.SetBody(cfg)
	})
	if err != nil {
		return err
	}
	c.refreshAfterWrite(ctx, probeConfiguration)
	return nil
}

// SetPublisherPref writes the user's choice for publisherID and refreshes
// publishers.
func (c *Controller) SetPublisherPref(ctx context.Context, publisherID string, status backend.UserEnabled) error {
	err := c.call(ctx, "set_publisher_pref", http.MethodPut, "/v1/publishers/{publisherId}/status", func(r *resty.Request) {
		r.SetPathParam("publisherId", publisherID).
			SetBody(map[string]backend.UserEnabled{"status": status})
	})
	if err != nil {
		return err
	}
	c.refreshAfterWrite(ctx, probePublishers)
	return nil
}

// SetChannelSubscribed writes a channel subscription for locale and
// refreshes channels.
func (c *Controller) SetChannelSubscribed(ctx context.Context, locale, channel string, subscribed bool) error {
	if channel == "" {
		return errors.New("channel name is required")
	}
	err := c.call(ctx, "set_channel_subscribed", http.MethodPut, "/v1/channels/{channel}/locales/{locale}", func(r *resty.Request) {
		r.SetPathParams(map[string]string{"channel": channel, "locale": locale}).
			SetBody(map[string]bool{"subscribed": subscribed})
	})
	if err != nil {
		return err
	}
	c.refreshAfterWrite(ctx, probeChannels)
	return nil
}

// SubscribeToNewDirectFeed registers feedURL as a direct publisher and
// refreshes publishers.
func (c *Controller) SubscribeToNewDirectFeed(ctx context.Context, feedURL string) error {
	err := c.call(ctx, "subscribe_direct_feed", http.MethodPost, "/v1/publishers/direct", func(r *resty.Request) {
		r.SetBody(map[string]string{"feedUrl": feedURL})
	})
	if err != nil {
		return err
	}
	c.refreshAfterWrite(ctx, probePublishers)
	return nil
}

// GetSuggestedPublisherIDs fetches suggested publishers, never nil.
func (c *Controller) GetSuggestedPublisherIDs(ctx context.Context) ([]string, error) {
	var out struct {
		PublisherIDs []string `json:"publisherIds"`
	}
	err := c.call(ctx, "suggested_publishers", http.MethodGet, "/v1/publishers/suggested", func(r *resty.Request) {
		r.SetResult(&out)
	})
	if err != nil {
		return nil, err
	}
	if out.PublisherIDs == nil {
		return []string{}, nil
	}
	return out.PublisherIDs, nil
}

// FindFeeds runs discovery locally; the service is not involved.
func (c *Controller) FindFeeds(ctx context.Context, pageURL string) ([]backend.FeedSearchResult, error) {
	feeds, err := c.finder.Find(ctx, pageURL)
	if err != nil {
		if errors.Is(err, discovery.ErrNotFeed) {
			return []backend.FeedSearchResult{}, nil
		}
		return nil, fmt.Errorf("find feeds: %w", err)
	}
	out := make([]backend.FeedSearchResult, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, backend.FeedSearchResult{FeedURL: f.URL, FeedTitle: f.Title})
	}
	return out, nil
}

// AddConfigurationListener delivers the last polled configuration, if any,
// before returning.
func (c *Controller) AddConfigurationListener(fn func(backend.Configuration)) func() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	unsubscribe := c.configListeners.Add(fn)
	c.mu.Lock()
	cfg := c.config
	c.mu.Unlock()
	if fn != nil && cfg != nil {
		fn(*cfg)
	}
	return unsubscribe
}

// AddFeedListener registers fn for feed hash changes. The first polled hash
// is a baseline and is not delivered.
func (c *Controller) AddFeedListener(fn func(string)) func() {
	return c.feedListeners.Add(fn)
}

// AddPublishersListener delivers the last polled publisher set, if any,
// before returning.
func (c *Controller) AddPublishersListener(fn func(backend.PublishersEvent)) func() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	unsubscribe := c.publisherListeners.Add(fn)
	c.mu.Lock()
	all := maps.Clone(c.publishers)
	c.mu.Unlock()
	if fn != nil && all != nil {
		fn(backend.PublishersEvent{AddedOrUpdated: all})
	}
	return unsubscribe
}

// AddChannelsListener delivers the last polled channel set, if any, before
// returning.
func (c *Controller) AddChannelsListener(fn func(backend.ChannelsEvent)) func() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	unsubscribe := c.channelListeners.Add(fn)
	c.mu.Lock()
	all := maps.Clone(c.channels)
	c.mu.Unlock()
	if fn != nil && all != nil {
		fn(backend.ChannelsEvent{AddedOrUpdated: all})
	}
	return unsubscribe
}

// ListenerCount returns the number of registered listeners.
func (c *Controller) ListenerCount() int {
	return c.configListeners.Len() + c.feedListeners.Len() + c.publisherListeners.Len() + c.channelListeners.Len()
}

func equalPublisher(a, b backend.Publisher) bool {
	return reflect.DeepEqual(a, b)
}

func equalChannel(a, b backend.Channel) bool {
	return reflect.DeepEqual(a, b)
}
