// Package mock provides an in-memory [backend.Controller] for demos and
// tests.
//
// The controller serves a [Fixture], emits the same events a real news
// service would when preferences change, and exposes hooks for tests: call
// counters, a gate that holds feed requests, and error injection.
package mock

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend"
)

// Method names accepted by [Controller.Calls].
const (
	MethodGetLocale                = "GetLocale"
	MethodGetFeedV2                = "GetFeedV2"
	MethodGetFollowingFeed         = "GetFollowingFeed"
	MethodGetChannelFeed           = "GetChannelFeed"
	MethodGetPublisherFeed         = "GetPublisherFeed"
	MethodGetSignals               = "GetSignals"
	MethodSetConfiguration         = "SetConfiguration"
	MethodSetPublisherPref         = "SetPublisherPref"
	MethodSetChannelSubscribed     = "SetChannelSubscribed"
	MethodSubscribeToNewDirectFeed = "SubscribeToNewDirectFeed"
	MethodGetSuggestedPublisherIDs = "GetSuggestedPublisherIDs"
	MethodFindFeeds                = "FindFeeds"
)

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller is an in-memory news backend. It is safe for concurrent use.
// Events are delivered synchronously on the goroutine that caused them,
// with no internal lock held.
type Controller struct {
	logger *zap.Logger

	mu         sync.Mutex
	fx         Fixture
	feedHash   string
	calls      map[string]int
	gate       chan struct{}
	feedErr    error
	feedStatus backend.FeedV2Error

	configListeners    backend.Listeners[backend.Configuration]
	feedListeners      backend.Listeners[string]
	publisherListeners backend.Listeners[backend.PublishersEvent]
	channelListeners   backend.Listeners[backend.ChannelsEvent]
}

var _ backend.Controller = (*Controller)(nil)

// New returns a controller serving fx.
func New(fx Fixture, opts ...Option) *Controller {
	fx.normalize()
	c := &Controller{
		logger:   zap.NewNop(),
		fx:       fx,
		feedHash: fx.Feed.SourceHash,
		calls:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calls returns how many times method has been invoked.
func (c *Controller) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// FeedCalls returns the total number of feed requests of any kind.
func (c *Controller) FeedCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[MethodGetFeedV2] + c.calls[MethodGetFollowingFeed] +
		c.calls[MethodGetChannelFeed] + c.calls[MethodGetPublisherFeed]
}

// HoldFeeds makes subsequent feed requests block until release is called
// or their context is done. Calls are counted before blocking.
func (c *Controller) HoldFeeds() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.gate = gate
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.gate == gate {
				c.gate = nil
			}
			c.mu.Unlock()
			close(gate)
		})
	}
}

// FailFeeds makes feed requests return err. A nil err restores normal
// behaviour.
func (c *Controller) FailFeeds(err error) {
	c.mu.Lock()
	c.feedErr = err
	c.mu.Unlock()
}

// SetFeedError makes feed responses carry code.
func (c *Controller) SetFeedError(code backend.FeedV2Error) {
	c.mu.Lock()
	c.feedStatus = code
	c.mu.Unlock()
}

// PublishFeedHash records hash as the current feed version and notifies
// feed listeners that an update is available.
func (c *Controller) PublishFeedHash(hash string) {
	c.mu.Lock()
	c.feedHash = hash
	c.mu.Unlock()
	c.feedListeners.Emit(hash)
}

// RemovePublisher deletes a publisher and emits the removal.
func (c *Controller) RemovePublisher(id string) {
	c.mu.Lock()
	_, ok := c.fx.Publishers[id]
	delete(c.fx.Publishers, id)
	c.mu.Unlock()
	if ok {
		c.publisherListeners.Emit(backend.PublishersEvent{Removed: []string{id}})
	}
}

// ListenerCount returns the total number of registered listeners.
func (c *Controller) ListenerCount() int {
	return c.configListeners.Len() + c.feedListeners.Len() +
		c.publisherListeners.Len() + c.channelListeners.Len()
}

func (c *Controller) count(method string) {
	c.mu.Lock()
	c.calls[method]++
	c.mu.Unlock()
}

// GetLocale returns the fixture locale.
func (c *Controller) GetLocale(ctx context.Context) (string, error) {
	c.count(MethodGetLocale)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fx.Locale, nil
}

// GetFeedV2 returns every fixture item.
func (c *Controller) GetFeedV2(ctx context.Context) (*backend.FeedV2, error) {
	return c.feed(ctx, MethodGetFeedV2, &backend.FeedV2Type{All: true}, func(fx *Fixture) ([]backend.FeedItemV2, backend.FeedV2Error) {
		return fx.Feed.Items, backend.FeedV2ErrorNone
	})
}

// GetFollowingFeed returns items from enabled or followed publishers.
func (c *Controller) GetFollowingFeed(ctx context.Context) (*backend.FeedV2, error) {
	return c.feed(ctx, MethodGetFollowingFeed, &backend.FeedV2Type{Following: true}, func(fx *Fixture) ([]backend.FeedItemV2, backend.FeedV2Error) {
		followed := make(map[string]bool)
		for id, p := range fx.Publishers {
			if following(p) {
				followed[id] = true
			}
		}
		if len(followed) == 0 {
			return nil, backend.FeedV2ErrorNoFeeds
		}
		items := filterItems(fx.Feed.Items, func(m backend.FeedItemMetadata) bool {
			return followed[m.PublisherID]
		})
		if len(items) == 0 {
			return nil, backend.FeedV2ErrorNoArticles
		}
		return items, backend.FeedV2ErrorNone
	})
}

// GetChannelFeed returns the articles of the channel's clusters.
func (c *Controller) GetChannelFeed(ctx context.Context, channel string) (*backend.FeedV2, error) {
	typ := &backend.FeedV2Type{Channel: &backend.ChannelFeedType{Channel: channel}}
	return c.feed(ctx, MethodGetChannelFeed, typ, func(fx *Fixture) ([]backend.FeedItemV2, backend.FeedV2Error) {
		var items []backend.FeedItemV2
		for _, item := range fx.Feed.Items {
			if item.Cluster != nil && item.Cluster.Type == backend.ClusterTypeChannel && item.Cluster.ID == channel {
				items = append(items, item.Cluster.Articles...)
			}
		}
		if len(items) == 0 {
			return nil, backend.FeedV2ErrorNoArticles
		}
		return items, backend.FeedV2ErrorNone
	})
}

// GetPublisherFeed returns the items published by publisherID.
func (c *Controller) GetPublisherFeed(ctx context.Context, publisherID string) (*backend.FeedV2, error) {
	typ := &backend.FeedV2Type{Publisher: &backend.PublisherFeedType{PublisherID: publisherID}}
	return c.feed(ctx, MethodGetPublisherFeed, typ, func(fx *Fixture) ([]backend.FeedItemV2, backend.FeedV2Error) {
		items := filterItems(fx.Feed.Items, func(m backend.FeedItemMetadata) bool {
			return m.PublisherID == publisherID
		})
		if len(items) == 0 {
			return nil, backend.FeedV2ErrorNoArticles
		}
		return items, backend.FeedV2ErrorNone
	})
}

// feed counts the call, waits on the gate, then builds a response from the
// fixture using pick.
func (c *Controller) feed(ctx context.Context, method string, typ *backend.FeedV2Type, pick func(*Fixture) ([]backend.FeedItemV2, backend.FeedV2Error)) (*backend.FeedV2, error) {
	c.mu.Lock()
	c.calls[method]++
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.feedErr != nil {
		return nil, c.feedErr
	}

	items, code := pick(&c.fx)
	if c.feedStatus != backend.FeedV2ErrorNone {
		items, code = nil, c.feedStatus
	}
	if items == nil {
		items = []backend.FeedItemV2{}
	}

	c.logger.Debug("serving feed", zap.String("method", method), zap.Int("items", len(items)), zap.String("hash", c.feedHash))
	return &backend.FeedV2{
		ConstructTime: c.fx.Feed.ConstructTime,
		SourceHash:    c.feedHash,
		Type:          typ,
		Items:         items,
		Error:         code,
	}, nil
}

// GetSignals returns a copy of the fixture signals.
func (c *Controller) GetSignals(ctx context.Context) (map[string]backend.Signal, error) {
	c.count(MethodGetSignals)
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]backend.Signal, len(c.fx.Signals))
	for k, v := range c.fx.Signals {
		out[k] = v
	}
	return out, nil
}

// SetConfiguration stores cfg and emits it.
func (c *Controller) SetConfiguration(ctx context.Context, cfg backend.Configuration) error {
	c.count(MethodSetConfiguration)
	c.mu.Lock()
	c.fx.Configuration = cfg
	c.mu.Unlock()
	c.configListeners.Emit(cfg)
	return nil
}

// SetPublisherPref updates a known publisher and emits it.
func (c *Controller) SetPublisherPref(ctx context.Context, publisherID string, status backend.UserEnabled) error {
	c.count(MethodSetPublisherPref)
	c.mu.Lock()
	p, ok := c.fx.Publishers[publisherID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("publisher %q: %w", publisherID, backend.ErrNotFound)
	}
	p.UserEnabledStatus = status
	c.fx.Publishers[publisherID] = p
	c.mu.Unlock()

	c.publisherListeners.Emit(backend.PublishersEvent{
		AddedOrUpdated: map[string]backend.Publisher{publisherID: p},
	})
	return nil
}

// SetChannelSubscribed adds or removes locale from the channel's
// subscriptions, creating the channel if needed.
func (c *Controller) SetChannelSubscribed(ctx context.Context, locale, channel string, subscribed bool) error {
	c.count(MethodSetChannelSubscribed)
	if channel == "" {
		return errors.New("channel name is required")
	}

	c.mu.Lock()
	ch, ok := c.fx.Channels[channel]
	if !ok {
		ch = backend.Channel{ChannelName: channel}
	}
	locales := slices.DeleteFunc(slices.Clone(ch.SubscribedLocales), func(l string) bool { return l == locale })
	if subscribed {
		locales = append(locales, locale)
	}
	ch.SubscribedLocales = locales
	c.fx.Channels[channel] = ch
	c.mu.Unlock()

	c.channelListeners.Emit(backend.ChannelsEvent{
		AddedOrUpdated: map[string]backend.Channel{channel: ch},
	})
	return nil
}

// SubscribeToNewDirectFeed adds a direct publisher whose ID is derived
// from feedURL.
func (c *Controller) SubscribeToNewDirectFeed(ctx context.Context, feedURL string) error {
	c.count(MethodSubscribeToNewDirectFeed)
	u, err := url.Parse(feedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid feed url %q", feedURL)
	}

	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(feedURL)).String()
	p := backend.Publisher{
		PublisherID:       id,
		PublisherName:     u.Hostname(),
		Type:              backend.PublisherTypeDirect,
		UserEnabledStatus: backend.UserEnabledEnabled,
		SiteURL:           u.Scheme + "://" + u.Host,
		FeedSourceURL:     feedURL,
		Locales:           []backend.LocaleInfo{},
	}

	c.mu.Lock()
	c.fx.Publishers[id] = p
	c.mu.Unlock()

	c.publisherListeners.Emit(backend.PublishersEvent{
		AddedOrUpdated: map[string]backend.Publisher{id: p},
	})
	return nil
}

// GetSuggestedPublisherIDs returns the fixture suggestions.
func (c *Controller) GetSuggestedPublisherIDs(ctx context.Context) ([]string, error) {
	c.count(MethodGetSuggestedPublisherIDs)
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.fx.SuggestedPublisherIDs), nil
}

// FindFeeds returns the fixture feeds registered for pageURL.
func (c *Controller) FindFeeds(ctx context.Context, pageURL string) ([]backend.FeedSearchResult, error) {
	c.count(MethodFindFeeds)
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.fx.DiscoverableFeeds[pageURL]), nil
}

// AddConfigurationListener delivers the current configuration immediately.
func (c *Controller) AddConfigurationListener(fn func(backend.Configuration)) func() {
	unsubscribe := c.configListeners.Add(fn)
	if fn != nil {
		c.mu.Lock()
		cfg := c.fx.Configuration
		c.mu.Unlock()
		fn(cfg)
	}
	return unsubscribe
}

// AddFeedListener registers fn for [Controller.PublishFeedHash].
func (c *Controller) AddFeedListener(fn func(string)) func() {
	return c.feedListeners.Add(fn)
}

// AddPublishersListener delivers the full publisher set immediately.
func (c *Controller) AddPublishersListener(fn func(backend.PublishersEvent)) func() {
	unsubscribe := c.publisherListeners.Add(fn)
	if fn != nil {
		c.mu.Lock()
		all := make(map[string]backend.Publisher, len(c.fx.Publishers))
		for k, v := range c.fx.Publishers {
			all[k] = v
		}
		c.mu.Unlock()
		fn(backend.PublishersEvent{AddedOrUpdated: all})
	}
	return unsubscribe
}

// AddChannelsListener delivers the full channel set immediately.
func (c *Controller) AddChannelsListener(fn func(backend.ChannelsEvent)) func() {
	unsubscribe := c.channelListeners.Add(fn)
	if fn != nil {
		c.mu.Lock()
		all := make(map[string]backend.Channel, len(c.fx.Channels))
		for k, v := range c.fx.Channels {
			all[k] = v
		}
		c.mu.Unlock()
		fn(backend.ChannelsEvent{AddedOrUpdated: all})
	}
	return unsubscribe
}

func following(p backend.Publisher) bool {
	switch p.UserEnabledStatus {
	case backend.UserEnabledEnabled:
		return true
	case backend.UserEnabledDisabled:
		return false
	}
	return p.Type == backend.PublisherTypeDirect
}

// filterItems keeps articles and heroes matching keep, and clusters that
// still hold at least one item after filtering.
func filterItems(items []backend.FeedItemV2, keep func(backend.FeedItemMetadata) bool) []backend.FeedItemV2 {
	var out []backend.FeedItemV2
	for _, item := range items {
		switch {
		case item.Article != nil:
			if keep(item.Article.Data) {
				out = append(out, item)
			}
		case item.Hero != nil:
			if keep(item.Hero.Data) {
				out = append(out, item)
			}
		case item.Cluster != nil:
			articles := filterItems(item.Cluster.Articles, keep)
			if len(articles) > 0 {
				cluster := *item.Cluster
				cluster.Articles = articles
				out = append(out, backend.FeedItemV2{Cluster: &cluster})
			}
		}
	}
	return out
}
