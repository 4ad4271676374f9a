package remote

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend"
)

const (
	probeConfiguration = "configuration"
	probeFeedHash      = "feed_hash"
	probePublishers    = "publishers"
	probeChannels      = "channels"
)

func (c *Controller) fetchConfiguration(ctx context.Context) (backend.Configuration, error) {
	var cfg backend.Configuration
	err := c.call(ctx, probeConfiguration, http.MethodGet, "/v1/configuration", func(r *resty.Request) {
		r.SetResult(&cfg)
	})
	return cfg, err
}

func (c *Controller) fetchFeedHash(ctx context.Context) (string, error) {
	var out struct {
		Hash string `json:"hash"`
	}
	err := c.call(ctx, probeFeedHash, http.MethodGet, "/v1/feed/hash", func(r *resty.Request) {
		r.SetResult(&out)
	})
	return out.Hash, err
}

func (c *Controller) fetchPublishers(ctx context.Context) (map[string]backend.Publisher, error) {
	publishers := map[string]backend.Publisher{}
	err := c.call(ctx, probePublishers, http.MethodGet, "/v1/publishers", func(r *resty.Request) {
		r.SetResult(&publishers)
	})
	if err != nil {
		return nil, err
	}
	for id, p := range publishers {
		if p.PublisherID == "" {
			p.PublisherID = id
			publishers[id] = p
		}
	}
	return publishers, nil
}

func (c *Controller) fetchChannels(ctx context.Context) (map[string]backend.Channel, error) {
	channels := map[string]backend.Channel{}
	err := c.call(ctx, probeChannels, http.MethodGet, "/v1/channels", func(r *resty.Request) {
		r.SetResult(&channels)
	})
	if err != nil {
		return nil, err
	}
	for name, ch := range channels {
		if ch.ChannelName == "" {
			ch.ChannelName = name
			channels[name] = ch
		}
	}
	return channels, nil
}

func (c *Controller) refresh(ctx context.Context, probe string) error {
	var (
		value any
		err   error
	)
	switch probe {
	case probeConfiguration:
		value, err = c.fetchConfiguration(ctx)
	case probeFeedHash:
		value, err = c.fetchFeedHash(ctx)
	case probePublishers:
		value, err = c.fetchPublishers(ctx)
	case probeChannels:
		value, err = c.fetchChannels(ctx)
	}
	if err != nil {
		return err
	}
	c.apply(probe, value)
	return nil
}

// refreshAfterWrite re-reads what a successful mutation changed. Failure
// is only logged; the next poll catches up.
func (c *Controller) refreshAfterWrite(ctx context.Context, probe string) {
	if err := c.refresh(ctx, probe); err != nil {
		c.logger.Warn("refresh after write failed", zap.String("probe", probe), zap.Error(err))
	}
}

// apply records a polled value and emits the difference from the previous
// one. The first feed hash is a baseline and emits nothing.
func (c *Controller) apply(probe string, value any) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	switch v := value.(type) {
	case backend.Configuration:
		c.mu.Lock()
		changed := c.config == nil || *c.config != v
		c.config = &v
		c.mu.Unlock()
		if changed {
			c.configListeners.Emit(v)
		}

	case string:
		c.mu.Lock()
		prev := c.feedHash
		c.feedHash = v
		c.mu.Unlock()
		if prev != "" && prev != v {
			c.logger.Debug("feed hash changed", zap.String("hash", v))
			c.feedListeners.Emit(v)
		}

	case map[string]backend.Publisher:
		c.mu.Lock()
		ev := backend.PublishersEvent{AddedOrUpdated: map[string]backend.Publisher{}}
		first := c.publishers == nil
		for id, p := range v {
			if old, ok := c.publishers[id]; !ok || !equalPublisher(old, p) {
				ev.AddedOrUpdated[id] = p
			}
		}
		for id := range c.publishers {
			if _, ok := v[id]; !ok {
				ev.Removed = append(ev.Removed, id)
			}
		}
		slices.Sort(ev.Removed)
		c.publishers = v
		c.mu.Unlock()
		if first || len(ev.AddedOrUpdated) > 0 || len(ev.Removed) > 0 {
			c.publisherListeners.Emit(ev)
		}

	case map[string]backend.Channel:
		c.mu.Lock()
		ev := backend.ChannelsEvent{AddedOrUpdated: map[string]backend.Channel{}}
		first := c.channels == nil
		for name, ch := range v {
			if old, ok := c.channels[name]; !ok || !equalChannel(old, ch) {
				ev.AddedOrUpdated[name] = ch
			}
		}
		for name := range c.channels {
			if _, ok := v[name]; !ok {
				ev.Removed = append(ev.Removed, name)
			}
		}
		slices.Sort(ev.Removed)
		c.channels = v
		c.mu.Unlock()
		if first || len(ev.AddedOrUpdated) > 0 || len(ev.Removed) > 0 {
			c.channelListeners.Emit(ev)
		}

	default:
		c.logger.Warn("unexpected probe value", zap.String("probe", probe), zap.Any("value", value))
	}
}
