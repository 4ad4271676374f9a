package news

import (
	"time"

	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend"
)

// FeedInfo is a backend feed converted for display.
type FeedInfo struct {
	ConstructTime time.Time
	Specifier     Specifier
	Items         []FeedItem
	Error         FeedError
}

// Converter turns backend wire types into [State] values. It is safe for
// concurrent use.
type Converter struct {
	logger *zap.Logger
}

// NewConverter returns a converter that logs unrecognised values to logger.
func NewConverter(logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{logger: logger}
}

var defaultConverter = NewConverter(nil)

// ConvertFeed converts feed with a converter that discards diagnostics.
func ConvertFeed(feed *backend.FeedV2) FeedInfo {
	return defaultConverter.Feed(feed)
}

// Feed converts a complete feed response. Items are never nil.
func (c *Converter) Feed(feed *backend.FeedV2) FeedInfo {
	if feed == nil {
		return FeedInfo{Specifier: AllFeed(), Items: []FeedItem{}}
	}
	return FeedInfo{
		ConstructTime: feed.ConstructTime,
		Specifier:     c.feedType(feed.Type),
		Items:         c.items(feed.Items),
		Error:         c.feedError(feed.Error),
	}
}

func (c *Converter) feedType(t *backend.FeedV2Type) Specifier {
	switch {
	case t == nil:
		return AllFeed()
	case t.All:
		return AllFeed()
	case t.Following:
		return FollowingFeed()
	case t.Channel != nil:
		return ChannelFeed(t.Channel.Channel)
	case t.Publisher != nil:
		return PublisherFeed(t.Publisher.PublisherID)
	}
	c.logger.Warn("unrecognized feed type", zap.Any("type", t))
	return AllFeed()
}

func (c *Converter) items(in []backend.FeedItemV2) []FeedItem {
	out := make([]FeedItem, 0, len(in))
	for _, item := range in {
		if converted, ok := c.item(item); ok {
			out = append(out, converted)
		}
	}
	return out
}

func (c *Converter) item(item backend.FeedItemV2) (FeedItem, bool) {
	switch {
	case item.Article != nil:
		return FeedItem{Type: ItemArticle, NewsItem: c.metadata(item.Article.Data)}, true
	case item.Hero != nil:
		return FeedItem{Type: ItemHero, NewsItem: c.metadata(item.Hero.Data)}, true
	case item.Discover != nil:
		ids := item.Discover.PublisherIDs
		if ids == nil {
			ids = []string{}
		}
		return FeedItem{Type: ItemDiscover, PublisherIDs: ids}, true
	case item.Cluster != nil:
		clusterType := ClusterTopic
		if item.Cluster.Type == backend.ClusterTypeChannel {
			clusterType = ClusterChannel
		}
		return FeedItem{
			Type:        ItemCluster,
			ClusterType: clusterType,
			ClusterID:   item.Cluster.ID,
			Items:       c.items(item.Cluster.Articles),
		}, true
	}
	return FeedItem{}, false
}

func (c *Converter) metadata(data backend.FeedItemMetadata) *NewsItem {
	return &NewsItem{
		Title:                   data.Title,
		CategoryName:            data.CategoryName,
		PublisherID:             data.PublisherID,
		PublisherName:           data.PublisherName,
		URL:                     data.URL,
		ImageURL:                itemImage(data.Image),
		RelativeTimeDescription: data.RelativeTimeDescription,
	}
}

func itemImage(img backend.Image) string {
	if img.PaddedImageURL != "" {
		return img.PaddedImageURL
	}
	return img.ImageURL
}

func (c *Converter) feedError(e backend.FeedV2Error) FeedError {
	switch e {
	case backend.FeedV2ErrorNone:
		return FeedErrorNone
	case backend.FeedV2ErrorConnectionError:
		return ErrConnectionFailed
	case backend.FeedV2ErrorNoArticles:
		return ErrNoArticles
	case backend.FeedV2ErrorNoFeeds:
		return ErrNoFeeds
	}
	c.logger.Warn("unexpected feed error value", zap.String("error", string(e)))
	return FeedErrorNone
}

// Publisher converts a backend publisher stored under id.
func (c *Converter) Publisher(id string, p backend.Publisher) Publisher {
	locales := make([]PublisherLocale, 0, len(p.Locales))
	for _, l := range p.Locales {
		var rank *int
		if l.Rank != 0 {
			r := l.Rank
			rank = &r
		}
		locales = append(locales, PublisherLocale{Name: l.Locale, Rank: rank})
	}
	return Publisher{
		PublisherID:       id,
		PublisherName:     p.PublisherName,
		Type:              c.publisherType(p.Type),
		UserEnabledStatus: c.userEnabled(p.UserEnabledStatus),
		CategoryName:      p.CategoryName,
		SiteURL:           p.SiteURL,
		FeedSourceURL:     p.FeedSourceURL,
		CoverURL:          p.CoverURL,
		BackgroundColor:   p.BackgroundColor,
		Locales:           locales,
	}
}

// Channel converts a backend channel stored under name.
func (c *Converter) Channel(name string, ch backend.Channel) Channel {
	locales := ch.SubscribedLocales
	if locales == nil {
		locales = []string{}
	}
	return Channel{ChannelName: name, SubscribedLocales: locales}
}

func (c *Converter) publisherType(t backend.PublisherType) PublisherType {
	switch t {
	case backend.PublisherTypeCombined:
		return PublisherCombined
	case backend.PublisherTypeDirect:
		return PublisherDirect
	}
	c.logger.Warn("unexpected publisher type", zap.String("type", string(t)))
	return PublisherCombined
}

func (c *Converter) userEnabled(v backend.UserEnabled) EnabledStatus {
	switch v {
	case backend.UserEnabledDisabled:
		return StatusDisabled
	case backend.UserEnabledEnabled:
		return StatusEnabled
	case backend.UserEnabledNotModified:
		return StatusNotModified
	}
	c.logger.Warn("unexpected user enabled value", zap.String("value", string(v)))
	return StatusNotModified
}

// Signals converts backend signals.
func (c *Converter) Signals(in map[string]backend.Signal) map[string]Signal {
	out := make(map[string]Signal, len(in))
	for k, v := range in {
		out[k] = Signal{VisitWeight: v.VisitWeight}
	}
	return out
}
