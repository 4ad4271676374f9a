package news

import (
	"bytes"
	"net/url"

	"github.com/bytedance/sonic"
)

// NewsItem is the displayable content of an article or hero card.
type NewsItem struct {
	Title                   string `json:"title"`
	CategoryName            string `json:"categoryName"`
	PublisherID             string `json:"publisherId"`
	PublisherName           string `json:"publisherName"`
	URL                     string `json:"url"`
	ImageURL                string `json:"imageUrl"`
	RelativeTimeDescription string `json:"relativeTimeDescription"`
}

// FeedItemType discriminates [FeedItem].
type FeedItemType string

const (
	ItemArticle  FeedItemType = "article"
	ItemHero     FeedItemType = "hero"
	ItemDiscover FeedItemType = "discover"
	ItemCluster  FeedItemType = "cluster"
)

// ClusterType is the grouping of a cluster item.
type ClusterType string

const (
	ClusterChannel ClusterType = "channel"
	ClusterTopic   ClusterType = "topic"
)

// FeedItem is one entry of the news feed. Which fields are meaningful
// depends on Type:
//   - article, hero: the embedded NewsItem (never nil)
//   - discover: PublisherIDs
//   - cluster: ClusterType, ClusterID and Items
type FeedItem struct {
	Type FeedItemType `json:"type"`
	*NewsItem
	PublisherIDs []string    `json:"publisherIds,omitempty"`
	ClusterType  ClusterType `json:"clusterType,omitempty"`
	ClusterID    string      `json:"clusterId,omitempty"`
	Items        []FeedItem  `json:"items,omitempty"`
}

// IsArticle reports whether the item carries a NewsItem.
func (f FeedItem) IsArticle() bool {
	return (f.Type == ItemArticle || f.Type == ItemHero) && f.NewsItem != nil
}

// SpecifierType discriminates [Specifier].
type SpecifierType string

const (
	SpecifierAll       SpecifierType = "all"
	SpecifierFollowing SpecifierType = "following"
	SpecifierPublisher SpecifierType = "publisher"
	SpecifierChannel   SpecifierType = "channel"
)

// Specifier selects which feed is shown.
type Specifier struct {
	Type      SpecifierType `json:"type"`
	Publisher string        `json:"publisher,omitempty"`
	Channel   string        `json:"channel,omitempty"`
}

// AllFeed selects the combined feed of every enabled source.
func AllFeed() Specifier { return Specifier{Type: SpecifierAll} }

// FollowingFeed selects articles from followed publishers and channels.
func FollowingFeed() Specifier { return Specifier{Type: SpecifierFollowing} }

// ChannelFeed selects the feed of a single channel.
func ChannelFeed(channel string) Specifier {
	return Specifier{Type: SpecifierChannel, Channel: channel}
}

// PublisherFeed selects the feed of a single publisher.
func PublisherFeed(publisherID string) Specifier {
	return Specifier{Type: SpecifierPublisher, Publisher: publisherID}
}

// SpecifiersEqual compares specifiers by type and the field that type uses.
func SpecifiersEqual(a, b Specifier) bool {
	switch a.Type {
	case SpecifierAll, SpecifierFollowing:
		return a.Type == b.Type
	case SpecifierChannel:
		return b.Type == SpecifierChannel && a.Channel == b.Channel
	case SpecifierPublisher:
		return b.Type == SpecifierPublisher && a.Publisher == b.Publisher
	}
	return false
}

// PublisherType mirrors the backend's publisher kind.
type PublisherType string

const (
	PublisherCombined PublisherType = "combined"
	PublisherDirect   PublisherType = "direct"
)

// EnabledStatus is the user's explicit choice for a publisher.
type EnabledStatus string

const (
	StatusNotModified EnabledStatus = "not-modified"
	StatusEnabled     EnabledStatus = "enabled"
	StatusDisabled    EnabledStatus = "disabled"
)

// PublisherLocale is a publisher's rank in one locale. Rank is nil when
// the publisher is unranked.
type PublisherLocale struct {
	Name string `json:"name"`
	Rank *int   `json:"rank"`
}

// Publisher is a news source as presented to UIs.
type Publisher struct {
	PublisherID       string            `json:"publisherId"`
	PublisherName     string            `json:"publisherName"`
	Type              PublisherType     `json:"type"`
	UserEnabledStatus EnabledStatus     `json:"userEnabledStatus"`
	CategoryName      string            `json:"categoryName"`
	SiteURL           string            `json:"siteUrl"`
	FeedSourceURL     string            `json:"feedSourceUrl"`
	CoverURL          string            `json:"coverUrl"`
	BackgroundColor   string            `json:"backgroundColor"`
	Locales           []PublisherLocale `json:"locales"`
}

// Channel is a topic channel and the locales it is subscribed in.
type Channel struct {
	ChannelName       string   `json:"channelName"`
	SubscribedLocales []string `json:"subscribedLocales"`
}

// Signal is per-source engagement data.
type Signal struct {
	VisitWeight float64 `json:"visitWeight"`
}

// FeedError describes why a feed has no items. The zero value means no
// error and is encoded as JSON null.
type FeedError string

const (
	FeedErrorNone       FeedError = ""
	ErrNoArticles       FeedError = "no-articles"
	ErrNoFeeds          FeedError = "no-feeds"
	ErrConnectionFailed FeedError = "connection-error"
)

// MarshalJSON encodes [FeedErrorNone] as null and other errors as strings.
func (e FeedError) MarshalJSON() ([]byte, error) {
	if e == FeedErrorNone {
		return []byte("null"), nil
	}
	return sonic.Marshal(string(e))
}

// UnmarshalJSON accepts null or a string.
func (e *FeedError) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*e = FeedErrorNone
		return nil
	}
	var s string
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	*e = FeedError(s)
	return nil
}

// FeedStatus is the state of the feed loader.
type FeedStatus string

const (
	FeedIdle    FeedStatus = "idle"
	FeedLoading FeedStatus = "loading"
	FeedLoaded  FeedStatus = "loaded"
	FeedFailed  FeedStatus = "error"
)

// State is everything a news UI renders from.
//
// NewsFeedItems is nil until a feed has been loaded and is reset to nil
// while a new load is pending. Maps are replaced, never mutated, so
// projections can detect changes by identity.
type State struct {
	ShowNewsWidget      bool                 `json:"showNewsWidget"`
	NewsEnabled         bool                 `json:"newsEnabled"`
	CurrentNewsFeed     Specifier            `json:"currentNewsFeed"`
	NewsFeedItems       []FeedItem           `json:"newsFeedItems"`
	NewsPublishers      map[string]Publisher `json:"newsPublishers"`
	NewsUpdateAvailable bool                 `json:"newsUpdateAvailable"`
	NewsSignals         map[string]Signal    `json:"newsSignals"`
	NewsChannels        map[string]Channel   `json:"newsChannels"`
	NewsFeedError       FeedError            `json:"newsFeedError"`
	NewsLocale          string               `json:"newsLocale"`
	NewsFeedStatus      FeedStatus           `json:"newsFeedStatus"`
}

// DefaultState returns the state before anything is known from the backend.
func DefaultState() State {
	return State{
		CurrentNewsFeed: AllFeed(),
		NewsPublishers:  map[string]Publisher{},
		NewsSignals:     map[string]Signal{},
		NewsChannels:    map[string]Channel{},
		NewsFeedStatus:  FeedIdle,
	}
}

// PublisherName returns the item's publisher name, or the host of its URL
// when the name is empty.
func PublisherName(item NewsItem) string {
	if item.PublisherName != "" {
		return item.PublisherName
	}
	u, err := url.Parse(item.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ChannelEnabled reports whether the channel is subscribed in any locale.
func ChannelEnabled(ch Channel) bool {
	return len(ch.SubscribedLocales) > 0
}

// PublisherEnabled reports whether the user follows the publisher. Without
// an explicit choice only direct sources are followed.
func PublisherEnabled(p Publisher) bool {
	switch p.UserEnabledStatus {
	case StatusEnabled:
		return true
	case StatusDisabled:
		return false
	}
	return p.Type == PublisherDirect
}
