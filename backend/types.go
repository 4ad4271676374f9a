// Package backend defines the contract between the news state layer and a
// news service: the [Controller] interface and the wire types it exchanges.
//
// Implementations live elsewhere: backend/mock provides an in-memory
// controller seeded from fixtures, and internal/remote talks to a news
// service over HTTP. Wire types carry both JSON and YAML tags so the same
// values can be decoded from REST responses and from fixture files.
package backend

import "time"

// PublisherType distinguishes curated publishers from user-added feeds.
type PublisherType string

const (
	PublisherTypeCombined PublisherType = "combined_source"
	PublisherTypeDirect   PublisherType = "direct_source"
)

// UserEnabled is the user's explicit preference for a publisher.
type UserEnabled string

const (
	UserEnabledNotModified UserEnabled = "not_modified"
	UserEnabledEnabled     UserEnabled = "enabled"
	UserEnabledDisabled    UserEnabled = "disabled"
)

// ClusterType is the grouping used by a cluster feed item.
type ClusterType string

const (
	ClusterTypeChannel ClusterType = "channel"
	ClusterTypeTopic   ClusterType = "topic"
)

// FeedV2Error is the failure reported inside an otherwise successful feed
// response. The zero value means no error.
type FeedV2Error string

const (
	FeedV2ErrorNone            FeedV2Error = ""
	FeedV2ErrorConnectionError FeedV2Error = "connection_error"
	FeedV2ErrorNoArticles      FeedV2Error = "no_articles"
	FeedV2ErrorNoFeeds         FeedV2Error = "no_feeds"
)

// Configuration holds the user's news settings as owned by the backend.
type Configuration struct {
	IsOptedIn            bool `json:"isOptedIn" yaml:"is_opted_in"`
	ShowOnNTP            bool `json:"showOnNTP" yaml:"show_on_ntp"`
	OpenArticlesInNewTab bool `json:"openArticlesInNewTab" yaml:"open_articles_in_new_tab"`
}

// LocaleInfo describes a publisher's presence in one locale. Rank 0 means
// unranked.
type LocaleInfo struct {
	Locale   string   `json:"locale" yaml:"locale"`
	Rank     int      `json:"rank,omitempty" yaml:"rank,omitempty"`
	Channels []string `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// Publisher is a news source known to the backend.
type Publisher struct {
	PublisherID       string        `json:"publisherId" yaml:"publisher_id"`
	PublisherName     string        `json:"publisherName" yaml:"publisher_name"`
	Type              PublisherType `json:"type" yaml:"type"`
	UserEnabledStatus UserEnabled   `json:"userEnabledStatus" yaml:"user_enabled_status"`
	CategoryName      string        `json:"categoryName" yaml:"category_name"`
	SiteURL           string        `json:"siteUrl" yaml:"site_url"`
	FeedSourceURL     string        `json:"feedSourceUrl" yaml:"feed_source_url"`
	CoverURL          string        `json:"coverUrl,omitempty" yaml:"cover_url,omitempty"`
	BackgroundColor   string        `json:"backgroundColor,omitempty" yaml:"background_color,omitempty"`
	Locales           []LocaleInfo  `json:"locales" yaml:"locales"`
}

// Channel is a topic channel and the locales the user subscribed to it in.
type Channel struct {
	ChannelName       string   `json:"channelName" yaml:"channel_name"`
	SubscribedLocales []string `json:"subscribedLocales" yaml:"subscribed_locales"`
}

// PublishersEvent is an incremental change to the publisher set.
type PublishersEvent struct {
	AddedOrUpdated map[string]Publisher `json:"addedOrUpdated"`
	Removed        []string             `json:"removed"`
}

// ChannelsEvent is an incremental change to the channel set.
type ChannelsEvent struct {
	AddedOrUpdated map[string]Channel `json:"addedOrUpdated"`
	Removed        []string           `json:"removed"`
}

// Signal is the backend's engagement signal for a publisher or channel.
type Signal struct {
	Blocked     bool    `json:"blocked,omitempty" yaml:"blocked,omitempty"`
	VisitWeight float64 `json:"visitWeight" yaml:"visit_weight"`
	ShownCount  int     `json:"shownCount,omitempty" yaml:"shown_count,omitempty"`
}

// Image holds the image variants of a feed item. Either may be empty.
type Image struct {
	PaddedImageURL string `json:"paddedImageUrl,omitempty" yaml:"padded_image_url,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
}

// FeedItemMetadata is the content of an article or hero item.
type FeedItemMetadata struct {
	Title                   string `json:"title" yaml:"title"`
	CategoryName            string `json:"categoryName" yaml:"category_name"`
	PublisherID             string `json:"publisherId" yaml:"publisher_id"`
	PublisherName           string `json:"publisherName" yaml:"publisher_name"`
	URL                     string `json:"url" yaml:"url"`
	Image                   Image  `json:"image" yaml:"image"`
	RelativeTimeDescription string `json:"relativeTimeDescription" yaml:"relative_time_description"`
}

// Article is a regular feed card.
type Article struct {
	Data FeedItemMetadata `json:"data" yaml:"data"`
}

// Hero is a large feed card.
type Hero struct {
	Data FeedItemMetadata `json:"data" yaml:"data"`
}

// Discover suggests publishers to follow.
type Discover struct {
	PublisherIDs []string `json:"publisherIds" yaml:"publisher_ids"`
}

// Cluster groups related items under a channel or topic.
type Cluster struct {
	Type     ClusterType  `json:"type" yaml:"type"`
	ID       string       `json:"id" yaml:"id"`
	Articles []FeedItemV2 `json:"articles" yaml:"articles"`
}

// FeedItemV2 is a union: exactly one field is expected to be set. Items with
// no field set are unknown to this client.
type FeedItemV2 struct {
	Article  *Article  `json:"article,omitempty" yaml:"article,omitempty"`
	Hero     *Hero     `json:"hero,omitempty" yaml:"hero,omitempty"`
	Discover *Discover `json:"discover,omitempty" yaml:"discover,omitempty"`
	Cluster  *Cluster  `json:"cluster,omitempty" yaml:"cluster,omitempty"`
}

// ChannelFeedType selects a single channel's feed.
type ChannelFeedType struct {
	Channel string `json:"channel" yaml:"channel"`
}

// PublisherFeedType selects a single publisher's feed.
type PublisherFeedType struct {
	PublisherID string `json:"publisherId" yaml:"publisher_id"`
}

// FeedV2Type is the union describing which feed a response belongs to.
type FeedV2Type struct {
	All       bool               `json:"all,omitempty" yaml:"all,omitempty"`
	Following bool               `json:"following,omitempty" yaml:"following,omitempty"`
	Channel   *ChannelFeedType   `json:"channel,omitempty" yaml:"channel,omitempty"`
	Publisher *PublisherFeedType `json:"publisher,omitempty" yaml:"publisher,omitempty"`
}

// FeedV2 is a complete feed response.
type FeedV2 struct {
	ConstructTime time.Time    `json:"constructTime" yaml:"construct_time"`
	SourceHash    string       `json:"sourceHash" yaml:"source_hash"`
	Type          *FeedV2Type  `json:"type,omitempty" yaml:"type,omitempty"`
	Items         []FeedItemV2 `json:"items" yaml:"items"`
	Error         FeedV2Error  `json:"error,omitempty" yaml:"error,omitempty"`
}

// FeedSearchResult is a feed discovered on a web page.
type FeedSearchResult struct {
	FeedURL   string `json:"feedUrl" yaml:"feed_url"`
	FeedTitle string `json:"feedTitle" yaml:"feed_title"`
}
