package backend

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a publisher or channel is unknown.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when the news service cannot be reached.
	ErrUnavailable = errors.New("news service unavailable")
)

// Controller is the news service as seen by the state layer.
//
// Request/response methods take a context and may block. Listener methods
// register a callback and return a function that removes it; calling the
// returned function more than once has no further effect. Implementations
// may invoke a new listener synchronously with the current value before
// the Add method returns, so callers must be ready to receive events while
// still registering.
type Controller interface {
	GetLocale(ctx context.Context) (string, error)
	GetFeedV2(ctx context.Context) (*FeedV2, error)
	GetFollowingFeed(ctx context.Context) (*FeedV2, error)
	GetChannelFeed(ctx context.Context, channel string) (*FeedV2, error)
	GetPublisherFeed(ctx context.Context, publisherID string) (*FeedV2, error)
	GetSignals(ctx context.Context) (map[string]Signal, error)

	SetConfiguration(ctx context.Context, cfg Configuration) error
	SetPublisherPref(ctx context.Context, publisherID string, status UserEnabled) error
	SetChannelSubscribed(ctx context.Context, locale, channel string, subscribed bool) error
	SubscribeToNewDirectFeed(ctx context.Context, feedURL string) error
	GetSuggestedPublisherIDs(ctx context.Context) ([]string, error)
	FindFeeds(ctx context.Context, pageURL string) ([]FeedSearchResult, error)

	AddConfigurationListener(fn func(Configuration)) (unsubscribe func())
	AddFeedListener(fn func(feedHash string)) (unsubscribe func())
	AddPublishersListener(fn func(PublishersEvent)) (unsubscribe func())
	AddChannelsListener(fn func(ChannelsEvent)) (unsubscribe func())
}

// Lifecycle is implemented by controllers that own background work.
type Lifecycle interface {
	Start(ctx context.Context) error
	Close() error
}
