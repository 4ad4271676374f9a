package news

import "context"

// FindFeedResult is a feed found on a web page.
type FindFeedResult struct {
	FeedURL   string `json:"feedUrl"`
	FeedTitle string `json:"feedTitle"`
}

// Actions are the operations a news UI can invoke.
//
// Methods that only start work (UpdateNewsFeed, SetCurrentNewsFeed,
// OnNewsVisible) return immediately; their effects arrive through the
// store. Methods returning an error report backend failures to the caller,
// who decides whether to surface or log them.
type Actions interface {
	SetShowNewsWidget(ctx context.Context, show bool) error
	SetNewsEnabled(ctx context.Context, enabled bool) error
	SetNewsPublisherEnabled(ctx context.Context, publisherID string, enabled bool) error
	SetNewsChannelEnabled(ctx context.Context, channel string, enabled bool) error
	SubscribeToDirectNewsFeed(ctx context.Context, feedURL string) error
	GetSuggestedNewsPublishers(ctx context.Context) ([]string, error)
	UpdateNewsFeed()
	SetCurrentNewsFeed(spec Specifier)
	OnNewsVisible()
	FindNewsFeeds(ctx context.Context, pageURL string) ([]FindFeedResult, error)
}

// NopActions does nothing. Queries return empty results.
type NopActions struct{}

var _ Actions = NopActions{}

func (NopActions) SetShowNewsWidget(context.Context, bool) error               { return nil }
func (NopActions) SetNewsEnabled(context.Context, bool) error                  { return nil }
func (NopActions) SetNewsPublisherEnabled(context.Context, string, bool) error { return nil }
func (NopActions) SetNewsChannelEnabled(context.Context, string, bool) error   { return nil }
func (NopActions) SubscribeToDirectNewsFeed(context.Context, string) error     { return nil }
func (NopActions) UpdateNewsFeed()                                             {}
func (NopActions) SetCurrentNewsFeed(Specifier)                                {}
func (NopActions) OnNewsVisible()                                              {}

func (NopActions) GetSuggestedNewsPublishers(context.Context) ([]string, error) {
	return []string{}, nil
}

func (NopActions) FindNewsFeeds(context.Context, string) ([]FindFeedResult, error) {
	return []FindFeedResult{}, nil
}
