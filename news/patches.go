package news

import "github.com/t-webber/ntpnews/store"

// Patch is a partial update of [State].
type Patch = store.Patch[State]

// WithShowNewsWidget sets whether the news widget is shown.
func WithShowNewsWidget(v bool) Patch {
	return func(s *State) { s.ShowNewsWidget = v }
}

// WithNewsEnabled sets whether the user has opted in to news.
func WithNewsEnabled(v bool) Patch {
	return func(s *State) { s.NewsEnabled = v }
}

// WithCurrentNewsFeed sets the selected feed.
func WithCurrentNewsFeed(v Specifier) Patch {
	return func(s *State) { s.CurrentNewsFeed = v }
}

// WithFeedItems sets the feed items. nil means not loaded.
func WithFeedItems(items []FeedItem) Patch {
	return func(s *State) { s.NewsFeedItems = items }
}

// WithPublishers replaces the publisher map.
func WithPublishers(v map[string]Publisher) Patch {
	return func(s *State) { s.NewsPublishers = v }
}

// WithUpdateAvailable sets whether newer content can be loaded.
func WithUpdateAvailable(v bool) Patch {
	return func(s *State) { s.NewsUpdateAvailable = v }
}

// WithSignals replaces the signal map.
func WithSignals(v map[string]Signal) Patch {
	return func(s *State) { s.NewsSignals = v }
}

// WithChannels replaces the channel map.
func WithChannels(v map[string]Channel) Patch {
	return func(s *State) { s.NewsChannels = v }
}

// WithFeedError sets the error of the last load.
func WithFeedError(v FeedError) Patch {
	return func(s *State) { s.NewsFeedError = v }
}

// WithLocale sets the news locale.
func WithLocale(v string) Patch {
	return func(s *State) { s.NewsLocale = v }
}

// WithFeedStatus sets the loader status.
func WithFeedStatus(v FeedStatus) Patch {
	return func(s *State) { s.NewsFeedStatus = v }
}
