package mock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t-webber/ntpnews/backend"
)

func TestDefaultFixture(t *testing.T) {
	fx := DefaultFixture()

	assert.Equal(t, "en-US", fx.Locale)
	assert.True(t, fx.Configuration.IsOptedIn)
	require.Len(t, fx.Feed.Items, 3)
	assert.NotNil(t, fx.Feed.Items[0].Hero)
	assert.NotNil(t, fx.Feed.Items[1].Cluster)
	assert.NotNil(t, fx.Feed.Items[2].Discover)
	assert.Len(t, fx.Publishers, 4)
	assert.Contains(t, fx.Channels, "Top Stories")
}

func TestParseFixture(t *testing.T) {
	data := []byte(`
locale: de-DE
configuration:
  is_opted_in: true
  show_on_ntp: false
feed:
  source_hash: abc
  construct_time: 2025-02-03T04:05:06Z
  items:
    - article:
        data:
          title: Hello
          publisher_id: pa
          url: https://example.com/a
          image:
            image_url: https://example.com/a.png
publishers:
  pa:
    publisher_name: Publisher A
    type: direct_source
    user_enabled_status: not_modified
channels:
  Sports:
    subscribed_locales: [de-DE]
`)

	fx, err := ParseFixture(data)
	require.NoError(t, err)

	assert.Equal(t, "de-DE", fx.Locale)
	assert.False(t, fx.Configuration.ShowOnNTP)
	assert.Equal(t, "abc", fx.Feed.SourceHash)
	assert.Equal(t, 2025, fx.Feed.ConstructTime.Year())
	require.Len(t, fx.Feed.Items, 1)
	assert.Equal(t, "Hello", fx.Feed.Items[0].Article.Data.Title)
	assert.Equal(t, "pa", fx.Publishers["pa"].PublisherID, "id filled from map key")
	assert.Equal(t, "Sports", fx.Channels["Sports"].ChannelName)
	assert.NotNil(t, fx.Signals)
}

func TestParseFixture_UnknownField(t *testing.T) {
	_, err := ParseFixture([]byte("locale: en\nnot_a_field: 1\n"))
	assert.Error(t, err)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("locale: fr-FR\n"), 0o644))

	fx, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, "fr-FR", fx.Locale)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestController_FeedsBySpecifier(t *testing.T) {
	c := New(DefaultFixture())
	ctx := context.Background()

	all, err := c.GetFeedV2(ctx)
	require.NoError(t, err)
	assert.True(t, all.Type.All)
	assert.Len(t, all.Items, 3)
	assert.Equal(t, "fixture-1", all.SourceHash)

	following, err := c.GetFollowingFeed(ctx)
	require.NoError(t, err)
	assert.True(t, following.Type.Following)
	assert.Equal(t, backend.FeedV2ErrorNone, following.Error)
	assert.Len(t, following.Items, 2, "hero and cluster from p1; discover dropped")

	channel, err := c.GetChannelFeed(ctx, "Top Stories")
	require.NoError(t, err)
	assert.Equal(t, "Top Stories", channel.Type.Channel.Channel)
	assert.Len(t, channel.Items, 2)

	missing, err := c.GetChannelFeed(ctx, "Nope")
	require.NoError(t, err)
	assert.Equal(t, backend.FeedV2ErrorNoArticles, missing.Error)
	assert.NotNil(t, missing.Items)

	publisher, err := c.GetPublisherFeed(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "p2", publisher.Type.Publisher.PublisherID)
	assert.Equal(t, backend.FeedV2ErrorNoArticles, publisher.Error)

	assert.Equal(t, 1, c.Calls(MethodGetFeedV2))
	assert.Equal(t, 2, c.Calls(MethodGetChannelFeed))
	assert.Equal(t, 5, c.FeedCalls())
}

func TestController_FollowingWithNoPublishers(t *testing.T) {
	fx := DefaultFixture()
	fx.Publishers = nil
	c := New(fx)

	feed, err := c.GetFollowingFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backend.FeedV2ErrorNoFeeds, feed.Error)
}

func TestController_HoldFeeds(t *testing.T) {
	c := New(DefaultFixture())
	release := c.HoldFeeds()

	done := make(chan error, 1)
	go func() {
		_, err := c.GetFeedV2(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Calls(MethodGetFeedV2) == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("feed returned while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("feed still blocked after release")
	}
}

func TestController_HoldFeedsRespectsContext(t *testing.T) {
	c := New(DefaultFixture())
	release := c.HoldFeeds()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetFeedV2(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestController_FailFeedsAndFeedError(t *testing.T) {
	c := New(DefaultFixture())
	ctx := context.Background()

	boom := errors.New("boom")
	c.FailFeeds(boom)
	_, err := c.GetFeedV2(ctx)
	assert.ErrorIs(t, err, boom)

	c.FailFeeds(nil)
	c.SetFeedError(backend.FeedV2ErrorConnectionError)
	feed, err := c.GetFeedV2(ctx)
	require.NoError(t, err)
	assert.Equal(t, backend.FeedV2ErrorConnectionError, feed.Error)
	assert.Empty(t, feed.Items)
}

func TestController_ListenersReceiveCurrentValues(t *testing.T) {
	c := New(DefaultFixture())

	var cfg backend.Configuration
	c.AddConfigurationListener(func(v backend.Configuration) { cfg = v })
	assert.True(t, cfg.IsOptedIn)

	var pubs backend.PublishersEvent
	c.AddPublishersListener(func(ev backend.PublishersEvent) { pubs = ev })
	assert.Len(t, pubs.AddedOrUpdated, 4)

	var chans backend.ChannelsEvent
	c.AddChannelsListener(func(ev backend.ChannelsEvent) { chans = ev })
	assert.Len(t, chans.AddedOrUpdated, 1)

	assert.Equal(t, 3, c.ListenerCount())
}

func TestController_MutationsEmitEvents(t *testing.T) {
	c := New(DefaultFixture())
	ctx := context.Background()

	var configs []backend.Configuration
	c.AddConfigurationListener(func(v backend.Configuration) { configs = append(configs, v) })
	var pubEvents []backend.PublishersEvent
	c.AddPublishersListener(func(ev backend.PublishersEvent) { pubEvents = append(pubEvents, ev) })
	var chanEvents []backend.ChannelsEvent
	c.AddChannelsListener(func(ev backend.ChannelsEvent) { chanEvents = append(chanEvents, ev) })
	var hashes []string
	c.AddFeedListener(func(h string) { hashes = append(hashes, h) })

	require.NoError(t, c.SetConfiguration(ctx, backend.Configuration{IsOptedIn: false}))
	require.Len(t, configs, 2)
	assert.False(t, configs[1].IsOptedIn)

	require.NoError(t, c.SetPublisherPref(ctx, "p3", backend.UserEnabledEnabled))
	require.Len(t, pubEvents, 2)
	assert.Equal(t, backend.UserEnabledEnabled, pubEvents[1].AddedOrUpdated["p3"].UserEnabledStatus)

	err := c.SetPublisherPref(ctx, "missing", backend.UserEnabledEnabled)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, c.SetChannelSubscribed(ctx, "en-US", "Top Stories", true))
	require.NoError(t, c.SetChannelSubscribed(ctx, "en-US", "Top Stories", true))
	require.Len(t, chanEvents, 3)
	assert.Equal(t, []string{"en-US"}, chanEvents[2].AddedOrUpdated["Top Stories"].SubscribedLocales)

	require.NoError(t, c.SetChannelSubscribed(ctx, "en-US", "Top Stories", false))
	assert.Empty(t, chanEvents[3].AddedOrUpdated["Top Stories"].SubscribedLocales)

	require.NoError(t, c.SubscribeToNewDirectFeed(ctx, "https://example.com/feed.xml"))
	require.Len(t, pubEvents, 3)
	for id, p := range pubEvents[2].AddedOrUpdated {
		assert.Equal(t, id, p.PublisherID)
		assert.Equal(t, backend.PublisherTypeDirect, p.Type)
		assert.Equal(t, "example.com", p.PublisherName)
	}
	assert.Error(t, c.SubscribeToNewDirectFeed(ctx, "not a url"))

	c.RemovePublisher("p4")
	require.Len(t, pubEvents, 4)
	assert.Equal(t, []string{"p4"}, pubEvents[3].Removed)

	c.PublishFeedHash("fixture-2")
	assert.Equal(t, []string{"fixture-2"}, hashes)
	feed, err := c.GetFeedV2(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fixture-2", feed.SourceHash)
}

func TestController_Lookups(t *testing.T) {
	c := New(DefaultFixture())
	ctx := context.Background()

	locale, err := c.GetLocale(ctx)
	require.NoError(t, err)
	assert.Equal(t, "en-US", locale)

	signals, err := c.GetSignals(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, signals["p2"].VisitWeight, 1e-9)

	ids, err := c.GetSuggestedPublisherIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p4"}, ids)

	found, err := c.FindFeeds(ctx, "https://brave.com/blog")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Brave Blog", found[0].FeedTitle)

	none, err := c.FindFeeds(ctx, "https://unknown.example")
	require.NoError(t, err)
	assert.Empty(t, none)
}
