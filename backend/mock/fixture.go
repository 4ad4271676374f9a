package mock

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/t-webber/ntpnews/backend"
)

// Fixture is the data a mock [Controller] serves.
type Fixture struct {
	Locale                string                                `yaml:"locale"`
	Configuration         backend.Configuration                 `yaml:"configuration"`
	Feed                  backend.FeedV2                        `yaml:"feed"`
	Publishers            map[string]backend.Publisher          `yaml:"publishers"`
	Channels              map[string]backend.Channel            `yaml:"channels"`
	Signals               map[string]backend.Signal             `yaml:"signals"`
	SuggestedPublisherIDs []string                              `yaml:"suggested_publisher_ids"`
	DiscoverableFeeds     map[string][]backend.FeedSearchResult `yaml:"discoverable_feeds"`
}

// LoadFixture reads a YAML fixture file. Unknown fields are rejected.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture. Missing maps are initialised empty.
func ParseFixture(data []byte) (Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, fmt.Errorf("failed to parse fixture: %w", err)
	}
	fx.normalize()
	return fx, nil
}

func (fx *Fixture) normalize() {
	if fx.Publishers == nil {
		fx.Publishers = make(map[string]backend.Publisher)
	}
	for id, p := range fx.Publishers {
		if p.PublisherID == "" {
			p.PublisherID = id
			fx.Publishers[id] = p
		}
	}
	if fx.Channels == nil {
		fx.Channels = make(map[string]backend.Channel)
	}
	for name, ch := range fx.Channels {
		if ch.ChannelName == "" {
			ch.ChannelName = name
			fx.Channels[name] = ch
		}
	}
	if fx.Signals == nil {
		fx.Signals = make(map[string]backend.Signal)
	}
	if fx.DiscoverableFeeds == nil {
		fx.DiscoverableFeeds = make(map[string][]backend.FeedSearchResult)
	}
}

// DefaultFixture returns the demo data set: a hero, a channel cluster and a
// discover card, four publishers and one channel, with news enabled.
func DefaultFixture() Fixture {
	techBeat := func(title, image string) backend.FeedItemMetadata {
		return backend.FeedItemMetadata{
			Title:                   title,
			CategoryName:            "Technology",
			PublisherID:             "p1",
			PublisherName:           "Tech Beat",
			URL:                     "https://brave.com",
			Image:                   backend.Image{ImageURL: image},
			RelativeTimeDescription: "2 hours ago",
		}
	}

	const shortTitle = "Why I chose Brave as my Chrome browser replacement"
	longTitle := shortTitle
	for i := 0; i < 4; i++ {
		longTitle += " " + shortTitle
	}

	publisher := func(id, name string, typ backend.PublisherType, status backend.UserEnabled, rank int) backend.Publisher {
		return backend.Publisher{
			PublisherID:       id,
			PublisherName:     name,
			Type:              typ,
			UserEnabledStatus: status,
			Locales:           []backend.LocaleInfo{{Locale: "en-US", Rank: rank}},
		}
	}

	fx := Fixture{
		Locale: "en-US",
		Configuration: backend.Configuration{
			IsOptedIn: true,
			ShowOnNTP: true,
		},
		Feed: backend.FeedV2{
			ConstructTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
			SourceHash:    "fixture-1",
			Type:          &backend.FeedV2Type{All: true},
			Items: []backend.FeedItemV2{
				{Hero: &backend.Hero{Data: techBeat(longTitle, "https://brave.com/static-assets/images/hero.png")}},
				{Cluster: &backend.Cluster{
					Type: backend.ClusterTypeChannel,
					ID:   "Top Stories",
					Articles: []backend.FeedItemV2{
						{Article: &backend.Article{Data: techBeat(shortTitle, "https://brave.com/static-assets/images/article.png")}},
						{Hero: &backend.Hero{Data: techBeat(shortTitle, "")}},
					},
				}},
				{Discover: &backend.Discover{PublisherIDs: []string{"p1", "p2"}}},
			},
		},
		Publishers: map[string]backend.Publisher{
			"p1": publisher("p1", "Publisher One", backend.PublisherTypeCombined, backend.UserEnabledEnabled, 1),
			"p2": publisher("p2", "Publisher Two", backend.PublisherTypeDirect, backend.UserEnabledNotModified, 2),
			"p3": publisher("p3", "Publisher Three", backend.PublisherTypeCombined, backend.UserEnabledNotModified, 2),
			"p4": publisher("p4", "Publisher Four", backend.PublisherTypeCombined, backend.UserEnabledNotModified, 2),
		},
		Channels: map[string]backend.Channel{
			"Top Stories": {ChannelName: "Top Stories", SubscribedLocales: []string{}},
		},
		Signals: map[string]backend.Signal{
			"p1": {VisitWeight: 1},
			"p2": {VisitWeight: 0.5},
		},
		SuggestedPublisherIDs: []string{"p3", "p4"},
		DiscoverableFeeds: map[string][]backend.FeedSearchResult{
			"https://brave.com/blog": {
				{FeedURL: "https://brave.com/blog/index.xml", FeedTitle: "Brave Blog"},
			},
		},
	}
	fx.normalize()
	return fx
}
