// Package discovery finds news feeds published by a web page.
//
// [Finder.Find] fetches a URL. A response that already is a feed (RSS,
// Atom or other XML) is returned as the only result. An HTML page is
// searched for <link rel="alternate"> elements advertising feeds.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20
	userAgent        = "ntpnews-discovery/1.0"
)

// ErrNotFeed is returned when a page neither is a feed nor links to one.
var ErrNotFeed = errors.New("no feed found")

// feedLinkTypes lists the link types accepted as feed alternates.
var feedLinkTypes = map[string]bool{
	"application/rss+xml":   true,
	"application/atom+xml":  true,
	"application/feed+json": true,
	"application/json":      true,
	"application/xml":       true,
	"text/xml":              true,
}

// Feed is one discovered feed.
type Feed struct {
	URL   string
	Title string
}

// Option configures a [Finder].
type Option func(*Finder)

// WithClient replaces the HTTP client.
func WithClient(c *resty.Client) Option {
	return func(f *Finder) {
		if c != nil {
			f.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

// Finder discovers feeds. It is safe for concurrent use.
type Finder struct {
	client *resty.Client
	logger *zap.Logger
}

// New creates a Finder with a default resty client.
func New(opts ...Option) *Finder {
	f := &Finder{
		client: resty.New().
			SetTimeout(defaultTimeout).
			SetHeader("User-Agent", userAgent).
			SetResponseBodyLimit(maxResponseBytes),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find fetches pageURL and returns the feeds it is or advertises.
// Results are deduplicated by URL and keep document order.
func (f *Finder) Find(ctx context.Context, pageURL string) ([]Feed, error) {
	base, err := url.Parse(pageURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("invalid page url %q", pageURL)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html, application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8").
		Get(base.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", pageURL, resp.Status())
	}

	// redirects change the base for relative links
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		base = raw.Request.URL
	}

	body := resp.Body()
	mtype := mimetype.Detect(body)
	f.logger.Debug("fetched page",
		zap.String("url", base.String()),
		zap.String("detected", mtype.String()),
		zap.Int("bytes", len(body)),
	)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	if isFeed(mtype) {
		return []Feed{{URL: base.String(), Title: firstTitle(doc, base.String())}}, nil
	}
	if !mtype.Is("text/html") {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFeed, pageURL, mtype.String())
	}

	feeds := linkedFeeds(doc, base)
	if len(feeds) == 0 {
		return nil, fmt.Errorf("%w at %s", ErrNotFeed, pageURL)
	}
	return feeds, nil
}

// isFeed reports whether the detected type is XML or one of its children.
func isFeed(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/xml") || m.Is("application/rss+xml") || m.Is("application/atom+xml") {
			return true
		}
	}
	return false
}

func firstTitle(doc *goquery.Document, fallback string) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return fallback
	}
	return title
}

func linkedFeeds(doc *goquery.Document, base *url.URL) []Feed {
	pageTitle := strings.TrimSpace(doc.Find("head title").First().Text())
	seen := make(map[string]bool)
	var feeds []Feed

	doc.Find(`link[rel~="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		kind := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if i := strings.IndexByte(kind, ';'); i >= 0 {
			kind = strings.TrimSpace(kind[:i])
		}
		if !feedLinkTypes[kind] {
			return
		}
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		key := abs.String()
		if seen[key] {
			return
		}
		seen[key] = true

		title := strings.TrimSpace(s.AttrOr("title", ""))
		if title == "" {
			title = pageTitle
		}
		if title == "" {
			title = key
		}
		feeds = append(feeds, Feed{URL: key, Title: title})
	})
	return feeds
}
