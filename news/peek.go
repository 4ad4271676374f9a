package news

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/store"
)

const (
	// PeekStorageKey is the storage key of the cached peek item.
	PeekStorageKey = "ntp-news-widget-item"

	// DefaultPeekMaxAge is how long a cached peek item stays usable.
	DefaultPeekMaxAge = time.Hour

	// DefaultVisibilityDelay is how long a widget waits after attaching
	// before reporting news as visible.
	DefaultVisibilityDelay = 250 * time.Millisecond

	maxTitleLength = 99
)

// PeekItem returns the first top-level article or hero, or nil.
func PeekItem(items []FeedItem) *NewsItem {
	for _, item := range items {
		if item.IsArticle() {
			peek := *item.NewsItem
			return &peek
		}
	}
	return nil
}

// FormatTitle shortens titles longer than 99 characters to their first 99
// characters followed by an ellipsis.
func FormatTitle(title string) string {
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxTitleLength]) + "…"
}

// PeekCache stores the last peek item so a widget can show something
// before the feed loads.
type PeekCache struct {
	storage Storage
	maxAge  time.Duration
	now     func() time.Time
}

// PeekCacheOption configures a [PeekCache].
type PeekCacheOption func(*PeekCache)

// WithMaxAge sets how old an entry may be and still be returned.
func WithMaxAge(d time.Duration) PeekCacheOption {
	return func(c *PeekCache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) PeekCacheOption {
	return func(c *PeekCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewPeekCache returns a cache in storage whose entries expire after
// [DefaultPeekMaxAge] unless opts say otherwise.
func NewPeekCache(storage Storage, opts ...PeekCacheOption) *PeekCache {
	c := &PeekCache{
		storage: storage,
		maxAge:  DefaultPeekMaxAge,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type peekEntry struct {
	CachedAt int64     `json:"cachedAt"`
	Data     *NewsItem `json:"data"`
}

// Store records item, which may be nil, with the current time.
func (c *PeekCache) Store(item *NewsItem) error {
	data, err := sonic.Marshal(peekEntry{CachedAt: c.now().UnixMilli(), Data: item})
	if err != nil {
		return fmt.Errorf("encode peek item: %w", err)
	}
	if err := c.storage.Set(PeekStorageKey, string(data)); err != nil {
		return fmt.Errorf("store peek item: %w", err)
	}
	return nil
}

// Load returns the cached item if it is recent and complete. The relative
// time description is never restored since it would be out of date.
func (c *PeekCache) Load() *NewsItem {
	raw, ok := c.storage.Get(PeekStorageKey)
	if !ok || raw == "" {
		return nil
	}

	var entry map[string]any
	if err := sonic.UnmarshalString(raw, &entry); err != nil || entry == nil {
		return nil
	}

	var cachedAt float64
	if err := mapstructure.WeakDecode(entry["cachedAt"], &cachedAt); err != nil {
		cachedAt = 0
	}
	cutoff := c.now().Add(-c.maxAge).UnixMilli()
	if int64(cachedAt) < cutoff {
		return nil
	}

	data, ok := entry["data"].(map[string]any)
	if !ok {
		return nil
	}
	var decoded struct {
		Title         string `mapstructure:"title"`
		CategoryName  string `mapstructure:"categoryName"`
		PublisherID   string `mapstructure:"publisherId"`
		PublisherName string `mapstructure:"publisherName"`
		URL           string `mapstructure:"url"`
		ImageURL      string `mapstructure:"imageUrl"`
	}
	if err := mapstructure.WeakDecode(data, &decoded); err != nil {
		return nil
	}

	item := &NewsItem{
		Title:         decoded.Title,
		CategoryName:  decoded.CategoryName,
		PublisherID:   decoded.PublisherID,
		PublisherName: decoded.PublisherName,
		URL:           decoded.URL,
		ImageURL:      decoded.ImageURL,
	}
	if item.Title == "" || item.URL == "" || item.CategoryName == "" ||
		item.PublisherName == "" || item.ImageURL == "" {
		return nil
	}
	return item
}

// WidgetView is what a news widget renders.
type WidgetView struct {
	Enabled bool      `json:"enabled"`
	Item    *NewsItem `json:"item"`
	Title   string    `json:"title,omitempty"`
}

// WidgetOption configures a [Widget].
type WidgetOption func(*Widget)

// WithVisibilityDelay sets how long the widget waits before calling
// OnNewsVisible. Zero or negative reports visibility immediately.
func WithVisibilityDelay(d time.Duration) WidgetOption {
	return func(w *Widget) {
		w.delay = d
	}
}

// WithWidgetLogger sets the widget's logger.
func WithWidgetLogger(logger *zap.Logger) WidgetOption {
	return func(w *Widget) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Widget is the compact news surface. It follows the feed items and the
// enabled flag, keeps the peek cache current and reports news as visible
// shortly after it is attached.
type Widget struct {
	cache   *PeekCache
	actions Actions
	logger  *zap.Logger
	delay   time.Duration

	items   *store.Projection[[]FeedItem]
	enabled *store.Projection[bool]

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewWidget attaches a widget to st. cache may be nil.
func NewWidget(st *store.Store[State], actions Actions, cache *PeekCache, opts ...WidgetOption) *Widget {
	if actions == nil {
		actions = NopActions{}
	}
	w := &Widget{
		cache:   cache,
		actions: actions,
		logger:  zap.NewNop(),
		delay:   DefaultVisibilityDelay,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.enabled = store.Select(st, func(s State) bool { return s.NewsEnabled }, nil)
	w.items = store.Select(st, func(s State) []FeedItem { return s.NewsFeedItems }, w.onItems)
	if initial := w.items.Value(); initial != nil {
		w.onItems(initial)
	}

	if w.delay <= 0 {
		actions.OnNewsVisible()
	} else {
		w.mu.Lock()
		w.timer = time.AfterFunc(w.delay, w.reportVisible)
		w.mu.Unlock()
	}
	return w
}

func (w *Widget) reportVisible() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if !closed {
		w.actions.OnNewsVisible()
	}
}

func (w *Widget) onItems(items []FeedItem) {
	if items == nil || w.cache == nil {
		return
	}
	if err := w.cache.Store(PeekItem(items)); err != nil {
		w.logger.Warn("failed to cache peek item", zap.Error(err))
	}
}

// Peek returns the peek item of the loaded feed, or the cached one while
// no feed is loaded.
func (w *Widget) Peek() *NewsItem {
	if items := w.items.Value(); items != nil {
		return PeekItem(items)
	}
	if w.cache == nil {
		return nil
	}
	return w.cache.Load()
}

// View returns the widget's current content.
func (w *Widget) View() WidgetView {
	v := WidgetView{Enabled: w.enabled.Value()}
	if !v.Enabled {
		return v
	}
	v.Item = w.Peek()
	if v.Item != nil {
		v.Title = FormatTitle(v.Item.Title)
	}
	return v
}

// Close detaches the widget. A pending visibility report is cancelled.
func (w *Widget) Close() {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.items.Close()
	w.enabled.Close()
}
