package news

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend"
)

// loadFeed starts a background load of the current feed when none is in
// flight, the configuration is known, the user opted in and news is
// visible, and reports whether it started one.
func (d *Dispatcher) loadFeed() bool {
	d.mu.Lock()
	if d.closed || d.loading || d.config == nil || !d.config.IsOptedIn || !d.visible {
		d.mu.Unlock()
		return false
	}
	d.loading = true
	gen := d.generation
	d.wg.Add(1)
	d.mu.Unlock()

	d.st.Update(WithUpdateAvailable(false), WithFeedStatus(FeedLoading))
	spec := d.st.GetState().CurrentNewsFeed

	go d.runLoad(gen, spec)
	return true
}

func (d *Dispatcher) runLoad(gen uint64, spec Specifier) {
	defer d.wg.Done()

	start := time.Now()
	feed, err := d.fetchFeed(d.ctx, spec)

	d.mu.Lock()
	stale := gen != d.generation
	if err == nil && !stale {
		d.lastFeedHash = feed.SourceHash
	}
	d.mu.Unlock()

	switch {
	case d.ctx.Err() != nil:
		d.finishLoad(gen)
		d.settleIdle()
		d.report(LoadCanceled, start)
		return
	case stale:
		d.logger.Debug("discarding feed for previous specifier", zap.Any("specifier", spec))
		d.report(LoadStale, start)
	case err != nil:
		d.logger.Warn("failed to load news feed", zap.Any("specifier", spec), zap.Error(err))
		d.st.Update(
			WithUpdateAvailable(false),
			WithFeedItems([]FeedItem{}),
			WithFeedError(ErrConnectionFailed),
			WithFeedStatus(FeedFailed),
		)
		d.report(LoadError, start)
	default:
		info := d.conv.Feed(feed)
		status := FeedLoaded
		if info.Error != FeedErrorNone {
			status = FeedFailed
		}
		d.st.Update(
			WithUpdateAvailable(false),
			WithFeedItems(info.Items),
			WithFeedError(info.Error),
			WithFeedStatus(status),
		)
		if d.specs != nil {
			if err := d.specs.Save(info.Specifier); err != nil {
				d.logger.Warn("failed to persist feed specifier", zap.Error(err))
			}
		}
		if status == FeedLoaded {
			d.report(LoadLoaded, start)
		} else {
			d.report(LoadError, start)
		}
	}

	// the specifier may have changed while the result was being applied
	restarted := d.finishLoad(gen) && d.loadFeed()
	if stale && !restarted {
		d.settleIdle()
	}
}

// settleIdle moves a loading status back to idle when no load is in
// flight.
func (d *Dispatcher) settleIdle() {
	d.st.Update(func(s *State) {
		d.mu.Lock()
		busy := d.loading
		d.mu.Unlock()
		if !busy && s.NewsFeedStatus == FeedLoading {
			s.NewsFeedStatus = FeedIdle
		}
	})
}

// finishLoad clears the in-flight flag and reports whether the feed
// changed since the load with generation gen started.
func (d *Dispatcher) finishLoad(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loading = false
	return gen != d.generation
}

func (d *Dispatcher) report(outcome string, start time.Time) {
	if d.observe != nil {
		d.observe(outcome, time.Since(start))
	}
}

func (d *Dispatcher) fetchFeed(ctx context.Context, spec Specifier) (*backend.FeedV2, error) {
	var (
		feed *backend.FeedV2
		err  error
	)
	switch spec.Type {
	case SpecifierFollowing:
		feed, err = d.ctrl.GetFollowingFeed(ctx)
	case SpecifierChannel:
		feed, err = d.ctrl.GetChannelFeed(ctx, spec.Channel)
	case SpecifierPublisher:
		feed, err = d.ctrl.GetPublisherFeed(ctx, spec.Publisher)
	default:
		feed, err = d.ctrl.GetFeedV2(ctx)
	}
	if err == nil && feed == nil {
		err = errors.New("empty feed response")
	}
	return feed, err
}
