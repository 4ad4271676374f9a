package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/t-webber/ntpnews/news"
)

var (
	// errUnknownAction is returned for action names with no handler.
	errUnknownAction = errors.New("unknown action")

	// errBadArgs is returned when action arguments cannot be decoded or are
	// incomplete.
	errBadArgs = errors.New("invalid arguments")
)

// actionFunc runs one action with raw JSON arguments.
type actionFunc func(ctx context.Context, a news.Actions, args []byte) (any, error)

// decodeArgs unmarshals args into v. Empty args decode as {}.
func decodeArgs(args []byte, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", errBadArgs, err)
	}
	return nil
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", errBadArgs, field)
	}
	return nil
}

// requiredBool rejects a boolean argument that was left out.
func requiredBool(field string, value *bool) error {
	if value == nil {
		return fmt.Errorf("%w: %s is required", errBadArgs, field)
	}
	return nil
}

// done is the result of actions that return nothing.
type done struct {
	OK bool `json:"ok"`
}

var actionTable = map[string]actionFunc{
	"setShowNewsWidget": func(ctx context.Context, a news.Actions, args []byte) (any, error) {
		var in struct {
			Show *bool `json:"show"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := requiredBool("show", in.Show); err != nil {
			return nil, err
		}
		return done{true}, a.SetShowNewsWidget(ctx, *in.Show)
	},
	"setNewsEnabled": func(ctx context.Context, a news.Actions, args []byte) (any, error) {
		var in struct {
			Enabled *bool `json:"enabled"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := requiredBool("enabled", in.Enabled); err != nil {
			return nil, err
		}
		return done{true}, a.SetNewsEnabled(ctx, *in.Enabled)
	},
	"setNewsPublisherEnabled": func(ctx context.Context, a news.Actions, args []byte) (any, error) {
		var in struct {
			PublisherID string `json:"publisherId"`
			Enabled     *bool  `json:"enabled"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("publisherId", in.PublisherID); err != nil {
			return nil, err
		}
		if err := requiredBool("enabled", in.Enabled); err != nil {
			return nil, err
		}
		return done{true}, a.SetNewsPublisherEnabled(ctx, in.PublisherID, *in.Enabled)
	},
	"setNewsChannelEnabled": func(ctx context.Context, a news.Actions, args []byte) (any, error) {
		var in struct {
			ChannelName string `json:"channelName"`
			Enabled     *bool  `json:"enabled"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("channelName", in.ChannelName); err != nil {
			return nil, err
		}
		if err := requiredBool("enabled", in.Enabled); err != nil {
			return nil, err
		}
		return done{true}, a.SetNewsChannelEnabled(ctx, in.ChannelName, *in.Enabled)
	},
	"subscribeToDirectNewsFeed": func(ctx context.Context, a news.Actions, args []byte) (any, error) {
		var in struct {
			FeedURL string `json:"feedUrl"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("feedUrl", in.FeedURL); err != nil {
			return nil, err
		}
		return done{true}, a.SubscribeToDirectNewsFeed(ctx, in.FeedURL)
	},
	"getSuggestedNewsPublishers": func(ctx context.Context, a news.Actions, _ []byte) (any, error) {
		return a.GetSuggestedNewsPublishers(ctx)
	},
	"updateNewsFeed": func(_ context.Context, a news.Actions, _ []byte) (any, error) {
		a.UpdateNewsFeed()
		return done{true}, nil
	},
	"setCurrentNewsFeed": func(_ context.Context, a news.Actions, args []byte) (any, error) {
		spec, ok := news.ParseSpecifier(string(args))
		if !ok {
			return nil, fmt.Errorf("%w: not a feed specifier", errBadArgs)
		}
		a.SetCurrentNewsFeed(spec)
		return done{true}, nil
	},
	"onNewsVisible": func(_ context.Context, a news.Actions, _ []byte) (any, error) {
		a.OnNewsVisible()
		return done{true}, nil
	},
	"findNewsFeeds": func(ctx context.Context, a news.Actions, args []byte) (any, error) {
		var in struct {
			URL string `json:"url"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := required("url", in.URL); err != nil {
			return nil, err
		}
		return a.FindNewsFeeds(ctx, in.URL)
	},
}

// runAction looks up and runs name. Errors other than errUnknownAction and
// errBadArgs come from the backend.
func (s *Server) runAction(ctx context.Context, name string, args []byte) (any, error) {
	fn, ok := actionTable[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownAction, name)
	}
	result, err := fn(ctx, s.actions, args)
	if s.metrics != nil {
		s.metrics.RecordAction(name, err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
