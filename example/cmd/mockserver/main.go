// Standalone news service for trying the CLI with the remote backend.
//
// It serves the demo fixture over the HTTP API the remote backend polls
// and publishes a new feed version every 20-60 seconds.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	NTPNEWS_BACKEND_TYPE=remote NTPNEWS_BACKEND_URL=http://localhost:9999 \
//	    go run ./cmd/ntpnews serve -c example/config.yaml
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend"
	"github.com/t-webber/ntpnews/backend/mock"
	"github.com/t-webber/ntpnews/internal/logging"
)

// service mirrors what a mock controller emits so it can be polled.
type service struct {
	ctrl   *mock.Controller
	logger *zap.Logger

	mu         sync.Mutex
	config     backend.Configuration
	hash       string
	publishers map[string]backend.Publisher
	channels   map[string]backend.Channel
}

func newService(fx mock.Fixture, logger *zap.Logger) *service {
	s := &service{
		ctrl:       mock.New(fx, mock.WithLogger(logger.Named("mock"))),
		logger:     logger,
		hash:       fx.Feed.SourceHash,
		publishers: make(map[string]backend.Publisher),
		channels:   make(map[string]backend.Channel),
	}
	s.ctrl.AddConfigurationListener(func(cfg backend.Configuration) {
		s.mu.Lock()
		s.config = cfg
		s.mu.Unlock()
	})
	s.ctrl.AddFeedListener(func(hash string) {
		s.mu.Lock()
		s.hash = hash
		s.mu.Unlock()
	})
	s.ctrl.AddPublishersListener(func(ev backend.PublishersEvent) {
		s.mu.Lock()
		for id, p := range ev.AddedOrUpdated {
			s.publishers[id] = p
		}
		for _, id := range ev.Removed {
			delete(s.publishers, id)
		}
		s.mu.Unlock()
	})
	s.ctrl.AddChannelsListener(func(ev backend.ChannelsEvent) {
		s.mu.Lock()
		for name, ch := range ev.AddedOrUpdated {
			s.channels[name] = ch
		}
		s.mu.Unlock()
	})
	return s
}

func (s *service) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/configuration", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		cfg := s.config
		s.mu.Unlock()
		s.write(w, cfg, nil)
	})
	mux.HandleFunc("PUT /v1/configuration", func(w http.ResponseWriter, r *http.Request) {
		var cfg backend.Configuration
		if !s.decode(w, r, &cfg) {
			return
		}
		s.write(w, nil, s.ctrl.SetConfiguration(r.Context(), cfg))
	})
	mux.HandleFunc("GET /v1/feed/hash", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		hash := s.hash
		s.mu.Unlock()
		s.write(w, map[string]string{"hash": hash}, nil)
	})
	mux.HandleFunc("GET /v1/feed", func(w http.ResponseWriter, r *http.Request) {
		feed, err := s.ctrl.GetFeedV2(r.Context())
		s.write(w, feed, err)
	})
	mux.HandleFunc("GET /v1/feed/following", func(w http.ResponseWriter, r *http.Request) {
		feed, err := s.ctrl.GetFollowingFeed(r.Context())
		s.write(w, feed, err)
	})
	mux.HandleFunc("GET /v1/feed/channels/{channel}", func(w http.ResponseWriter, r *http.Request) {
		feed, err := s.ctrl.GetChannelFeed(r.Context(), r.PathValue("channel"))
		s.write(w, feed, err)
	})
	mux.HandleFunc("GET /v1/feed/publishers/{publisherId}", func(w http.ResponseWriter, r *http.Request) {
		feed, err := s.ctrl.GetPublisherFeed(r.Context(), r.PathValue("publisherId"))
		s.write(w, feed, err)
	})
	mux.HandleFunc("GET /v1/publishers", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := make(map[string]backend.Publisher, len(s.publishers))
		for id, p := range s.publishers {
			out[id] = p
		}
		s.mu.Unlock()
		s.write(w, out, nil)
	})
	mux.HandleFunc("PUT /v1/publishers/{publisherId}/status", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status backend.UserEnabled `json:"status"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		s.write(w, nil, s.ctrl.SetPublisherPref(r.Context(), r.PathValue("publisherId"), body.Status))
	})
	mux.HandleFunc("POST /v1/publishers/direct", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FeedURL string `json:"feedUrl"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		s.write(w, nil, s.ctrl.SubscribeToNewDirectFeed(r.Context(), body.FeedURL))
	})
	mux.HandleFunc("GET /v1/publishers/suggested", func(w http.ResponseWriter, r *http.Request) {
		ids, err := s.ctrl.GetSuggestedPublisherIDs(r.Context())
		s.write(w, map[string][]string{"publisherIds": ids}, err)
	})
	mux.HandleFunc("GET /v1/channels", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		out := make(map[string]backend.Channel, len(s.channels))
		for name, ch := range s.channels {
			out[name] = ch
		}
		s.mu.Unlock()
		s.write(w, out, nil)
	})
	mux.HandleFunc("PUT /v1/channels/{channel}/locales/{locale}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Subscribed bool `json:"subscribed"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		err := s.ctrl.SetChannelSubscribed(r.Context(), r.PathValue("locale"), r.PathValue("channel"), body.Subscribed)
		s.write(w, nil, err)
	})
	mux.HandleFunc("GET /v1/signals", func(w http.ResponseWriter, r *http.Request) {
		signals, err := s.ctrl.GetSignals(r.Context())
		s.write(w, signals, err)
	})
	mux.HandleFunc("GET /v1/locale", func(w http.ResponseWriter, r *http.Request) {
		locale, err := s.ctrl.GetLocale(r.Context())
		s.write(w, map[string]string{"locale": locale}, err)
	})

	return mux
}

func (s *service) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *service) write(w http.ResponseWriter, v any, err error) {
	if err != nil {
		s.logger.Warn("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}

// publishUpdates announces a new feed version every 20-60 seconds.
func (s *service) publishUpdates(ctx context.Context) {
	for version := 2; ; version++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(20+rand.Intn(41)) * time.Second):
		}
		hash := fmt.Sprintf("fixture-%d", version)
		s.logger.Info("feed version published", zap.String("hash", hash))
		s.ctrl.PublishFeedHash(hash)
	}
}

func main() {
	logger := logging.NewDefault()

	fmt.Println("Mock news service starting on :9999")
	fmt.Println("A new feed version is published every 20-60s")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	s := newService(mock.DefaultFixture(), logger)
	go s.publishUpdates(context.Background())

	if err := http.ListenAndServe(":9999", s.routes()); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}
