package ntpnews

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend"
	"github.com/t-webber/ntpnews/dashboard"
	"github.com/t-webber/ntpnews/internal/metrics"
	"github.com/t-webber/ntpnews/internal/prefs"
	"github.com/t-webber/ntpnews/internal/server"
	"github.com/t-webber/ntpnews/news"
	"github.com/t-webber/ntpnews/store"
)

const defaultPort = 8080

// watcher is implemented by storages that can follow external changes.
type watcher interface {
	Watch(ctx context.Context) error
}

// Page is a running news surface: the state store, the action dispatcher
// wired to a news backend, the widget and the HTTP server exposing them.
//
// Page is created using [New] with functional options and started with
// [Page.Start]. The typical lifecycle is:
//
//	page, err := ntpnews.New(ntpnews.WithController(ctrl))
//	if err != nil {
//	    logger.Fatal("failed to create page", zap.Error(err))
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	page.Start(ctx) // blocks until context cancelled
type Page struct {
	title        string
	port         int
	logger       *zap.Logger
	ctrl         backend.Controller
	local        news.Storage
	watchStorage bool
	metrics      *metrics.Metrics

	st         *store.Store[news.State]
	dispatcher *news.Dispatcher
	widget     *news.Widget
	unlisten   []func()

	mu        sync.Mutex
	server    *server.Server
	closeOnce sync.Once
}

// New creates a [Page] with the given options.
//
// A controller must be configured via [WithController]. Other options have
// defaults:
//   - Port: 8080
//   - Local and session storage: in memory
//   - Peek cache max age: 1 hour
//   - Visibility delay: 250ms
//
// New restores the persisted feed selection, registers the backend
// listeners and attaches the widget. Call [Page.Start] to serve it, or
// [Page.Close] to release it without serving.
func New(opts ...Option) (*Page, error) {
	cfg := &pageConfig{
		port:            defaultPort,
		peekMaxAge:      news.DefaultPeekMaxAge,
		visibilityDelay: news.DefaultVisibilityDelay,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.ctrl == nil {
		return nil, errors.New("a news controller is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	local := cfg.local
	if local == nil {
		local = prefs.NewMemoryStorage()
	}
	session := cfg.session
	if session == nil {
		session = prefs.NewMemoryStorage()
	}

	p := &Page{
		title:        cfg.title,
		port:         cfg.port,
		logger:       logger,
		ctrl:         cfg.ctrl,
		local:        local,
		watchStorage: cfg.watchStorage,
		metrics:      cfg.metrics,
	}

	p.st = store.New(news.DefaultState(), store.WithLogger(logger.Named("store")))

	if p.metrics != nil {
		p.unlisten = append(p.unlisten, p.st.AddListener(func(news.State) {
			p.metrics.RecordStoreUpdate(p.st.ListenerCount())
		}))
	}
	for _, cb := range cfg.stateCallbacks {
		p.unlisten = append(p.unlisten, p.st.AddListener(func(s news.State) {
			invokeCallbackSafe(cb, s, logger)
		}))
	}

	dispatcherOpts := []news.DispatcherOption{
		news.WithLogger(logger.Named("dispatcher")),
		news.WithSpecifierStore(news.NewSpecifierStore(local, session)),
	}
	if p.metrics != nil {
		dispatcherOpts = append(dispatcherOpts, news.WithLoadObserver(p.metrics.RecordFeedLoad))
	}
	p.dispatcher = news.Initialize(p.st, p.ctrl, dispatcherOpts...)

	cache := news.NewPeekCache(local, news.WithMaxAge(cfg.peekMaxAge))
	p.widget = news.NewWidget(p.st, p.dispatcher, cache,
		news.WithVisibilityDelay(cfg.visibilityDelay),
		news.WithWidgetLogger(logger.Named("widget")),
	)

	return p, nil
}

// Start starts the controller's background work if it has any, serves the
// page over HTTP and blocks until ctx is cancelled. Everything is closed
// before Start returns.
//
// Returns nil on graceful shutdown. Returns an error if the controller or
// the HTTP server fails to start.
func (p *Page) Start(ctx context.Context) error {
	defer p.Close()

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	p.logger.Info("news page starting", zap.String("title", p.title), zap.Int("port", p.port))

	if lc, ok := p.ctrl.(backend.Lifecycle); ok {
		if err := lc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start news controller: %w", err)
		}
		defer func() {
			if err := lc.Close(); err != nil {
				p.logger.Warn("failed to close news controller", zap.Error(err))
			}
		}()
	}

	if w, ok := p.local.(watcher); ok && p.watchStorage {
		if err := w.Watch(ctx); err != nil {
			p.logger.Warn("storage watch unavailable", zap.Error(err))
		}
	}

	serverOpts := []server.Option{
		server.WithTitle(p.title),
		server.WithWidget(p.widget),
		server.WithAssets(dashboard.Assets),
	}
	if p.metrics != nil {
		serverOpts = append(serverOpts, server.WithMetrics(p.metrics))
	}
	srv := server.NewServer(p.st, p.dispatcher, p.port, p.logger.Named("server"), serverOpts...)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	p.mu.Lock()
	p.server = srv
	p.mu.Unlock()

	p.logger.Info("news page available", zap.String("url", fmt.Sprintf("http://localhost:%d", srv.Port())))

	<-ctx.Done()
	p.logger.Info("news page stopped")
	return nil
}

// Close detaches the widget, the dispatcher and the state callbacks.
// It is safe to call more than once. [Page.Start] calls it on return.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.widget.Close()
		p.dispatcher.Close()
		for _, fn := range p.unlisten {
			fn()
		}
	})
}

// Store returns the state store.
func (p *Page) Store() *store.Store[news.State] {
	return p.st
}

// Actions returns the action dispatcher.
func (p *Page) Actions() news.Actions {
	return p.dispatcher
}

// Widget returns the compact news widget.
func (p *Page) Widget() *news.Widget {
	return p.widget
}

// Port returns the port the server is bound to once started, or the
// configured port before.
func (p *Page) Port() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.server != nil {
		return p.server.Port()
	}
	return p.port
}

// Title returns the configured title.
func (p *Page) Title() string {
	return p.title
}

// invokeCallbackSafe calls a state callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(news.State), state news.State, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("state callback panicked", zap.Any("panic", r))
		}
	}()
	cb(state)
}
