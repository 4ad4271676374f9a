package ntpnews

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/t-webber/ntpnews/backend"
	"github.com/t-webber/ntpnews/internal/metrics"
	"github.com/t-webber/ntpnews/news"
)

// pageConfig holds mutable state during Page construction.
type pageConfig struct {
	title           string
	port            int
	logger          *zap.Logger
	ctrl            backend.Controller
	local           news.Storage
	session         news.Storage
	watchStorage    bool
	peekMaxAge      time.Duration
	visibilityDelay time.Duration
	stateCallbacks  []func(news.State)
	metrics         *metrics.Metrics
}

// Option is a function that configures a [Page] during construction.
//
// Options return an error if validation fails.
type Option func(*pageConfig) error

// WithController sets the news backend. It is required.
//
// Controllers that also implement [backend.Lifecycle] are started by
// [Page.Start] and closed when it returns.
func WithController(ctrl backend.Controller) Option {
	return func(cfg *pageConfig) error {
		if ctrl == nil {
			return errors.New("controller cannot be nil")
		}
		cfg.ctrl = ctrl
		return nil
	}
}

// WithPort sets the HTTP port. Zero picks a free port when the server
// starts. Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (0-65535).
func WithPort(port int) Option {
	return func(cfg *pageConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets the logger. If not specified, logs are discarded.
//
// Returns an error if the logger is nil.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *pageConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithLocalStorage sets the long-lived storage holding the selected feed
// and the peek cache.
//
// When watch is true and the storage can follow external changes, as a
// file storage can, [Page.Start] reloads it whenever it changes on disk.
func WithLocalStorage(s news.Storage, watch bool) Option {
	return func(cfg *pageConfig) error {
		if s == nil {
			return errors.New("local storage cannot be nil")
		}
		cfg.local = s
		cfg.watchStorage = watch
		return nil
	}
}

// WithSessionStorage sets the per-process storage holding the selected
// feed.
func WithSessionStorage(s news.Storage) Option {
	return func(cfg *pageConfig) error {
		if s == nil {
			return errors.New("session storage cannot be nil")
		}
		cfg.session = s
		return nil
	}
}

// WithPeekMaxAge sets how old a cached peek item may be and still be shown.
//
// Returns an error if the duration is zero or negative.
func WithPeekMaxAge(d time.Duration) Option {
	return func(cfg *pageConfig) error {
		if d <= 0 {
			return errors.New("peek max age must be positive")
		}
		cfg.peekMaxAge = d
		return nil
	}
}

// WithVisibilityDelay sets how long after attaching the widget news is
// reported visible. Zero reports it immediately.
//
// Returns an error if the duration is negative.
func WithVisibilityDelay(d time.Duration) Option {
	return func(cfg *pageConfig) error {
		if d < 0 {
			return errors.New("visibility delay cannot be negative")
		}
		cfg.visibilityDelay = d
		return nil
	}
}

// WithStateCallback registers a function called with the new state after
// every store update.
//
// Multiple callbacks may be registered; they execute in registration
// order. Callbacks run synchronously on the updating goroutine and must
// not block. Panics within callbacks are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithStateCallback(cb func(news.State)) Option {
	return func(cfg *pageConfig) error {
		if cb == nil {
			return nil
		}
		cfg.stateCallbacks = append(cfg.stateCallbacks, cb)
		return nil
	}
}

// WithTitle sets the title reported by the health endpoint.
func WithTitle(title string) Option {
	return func(cfg *pageConfig) error {
		cfg.title = title
		return nil
	}
}

// WithMetrics enables Prometheus collectors and the /metrics endpoint.
// A nil m creates a fresh set of collectors; pass the same instance to a
// remote controller to have its requests counted alongside.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cfg *pageConfig) error {
		if m == nil {
			m = metrics.New()
		}
		cfg.metrics = m
		return nil
	}
}
