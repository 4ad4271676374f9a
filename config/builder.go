package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/t-webber/ntpnews"
	"github.com/t-webber/ntpnews/backend"
	"github.com/t-webber/ntpnews/backend/mock"
	"github.com/t-webber/ntpnews/internal/metrics"
	"github.com/t-webber/ntpnews/internal/prefs"
	"github.com/t-webber/ntpnews/internal/remote"
)

// BuildOptions converts parsed configuration into page options.
//
// It creates the backend controller named by cfg.Backend and, when a
// storage path is set, opens the preferences file. logger may be nil.
func BuildOptions(cfg *Config, logger *zap.Logger) ([]ntpnews.Option, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var m *metrics.Metrics
	if cfg.Metrics {
		m = metrics.New()
	}

	ctrl, err := buildController(cfg.Backend, logger, m)
	if err != nil {
		return nil, err
	}

	opts := []ntpnews.Option{
		ntpnews.WithController(ctrl),
		ntpnews.WithTitle(cfg.Title),
		ntpnews.WithPort(cfg.Port),
		ntpnews.WithLogger(logger),
		ntpnews.WithPeekMaxAge(cfg.PeekCacheMaxAge.Duration()),
	}
	if cfg.VisibilityDelay != 0 {
		opts = append(opts, ntpnews.WithVisibilityDelay(cfg.VisibilityDelay.Duration()))
	}
	if m != nil {
		opts = append(opts, ntpnews.WithMetrics(m))
	}

	if cfg.Storage.Path != "" {
		storage, err := prefs.OpenFile(cfg.Storage.Path, logger.Named("prefs"))
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		opts = append(opts, ntpnews.WithLocalStorage(storage, cfg.Storage.Watch))
	}

	return opts, nil
}

// CheckFixture loads the configured mock fixture, if any, reporting
// errors BuildOptions would otherwise hit at startup.
func CheckFixture(cfg *Config) error {
	if cfg.Backend.Type != BackendMock || cfg.Backend.Fixture == "" {
		return nil
	}
	if _, err := mock.LoadFixture(cfg.Backend.Fixture); err != nil {
		return fmt.Errorf("backend.fixture: %w", err)
	}
	return nil
}

// buildController creates the backend named by bc.Type.
func buildController(bc BackendConfig, logger *zap.Logger, m *metrics.Metrics) (backend.Controller, error) {
	switch bc.Type {
	case "", BackendMock:
		fx := mock.DefaultFixture()
		if bc.Fixture != "" {
			loaded, err := mock.LoadFixture(bc.Fixture)
			if err != nil {
				return nil, fmt.Errorf("backend.fixture: %w", err)
			}
			fx = loaded
		}
		return mock.New(fx, mock.WithLogger(logger.Named("mock"))), nil

	case BackendRemote:
		ctrl, err := remote.New(remote.Config{
			BaseURL:      bc.URL,
			Timeout:      bc.Timeout.Duration(),
			PollInterval: bc.PollInterval.Duration(),
			RateLimit:    bc.RateLimit,
		}, remote.WithLogger(logger.Named("remote")), remote.WithMetrics(m))
		if err != nil {
			return nil, fmt.Errorf("backend: %w", err)
		}
		return ctrl, nil

	default:
		// validation should catch this
		return nil, fmt.Errorf("unknown backend type %q", bc.Type)
	}
}
