package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/t-webber/ntpnews/backend"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 30 * time.Second
	defaultRetryMax     = 2
	defaultRetryWaitMin = 100 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	userAgent           = "ntpnews/1.0"
)

// Config describes how to reach the news service.
type Config struct {
	// BaseURL of the service, e.g. "https://news.example.com". Required.
	BaseURL string

	// Timeout per request, retries included. Zero means 10s.
	Timeout time.Duration

	// PollInterval between listener probes. Zero means 30s.
	PollInterval time.Duration

	// RateLimit caps requests per second. Zero or less disables limiting.
	RateLimit float64

	// RetryMax is the number of retries on connection errors and 5xx
	// responses. Negative disables retries; zero means 2.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

func (c *Config) applyDefaults() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	switch {
	case c.RetryMax < 0:
		c.RetryMax = 0
	case c.RetryMax == 0:
		c.RetryMax = defaultRetryMax
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = defaultRetryWaitMin
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		c.RetryWaitMax = max(defaultRetryWaitMax, c.RetryWaitMin)
	}
	return nil
}

// leveledLogger adapts zap to retryablehttp's key/value logger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

// newHTTPClient builds the resty client: JSON through sonic, retries in the
// transport.
func newHTTPClient(cfg Config, logger *zap.Logger) *resty.Client {
	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.RetryMax
	retry.RetryWaitMin = cfg.RetryWaitMin
	retry.RetryWaitMax = cfg.RetryWaitMax
	retry.Logger = leveledLogger{s: logger.Named("retry").Sugar()}

	return resty.NewWithClient(retry.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetLogger(logger.Named("http").Sugar())
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}

// call performs one request. endpoint labels metrics and errors; prepare
// sets path params, body and result on the request.
func (c *Controller) call(ctx context.Context, endpoint, method, path string, prepare func(*resty.Request)) error {
	err := c.do(ctx, endpoint, method, path, prepare)
	if c.metrics != nil {
		c.metrics.RecordBackendRequest(endpoint, err)
	}
	return err
}

func (c *Controller) do(ctx context.Context, endpoint, method, path string, prepare func(*resty.Request)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}

	req := c.client.R().SetContext(ctx)
	if prepare != nil {
		prepare(req)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", endpoint, ctxErr)
		}
		return fmt.Errorf("%s: %w: %w", endpoint, backend.ErrUnavailable, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", endpoint, backend.ErrNotFound)
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: status %s", endpoint, backend.ErrUnavailable, resp.Status())
	case resp.IsError():
		return fmt.Errorf("%s: unexpected status %s: %s", endpoint, resp.Status(), errorMessage(resp))
	}
	return nil
}

// apiError is the error body returned by the service.
type apiError struct {
	Error string `json:"error"`
}

func errorMessage(resp *resty.Response) string {
	var body apiError
	if err := sonic.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return body.Error
	}
	return http.StatusText(resp.StatusCode())
}

// isUnavailable reports whether err means the service could not be reached.
func isUnavailable(err error) bool {
	return errors.Is(err, backend.ErrUnavailable)
}
