// Package config provides file based configuration for ntpnews.
//
// This package enables running the news page as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// YAML is the default format; files ending in .toml are read as TOML.
// Environment variables prefixed with NTPNEWS_ override file values, for
// example NTPNEWS_PORT or NTPNEWS_BACKEND_URL.
//
// Example configuration:
//
//	title: Morning News
//	port: 8080
//
//	backend:
//	  type: remote
//	  url: ${NEWS_API:-https://news.example.com}
//	  poll_interval: 30s
//	  rate_limit: 5
//
//	storage:
//	  path: ~/.ntpnews/prefs.json
//	  watch: true
//
//	peek_cache_max_age: 1h
//	logging:
//	  level: info
//	  format: auto
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/t-webber/ntpnews/internal/logging"
)

// EnvPrefix prefixes environment variables that override file values.
// Nested fields join their names with underscores, as in
// NTPNEWS_BACKEND_POLL_INTERVAL.
const EnvPrefix = "NTPNEWS"

// Backend types.
const (
	BackendMock   = "mock"
	BackendRemote = "remote"
)

const (
	defaultPort            = 8080
	defaultPollInterval    = 30 * time.Second
	defaultPeekCacheMaxAge = time.Hour

	// minPollInterval is the minimum allowed polling interval for production configs.
	// This prevents accidental DoS of the news service with overly aggressive polling.
	minPollInterval = 1 * time.Second

	maxVisibilityDelay = time.Minute
)

// Config is the root configuration structure.
//
// It maps directly to the configuration file structure.
// Use [Load] or [Parse] to create a Config.
type Config struct {
	// Title is reported by the health endpoint.
	Title string `yaml:"title" toml:"title" jsonschema:"description=Title reported by the health endpoint"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port" toml:"port" jsonschema:"minimum=1,maximum=65535,default=8080"`

	// Backend selects and configures the news service.
	Backend BackendConfig `yaml:"backend" toml:"backend"`

	// Storage configures where preferences and the peek cache live.
	Storage StorageConfig `yaml:"storage" toml:"storage"`

	// PeekCacheMaxAge is how old a cached widget item may be and still be
	// shown. Defaults to 1h.
	PeekCacheMaxAge Duration `yaml:"peek_cache_max_age" toml:"peek_cache_max_age" split_words:"true"`

	// VisibilityDelay is how long the widget waits after attaching before
	// reporting news visible. Defaults to 250ms when unset.
	VisibilityDelay Duration `yaml:"visibility_delay" toml:"visibility_delay" split_words:"true"`

	// Metrics enables the /metrics endpoint.
	Metrics bool `yaml:"metrics" toml:"metrics"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// BackendConfig selects the news service.
type BackendConfig struct {
	// Type is "mock" (fixture data, the default) or "remote".
	Type string `yaml:"type" toml:"type" jsonschema:"enum=mock,enum=remote,default=mock"`

	// URL is the remote service base URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url" toml:"url" jsonschema:"format=uri"`

	// Timeout bounds each remote request. Defaults to 10s.
	Timeout Duration `yaml:"timeout" toml:"timeout"`

	// PollInterval is the time between change checks. Defaults to 30s.
	PollInterval Duration `yaml:"poll_interval" toml:"poll_interval" split_words:"true"`

	// RateLimit caps remote requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit" split_words:"true" jsonschema:"minimum=0"`

	// Fixture is a YAML fixture file for the mock backend. The built-in
	// demo data is used when empty.
	Fixture string `yaml:"fixture" toml:"fixture"`
}

// StorageConfig configures local storage.
type StorageConfig struct {
	// Path is the preferences file. Preferences are kept in memory when empty.
	// A leading ~/ is expanded to the home directory.
	Path string `yaml:"path" toml:"path"`

	// Watch reloads the file when it changes on disk.
	Watch bool `yaml:"watch" toml:"watch"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `yaml:"format" toml:"format" jsonschema:"enum=auto,enum=json,enum=console,default=auto"`
}

// Duration wraps time.Duration for YAML, TOML and environment decoding.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// JSONSchema describes durations as Go duration strings.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration such as 500ms, 30s or 1h",
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// Load reads and parses a configuration file. Files ending in .toml are
// parsed as TOML, everything else as YAML.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment overrides are applied, then defaults, then environment
// variables are expanded in URL and path values and the result is
// validated.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return finish(&cfg)
}

// ParseTOML parses TOML configuration data. See [Parse].
func ParseTOML(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Backend.Type == "" {
		c.Backend.Type = BackendMock
	}
	if c.Backend.PollInterval == 0 {
		c.Backend.PollInterval = Duration(defaultPollInterval)
	}
	if c.PeekCacheMaxAge == 0 {
		c.PeekCacheMaxAge = Duration(defaultPeekCacheMaxAge)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = logging.DefaultConfig().Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logging.DefaultConfig().Format
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if err := c.Backend.expandAndValidate(); err != nil {
		return err
	}

	if c.Storage.Path != "" {
		expanded, err := expandEnvVars(c.Storage.Path)
		if err != nil {
			return fmt.Errorf("storage.path: %w", err)
		}
		if expanded, err = expandHome(expanded); err != nil {
			return fmt.Errorf("storage.path: %w", err)
		}
		c.Storage.Path = expanded
	} else if c.Storage.Watch {
		return fmt.Errorf("storage.watch requires storage.path")
	}

	if c.PeekCacheMaxAge.Duration() < time.Second {
		return fmt.Errorf("peek_cache_max_age must be at least 1s, got %s", c.PeekCacheMaxAge.Duration())
	}
	if d := c.VisibilityDelay.Duration(); d < 0 || d > maxVisibilityDelay {
		return fmt.Errorf("visibility_delay must be between 0 and %s, got %s", maxVisibilityDelay, d)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("logging.format must be auto, json or console, got %q", c.Logging.Format)
	}

	return nil
}

func (b *BackendConfig) expandAndValidate() error {
	if b.Timeout != 0 && b.Timeout.Duration() < time.Second {
		return fmt.Errorf("backend.timeout must be at least 1s if specified, got %s", b.Timeout.Duration())
	}
	if b.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("backend.poll_interval must be at least %s, got %s", minPollInterval, b.PollInterval.Duration())
	}
	if b.RateLimit < 0 {
		return fmt.Errorf("backend.rate_limit cannot be negative, got %v", b.RateLimit)
	}

	switch b.Type {
	case BackendMock:
		if b.URL != "" {
			return fmt.Errorf("backend.url is only used by the remote backend")
		}
		if b.Fixture != "" {
			expanded, err := expandEnvVars(b.Fixture)
			if err != nil {
				return fmt.Errorf("backend.fixture: %w", err)
			}
			b.Fixture = expanded
		}

	case BackendRemote:
		if b.Fixture != "" {
			return fmt.Errorf("backend.fixture is only used by the mock backend")
		}
		if b.URL == "" {
			return fmt.Errorf("backend.url is required for the remote backend")
		}
		expanded, err := expandEnvVars(b.URL)
		if err != nil {
			return fmt.Errorf("backend.url: %w", err)
		}
		b.URL = expanded

		parsedURL, err := url.Parse(b.URL)
		if err != nil {
			return fmt.Errorf("backend.url: invalid url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("backend.url scheme must be http or https, got %q", parsedURL.Scheme)
		}
		if parsedURL.Host == "" {
			return fmt.Errorf("backend.url must have a host")
		}

	default:
		return fmt.Errorf("backend.type must be %q or %q, got %q", BackendMock, BackendRemote, b.Type)
	}
	return nil
}

// Schema returns the JSON schema of the configuration file, keyed by the
// YAML field names.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := r.Reflect(&Config{})
	s.Title = "ntpnews configuration"
	return s
}
