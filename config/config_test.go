package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestParse_MinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(`title: News`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Backend.Type != BackendMock {
		t.Errorf("Backend.Type = %q, want %q", cfg.Backend.Type, BackendMock)
	}
	if cfg.Backend.PollInterval.Duration() != 30*time.Second {
		t.Errorf("Backend.PollInterval = %v, want 30s", cfg.Backend.PollInterval.Duration())
	}
	if cfg.PeekCacheMaxAge.Duration() != time.Hour {
		t.Errorf("PeekCacheMaxAge = %v, want 1h", cfg.PeekCacheMaxAge.Duration())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "auto" {
		t.Errorf("Logging = %+v, want info/auto", cfg.Logging)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
}

func TestParse_FullRemoteConfig(t *testing.T) {
	yaml := `
title: Morning News
port: 9090

backend:
  type: remote
  url: https://news.example.com/api
  timeout: 5s
  poll_interval: 1m
  rate_limit: 2.5

storage:
  path: /tmp/ntpnews/prefs.json
  watch: true

peek_cache_max_age: 30m
visibility_delay: 1s
metrics: true

logging:
  level: debug
  format: json
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "Morning News" {
		t.Errorf("Title = %q, want %q", cfg.Title, "Morning News")
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	b := cfg.Backend
	if b.Type != BackendRemote {
		t.Errorf("Backend.Type = %q, want %q", b.Type, BackendRemote)
	}
	if b.URL != "https://news.example.com/api" {
		t.Errorf("Backend.URL = %q", b.URL)
	}
	if b.Timeout.Duration() != 5*time.Second {
		t.Errorf("Backend.Timeout = %v, want 5s", b.Timeout.Duration())
	}
	if b.PollInterval.Duration() != time.Minute {
		t.Errorf("Backend.PollInterval = %v, want 1m", b.PollInterval.Duration())
	}
	if b.RateLimit != 2.5 {
		t.Errorf("Backend.RateLimit = %v, want 2.5", b.RateLimit)
	}
	if cfg.Storage.Path != "/tmp/ntpnews/prefs.json" || !cfg.Storage.Watch {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.PeekCacheMaxAge.Duration() != 30*time.Minute {
		t.Errorf("PeekCacheMaxAge = %v, want 30m", cfg.PeekCacheMaxAge.Duration())
	}
	if cfg.VisibilityDelay.Duration() != time.Second {
		t.Errorf("VisibilityDelay = %v, want 1s", cfg.VisibilityDelay.Duration())
	}
	if !cfg.Metrics {
		t.Error("Metrics = false, want true")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestParseTOML(t *testing.T) {
	data := `
title = "Evening News"
port = 7070
peek_cache_max_age = "15m"

[backend]
type = "remote"
url = "http://localhost:9000"
poll_interval = "10s"

[logging]
level = "warn"
`
	cfg, err := ParseTOML([]byte(data))
	if err != nil {
		t.Fatalf("ParseTOML() error = %v", err)
	}

	if cfg.Title != "Evening News" {
		t.Errorf("Title = %q", cfg.Title)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Port)
	}
	if cfg.Backend.URL != "http://localhost:9000" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Backend.PollInterval.Duration() != 10*time.Second {
		t.Errorf("Backend.PollInterval = %v, want 10s", cfg.Backend.PollInterval.Duration())
	}
	if cfg.PeekCacheMaxAge.Duration() != 15*time.Minute {
		t.Errorf("PeekCacheMaxAge = %v, want 15m", cfg.PeekCacheMaxAge.Duration())
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(yamlPath, []byte("port: 8181\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tomlPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(tomlPath, []byte("port = 8282\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		port int
	}{
		{yamlPath, 8181},
		{tomlPath, 8282},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			cfg, err := Load(tt.path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Port != tt.port {
				t.Errorf("Port = %d, want %d", cfg.Port, tt.port)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v", err)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	// t.Setenv auto-restores after test (Go 1.17+)
	t.Setenv("TEST_NEWS_HOST", "news.test.com")
	t.Setenv("TEST_PREFS_DIR", "/var/lib/ntpnews")

	yaml := `
backend:
  type: remote
  url: https://${TEST_NEWS_HOST}/v1
storage:
  path: ${TEST_PREFS_DIR}/prefs.json
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Backend.URL != "https://news.test.com/v1" {
		t.Errorf("Backend.URL = %q, want https://news.test.com/v1", cfg.Backend.URL)
	}
	if cfg.Storage.Path != "/var/lib/ntpnews/prefs.json" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	yaml := `
backend:
  type: remote
  url: https://${UNSET_VAR:-fallback.example.com}/v1
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Backend.URL != "https://fallback.example.com/v1" {
		t.Errorf("Backend.URL = %q, want https://fallback.example.com/v1", cfg.Backend.URL)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	// MISSING_VAR is expected to not exist in the environment
	yaml := `
backend:
  type: remote
  url: https://${MISSING_VAR}/v1
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "MISSING_VAR") {
		t.Errorf("error should mention MISSING_VAR: %v", err)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("NTPNEWS_PORT", "9999")
	t.Setenv("NTPNEWS_BACKEND_TYPE", "remote")
	t.Setenv("NTPNEWS_BACKEND_URL", "https://override.example.com")
	t.Setenv("NTPNEWS_BACKEND_POLL_INTERVAL", "45s")
	t.Setenv("NTPNEWS_LOGGING_LEVEL", "error")
	t.Setenv("NTPNEWS_METRICS", "true")

	cfg, err := Parse([]byte("port: 8080\ntitle: From File\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.Title != "From File" {
		t.Errorf("Title = %q, file value should survive", cfg.Title)
	}
	if cfg.Backend.Type != BackendRemote || cfg.Backend.URL != "https://override.example.com" {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Backend.PollInterval.Duration() != 45*time.Second {
		t.Errorf("Backend.PollInterval = %v, want 45s", cfg.Backend.PollInterval.Duration())
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want error", cfg.Logging.Level)
	}
	if !cfg.Metrics {
		t.Error("Metrics = false, want true")
	}
}

func TestParse_EnvOverrideInvalid(t *testing.T) {
	t.Setenv("NTPNEWS_PORT", "eighty")

	_, err := Parse(nil)
	if err == nil {
		t.Fatal("Parse() expected error for invalid override, got nil")
	}
	if !strings.Contains(err.Error(), "environment overrides") {
		t.Errorf("error = %v", err)
	}
}

func TestParse_HomeExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	cfg, err := Parse([]byte("storage:\n  path: ~/.ntpnews/prefs.json\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Storage.Path != "/home/tester/.ntpnews/prefs.json" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "port too large",
			yaml:        `port: 70000`,
			wantErrLike: "port must be between 1 and 65535",
		},
		{
			name:        "unknown backend",
			yaml:        "backend:\n  type: carrier-pigeon\n",
			wantErrLike: "backend.type must be",
		},
		{
			name:        "remote without url",
			yaml:        "backend:\n  type: remote\n",
			wantErrLike: "backend.url is required",
		},
		{
			name:        "remote with bad scheme",
			yaml:        "backend:\n  type: remote\n  url: ftp://news.example.com\n",
			wantErrLike: "scheme must be http or https",
		},
		{
			name:        "remote without host",
			yaml:        "backend:\n  type: remote\n  url: https://\n",
			wantErrLike: "must have a host",
		},
		{
			name:        "remote with fixture",
			yaml:        "backend:\n  type: remote\n  url: https://news.example.com\n  fixture: demo.yaml\n",
			wantErrLike: "fixture is only used by the mock backend",
		},
		{
			name:        "mock with url",
			yaml:        "backend:\n  url: https://news.example.com\n",
			wantErrLike: "url is only used by the remote backend",
		},
		{
			name:        "short timeout",
			yaml:        "backend:\n  timeout: 10ms\n",
			wantErrLike: "backend.timeout must be at least 1s",
		},
		{
			name:        "short poll interval",
			yaml:        "backend:\n  poll_interval: 100ms\n",
			wantErrLike: "backend.poll_interval must be at least",
		},
		{
			name:        "negative rate limit",
			yaml:        "backend:\n  rate_limit: -1\n",
			wantErrLike: "rate_limit cannot be negative",
		},
		{
			name:        "watch without path",
			yaml:        "storage:\n  watch: true\n",
			wantErrLike: "storage.watch requires storage.path",
		},
		{
			name:        "short peek max age",
			yaml:        `peek_cache_max_age: 500ms`,
			wantErrLike: "peek_cache_max_age must be at least 1s",
		},
		{
			name:        "negative visibility delay",
			yaml:        `visibility_delay: -1s`,
			wantErrLike: "visibility_delay must be between",
		},
		{
			name:        "long visibility delay",
			yaml:        `visibility_delay: 2m`,
			wantErrLike: "visibility_delay must be between",
		},
		{
			name:        "bad duration",
			yaml:        `peek_cache_max_age: soon`,
			wantErrLike: "invalid duration",
		},
		{
			name:        "bad log level",
			yaml:        "logging:\n  level: loud\n",
			wantErrLike: "logging.level",
		},
		{
			name:        "bad log format",
			yaml:        "logging:\n  format: xml\n",
			wantErrLike: "logging.format",
		},
		{
			name:        "not yaml",
			yaml:        "port: [",
			wantErrLike: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("error = %v, want error containing %q", err, tt.wantErrLike)
			}
		})
	}
}

func TestSchema(t *testing.T) {
	data, err := sonic.Marshal(Schema())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)

	for _, want := range []string{`"peek_cache_max_age"`, `"poll_interval"`, `"remote"`, `"ntpnews configuration"`} {
		if !strings.Contains(s, want) {
			t.Errorf("schema should contain %s", want)
		}
	}
	if strings.Contains(s, `"PeekCacheMaxAge"`) {
		t.Error("schema should use file field names")
	}
}
