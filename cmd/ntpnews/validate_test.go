package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeCmd runs the root command with args and returns captured stdout
// and any error.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	// restore stdout
	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	return buf.String(), err
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
port: 8080
backend:
  type: remote
  url: https://news.example.com
  poll_interval: 10s
peek_cache_max_age: 45m
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Port:          8080",
		"Backend:       remote https://news.example.com (poll 10s)",
		"Storage:       memory",
		"Peek max age:  45m0s",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_TOMLConfig(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
port = 9000

[storage]
path = "/tmp/ntpnews-prefs.json"
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	for _, phrase := range []string{"Port:          9000", "Backend:       mock (demo data)", "Storage:       /tmp/ntpnews-prefs.json"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
port: 8080
backend:
  type: remote
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}

	if !strings.Contains(err.Error(), "backend.url is required") {
		t.Errorf("error should mention 'backend.url is required', got: %v", err)
	}
}

func TestRunValidate_MissingFixture(t *testing.T) {
	configPath := writeConfig(t, "fixture.yaml", `
backend:
  fixture: /nonexistent/fixture.yaml
`)

	_, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command expected error for missing fixture, got nil")
	}

	if !strings.Contains(err.Error(), "backend.fixture") {
		t.Errorf("error should mention 'backend.fixture', got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}

	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestSchemaCmd(t *testing.T) {
	output, err := executeCmd(t, "schema")
	if err != nil {
		t.Fatalf("schema command error = %v", err)
	}

	for _, phrase := range []string{`"ntpnews configuration"`, `"backend"`, `"peek_cache_max_age"`} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %s", phrase)
		}
	}
}
