package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/t-webber/ntpnews/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an ntpnews configuration file without starting the server.

This command parses the file, applies NTPNEWS_ environment overrides,
expands environment variables, and validates all fields. A configured
fixture file is loaded too. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  ntpnews validate -c config.yaml
  ntpnews validate --config /etc/ntpnews/config.toml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := config.CheckFixture(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	storage := cfg.Storage.Path
	if storage == "" {
		storage = "memory"
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:          %d\n", cfg.Port)
	fmt.Printf("  Backend:       %s\n", describeBackend(cfg.Backend))
	fmt.Printf("  Storage:       %s\n", storage)
	fmt.Printf("  Peek max age:  %s\n", cfg.PeekCacheMaxAge.Duration())

	return nil
}

func describeBackend(b config.BackendConfig) string {
	switch {
	case b.Type == config.BackendRemote:
		return fmt.Sprintf("remote %s (poll %s)", b.URL, b.PollInterval.Duration())
	case b.Fixture != "":
		return "mock " + b.Fixture
	default:
		return "mock (demo data)"
	}
}
