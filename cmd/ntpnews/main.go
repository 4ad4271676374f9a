// Package main is the entry point for the ntpnews CLI.
//
// ntpnews can be embedded as a library or run as a standalone binary
// configured with a YAML or TOML file. This CLI provides the standalone
// binary approach.
//
// Usage:
//
//	ntpnews serve -c config.yaml    # Start the news page server
//	ntpnews validate -c config.yaml # Validate configuration
//	ntpnews schema                  # Print the configuration JSON schema
//	ntpnews version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "ntpnews",
	Short: "New Tab Page news state server",
	Long: `ntpnews serves the news state of a browser New Tab Page.

It keeps the news feed, publishers, channels and preferences in an
observable store, drives feed loading against a news backend, and streams
state changes to page clients over Server-Sent Events or WebSocket.

Quick start:
  1. Create a config file (ntpnews.yaml)
  2. Run: ntpnews serve -c ntpnews.yaml
  3. Open http://localhost:8080/api/state

Example config:
  port: 8080
  backend:
    type: mock
  storage:
    path: ~/.ntpnews/prefs.json`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this ntpnews binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ntpnews %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
