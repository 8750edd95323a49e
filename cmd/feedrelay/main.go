// Package main is the entry point for the feedrelay CLI.
//
// Usage:
//
//	feedrelay serve -r config/feedrelay.yaml    # Run the pipeline and the operator API
//	feedrelay run-once -r config/feedrelay.yaml # One poll and one drain, then exit
//	feedrelay validate -r config/feedrelay.yaml # Validate configuration
//	feedrelay version                           # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd shows help when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "feedrelay",
	Short: "Forward new items from monitored feeds to a publishing account",
	Long: `feedrelay polls the feeds of configured target accounts, keeps the new
original items in a durable retry queue, and forwards them (retweet or
republish) to a publishing account with backoff and rate-limit handling.

Process settings come from environment variables (STORE_BACKEND, FEED_API_KEY,
PUBLISH_BACKEND, ...). Targets and the forwarding policy live in a YAML runtime
file that is reloaded when it changes.

Quick start:
  1. Write config/feedrelay.yaml with your targets
  2. Run: feedrelay validate -r config/feedrelay.yaml
  3. Run: feedrelay serve -r config/feedrelay.yaml`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "feedrelay %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringP("runtime", "r", "", "path to the runtime YAML file (overrides RUNTIME_FILE)")
}
