package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ricirt/feedrelay/internal/config"
)

// validateCmd checks configuration without touching the store or upstreams.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the environment and the runtime file",
	Long: `Validate the process environment and the runtime YAML file without
starting anything.

The runtime file is parsed with environment variable expansion and every
target name and forwarding field is checked.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := config.LoadRuntime(cfg.RuntimeFile)
	if err != nil {
		return fmt.Errorf("invalid runtime config: %w", err)
	}
	policy := rt.Policy()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Store:         %s\n", cfg.StoreBackend)
	fmt.Fprintf(out, "  Publisher:     %s\n", cfg.PublishBackend)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval)
	fmt.Fprintf(out, "  Targets:       %d active of %d\n", len(rt.ActiveTargets()), len(rt.Targets))
	fmt.Fprintf(out, "  Forwarding:    enabled=%t dry_run=%t mode=%s\n", policy.Enabled, policy.DryRun, policy.Mode)
	if cfg.FeedAPIKey == "" {
		fmt.Fprintf(out, "  Warning:       FEED_API_KEY is not set; every poll will fail\n")
	}
	return nil
}
