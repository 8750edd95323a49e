package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Poll every target and drain the queue once, then exit",
	Long: `Run a single poll cycle followed by a single drain tick and print the
results as JSON. Useful from cron or for checking a new configuration with
forwarding.dry_run enabled.`,
	RunE: runRunOnce,
}

func init() {
	rootCmd.AddCommand(runOnceCmd)
}

func runRunOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.service.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
