package main

import (
	"fmt"

	"github.com/jpalmerr/scorepulse"
	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a ScorePulse configuration file without starting the server.

This command parses the YAML, expands environment variables, applies
SCOREPULSE_* overrides, and checks that the resulting options are
consistent. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  scorepulse validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, opts, err := loadOptions(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sp, err := scorepulse.New(opts...)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	high, idle := sp.PollIntervals()
	ttls := sp.TTLs()
	windows := "default"
	if n := len(cfg.Polling.Windows); n > 0 {
		windows = fmt.Sprintf("%d custom", n)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:           %d\n", sp.Port())
	fmt.Fprintf(out, "  Poll intervals: %s high, %s idle\n", high, idle)
	fmt.Fprintf(out, "  Windows:        %s\n", windows)
	fmt.Fprintf(out, "  Live TTL:       %s\n", ttls.LiveMatchups)

	return nil
}
