// Package main is the entry point for the scorepulse CLI.
//
// ScorePulse can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	scorepulse serve -c config.yaml    # Start the live score server
//	scorepulse validate -c config.yaml # Validate configuration
//	scorepulse version                 # Show version info
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
	Use:   "scorepulse",
	Short: "Live fantasy football matchup scores",
	Long: `ScorePulse streams live fantasy football matchup scores.

It polls the league provider at an adaptive rate (faster during game
windows), builds one snapshot per watched league week, and pushes it to
every connected client over Server-Sent Events or WebSocket, only when
scores actually change.

Quick start:
  1. Create a config file (scorepulse.yaml), or rely on the defaults
  2. Run: scorepulse serve -c scorepulse.yaml
  3. Open http://localhost:8080/stream/matchup/<leagueId>/<week>

Example config:
  port: 8080
  polling:
    high_interval: 3s
    idle_interval: 10s
    timezone: America/New_York`,
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

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this scorepulse binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "scorepulse %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
