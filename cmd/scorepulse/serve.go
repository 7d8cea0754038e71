package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/scorepulse"
	"github.com/jpalmerr/scorepulse/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd starts the ScorePulse server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the live score server",
	Long: `Start the ScorePulse server.

The server will:
  - Load configuration from the YAML file (if given) and SCOREPULSE_* variables
  - Poll the league provider for every league week with a subscriber
  - Serve streams, the upstream proxy, /health and /metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  scorepulse serve -c config.yaml
  SCOREPULSE_PORT=3001 scorepulse serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file")
}

// loadOptions reads configuration and converts it to SDK options.
func loadOptions(path string) (*config.Config, []scorepulse.Option, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build options: %w", err)
	}
	return cfg, opts, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, opts, err := loadOptions(configFile)
	if err != nil {
		return err
	}

	// validated by config.Load
	level, _ := cfg.Level()
	logger := newLogger(os.Stderr, level)

	logger.Info("config loaded",
		"file", configFile,
		"windows", len(cfg.Polling.Windows),
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"high_interval", cfg.Polling.HighInterval.Duration().String(),
		"idle_interval", cfg.Polling.IdleInterval.Duration().String(),
	)

	opts = append(opts, scorepulse.WithLogger(logger))
	sp, err := scorepulse.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create ScorePulse: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- sp.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
