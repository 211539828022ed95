package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/dqgate/internal/apperr"
	"github.com/JonMunkholm/dqgate/internal/cli"
	"github.com/JonMunkholm/dqgate/internal/config"
	"github.com/JonMunkholm/dqgate/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	backend := cli.NewBackend(cfg)
	defer backend.Close()

	root := cli.NewRootCommand(cfg, backend)
	if err := root.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, cli.ErrValidationFailed) {
			return 1
		}
		slog.Error("command failed", "error", err)
		if apperr.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, apperr.FormatUserError(err))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
