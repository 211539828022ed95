package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqgate/internal/routing"
	"github.com/JonMunkholm/dqgate/internal/storage"
	"github.com/JonMunkholm/dqgate/internal/web"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation HTTP API",
		Long: `Serve POST /api/runs, GET /api/templates and GET /healthz.

Runs are routed to RESULTS_BUCKET when it is set. Local dataset paths are
read relative to DATA_DIR and refused when it is unset. On SIGINT or SIGTERM the
server stops accepting requests and waits for active runs to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, rootOpts *RootOptions) error {
	cfg := rootOpts.Config

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := rootOpts.wire(ctx, wireOptions{templates: true, s3: true, database: true, dataRoot: true})
	if err != nil {
		return err
	}
	slog.Info("templates loaded", "count", svc.templates.Count(), "dir", cfg.Templates.Dir)
	if svc.files != nil {
		slog.Info("local datasets enabled", "root", svc.files.Root())
	}

	deps := web.Deps{Runner: svc.orchestrator, Templates: svc.templates}
	if cfg.Storage.ResultsBucket != "" {
		deps.Publisher = routing.New(storage.NewS3Sink(svc.s3, cfg.Storage.ResultsBucket), svc.fetcher)
	}
	server := web.NewServer(deps, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("runs did not complete in time", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
