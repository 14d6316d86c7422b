package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/logutil"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 30 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	// Bootstrap logger for config loading errors.
	bootstrap := logutil.NewJSON(os.Stdout, slog.LevelInfo)
	cfg, err := opts.Load(bootstrap)
	if err != nil {
		bootstrap.Error("failed to load config", "error", err)
		return err
	}

	level, err := logutil.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := logutil.NewJSON(os.Stdout, level)
	slog.SetDefault(logger)
	logger.Info("effective configuration", "config", cfg.Redacted())

	app, err := Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close error", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Server.Start()
	}()
	logger.Info("server started, press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
