package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/civicsync/internal/api"
	"github.com/roach88/civicsync/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local API with background sync",
		Long: `Run the local HTTP API for UI collaborators.

While serving, the connectivity probe (probe_url) drives the online state,
and every offline to online transition replays pending actions.
GET /events streams connectivity changes over a websocket.

Example:
  civicsync serve --config ./civicsync.yaml
  civicsync serve --db ./civicsync.db --listen 127.0.0.1:9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	appOpts := append([]app.Option{app.WithLogger(logger)}, opts.AppOptions...)
	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	a.Start(ctx)

	router := api.NewRouter(&api.Handler{
		Cache:       a.Cache,
		Monitor:     a.Monitor,
		Broadcaster: a.Broadcaster,
		Metrics:     a.Metrics,
		Logger:      logger,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "civicsync serving on %s\n", cfg.ListenAddr)
	serveErr := api.Serve(ctx, cfg.ListenAddr, router, logger)

	cancel()
	if err := a.Close(); err != nil {
		logger.Error("error closing database", "error", err)
	}
	if serveErr != nil {
		return WrapExitError(ExitCommandError, "server error", serveErr)
	}
	logger.Info("server stopped gracefully")
	return nil
}
