package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/civicsync/internal/app"
	"github.com/roach88/civicsync/internal/engine"
)

// syncOutput is an engine.Result with a text rendering.
type syncOutput engine.Result

func (r syncOutput) String() string {
	if r.Error != "" {
		return fmt.Sprintf("sync failed: %s (synced %d, failed %d)", r.Error, r.Synced, r.Failed)
	}
	return fmt.Sprintf("synced %d, failed %d", r.Synced, r.Failed)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay pending actions now",
		Long: `Replay every pending action in order. Delivered actions are removed;
failed ones stay queued for the next sync.

Exit codes:
  0 - every action was delivered
  1 - offline, or some actions failed and remain queued
  2 - command error (invalid config, database unavailable)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res := a.Cache.SyncPendingActions(ctx)
				if err := opts.formatter(cmd).Success(syncOutput(res)); err != nil {
					return err
				}
				switch {
				case !res.Success:
					msg := "sync incomplete"
					if res.Error != "" {
						msg += ": " + res.Error
					}
					return NewExitError(ExitFailure, msg)
				case res.Failed > 0:
					return NewExitError(ExitFailure, fmt.Sprintf("sync incomplete: %d actions still queued", res.Failed))
				}
				return nil
			})
		},
	}
}
