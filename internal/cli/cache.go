package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/civicsync/internal/app"
	"github.com/roach88/civicsync/internal/record"
)

// statsOutput is CacheStats with a text rendering.
type statsOutput record.CacheStats

func (s statsOutput) String() string {
	state := "offline"
	if s.IsOnline {
		state = "online"
	}
	return fmt.Sprintf("events:          %d\nnotifications:   %d\nuserPreferences: %d\npendingActions:  %d\nconnectivity:    %s",
		s.Events, s.Notifications, s.UserPreferences, s.PendingActions, state)
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Long: `Show record counts per partition and the connectivity state.

Example:
  civicsync stats --db ./civicsync.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.Cache.GetCacheStats(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read stats", err)
				}
				return opts.formatter(cmd).Success(statsOutput(stats))
			})
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear cached events, notifications and preferences",
		Long: `Clear the events, notifications and userPreferences partitions.
Pending actions are kept; use "civicsync queue clear" to drop them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Cache.ClearAllCache(ctx); err != nil {
					return WrapExitError(ExitCommandError, "failed to clear cache", err)
				}
				return opts.formatter(cmd).Success("cache cleared")
			})
		},
	}
}
