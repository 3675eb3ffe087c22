package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/civicsync/internal/app"
	"github.com/roach88/civicsync/internal/cache"
	"github.com/roach88/civicsync/internal/record"
)

// actionList prints one action per line in text mode.
type actionList []record.PendingAction

func (l actionList) String() string {
	if len(l) == 0 {
		return "(no pending actions)"
	}
	var b strings.Builder
	for i, a := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		payload, err := record.MarshalCanonical(a.Payload)
		if err != nil {
			payload = []byte(err.Error())
		}
		fmt.Fprintf(&b, "%d\t%s\t%s\t%s", a.ID, a.Timestamp.UTC().Format(time.RFC3339), a.IdempotencyKey, payload)
	}
	return b.String()
}

// submitOutput is a SubmitResult with a text rendering.
type submitOutput cache.SubmitResult

func (s submitOutput) String() string {
	if s.Status == cache.StatusDelivered {
		return "delivered"
	}
	msg := fmt.Sprintf("queued as action %d (%s)", s.ActionID, s.Reason)
	if s.Error != "" {
		msg += ": " + s.Error
	}
	return msg
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <json|->",
		Short: "Submit a mutation, queueing it when it cannot be delivered",
		Long: `Submit a mutation payload (a JSON object).

Online with an empty queue, the payload is delivered immediately. Offline,
behind already queued actions, or when delivery fails, it is queued for the
next sync.

Example:
  civicsync submit '{"op":"rsvp","event":"e1"}' --endpoint https://api.example.org/actions`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Cache.Submit(ctx, payload)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to submit", err)
				}
				// A sync triggered behind the queue finishes before the store closes.
				a.Engine.Wait()
				return opts.formatter(cmd).Success(submitOutput(res))
			})
		},
	}
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage pending actions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:           "add <json|->",
		Short:         "Queue a mutation without attempting delivery",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				action, err := a.Cache.QueueAction(ctx, payload)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to queue action", err)
				}
				return opts.formatter(cmd).Success(actionList{action})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List pending actions in replay order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				actions, err := a.Cache.PendingActions(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list actions", err)
				}
				if actions == nil {
					actions = []record.PendingAction{}
				}
				return opts.formatter(cmd).Success(actionList(actions))
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Drop every pending action",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Cache.ClearPendingActions(ctx); err != nil {
					return WrapExitError(ExitCommandError, "failed to clear actions", err)
				}
				return opts.formatter(cmd).Success("pending actions cleared")
			})
		},
	})
	return cmd
}

func readPayload(cmd *cobra.Command, arg string) (record.Record, error) {
	data, err := readJSONArg(cmd, arg)
	if err != nil {
		return nil, err
	}
	payload, err := record.UnmarshalRecord(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid JSON", err)
	}
	return payload, nil
}
