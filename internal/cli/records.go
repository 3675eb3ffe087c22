package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/civicsync/internal/app"
	"github.com/roach88/civicsync/internal/record"
)

var errRecordNotFound = errors.New("record not found")

// recordLines prints one canonical JSON record per line in text mode.
type recordLines []record.Record

func (r recordLines) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	items := make([]any, len(r))
	for i, rec := range r {
		items[i] = rec
	}
	return record.MarshalCanonical(items)
}

func (r recordLines) String() string {
	var b strings.Builder
	for i, rec := range r {
		if i > 0 {
			b.WriteByte('\n')
		}
		data, err := record.MarshalCanonical(rec)
		if err != nil {
			b.WriteString(err.Error())
			continue
		}
		b.Write(data)
	}
	if len(r) == 0 {
		return "(no records)"
	}
	return b.String()
}

// RecordsListOptions holds flags for records list.
type RecordsListOptions struct {
	*RootOptions
	Category string
	From     string
	To       string
}

// NewRecordsCommand creates the records command group.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Read and write cached records",
		Long: `Read and write records in a cache partition.

Partitions: events, notifications, userPreferences, pendingActions.`,
	}
	cmd.AddCommand(newRecordsListCommand(rootOpts))
	cmd.AddCommand(newRecordsGetCommand(rootOpts))
	cmd.AddCommand(newRecordsPutCommand(rootOpts))
	cmd.AddCommand(newRecordsDeleteCommand(rootOpts))
	return cmd
}

func newRecordsListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsListOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "list <partition>",
		Short: "List every record of a partition",
		Long: `List every record of a partition in key order.

For events, --category selects one category and --from/--to select a
start_date range (from inclusive, to exclusive).

Examples:
  civicsync records list events
  civicsync records list events --category council
  civicsync records list events --from 2024-03-01 --to 2024-04-01 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePartition(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var records []record.Record
				switch {
				case p == record.Events && cmd.Flags().Changed("category"):
					records, err = a.Cache.EventsByCategory(ctx, opts.Category)
				case p == record.Events && (opts.From != "" || opts.To != ""):
					records, err = a.Cache.EventsStartingBetween(ctx, opts.From, opts.To)
				default:
					records, err = a.Cache.GetCachedRecords(ctx, p)
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list records", err)
				}
				return opts.formatter(cmd).Success(recordLines(records))
			})
		},
	}
	cmd.Flags().StringVar(&opts.Category, "category", "", "only events in this category")
	cmd.Flags().StringVar(&opts.From, "from", "", "only events starting at or after this date")
	cmd.Flags().StringVar(&opts.To, "to", "", "only events starting before this date")
	return cmd
}

func newRecordsGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <partition> <key>",
		Short:         "Print one record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePartition(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				r, found, err := a.Cache.GetRecord(ctx, p, args[1])
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read record", err)
				}
				if !found {
					return WrapExitError(ExitFailure, args[1], errRecordNotFound)
				}
				return opts.formatter(cmd).Success(r)
			})
		},
	}
}

func newRecordsPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <partition> <json|->",
		Short: "Upsert records",
		Long: `Upsert one record (a JSON object) or many (a JSON array) into a partition.
Use - to read the JSON from stdin. Each record is written on its own.

Examples:
  civicsync records put events '{"id":"e1","title":"Town hall"}'
  civicsync records put notifications - < notifications.json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePartition(args[0])
			if err != nil {
				return err
			}
			data, err := readJSONArg(cmd, args[1])
			if err != nil {
				return err
			}
			records, err := record.ParseRecords(data)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid JSON", err)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Cache.CacheRecords(ctx, p, records)
				out := map[string]any{"written": res.Written}
				if err != nil {
					_ = opts.formatter(cmd).Success(out)
					return WrapExitError(ExitFailure, "some records were not written", err)
				}
				return opts.formatter(cmd).Success(out)
			})
		},
	}
}

func newRecordsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <partition> <key>",
		Short:         "Delete one record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePartition(args[0])
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Cache.DeleteRecord(ctx, p, args[1]); err != nil {
					return WrapExitError(ExitCommandError, "failed to delete record", err)
				}
				return opts.formatter(cmd).Success("deleted")
			})
		},
	}
}

func parsePartition(name string) (record.Partition, error) {
	p, err := record.ParsePartition(name)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid partition", err)
	}
	return p, nil
}

// readJSONArg returns arg, or stdin when arg is "-".
func readJSONArg(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	in := cmd.InOrStdin()
	if in == nil {
		in = os.Stdin
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read stdin", err)
	}
	return data, nil
}
