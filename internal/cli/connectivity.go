package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/civicsync/internal/config"
	"github.com/roach88/civicsync/internal/connectivity"
)

const controlTimeout = 5 * time.Second

// stateOutput is a StateChange with a text rendering.
type stateOutput connectivity.StateChange

func (s stateOutput) String() string {
	if s.IsOnline {
		return "online"
	}
	return "offline"
}

// NewConnectivityCommand creates the connectivity command.
func NewConnectivityCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connectivity [online|offline]",
		Short: "Probe connectivity or override it on a running server",
		Long: `Without an argument, probe probe_url once and print the result.

With online or offline, send a manual connectivity signal to the
"civicsync serve" instance listening on listen_addr. Going online there
replays pending actions.

Examples:
  civicsync connectivity --config ./civicsync.yaml
  civicsync connectivity offline --listen 127.0.0.1:8787`,
		Args:          cobra.MaximumNArgs(1),
		ValidArgs:     []string{"online", "offline"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			if len(args) == 0 {
				if cfg.ProbeURL == "" {
					return NewExitError(ExitCommandError, "no probe_url configured")
				}
				prober := connectivity.NewHTTPProber(cfg.ProbeURL,
					connectivity.WithProberLogger(opts.newLogger(cfg, cmd.ErrOrStderr())),
				)
				online := prober.Probe(ctx)
				return opts.formatter(cmd).Success(stateOutput{IsOnline: online})
			}

			var online bool
			switch args[0] {
			case "online":
				online = true
			case "offline":
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid state %q: must be online or offline", args[0]))
			}
			state, err := postConnectivity(ctx, cfg, online)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(stateOutput(state))
		},
	}
}

// postConnectivity sends a manual signal to the running API.
func postConnectivity(ctx context.Context, cfg config.Config, online bool) (connectivity.StateChange, error) {
	var state connectivity.StateChange

	body, err := json.Marshal(map[string]bool{"online": online})
	if err != nil {
		return state, err
	}
	ctx, cancel := context.WithTimeout(ctx, controlTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBaseURL(cfg.ListenAddr)+"/connectivity", bytes.NewReader(body))
	if err != nil {
		return state, WrapExitError(ExitCommandError, "invalid listen address", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return state, WrapExitError(ExitCommandError, "server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return state, NewExitError(ExitCommandError, fmt.Sprintf("server returned %s", resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return state, WrapExitError(ExitCommandError, "invalid server response", err)
	}
	return state, nil
}

// apiBaseURL turns a listen address into a URL. An address without a host
// targets loopback.
func apiBaseURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen
}
