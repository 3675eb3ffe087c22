// Package connectivity tracks whether the client believes it is online.
//
// Monitor is a two-state machine fed by platform signals (Signal, Watch).
// On every real transition it runs the reconnect triggers (online only),
// then listeners in subscription order, then publishes a StateChange on the
// Broadcaster. Re-signalling the current state does nothing.
//
// The state is only as fresh as the last signal: with no signal source the
// monitor never notices a change. HTTPProber is the signal source used by
// the CLI and server.
package connectivity
