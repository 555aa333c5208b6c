// zkcli is a command line client for coordination servers, plus a standalone server for
// local use.
package main

import (
	"context"
	"errors"
	"fmt"
	golog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dermesser/zkmux/client"
	"github.com/dermesser/zkmux/log"
	"github.com/dermesser/zkmux/proto"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	server            string
	sessionTimeout    time.Duration
	dialTimeout       time.Duration
	requestTimeout    time.Duration
	reconnectAttempts uint
	backoff           time.Duration
	maxBackoff        time.Duration
	readOnly          bool
	sessionFile       string
	loglevel          int
	rpclog            bool
}

var flags globalFlags

func main() {
	rootCmd := &cobra.Command{
		Use:   "zkcli",
		Short: "Talk to a coordination server",
		Long: `zkcli runs single operations against a coordination server speaking the
ZooKeeper client protocol, watches nodes, and can run a standalone in-memory server.

With --session-file, the session is saved instead of closed when the command ends and
resumed by the next command using the same file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetLoglevel(flags.loglevel)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.server, "server", "s", "127.0.0.1:2181", "Server address")
	pf.DurationVar(&flags.sessionTimeout, "session-timeout", 30*time.Second, "Requested session timeout")
	pf.DurationVar(&flags.dialTimeout, "dial-timeout", 5*time.Second, "Timeout for connecting and the handshake")
	pf.DurationVar(&flags.requestTimeout, "request-timeout", 0, "Per-request timeout (0: none)")
	pf.UintVar(&flags.reconnectAttempts, "reconnect-attempts", 5, "Reconnection attempts before giving up on the session")
	pf.DurationVar(&flags.backoff, "backoff", 100*time.Millisecond, "Wait before the first reconnection attempt")
	pf.DurationVar(&flags.maxBackoff, "max-backoff", 5*time.Second, "Upper bound for the wait between attempts")
	pf.BoolVar(&flags.readOnly, "read-only", false, "Ask for a read-only session")
	pf.StringVar(&flags.sessionFile, "session-file", "", "Resume the session saved in this file and save it again afterwards")
	pf.IntVar(&flags.loglevel, "loglevel", log.LOGLEVEL_WARNINGS, "0 (none) to 4 (debug)")
	pf.BoolVar(&flags.rpclog, "rpclog", false, "Log every request to stderr")

	rootCmd.AddCommand(
		createCmd(),
		getCmd(),
		setCmd(),
		rmCmd(),
		lsCmd(),
		statCmd(),
		watchCmd(),
		ruokCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rpcLogger() *golog.Logger {
	if !flags.rpclog {
		return nil
	}
	return golog.New(os.Stderr, "rpc ", golog.LstdFlags|golog.Lmicroseconds)
}

func params() (*client.ClientParams, error) {
	p := client.NewParams().
		SessionTimeout(flags.sessionTimeout).
		DialTimeout(flags.dialTimeout).
		RequestTimeout(flags.requestTimeout).
		ReconnectAttempts(flags.reconnectAttempts).
		ReconnectBackoff(flags.backoff, flags.maxBackoff).
		ReadOnly(flags.readOnly).
		RPCLogger(rpcLogger())

	if flags.sessionFile == "" {
		return p, nil
	}
	b, err := os.ReadFile(flags.sessionFile)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	} else if err != nil {
		return nil, err
	}
	snap, err := proto.UnmarshalSessionSnapshot(b)
	if err != nil {
		return nil, fmt.Errorf("session file %s: %w", flags.sessionFile, err)
	}
	return p.Resume(snap), nil
}

// signalContext is canceled by SIGINT and SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

/*
withClient connects, runs fn and then either closes the session or, with --session-file,
saves it for the next invocation.
*/
func withClient(fn func(ctx context.Context, cl *client.Client, events <-chan proto.WatchedEvent) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, err := params()
	if err != nil {
		return err
	}
	cl, events, err := client.NewClient(ctx, flags.server, p)
	if err != nil {
		return err
	}

	err = fn(ctx, cl, events)
	if flags.sessionFile == "" {
		if cerr := cl.Close(); err == nil {
			err = cerr
		}
		return err
	}

	b, serr := cl.Snapshot().Bytes()
	if serr == nil {
		serr = os.WriteFile(flags.sessionFile, b, 0600)
	}
	if err == nil {
		err = serr
	}
	return err
}
