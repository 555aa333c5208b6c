package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dermesser/zkmux/client"
	"github.com/dermesser/zkmux/server"
	"github.com/spf13/cobra"
)

func ruokCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ruok",
		Short: "Check that the server is serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := client.Ruok(ctx, flags.server); err != nil {
				return err
			}
			fmt.Println("imok")
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Give up after this long")
	return cmd
}

func serveCmd() *cobra.Command {
	var listen string
	var minTimeout, maxTimeout time.Duration
	var queueLength int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a standalone in-memory server",
		Long: `Run a standalone server keeping its tree in memory. It is meant for local
development and tests; all data is lost when it stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := server.NewServer(listen)
			if err != nil {
				return err
			}
			srv.SetSessionTimeouts(minTimeout, maxTimeout)
			srv.SetQueueLength(queueLength)
			srv.SetRPCLogger(rpcLogger())

			ctx, cancel := signalContext()
			defer cancel()
			srv.Start()
			fmt.Println("Serving on", srv.Addr())

			<-ctx.Done()
			srv.Close()
			return nil
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "127.0.0.1:2181", "Address to listen on")
	cmd.Flags().DurationVar(&minTimeout, "min-session-timeout", 200*time.Millisecond, "Lower bound for negotiated session timeouts")
	cmd.Flags().DurationVar(&maxTimeout, "max-session-timeout", 60*time.Second, "Upper bound for negotiated session timeouts")
	cmd.Flags().IntVar(&queueLength, "queue-length", 4096, "Outbound frames a connection may have queued")
	return cmd
}
