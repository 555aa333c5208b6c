package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dermesser/zkmux/client"
	"github.com/dermesser/zkmux/log"
	"github.com/dermesser/zkmux/proto"
	zmq "github.com/pebbe/zmq4"
	"github.com/spf13/cobra"
)

// publisher relays events on a ZeroMQ PUB socket as [type, path, state] messages.
type publisher struct {
	sock *zmq.Socket
}

func newPublisher(endpoint string) (*publisher, error) {
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := sock.Bind(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bind %s: %w", endpoint, err)
	}
	log.ZK_log(log.LOGLEVEL_INFO, "Publishing events on", endpoint)
	return &publisher{sock: sock}, nil
}

func (p *publisher) publish(ev proto.WatchedEvent) {
	if _, err := p.sock.SendMessage(ev.Type.String(), ev.Path, ev.State.String()); err != nil {
		log.ZK_log(log.LOGLEVEL_WARNINGS, "Could not publish", ev.String(), err.Error())
	}
}

func (p *publisher) Close() error {
	return p.sock.Close()
}

func watchCmd() *cobra.Command {
	var children bool
	var count int
	var endpoint string

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Print changes to a node until interrupted",
		Long: `Watch a node and print one line per event. Watches fire once; zkcli sets them
again after every event. With --children, changes to the node's children are reported too.
With --publish, events are also sent on a ZeroMQ PUB socket bound to the given endpoint,
e.g. tcp://*:5556.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pub *publisher
			if endpoint != "" {
				var err error
				if pub, err = newPublisher(endpoint); err != nil {
					return err
				}
				defer pub.Close()
			}

			path := args[0]
			return withClient(func(ctx context.Context, cl *client.Client, events <-chan proto.WatchedEvent) error {
				arm := func() error {
					if _, err := cl.Exists(ctx, path, true); err != nil {
						return err
					}
					if !children {
						return nil
					}
					_, err := cl.Children(ctx, path, true)
					if err == nil || errors.Is(err, proto.ErrNoNode) {
						return nil
					}
					return err
				}
				if err := arm(); err != nil {
					return err
				}

				for seen := 0; count <= 0 || seen < count; seen++ {
					select {
					case ev, ok := <-events:
						if !ok {
							return fmt.Errorf("session ended")
						}
						fmt.Println(ev.String())
						if pub != nil {
							pub.publish(ev)
						}
						if ev.Type == proto.EventSession {
							continue
						}
						if err := arm(); err != nil {
							return err
						}
					case <-ctx.Done():
						return nil
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&children, "children", "c", false, "Also watch the node's children")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many events (0: never)")
	cmd.Flags().StringVar(&endpoint, "publish", "", "ZeroMQ endpoint to publish events on")
	return cmd
}
