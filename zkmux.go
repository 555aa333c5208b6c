package zkmux

import (
	"context"

	"github.com/dermesser/zkmux/client"
	"github.com/dermesser/zkmux/proto"
)

// Connect establishes a session at addr with default parameters. See client.NewClient.
func Connect(ctx context.Context, addr string) (*client.Client, <-chan proto.WatchedEvent, error) {
	return client.NewClient(ctx, addr, nil)
}

// ConnectWith is Connect with explicit parameters, e.g.
// client.NewParams().SessionTimeout(10 * time.Second).
func ConnectWith(ctx context.Context, addr string, params *client.ClientParams) (*client.Client, <-chan proto.WatchedEvent, error) {
	return client.NewClient(ctx, addr, params)
}
