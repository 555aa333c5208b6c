/*
Package zkmux is a client for coordination services speaking the ZooKeeper client protocol.

One Client holds one session. Its operations are multiplexed over a single TCP connection:
any number of goroutines may have requests in flight, and each waits only for its own
reply. When the connection breaks, the client reconnects with backoff and resumes the
same session, so ephemeral nodes and watches survive short outages. Requests submitted
while reconnecting wait in a bounded queue and are sent once the session is back.

Packages:

	proto    the wire codec: request and response types, error codes, session snapshots
	frame    length-prefixed framing over a byte stream
	client   connections, the reconnecting session manager and the Client handle
	server   a standalone in-memory server for tests and local development
	log      leveled logging shared by all of the above

E.g.:

	cl, events, err := zkmux.Connect(ctx, "127.0.0.1:2181")
	if err != nil {
		return err
	}
	defer cl.Close()

	stat, err := cl.Exists(ctx, "/config", true)
	...
	for ev := range events {
		// NodeCreated, NodeDataChanged, ... and session state changes
	}

The zkcli command (cmd/zkcli) exposes the client on the command line and can run the
standalone server.
*/
package zkmux
