package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/dermesser/zkmux/log"
	"github.com/dermesser/zkmux/proto"
)

// A TCP/IP address
type PeerAddress struct {
	host string
	port uint
}

// Construct a new peer address.
func Peer(host string, port uint) PeerAddress {
	return PeerAddress{host: host, port: port}
}

// ParseAddress accepts "host:port" or a bare host, which gets the default port 2181.
func ParseAddress(addr string) (PeerAddress, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// no port
		if addr == "" {
			return PeerAddress{}, fmt.Errorf("empty address")
		}
		return Peer(addr, proto.DefaultPort), nil
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return PeerAddress{}, fmt.Errorf("bad port in %q: %w", addr, err)
	}
	if host == "" {
		host = "localhost"
	}
	return Peer(host, uint(p)), nil
}

func (pa PeerAddress) String() string {
	return net.JoinHostPort(pa.host, strconv.FormatUint(uint64(pa.port), 10))
}

func (pa PeerAddress) GoString() string {
	return pa.String()
}

// dial opens a TCP connection to the peer.
func dial(ctx context.Context, pa PeerAddress) (net.Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", pa.String())
	if err != nil {
		log.ZK_log(log.LOGLEVEL_WARNINGS, "Could not connect to", pa.String(), err.Error())
		return nil, err
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return nc, nil
}

/*
Ruok sends the "ruok" four-letter command and reports whether the server answered
"imok". The command is sent on a fresh connection that carries no session.
*/
func Ruok(ctx context.Context, addr string) error {
	pa, err := ParseAddress(addr)
	if err != nil {
		return err
	}
	nc, err := dial(ctx, pa)
	if err != nil {
		return err
	}
	defer nc.Close()

	if deadline, ok := ctx.Deadline(); ok {
		nc.SetDeadline(deadline)
	} else {
		nc.SetDeadline(time.Now().Add(10 * time.Second))
	}
	if _, err := nc.Write([]byte("ruok")); err != nil {
		return err
	}
	answer, err := io.ReadAll(io.LimitReader(nc, 64))
	if err != nil {
		return err
	}
	if string(answer) != "imok" {
		return fmt.Errorf("server %s is not ok: %q", pa, logString(answer))
	}
	return nil
}
