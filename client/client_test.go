package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/dermesser/zkmux/proto"
	"github.com/dermesser/zkmux/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) *server.Server {
	srv, err := server.NewServer("127.0.0.1:0")
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

func testParams() *ClientParams {
	return NewParams().
		SessionTimeout(2*time.Second).
		ReconnectBackoff(10*time.Millisecond, 100*time.Millisecond).
		Registry(prometheus.NewRegistry())
}

func connect(t *testing.T, srv *server.Server, params *ClientParams) (*Client, <-chan proto.WatchedEvent) {
	cl, events, err := NewClient(context.Background(), srv.Addr(), params)
	require.NoError(t, err)
	return cl, events
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			total := 0.0
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	return 0
}

func nextEvent(t *testing.T, events <-chan proto.WatchedEvent) proto.WatchedEvent {
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	return proto.WatchedEvent{}
}

func TestCreateExistsDelete(t *testing.T) {
	srv := startServer(t)
	cl, events := connect(t, srv, testParams())
	ctx := context.Background()

	stat, err := cl.Exists(ctx, "/foo", true)
	require.NoError(t, err)
	assert.Nil(t, stat)

	path, err := cl.Create(ctx, "/foo", []byte("hello world"), proto.OpenACL(), proto.ModePersistent)
	require.NoError(t, err)
	assert.Equal(t, "/foo", path)

	ev := nextEvent(t, events)
	assert.Equal(t, proto.EventNodeCreated, ev.Type)
	assert.Equal(t, "/foo", ev.Path)

	stat, err = cl.Exists(ctx, "/foo", true)
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Equal(t, int32(11), stat.DataLength)

	require.NoError(t, cl.Delete(ctx, "/foo", AnyVersion))

	stat, err = cl.Exists(ctx, "/foo", false)
	require.NoError(t, err)
	assert.Nil(t, stat)

	ev = nextEvent(t, events)
	assert.Equal(t, proto.EventNodeDeleted, ev.Type)
	assert.Equal(t, "/foo", ev.Path)

	assert.NoError(t, cl.Close())
}

func TestDataAndChildren(t *testing.T) {
	srv := startServer(t)
	cl, _ := connect(t, srv, testParams())
	defer cl.Close()
	ctx := context.Background()

	_, err := cl.Create(ctx, "/app", nil, proto.OpenACL(), proto.ModePersistent)
	require.NoError(t, err)
	for _, name := range []string{"x", "y"} {
		_, err := cl.Create(ctx, "/app/"+name, []byte(name), proto.OpenACL(), proto.ModePersistent)
		require.NoError(t, err)
	}
	seq, err := cl.Create(ctx, "/app/job-", nil, proto.OpenACL(), proto.ModePersistentSequential)
	require.NoError(t, err)
	assert.Equal(t, "/app/job-0000000002", seq)

	names, err := cl.Children(ctx, "/app", false)
	require.NoError(t, err)
	sort.Strings(names)
	assert.Equal(t, []string{"job-0000000002", "x", "y"}, names)

	stat, err := cl.SetData(ctx, "/app/x", []byte("new"), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), stat.Version)

	data, stat, err := cl.GetData(ctx, "/app/x", false)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
	assert.Equal(t, int32(3), stat.DataLength)

	require.NoError(t, cl.DeleteRecursive(ctx, "/app"))
	stat, err = cl.Exists(ctx, "/app", false)
	require.NoError(t, err)
	assert.Nil(t, stat)
	assert.NoError(t, cl.DeleteRecursive(ctx, "/app"))
}

func TestServerErrors(t *testing.T) {
	srv := startServer(t)
	cl, _ := connect(t, srv, testParams())
	defer cl.Close()
	ctx := context.Background()

	_, err := cl.Create(ctx, "/a/b", nil, proto.OpenACL(), proto.ModePersistent)
	assert.ErrorIs(t, err, proto.ErrNoNode)

	_, err = cl.Create(ctx, "/v", nil, proto.OpenACL(), proto.ModePersistent)
	require.NoError(t, err)
	_, err = cl.Create(ctx, "/v", nil, proto.OpenACL(), proto.ModePersistent)
	assert.ErrorIs(t, err, proto.ErrNodeExists)

	err = cl.Delete(ctx, "/v", 7)
	var rqerr *RequestError
	require.ErrorAs(t, err, &rqerr)
	assert.Equal(t, "BadVersion", rqerr.Status())
	assert.Equal(t, int32(7), rqerr.Expected)
	assert.Equal(t, "/v", rqerr.Path)
	assert.Contains(t, err.Error(), "expected version 7")

	_, err = cl.Exists(ctx, "relative", false)
	assert.ErrorIs(t, err, proto.ErrBadArguments)
	_, err = cl.Create(ctx, "/trailing/", nil, proto.OpenACL(), proto.ModePersistent)
	assert.ErrorIs(t, err, proto.ErrBadArguments)

	// Still healthy.
	stat, err := cl.Exists(ctx, "/v", false)
	require.NoError(t, err)
	assert.NotNil(t, stat)
}

func TestConcurrentRequests(t *testing.T) {
	srv := startServer(t)
	cl, _ := connect(t, srv, testParams())
	defer cl.Close()
	ctx := context.Background()

	const n = 50
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := cl.Create(ctx, "/n-", nil, proto.OpenACL(), proto.ModePersistentSequential)
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		assert.NoError(t, <-errs)
	}
	names, err := cl.Children(ctx, "/", false)
	require.NoError(t, err)
	assert.Len(t, names, n)
}

func TestEphemeralsGoWithTheSession(t *testing.T) {
	srv := startServer(t)
	owner, _ := connect(t, srv, testParams())
	observer, events := connect(t, srv, testParams())
	defer observer.Close()
	ctx := context.Background()

	_, err := owner.Create(ctx, "/lock", nil, proto.OpenACL(), proto.ModeEphemeral)
	require.NoError(t, err)
	stat, err := observer.Exists(ctx, "/lock", true)
	require.NoError(t, err)
	assert.Equal(t, owner.SessionID(), stat.EphemeralOwner)

	require.NoError(t, owner.Close())
	ev := nextEvent(t, events)
	assert.Equal(t, proto.EventNodeDeleted, ev.Type)
	assert.Equal(t, "/lock", ev.Path)
}

func TestReconnectKeepsSession(t *testing.T) {
	srv := startServer(t)
	reg := prometheus.NewRegistry()
	cl, events := connect(t, srv, testParams().Registry(reg))
	defer cl.Close()
	ctx := context.Background()

	id := cl.SessionID()
	_, err := cl.Create(ctx, "/eph", nil, proto.OpenACL(), proto.ModeEphemeral)
	require.NoError(t, err)

	_, err = cl.Create(ctx, "/p", nil, proto.OpenACL(), proto.ModePersistent)
	require.NoError(t, err)

	require.Equal(t, 1, srv.DropConnections())

	ev := nextEvent(t, events)
	assert.Equal(t, proto.EventSession, ev.Type)
	assert.Equal(t, proto.StateDisconnected, ev.State)

	// Queued while reconnecting; served by the next connection in submission order.
	const n = 10
	calls := make([]*call, n)
	for i := range calls {
		calls[i] = newCall(&proto.CreateRequest{Path: "/p/n-", ACL: proto.OpenACL(), Mode: proto.ModePersistentSequential})
		require.NoError(t, cl.m.enqueue(ctx, calls[i]))
	}
	stat, err := cl.Exists(ctx, "/eph", false)
	require.NoError(t, err)
	require.NotNil(t, stat)

	var lastZxid int64
	for i, c := range calls {
		r := wait(t, c)
		require.NoError(t, r.Err())
		assert.Equal(t, fmt.Sprintf("/p/n-%010d", i), r.Result().(*proto.CreateResponse).Path)
		assert.Greater(t, r.Zxid(), lastZxid)
		lastZxid = r.Zxid()
	}

	ev = nextEvent(t, events)
	assert.Equal(t, proto.StateSyncConnected, ev.State)
	assert.Equal(t, id, cl.SessionID())
	assert.Equal(t, proto.StateSyncConnected, cl.State())
	assert.Equal(t, 1.0, counterValue(t, reg, "zkmux_client_reconnects_total"))
}

func TestSessionExpiry(t *testing.T) {
	srv := startServer(t)
	cl, events := connect(t, srv, testParams())
	ctx := context.Background()

	require.True(t, srv.ExpireSession(cl.SessionID()))

	var states []proto.State
	for ev := range events {
		if ev.Type == proto.EventSession {
			states = append(states, ev.State)
		}
	}
	assert.Equal(t, []proto.State{proto.StateDisconnected, proto.StateExpired}, states)

	_, err := cl.Exists(ctx, "/", false)
	assert.ErrorIs(t, err, proto.ErrSessionExpired)
	assert.ErrorIs(t, cl.Close(), proto.ErrSessionExpired)
}

func TestGivesUpWhenServerIsGone(t *testing.T) {
	srv, err := server.NewServer("127.0.0.1:0")
	require.NoError(t, err)
	srv.Start()

	cl, events := connect(t, srv, testParams().ReconnectAttempts(2))
	srv.Close()

	for range events {
	}
	_, err = cl.Exists(context.Background(), "/", false)
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestCloseFailsLaterRequests(t *testing.T) {
	srv := startServer(t)
	cl, events := connect(t, srv, testParams())
	require.NoError(t, cl.Close())

	_, err := cl.Exists(context.Background(), "/", false)
	assert.ErrorIs(t, err, ErrClosing)
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, srv.SessionCount())
}

func TestRequestTimeout(t *testing.T) {
	srv := startServer(t)
	cl, _ := connect(t, srv, testParams().RequestTimeout(time.Nanosecond))
	defer cl.Close()

	_, err := cl.Exists(context.Background(), "/", false)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err)
}

func TestResumeFromSnapshot(t *testing.T) {
	srv := startServer(t)
	// The first client must not take the session back once it loses it.
	first, _ := connect(t, srv, testParams().ReconnectAttempts(0))
	snap := first.Snapshot()
	assert.Equal(t, first.SessionID(), snap.SessionId)
	assert.Equal(t, int32(2000), snap.TimeoutMs)

	b, err := snap.Bytes()
	require.NoError(t, err)
	back, err := proto.UnmarshalSessionSnapshot(b)
	require.NoError(t, err)

	second, _ := connect(t, srv, testParams().Resume(back))
	defer second.Close()
	assert.Equal(t, first.SessionID(), second.SessionID())
	assert.Equal(t, 1, srv.SessionCount())
}

func TestRuok(t *testing.T) {
	srv := startServer(t)
	assert.NoError(t, Ruok(context.Background(), srv.Addr()))
	srv.SetLameduck(true)
	assert.Error(t, Ruok(context.Background(), srv.Addr()))
}

func TestCustomFilters(t *testing.T) {
	srv := startServer(t)
	var seen []string
	record := func(rq *Request, next int) Response {
		seen = append(seen, rq.Op().OpCode().String()+" "+rq.Path())
		return rq.Next(next)
	}
	cl, _ := connect(t, srv, testParams().Filters(record, SendFilter))
	defer cl.Close()

	_, err := cl.Exists(context.Background(), "/x", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"exists /x"}, seen)
}

func TestMetricsCountRequests(t *testing.T) {
	srv := startServer(t)
	reg := prometheus.NewRegistry()
	cl, _ := connect(t, srv, testParams().Registry(reg))
	defer cl.Close()
	ctx := context.Background()

	cl.Exists(ctx, "/", false)
	cl.Delete(ctx, "/missing", AnyVersion)
	assert.Equal(t, 2.0, counterValue(t, reg, "zkmux_client_requests_total"))
}

func TestResumeHandshakeCarriesSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accept := func() *fakeServer {
		nc, err := ln.Accept()
		require.NoError(t, err)
		t.Cleanup(func() { nc.Close() })
		return &fakeServer{t: t, nc: nc}
	}

	password := []byte("0123456789abcdef")
	granted := &proto.ConnectResponse{Timeout: 30000, SessionID: 0x55, Password: password}

	type connected struct {
		cl     *Client
		events <-chan proto.WatchedEvent
		err    error
	}
	ch := make(chan connected, 1)
	go func() {
		cl, events, err := NewClient(context.Background(), ln.Addr().String(), testParams())
		ch <- connected{cl, events, err}
	}()

	fs := accept()
	first := fs.handshake(granted)
	assert.Zero(t, first.SessionID)
	assert.Zero(t, first.LastZxidSeen)
	res := <-ch
	require.NoError(t, res.err)
	cl := res.cl

	errc := make(chan error, 1)
	go func() {
		_, err := cl.Exists(context.Background(), "/x", false)
		errc <- err
	}()
	xid, _ := fs.readRequest()
	fs.reply(xid, 42, proto.ErrCodeOk, &proto.ExistsResponse{})
	require.NoError(t, <-errc)

	fs.nc.Close()
	assert.Equal(t, proto.StateDisconnected, nextEvent(t, res.events).State)

	again := accept()
	resumed := again.handshake(granted)
	assert.Equal(t, int64(0x55), resumed.SessionID)
	assert.Equal(t, password, resumed.Password)
	assert.Equal(t, int64(42), resumed.LastZxidSeen)
	assert.Equal(t, int32(2000), resumed.Timeout)

	assert.Equal(t, proto.StateSyncConnected, nextEvent(t, res.events).State)
	assert.Equal(t, int64(0x55), cl.SessionID())

	again.nc.Close()
	ln.Close()
	cl.Close()
}

func TestWatchOverflowDoesNotStallRequests(t *testing.T) {
	srv := startServer(t)
	reg := prometheus.NewRegistry()
	cl, _ := connect(t, srv, testParams().WatchBuffer(1).Registry(reg))
	defer cl.Close()
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		_, err := cl.Exists(ctx, fmt.Sprintf("/w%d", i), true)
		require.NoError(t, err)
	}
	// Nobody reads the event channel.
	for i := 0; i < n; i++ {
		_, err := cl.Create(ctx, fmt.Sprintf("/w%d", i), nil, proto.OpenACL(), proto.ModePersistent)
		require.NoError(t, err)
	}
	names, err := cl.Children(ctx, "/", false)
	require.NoError(t, err)
	assert.Len(t, names, n)

	// Each event is sent before the reply to the create that caused it.
	assert.Equal(t, 1.0, counterValue(t, reg, "zkmux_client_watch_events_total"))
	assert.Equal(t, float64(n-1), counterValue(t, reg, "zkmux_client_watch_events_dropped_total"))
}
