package client

import (
	"context"
	"errors"
	"fmt"
	golog "log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dermesser/zkmux/proto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// AnyVersion makes Delete and SetData skip the version check.
const AnyVersion int32 = -1

/*
Client is the front door to one session. It is safe for concurrent use: every call is an
independent request multiplexed over the session's connection, and callers only wait for
their own reply.

Operations fail with a *RequestError when the server rejects them (the session stays
usable), with ErrConnectionLost when the connection serving them broke, and with the
context's error when the caller gave up waiting.
*/
type Client struct {
	addr   PeerAddress
	params ClientParams
	m      *manager

	filters   []ClientFilter
	tracer    trace.Tracer
	metrics   *clientMetrics
	rpclogger *golog.Logger

	// unix nanoseconds
	lastUsed atomic.Int64
}

/*
Connect to the server at addr ("host:port", or just "host" for port 2181) and establish a
session. The returned channel carries watch notifications and session state changes
(events of type proto.EventSession). It is buffered; events arriving while it is full are
dropped. It is closed after the client has shut down.

params may be nil, in which case NewParams() is used.
*/
func NewClient(ctx context.Context, addr string, params *ClientParams) (*Client, <-chan proto.WatchedEvent, error) {
	if params == nil {
		params = NewParams()
	}
	pa, err := ParseAddress(addr)
	if err != nil {
		return nil, nil, err
	}

	cl := &Client{
		addr:      pa,
		params:    *params,
		filters:   params.filters,
		tracer:    otel.Tracer(params.tracerName),
		metrics:   newClientMetrics(params.registry),
		rpclogger: params.rpclogger,
	}
	if len(cl.filters) == 0 {
		cl.filters = default_filters
	}
	cl.touch()

	cl.m, err = newManager(ctx, pa, &cl.params, cl.metrics)
	if err != nil {
		return nil, nil, err
	}
	return cl, cl.m.events, nil
}

func (cl *Client) touch() {
	cl.lastUsed.Store(time.Now().UnixNano())
}

func (cl *Client) lastUsedTime() time.Time {
	return time.Unix(0, cl.lastUsed.Load())
}

// Addr returns the address of the server.
func (cl *Client) Addr() string {
	return cl.addr.String()
}

// SessionID returns the server-assigned session id. It does not change across reconnects.
func (cl *Client) SessionID() int64 {
	return cl.m.SessionID()
}

// State returns proto.StateSyncConnected while a connection is live.
func (cl *Client) State() proto.State {
	return proto.State(cl.m.state.Load())
}

// Snapshot returns what is needed to resume this session from another process, see
// ClientParams.Resume.
func (cl *Client) Snapshot() *proto.SessionSnapshot {
	return cl.m.snapshot()
}

/*
Close ends the session. Requests submitted before Close are still served. The server
removes the session's ephemeral nodes.
*/
func (cl *Client) Close() error {
	return cl.m.close()
}

func (cl *Client) request(ctx context.Context, op proto.Request, path string, expected int32) Response {
	rq := &Request{client: cl, ctx: ctx, op: op, path: path, expected: expected}
	return rq.Go()
}

func validatePath(path string, sequential bool) error {
	switch {
	case path == "":
		return fmt.Errorf("%w: empty path", proto.ErrBadArguments)
	case path[0] != '/':
		return fmt.Errorf("%w: path %q is not absolute", proto.ErrBadArguments, path)
	case path == "/":
		return nil
	case strings.HasSuffix(path, "/") && !sequential:
		return fmt.Errorf("%w: path %q ends in /", proto.ErrBadArguments, path)
	case strings.Contains(path, "//"):
		return fmt.Errorf("%w: path %q has an empty component", proto.ErrBadArguments, path)
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("%w: path %q contains a null character", proto.ErrBadArguments, path)
	}
	return nil
}

/*
Create a node at path and return the path actually created (which differs from path for
sequential nodes). Typical errors are proto.ErrNoNode (the parent is missing),
proto.ErrNodeExists, proto.ErrInvalidACL and proto.ErrNoChildrenForEphemerals.
*/
func (cl *Client) Create(ctx context.Context, path string, data []byte, acl []proto.ACL, mode proto.CreateMode) (string, error) {
	if err := validatePath(path, mode.IsSequential()); err != nil {
		return "", err
	}
	rsp := cl.request(ctx, &proto.CreateRequest{Path: path, Data: data, ACL: acl, Mode: mode}, path, AnyVersion)
	if !rsp.Ok() {
		return "", rsp.Err()
	}
	return rsp.Result().(*proto.CreateResponse).Path, nil
}

// Exists returns the node's Stat, or nil if there is no node at path. With watch set, the
// server notifies about the node's creation, deletion or change.
func (cl *Client) Exists(ctx context.Context, path string, watch bool) (*proto.Stat, error) {
	if err := validatePath(path, false); err != nil {
		return nil, err
	}
	rsp := cl.request(ctx, &proto.ExistsRequest{Path: path, Watch: watch}, path, AnyVersion)
	if errors.Is(rsp.Err(), proto.ErrNoNode) {
		return nil, nil
	} else if !rsp.Ok() {
		return nil, rsp.Err()
	}
	stat := rsp.Result().(*proto.ExistsResponse).Stat
	return &stat, nil
}

/*
Delete the node at path if its version matches; pass AnyVersion to skip the check.
Typical errors are proto.ErrNoNode, proto.ErrNotEmpty and proto.ErrBadVersion; for the
latter, the *RequestError carries the expected version.
*/
func (cl *Client) Delete(ctx context.Context, path string, version int32) error {
	if err := validatePath(path, false); err != nil {
		return err
	}
	rsp := cl.request(ctx, &proto.DeleteRequest{Path: path, Version: version}, path, version)
	return rsp.Err()
}

// GetData returns the node's contents and Stat.
func (cl *Client) GetData(ctx context.Context, path string, watch bool) ([]byte, *proto.Stat, error) {
	if err := validatePath(path, false); err != nil {
		return nil, nil, err
	}
	rsp := cl.request(ctx, &proto.GetDataRequest{Path: path, Watch: watch}, path, AnyVersion)
	if !rsp.Ok() {
		return nil, nil, rsp.Err()
	}
	r := rsp.Result().(*proto.GetDataResponse)
	return r.Data, &r.Stat, nil
}

// SetData replaces the node's contents if its version matches (or version is AnyVersion).
func (cl *Client) SetData(ctx context.Context, path string, data []byte, version int32) (*proto.Stat, error) {
	if err := validatePath(path, false); err != nil {
		return nil, err
	}
	rsp := cl.request(ctx, &proto.SetDataRequest{Path: path, Data: data, Version: version}, path, version)
	if !rsp.Ok() {
		return nil, rsp.Err()
	}
	stat := rsp.Result().(*proto.SetDataResponse).Stat
	return &stat, nil
}

// Children returns the names (not paths) of the node's children, unsorted.
func (cl *Client) Children(ctx context.Context, path string, watch bool) ([]string, error) {
	if err := validatePath(path, false); err != nil {
		return nil, err
	}
	rsp := cl.request(ctx, &proto.GetChildrenRequest{Path: path, Watch: watch}, path, AnyVersion)
	if !rsp.Ok() {
		return nil, rsp.Err()
	}
	return rsp.Result().(*proto.GetChildrenResponse).Children, nil
}

// DeleteRecursive deletes path and everything below it. A missing node is not an error.
func (cl *Client) DeleteRecursive(ctx context.Context, path string) error {
	children, err := cl.Children(ctx, path, false)
	if errors.Is(err, proto.ErrNoNode) {
		return nil
	} else if err != nil {
		return err
	}

	for _, child := range children {
		if err := cl.DeleteRecursive(ctx, joinPath(path, child)); err != nil {
			return err
		}
	}

	err = cl.Delete(ctx, path, AnyVersion)
	if errors.Is(err, proto.ErrNoNode) {
		return nil
	}
	return err
}

func joinPath(parent, child string) string {
	if parent == "/" {
		return "/" + child
	}
	return parent + "/" + child
}
