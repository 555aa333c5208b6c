package client

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync/atomic"
	"time"

	"github.com/dermesser/zkmux/frame"
	"github.com/dermesser/zkmux/log"
	"github.com/dermesser/zkmux/proto"
)

// call is a request handed to a connection together with its completion slot.
type call struct {
	rq   proto.Request
	done chan Response
}

func newCall(rq proto.Request) *call {
	return &call{rq: rq, done: make(chan Response, 1)}
}

// complete never blocks: the slot has room for the one Response it ever receives.
func (cl *call) complete(rsp Response) {
	cl.done <- rsp
}

type readResult struct {
	b   []byte
	err error
}

type writeResult struct {
	n   int
	err error
}

/*
A conn is one connection generation: a TCP connection carrying one session handshake
followed by multiplexed requests.

All buffers, the pending table and the xid counter belong to the drive loop in run(). Two
helper goroutines do the blocking socket I/O: readLoop forwards received chunks, writeLoop
writes whatever slice it is handed and reports how much went out. New frames are only ever
appended behind the slice being written.
*/
type conn struct {
	id string
	nc net.Conn

	// Closed by the manager to initiate a graceful close.
	requests <-chan *call
	watch    func(proto.WatchedEvent)
	lastZxid *atomic.Int64
	metrics  *clientMetrics

	out     frame.Outbox
	in      frame.Inbox
	pending map[int32]*call
	xid     int32

	// Waiting for the handshake reply until established.
	handshake    *call
	established  bool
	exiting      bool
	closeAcked   bool
	closed       bool
	writing      bool
	pingInterval time.Duration
	heartbeat    *time.Timer

	// Negotiated session timeout in nanoseconds. Read by the I/O goroutines.
	ioTimeout atomic.Int64

	chunks  chan readResult
	writes  chan []byte
	written chan writeResult
	quit    chan struct{}

	// Set before finished is closed.
	err      error
	finished chan struct{}
}

func newConn(nc net.Conn, hs *proto.ConnectRequest, requests <-chan *call, watch func(proto.WatchedEvent),
	lastZxid *atomic.Int64, metrics *clientMetrics) *conn {
	return &conn{
		id:        log.GetLogToken(),
		nc:        nc,
		requests:  requests,
		watch:     watch,
		lastZxid:  lastZxid,
		metrics:   metrics,
		pending:   make(map[int32]*call),
		handshake: newCall(hs),
		chunks:    make(chan readResult, 1),
		writes:    make(chan []byte, 1),
		written:   make(chan writeResult, 1),
		quit:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// handshakeDone delivers the handshake outcome. Must be fetched before run is started.
func (c *conn) handshakeDone() <-chan Response {
	return c.handshake.done
}

// kill severs the transport. run fails everything outstanding and returns.
func (c *conn) kill() {
	c.nc.Close()
}

func (c *conn) run() {
	err := c.drive()
	c.shutdown(err)
}

func (c *conn) drive() error {
	go c.readLoop()
	go c.writeLoop()

	log.ZK_log(log.LOGLEVEL_DEBUG, "conn", c.id, "handshake with", c.nc.RemoteAddr())
	c.writeFrame(0, c.handshake.rq)

	for {
		if !c.writing && c.out.Len() > 0 {
			c.writing = true
			c.writes <- c.out.Pending()
		}

		var requests <-chan *call
		if c.established && !c.exiting {
			requests = c.requests
		}
		var tick <-chan time.Time
		if c.heartbeat != nil {
			tick = c.heartbeat.C
		}

		select {
		case cl, ok := <-requests:
			if !ok {
				c.beginClose()
				continue
			}
			c.submit(cl)
		case r := <-c.chunks:
			if r.err != nil {
				return c.endOfStream(r.err)
			}
			c.in.Feed(r.b)
			if err := c.dispatchAll(); err != nil {
				return err
			}
			if c.closed {
				return c.finishClose()
			}
		case w := <-c.written:
			c.writing = false
			c.out.Advance(w.n)
			if w.err != nil && !frame.IsTimeout(w.err) {
				return fmt.Errorf("write: %w", w.err)
			}
			c.rearm()
		case <-tick:
			if c.out.Len() == 0 && !c.exiting {
				c.writeFrame(proto.XidPing, &proto.PingRequest{})
				c.metrics.pings.Inc()
			}
			c.rearm()
		}
	}
}

func (c *conn) readLoop() {
	buf := make([]byte, 16*1024)
	for {
		if d := c.ioTimeout.Load(); d > 0 {
			c.nc.SetReadDeadline(time.Now().Add(time.Duration(d)))
		}
		n, err := c.nc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- readResult{b: chunk}:
			case <-c.quit:
				return
			}
		}
		if err != nil {
			select {
			case c.chunks <- readResult{err: err}:
			case <-c.quit:
			}
			return
		}
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case b := <-c.writes:
			if d := c.ioTimeout.Load(); d > 0 {
				c.nc.SetWriteDeadline(time.Now().Add(time.Duration(d)))
			}
			n, err := c.nc.Write(b)
			select {
			case c.written <- writeResult{n: n, err: err}:
			case <-c.quit:
				return
			}
		case <-c.quit:
			return
		}
	}
}

func (c *conn) nextXid() int32 {
	if c.xid == math.MaxInt32 {
		c.xid = 0
	}
	c.xid++
	return c.xid
}

// writeFrame appends one request frame. The handshake carries neither xid nor opcode.
func (c *conn) writeFrame(xid int32, rq proto.Request) {
	op := rq.OpCode()
	c.out.Frame(func(b []byte) []byte {
		if op != proto.OpConnect {
			b = proto.AppendRequestHeader(b, xid, op)
		}
		return proto.AppendRequest(b, rq)
	})
}

// submit assigns an xid to a caller's request, records it and serializes it.
func (c *conn) submit(cl *call) {
	switch cl.rq.OpCode() {
	case proto.OpConnect, proto.OpPing, proto.OpCloseSession:
		cl.complete(Response{err: fmt.Errorf("%w: %s is reserved", proto.ErrBadArguments, cl.rq.OpCode())})
		return
	}
	xid := c.nextXid()
	c.pending[xid] = cl
	c.metrics.pending.Inc()
	c.writeFrame(xid, cl.rq)
	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.ZK_log(log.LOGLEVEL_DEBUG, "conn", c.id, "sent", cl.rq.OpCode(), "xid", xid)
	}
}

func (c *conn) beginClose() {
	log.ZK_log(log.LOGLEVEL_INFO, "conn", c.id, "closing session")
	c.exiting = true
	c.writeFrame(proto.XidSession, &proto.CloseRequest{})
}

func (c *conn) rearm() {
	if c.heartbeat == nil {
		return
	}
	if !c.heartbeat.Stop() {
		select {
		case <-c.heartbeat.C:
		default:
		}
	}
	c.heartbeat.Reset(c.pingInterval)
}

func (c *conn) dispatchAll() error {
	for {
		payload, ok, err := c.in.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := c.dispatch(payload); err != nil {
			return err
		}
		if c.closed {
			return nil
		}
	}
}

func (c *conn) dispatch(payload []byte) error {
	if !c.established {
		return c.handshakeReply(payload)
	}
	if len(payload) == 0 {
		if c.exiting {
			c.closed = true
			return nil
		}
		return fmt.Errorf("%w: empty frame", proto.ErrMalformed)
	}

	h, body, err := proto.DecodeReplyHeader(payload)
	if err != nil {
		return err
	}
	if h.Zxid > c.lastZxid.Load() {
		c.lastZxid.Store(h.Zxid)
	}

	switch h.Xid {
	case proto.XidWatchEvent:
		ev, err := proto.DecodeWatchedEvent(body)
		if err != nil {
			return err
		}
		c.watch(ev)
		return nil
	case proto.XidPing:
		return nil
	case proto.XidSession:
		if c.exiting {
			c.closeAcked = true
			return nil
		}
		return fmt.Errorf("%w: 0 outside of close", ErrUnknownXid)
	}

	cl, ok := c.pending[h.Xid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownXid, h.Xid)
	}
	delete(c.pending, h.Xid)
	c.metrics.pending.Dec()

	op := cl.rq.OpCode()
	if h.Err != proto.ErrCodeOk {
		cl.complete(Response{err: &RequestError{Op: op, Code: h.Err, Expected: -1}, zxid: h.Zxid})
		return nil
	}
	rsp, err := proto.DecodeResponse(op, body)
	if err != nil {
		cl.complete(Response{err: err})
		return fmt.Errorf("reply to %s xid %d: %w", op, h.Xid, err)
	}
	cl.complete(Response{rsp: rsp, zxid: h.Zxid})
	return nil
}

func (c *conn) handshakeReply(payload []byte) error {
	rsp, err := proto.DecodeResponse(proto.OpConnect, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	cr := rsp.(*proto.ConnectResponse)
	asked := c.handshake.rq.(*proto.ConnectRequest).SessionID
	if cr.Timeout <= 0 || cr.SessionID == 0 || (asked != 0 && cr.SessionID != asked) {
		return fmt.Errorf("%w: session %#x", proto.ErrSessionExpired, asked)
	}

	c.established = true
	timeout := time.Duration(cr.Timeout) * time.Millisecond
	c.ioTimeout.Store(int64(timeout))
	c.pingInterval = timeout * 2 / 3
	c.heartbeat = time.NewTimer(c.pingInterval)

	log.ZK_log(log.LOGLEVEL_INFO, "conn", c.id, fmt.Sprintf("session %#x established, timeout %v", cr.SessionID, timeout))
	c.handshake.complete(Response{rsp: cr})
	c.handshake = nil
	return nil
}

func (c *conn) endOfStream(err error) error {
	if err == io.EOF {
		err = c.in.EOF()
	}
	if err != io.EOF {
		return err
	}
	if c.exiting {
		return c.finishClose()
	}
	return errors.New("server closed the connection")
}

func (c *conn) finishClose() error {
	if !c.closeAcked {
		log.ZK_log(log.LOGLEVEL_DEBUG, "conn", c.id, "stream ended before close acknowledgment")
	}
	if len(c.pending) > 0 {
		return fmt.Errorf("%w: %d", ErrPendingOnClose, len(c.pending))
	}
	return nil
}

// shutdown releases the connection and fails everything still waiting on it.
func (c *conn) shutdown(err error) {
	close(c.quit)
	c.nc.Close()
	if c.heartbeat != nil {
		c.heartbeat.Stop()
	}

	if err != nil {
		log.ZK_log(log.LOGLEVEL_ERRORS, "conn", c.id, "failed:", err.Error())
	}
	lost := err
	if err != nil && !errors.Is(err, ErrPendingOnClose) && !errors.Is(err, proto.ErrSessionExpired) {
		lost = fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if c.handshake != nil {
		if lost == nil {
			lost = ErrConnectionLost
		}
		c.handshake.complete(Response{err: lost})
		c.handshake = nil
	}
	c.metrics.pending.Sub(float64(len(c.pending)))
	for xid, cl := range c.pending {
		cl.complete(Response{err: lost})
		delete(c.pending, xid)
	}

	c.err = err
	close(c.finished)
}
