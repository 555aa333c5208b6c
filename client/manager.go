package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dermesser/zkmux/log"
	"github.com/dermesser/zkmux/proto"
)

/*
The manager supervises connection generations for one session. It is either connected,
with a live conn pulling from the request queue, or reconnecting, in which case requests
stay queued until the next conn has completed its handshake.

Close closes the request queue. The live conn drains it and then ends the session; a
manager that is reconnecting gives up instead and fails whatever is queued.
*/
type manager struct {
	addr    PeerAddress
	params  *ClientParams
	metrics *clientMetrics

	requests chan *call
	events   chan proto.WatchedEvent

	// closing is closed first when shutting down; it releases blocked submitters and an
	// ongoing backoff.
	closing   chan struct{}
	closeOnce sync.Once

	// Held shared by submitters, exclusively to close requests.
	mu      sync.RWMutex
	closed  bool
	failure error

	smu       sync.Mutex
	sessionID int64
	password  []byte
	timeout   time.Duration

	lastZxid atomic.Int64
	state    atomic.Int32

	done   chan struct{}
	result error
}

func newManager(ctx context.Context, addr PeerAddress, params *ClientParams, metrics *clientMetrics) (*manager, error) {
	m := &manager{
		addr:     addr,
		params:   params,
		metrics:  metrics,
		requests: make(chan *call, params.queueLength),
		events:   make(chan proto.WatchedEvent, params.watchBuffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.state.Store(int32(proto.StateDisconnected))

	if snap := params.resume; snap != nil {
		m.sessionID = snap.SessionId
		m.password = append([]byte(nil), snap.Password...)
		m.lastZxid.Store(snap.LastZxid)
	}

	c, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	m.state.Store(int32(proto.StateSyncConnected))
	go m.supervise(c)
	return m, nil
}

func (m *manager) connectRequest() *proto.ConnectRequest {
	m.smu.Lock()
	defer m.smu.Unlock()

	password := m.password
	if password == nil {
		password = make([]byte, proto.PasswordLength)
	}
	return &proto.ConnectRequest{
		ProtocolVersion: proto.ProtocolVersion,
		LastZxidSeen:    m.lastZxid.Load(),
		Timeout:         int32(m.params.sessionTimeout / time.Millisecond),
		SessionID:       m.sessionID,
		Password:        password,
		ReadOnly:        m.params.readOnly,
	}
}

// connect dials and performs the handshake. The returned conn is established and pulling
// from the request queue.
func (m *manager) connect(ctx context.Context) (*conn, error) {
	ctx, cancel := context.WithTimeout(ctx, m.params.dialTimeout)
	defer cancel()

	nc, err := dial(ctx, m.addr)
	if err != nil {
		return nil, err
	}

	c := newConn(nc, m.connectRequest(), m.requests, m.deliver, &m.lastZxid, m.metrics)
	handshake := c.handshakeDone()
	go c.run()

	select {
	case rsp := <-handshake:
		if rsp.err != nil {
			<-c.finished
			return nil, rsp.err
		}
		cr := rsp.rsp.(*proto.ConnectResponse)
		m.smu.Lock()
		m.sessionID = cr.SessionID
		m.password = cr.Password
		m.timeout = time.Duration(cr.Timeout) * time.Millisecond
		m.smu.Unlock()
		return c, nil
	case <-ctx.Done():
		c.kill()
		<-c.finished
		return nil, fmt.Errorf("%w: %v", ErrHandshake, ctx.Err())
	}
}

func (m *manager) supervise(c *conn) {
	defer close(m.done)
	defer close(m.events)

	for {
		<-c.finished
		if c.err == nil || c.exiting {
			m.state.Store(int32(proto.StateDisconnected))
			m.finish(c.err)
			return
		}

		log.ZK_log(log.LOGLEVEL_WARNINGS, "Connection", c.id, "to", m.addr.String(), "lost:", c.err.Error())
		m.transition(proto.StateDisconnected)

		next, err := m.reconnect()
		if err != nil {
			if errors.Is(err, proto.ErrSessionExpired) {
				m.transition(proto.StateExpired)
			}
			log.ZK_log(log.LOGLEVEL_ERRORS, "Giving up on session:", err.Error())
			m.finish(err)
			return
		}
		m.metrics.reconnects.Inc()
		log.ZK_log(log.LOGLEVEL_INFO, "Session", fmt.Sprintf("%#x", m.SessionID()), "resumed on connection", next.id)
		m.transition(proto.StateSyncConnected)
		c = next
	}
}

func (m *manager) reconnect() (*conn, error) {
	var lastErr error = ErrConnectionLost
	for attempt := uint(0); attempt < m.params.reconnectAttempts; attempt++ {
		select {
		case <-time.After(m.params.backoff(attempt)):
		case <-m.closing:
			return nil, ErrClosing
		}

		c, err := m.connect(context.Background())
		if err == nil {
			return c, nil
		}
		if errors.Is(err, proto.ErrSessionExpired) {
			return nil, err
		}
		log.ZK_log(log.LOGLEVEL_INFO, "Reconnect attempt", attempt+1, "failed:", err.Error())
		lastErr = err
	}
	return nil, fmt.Errorf("%w: gave up after %d attempts: %v", ErrConnectionLost, m.params.reconnectAttempts, lastErr)
}

func (m *manager) transition(s proto.State) {
	m.state.Store(int32(s))
	m.deliver(proto.WatchedEvent{Type: proto.EventSession, State: s})
}

// deliver hands an event to the subscriber without ever blocking.
func (m *manager) deliver(ev proto.WatchedEvent) {
	select {
	case m.events <- ev:
		m.metrics.watchEvents.Inc()
	default:
		m.metrics.watchDropped.Inc()
		log.ZK_log(log.LOGLEVEL_WARNINGS, "Dropped event", ev.String())
	}
}

func (m *manager) signalClosing() {
	m.closeOnce.Do(func() { close(m.closing) })
}

// finish stops accepting requests and fails those still queued.
func (m *manager) finish(err error) {
	m.signalClosing()

	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.requests)
	}
	if err != nil && m.failure == nil {
		m.failure = err
	}
	m.mu.Unlock()

	fail := err
	if fail == nil {
		fail = ErrClosing
	}
	for cl := range m.requests {
		cl.complete(Response{err: fail})
	}
	m.result = err
}

func (m *manager) enqueue(ctx context.Context, cl *call) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		if m.failure != nil {
			return m.failure
		}
		return ErrClosing
	}
	select {
	case m.requests <- cl:
		return nil
	case <-m.closing:
		return ErrClosing
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close ends the session and waits until the last connection is gone.
func (m *manager) close() error {
	m.signalClosing()

	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.requests)
	}
	m.mu.Unlock()

	<-m.done
	if errors.Is(m.result, ErrClosing) {
		return nil
	}
	return m.result
}

func (m *manager) SessionID() int64 {
	m.smu.Lock()
	defer m.smu.Unlock()
	return m.sessionID
}

func (m *manager) snapshot() *proto.SessionSnapshot {
	m.smu.Lock()
	defer m.smu.Unlock()
	return &proto.SessionSnapshot{
		SessionId: m.sessionID,
		Password:  append([]byte(nil), m.password...),
		LastZxid:  m.lastZxid.Load(),
		TimeoutMs: int32(m.timeout / time.Millisecond),
		Address:   m.addr.String(),
	}
}
