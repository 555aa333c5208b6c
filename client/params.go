package client

import (
	golog "log"
	"time"

	"github.com/dermesser/zkmux/proto"
	"github.com/prometheus/client_golang/prometheus"
)

// Various parameters determining how a client connects and how requests are executed.
// There are builder methods to set the various parameters.
type ClientParams struct {
	sessionTimeout    time.Duration
	dialTimeout       time.Duration
	requestTimeout    time.Duration
	reconnectAttempts uint
	reconnectBackoff  time.Duration
	maxBackoff        time.Duration
	queueLength       uint
	watchBuffer       uint
	readOnly          bool
	resume            *proto.SessionSnapshot
	registry          prometheus.Registerer
	tracerName        string
	rpclogger         *golog.Logger
	filters           []ClientFilter
}

func NewParams() *ClientParams {
	return &ClientParams{
		sessionTimeout:    30 * time.Second,
		dialTimeout:       5 * time.Second,
		reconnectAttempts: 5,
		reconnectBackoff:  100 * time.Millisecond,
		maxBackoff:        5 * time.Second,
		queueLength:       1024,
		watchBuffer:       64,
		tracerName:        defaultTracerName,
	}
}

// The session timeout to ask the server for. The server may negotiate a different one.
func (p *ClientParams) SessionTimeout(d time.Duration) *ClientParams {
	p.sessionTimeout = d
	return p
}

// How long to wait for the TCP connection and the session handshake.
func (p *ClientParams) DialTimeout(d time.Duration) *ClientParams {
	p.dialTimeout = d
	return p
}

// Deadline for a single operation. Default: 0 (none)
func (p *ClientParams) RequestTimeout(d time.Duration) *ClientParams {
	p.requestTimeout = d
	return p
}

// How often to try re-establishing a lost connection before giving up. 0 disables reconnection.
func (p *ClientParams) ReconnectAttempts(n uint) *ClientParams {
	p.reconnectAttempts = n
	return p
}

// First and maximum wait between reconnection attempts. The wait doubles after every failed attempt.
func (p *ClientParams) ReconnectBackoff(first, max time.Duration) *ClientParams {
	p.reconnectBackoff = first
	p.maxBackoff = max
	return p
}

// Capacity of the submission queue. Submitting blocks while it is full.
func (p *ClientParams) QueueLength(n uint) *ClientParams {
	p.queueLength = n
	return p
}

// Capacity of the watch event channel. Events arriving while it is full are dropped.
func (p *ClientParams) WatchBuffer(n uint) *ClientParams {
	p.watchBuffer = n
	return p
}

func (p *ClientParams) ReadOnly(b bool) *ClientParams {
	p.readOnly = b
	return p
}

// Continue the session described by snap instead of creating a new one.
func (p *ClientParams) Resume(snap *proto.SessionSnapshot) *ClientParams {
	p.resume = snap
	return p
}

// Register client metrics with r. Default: nil (metrics are kept but not registered)
func (p *ClientParams) Registry(r prometheus.Registerer) *ClientParams {
	p.registry = r
	return p
}

func (p *ClientParams) TracerName(name string) *ClientParams {
	p.tracerName = name
	return p
}

// Log every request and response to l.
func (p *ClientParams) RPCLogger(l *golog.Logger) *ClientParams {
	p.rpclogger = l
	return p
}

// Replace the filter stack. The last filter must be SendFilter.
func (p *ClientParams) Filters(f ...ClientFilter) *ClientParams {
	p.filters = f
	return p
}

// backoff returns the wait before reconnection attempt n (starting at 0).
func (p *ClientParams) backoff(n uint) time.Duration {
	d := p.reconnectBackoff
	for i := uint(0); i < n && d < p.maxBackoff; i++ {
		d *= 2
	}
	if d > p.maxBackoff {
		d = p.maxBackoff
	}
	return d
}
