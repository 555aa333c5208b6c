package server

import (
	golog "log"
	"net"
	"sync"
	"time"

	"github.com/dermesser/zkmux/log"
)

/*
Server is a standalone coordination server speaking the client wire protocol. It keeps
its node tree in memory and is meant for tests and local development: everything is lost
when it stops.
*/
type Server struct {
	ln net.Listener

	// guards everything below
	mu          sync.Mutex
	tree        *tree
	sessions    map[int64]*session
	conns       map[*serverConn]struct{}
	lastSession int64
	zxid        int64
	closed      bool

	// Bounds for the negotiated session timeout
	minTimeout, maxTimeout time.Duration
	// Outbound frames a connection may have queued before it is dropped as too slow
	queueLength int
	// Respond "no" to health checks
	lameduck_state bool
	rpclogger      *golog.Logger

	wg sync.WaitGroup
}

/*
Create a server listening on laddr, e.g. "127.0.0.1:2181". Port 0 picks a free port; use
Addr() to find out which. Call Start() or Serve() to accept connections.
*/
func NewServer(laddr string) (*Server, error) {
	ln, err := net.Listen("tcp", laddr)
	if err != nil {
		log.ZK_log(log.LOGLEVEL_ERRORS, "Error when listening on", laddr, err.Error())
		return nil, err
	}
	log.ZK_log(log.LOGLEVEL_INFO, "Listening on", ln.Addr().String())

	return &Server{
		ln:          ln,
		tree:        newTree(),
		sessions:    make(map[int64]*session),
		conns:       make(map[*serverConn]struct{}),
		lastSession: time.Now().UnixNano() &^ 0xffffff,
		minTimeout:  200 * time.Millisecond,
		maxTimeout:  60 * time.Second,
		queueLength: 4096,
	}, nil
}

// The address the server is listening on.
func (srv *Server) Addr() string {
	return srv.ln.Addr().String()
}

// Accept connections in the background.
func (srv *Server) Start() {
	go srv.Serve()
}

// Accept connections until Close() is called.
func (srv *Server) Serve() error {
	for {
		nc, err := srv.ln.Accept()
		if err != nil {
			srv.mu.Lock()
			closed := srv.closed
			srv.mu.Unlock()
			if closed {
				return nil
			}
			log.ZK_log(log.LOGLEVEL_ERRORS, "Error when accepting:", err.Error())
			return err
		}
		srv.wg.Add(1)
		go srv.handleConn(nc)
	}
}

// Stop listening, drop all connections and discard all sessions. The server may not be
// used after calling Close().
func (srv *Server) Close() {
	srv.mu.Lock()
	srv.closed = true
	for _, s := range srv.sessions {
		s.stopTimer()
	}
	for sc := range srv.conns {
		sc.kill()
	}
	srv.mu.Unlock()

	srv.ln.Close()
	srv.wg.Wait()
	log.ZK_log(log.LOGLEVEL_INFO, "Stopped server")
}

/*
Set the range the negotiated session timeout is clamped to. Default: 200ms to 60s.
*/
func (srv *Server) SetSessionTimeouts(min, max time.Duration) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.minTimeout, srv.maxTimeout = min, max
}

// Set how many frames may wait for a slow client before it is disconnected.
func (srv *Server) SetQueueLength(n int) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.queueLength = n
}

/*
A server that is in lameduck mode will not answer health checks
but continue serving requests.
*/
func (srv *Server) SetLameduck(lameduck bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.lameduck_state = lameduck
}

/*
Log all requests served to this logging device.
*/
func (srv *Server) SetRPCLogger(l *golog.Logger) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.rpclogger = l
}

/*
DropConnections severs every client connection without touching the sessions, which
clients may resume within their timeout. Returns the number of connections dropped.
*/
func (srv *Server) DropConnections() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	n := 0
	for sc := range srv.conns {
		sc.kill()
		n++
	}
	log.ZK_log(log.LOGLEVEL_INFO, "Dropped", n, "connections")
	return n
}

/*
ExpireSession ends a session as if its timeout had run out: its ephemeral nodes are
removed and its connection, if any, is closed. Returns false if there is no such session.
*/
func (srv *Server) ExpireSession(id int64) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.expireLocked(id)
}

// Number of live sessions, connected or not.
func (srv *Server) SessionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// The zxid of the last applied change.
func (srv *Server) Zxid() int64 {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.zxid
}
