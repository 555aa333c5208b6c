package server

import (
	"crypto/rand"
	"time"

	"github.com/dermesser/zkmux/proto"
)

/*
A session outlives its connections. While no connection is attached, the expiry timer
runs; a client presenting the id and password before it fires takes the session over.
*/
type session struct {
	id       int64
	password []byte
	timeout  time.Duration
	// nil while detached
	conn       *serverConn
	expiry     *time.Timer
	ephemerals map[string]struct{}
}

func newSession(id int64, timeout time.Duration) *session {
	password := make([]byte, proto.PasswordLength)
	rand.Read(password)
	return &session{id: id, password: password, timeout: timeout, ephemerals: make(map[string]struct{})}
}

func (s *session) stopTimer() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

func (srv *Server) clampTimeout(ms int32) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if d < srv.minTimeout {
		return srv.minTimeout
	}
	if d > srv.maxTimeout {
		return srv.maxTimeout
	}
	return d
}
