package server

/*
* This file implements the four-letter health commands. A connection whose first four
* bytes are one of them gets a plain-text answer and is closed.
 */

import (
	"fmt"
	"net"
)

var fourLetterWords = map[string]func(srv *Server) string{
	"ruok": (*Server).ruok,
	"srvr": (*Server).srvr,
}

func isFourLetterWord(b []byte) bool {
	_, ok := fourLetterWords[string(b)]
	return ok
}

// Answers "imok" iff the server is not in lameduck mode; otherwise nothing.
func (srv *Server) ruok() string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.lameduck_state {
		return ""
	}
	return "imok"
}

func (srv *Server) srvr() string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return fmt.Sprintf("Zxid: %#x\nConnections: %d\nSessions: %d\nMode: standalone\n",
		srv.zxid, len(srv.conns), len(srv.sessions))
}

func (srv *Server) answerFourLetterWord(nc net.Conn, cmd []byte) {
	answer := fourLetterWords[string(cmd)](srv)
	if answer != "" {
		nc.Write([]byte(answer))
	}
}
