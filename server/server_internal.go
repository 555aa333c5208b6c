package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	golog "log"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/dermesser/zkmux/frame"
	"github.com/dermesser/zkmux/log"
	"github.com/dermesser/zkmux/proto"
	"github.com/dermesser/zkmux/server/queue"
)

/*
This file has the internal functions, the actual server; server.go remains
uncluttered and with only public functions.
*/

func sessionString(id int64) string {
	return fmt.Sprintf("%#x", id)
}

// How long a fresh connection may take to send its handshake.
const handshakeTimeout = 10 * time.Second

/*
serverConn is one client connection. The reading goroutine runs handleConn; a second
goroutine writes queued payloads. Frames are queued under srv.mu where ordering between
replies and notifications matters, so the lock order is srv.mu before sc.mu.
*/
type serverConn struct {
	srv *Server
	nc  net.Conn
	// guarded by srv.mu
	sess *session

	mu       sync.Mutex
	cond     *sync.Cond
	out      *queue.Queue[[]byte]
	draining bool
	dead     bool
	started  bool

	writerDone chan struct{}
}

func (srv *Server) newServerConn(nc net.Conn) *serverConn {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.closed {
		return nil
	}
	sc := &serverConn{srv: srv, nc: nc, out: queue.NewQueue[[]byte](srv.queueLength), writerDone: make(chan struct{})}
	sc.cond = sync.NewCond(&sc.mu)
	srv.conns[sc] = struct{}{}
	return sc
}

// send queues a payload. A connection whose queue overflows is killed.
func (sc *serverConn) send(payload []byte) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.dead || sc.draining {
		return false
	}
	if !sc.out.Push(payload) {
		log.ZK_log(log.LOGLEVEL_WARNINGS, "Dropping slow connection from", sc.nc.RemoteAddr().String())
		sc.killLocked()
		return false
	}
	sc.cond.Signal()
	return true
}

func (sc *serverConn) kill() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.killLocked()
}

func (sc *serverConn) killLocked() {
	if !sc.dead {
		sc.dead = true
		sc.nc.Close()
		sc.cond.Signal()
	}
}

func (sc *serverConn) startWriter() {
	sc.mu.Lock()
	sc.started = true
	sc.mu.Unlock()
	go sc.writeLoop()
}

// drain waits until everything queued so far has been written. Nothing can be queued
// afterwards.
func (sc *serverConn) drain() {
	sc.mu.Lock()
	sc.draining = true
	sc.cond.Signal()
	started := sc.started
	sc.mu.Unlock()
	if started {
		<-sc.writerDone
	}
}

func (sc *serverConn) writeLoop() {
	defer close(sc.writerDone)
	var out frame.Outbox

	for {
		sc.mu.Lock()
		for sc.out.Len() == 0 && !sc.dead && !sc.draining {
			sc.cond.Wait()
		}
		for {
			payload, ok := sc.out.Pop()
			if !ok {
				break
			}
			out.Frame(func(b []byte) []byte { return append(b, payload...) })
		}
		dead, draining := sc.dead, sc.draining
		sc.mu.Unlock()

		if dead {
			return
		}
		for out.Len() > 0 {
			if _, err := out.Flush(sc.nc); err != nil {
				log.ZK_log(log.LOGLEVEL_DEBUG, "Error when writing to", sc.nc.RemoteAddr().String(), err.Error())
				sc.kill()
				return
			}
		}
		if draining {
			return
		}
	}
}

func (srv *Server) handleConn(nc net.Conn) {
	defer srv.wg.Done()

	sc := srv.newServerConn(nc)
	if sc == nil {
		nc.Close()
		return
	}
	defer srv.unregister(sc)

	nc.SetReadDeadline(time.Now().Add(handshakeTimeout))
	head := make([]byte, frame.HeaderLength)
	if _, err := io.ReadFull(nc, head); err != nil {
		return
	}
	if isFourLetterWord(head) {
		srv.answerFourLetterWord(nc, head)
		return
	}

	var in frame.Inbox
	in.Feed(head)
	payload, err := in.ReadFrame(nc)
	if err != nil {
		log.ZK_log(log.LOGLEVEL_DEBUG, "No handshake from", nc.RemoteAddr().String(), err.Error())
		return
	}
	crq, err := proto.DecodeConnectRequest(payload)
	if err != nil {
		log.ZK_log(log.LOGLEVEL_WARNINGS, "Malformed handshake from", nc.RemoteAddr().String(), err.Error())
		return
	}

	rsp, s := srv.attach(sc, crq)
	if rsp == nil {
		return
	}
	sc.startWriter()
	sc.send(handshakePayload(rsp))
	if s == nil {
		sc.drain()
		return
	}
	srv.serveSession(sc, s, &in)
}

/*
attach binds sc to a new or resumed session. A nil response means the connection is to be
closed without an answer; a nil session that the client is told its session has expired.
*/
func (srv *Server) attach(sc *serverConn, crq *proto.ConnectRequest) (*proto.ConnectResponse, *session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if crq.LastZxidSeen > srv.zxid {
		log.ZK_log(log.LOGLEVEL_WARNINGS, "Client has seen zxid", crq.LastZxidSeen, "which is ahead of us at", srv.zxid)
		return nil, nil
	}

	var s *session
	if crq.SessionID != 0 {
		s = srv.sessions[crq.SessionID]
		if s == nil || !bytes.Equal(s.password, crq.Password) {
			log.ZK_log(log.LOGLEVEL_INFO, "Refusing to resume session", sessionString(crq.SessionID))
			return &proto.ConnectResponse{Password: make([]byte, proto.PasswordLength)}, nil
		}
		s.stopTimer()
		if s.conn != nil && s.conn != sc {
			s.conn.kill()
		}
		log.ZK_log(log.LOGLEVEL_INFO, "Resumed session", sessionString(s.id))
	} else {
		srv.lastSession++
		s = newSession(srv.lastSession, srv.clampTimeout(crq.Timeout))
		srv.sessions[s.id] = s
		log.ZK_log(log.LOGLEVEL_INFO, "New session", sessionString(s.id), "timeout", s.timeout.String())
	}
	s.conn = sc
	sc.sess = s

	return &proto.ConnectResponse{
		ProtocolVersion: proto.ProtocolVersion,
		Timeout:         int32(s.timeout / time.Millisecond),
		SessionID:       s.id,
		Password:        s.password,
	}, s
}

func (srv *Server) serveSession(sc *serverConn, s *session, in *frame.Inbox) {
	for {
		sc.nc.SetReadDeadline(time.Now().Add(s.timeout))
		payload, err := in.ReadFrame(sc.nc)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.ZK_log(log.LOGLEVEL_DEBUG, "Session", sessionString(s.id), "lost its connection:", err.Error())
			}
			return
		}
		xid, op, body, err := proto.DecodeRequestHeader(payload)
		if err != nil {
			log.ZK_log(log.LOGLEVEL_WARNINGS, "Malformed request on session", sessionString(s.id), err.Error())
			return
		}

		switch op {
		case proto.OpPing:
			srv.mu.Lock()
			sc.send(replyPayload(proto.XidPing, srv.zxid, proto.ErrCodeOk, nil))
			srv.mu.Unlock()
			continue
		case proto.OpCloseSession:
			zxid := srv.closeSession(s)
			sc.send(replyPayload(xid, zxid, proto.ErrCodeOk, nil))
			sc.send(closingPayload())
			sc.drain()
			return
		}

		rq, err := proto.DecodeRequest(op, body)
		if errors.Is(err, proto.ErrUnimplemented) {
			srv.mu.Lock()
			sc.send(replyPayload(xid, srv.zxid, proto.ErrCodeUnimplemented, nil))
			srv.mu.Unlock()
			continue
		} else if err != nil {
			log.ZK_log(log.LOGLEVEL_WARNINGS, "Malformed", op.String(), "request on session", sessionString(s.id), err.Error())
			return
		}
		srv.process(sc, newContext(s, xid, rq, srv.logger()))
	}
}

func (srv *Server) logger() *golog.Logger {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.rpclogger
}

// process applies one request to the tree. Notifications caused by it are queued before
// the reply.
func (srv *Server) process(sc *serverConn, ctx *Context) {
	ctx.rpclogRequest()

	srv.mu.Lock()
	var triggers []trigger
	now := time.Now().UnixMilli()
	sid := ctx.session.id

	switch r := ctx.request.(type) {
	case *proto.CreateRequest:
		if r.Mode < proto.ModePersistent || r.Mode > proto.ModeEphemeralSequential {
			ctx.Fail(proto.ErrCodeBadArguments)
			break
		}
		path, tr, code := srv.tree.create(r.Path, r.Data, r.ACL, r.Mode, sid, srv.zxid+1, now)
		if code != proto.ErrCodeOk {
			ctx.Fail(code)
			break
		}
		srv.zxid++
		triggers = tr
		if r.Mode.IsEphemeral() {
			ctx.session.ephemerals[path] = struct{}{}
		}
		ctx.Success(&proto.CreateResponse{Path: path})
	case *proto.DeleteRequest:
		owner, tr, code := srv.tree.delete(r.Path, r.Version, srv.zxid+1)
		if code != proto.ErrCodeOk {
			ctx.Fail(code)
			break
		}
		srv.zxid++
		triggers = tr
		if s := srv.sessions[owner]; owner != 0 && s != nil {
			delete(s.ephemerals, r.Path)
		}
		ctx.Success(&proto.DeleteResponse{})
	case *proto.SetDataRequest:
		stat, tr, code := srv.tree.setData(r.Path, r.Data, r.Version, srv.zxid+1, now)
		if code != proto.ErrCodeOk {
			ctx.Fail(code)
			break
		}
		srv.zxid++
		triggers = tr
		ctx.Success(&proto.SetDataResponse{Stat: stat})
	case *proto.ExistsRequest:
		stat, code := srv.tree.exists(r.Path, r.Watch, sid)
		if code != proto.ErrCodeOk {
			ctx.Fail(code)
			break
		}
		ctx.Success(&proto.ExistsResponse{Stat: stat})
	case *proto.GetDataRequest:
		data, stat, code := srv.tree.getData(r.Path, r.Watch, sid)
		if code != proto.ErrCodeOk {
			ctx.Fail(code)
			break
		}
		ctx.Success(&proto.GetDataResponse{Data: data, Stat: stat})
	case *proto.GetChildrenRequest:
		names, code := srv.tree.children(r.Path, r.Watch, sid)
		if code != proto.ErrCodeOk {
			ctx.Fail(code)
			break
		}
		ctx.Success(&proto.GetChildrenResponse{Children: names})
	default:
		ctx.Fail(proto.ErrCodeUnimplemented)
	}

	ctx.zxid = srv.zxid
	srv.deliverLocked(triggers)
	sc.send(replyPayload(ctx.xid, ctx.zxid, ctx.code, ctx.result))
	srv.mu.Unlock()

	ctx.rpclogResponse()
}

func (srv *Server) deliverLocked(triggers []trigger) {
	for _, tr := range triggers {
		s := srv.sessions[tr.session]
		if s == nil || s.conn == nil {
			log.ZK_log(log.LOGLEVEL_DEBUG, "Dropping", tr.ev.String(), "for detached session", sessionString(tr.session))
			continue
		}
		s.conn.send(eventPayload(tr.ev))
	}
}

// removeSessionLocked deletes the session together with its ephemeral nodes and watches.
func (srv *Server) removeSessionLocked(s *session) {
	s.stopTimer()
	delete(srv.sessions, s.id)
	srv.tree.dropWatches(s.id)

	paths := make([]string, 0, len(s.ephemerals))
	for path := range s.ephemerals {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var triggers []trigger
	for _, path := range paths {
		_, tr, code := srv.tree.delete(path, -1, srv.zxid+1)
		if code != proto.ErrCodeOk {
			log.ZK_log(log.LOGLEVEL_ERRORS, "Could not remove ephemeral node", path, code.String())
			continue
		}
		srv.zxid++
		triggers = append(triggers, tr...)
	}
	s.ephemerals = nil
	srv.deliverLocked(triggers)
}

func (srv *Server) closeSession(s *session) int64 {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.removeSessionLocked(s)
	log.ZK_log(log.LOGLEVEL_INFO, "Closed session", sessionString(s.id))
	return srv.zxid
}

func (srv *Server) expireLocked(id int64) bool {
	s := srv.sessions[id]
	if s == nil {
		return false
	}
	srv.removeSessionLocked(s)
	if s.conn != nil {
		s.conn.kill()
	}
	log.ZK_log(log.LOGLEVEL_INFO, "Expired session", sessionString(id))
	return true
}

// unregister forgets a finished connection. If it held a session, the expiry timer starts.
func (srv *Server) unregister(sc *serverConn) {
	srv.mu.Lock()
	delete(srv.conns, sc)
	if s := sc.sess; s != nil && s.conn == sc {
		s.conn = nil
		if srv.sessions[s.id] == s && !srv.closed {
			s.expiry = time.AfterFunc(s.timeout, func() {
				srv.mu.Lock()
				defer srv.mu.Unlock()
				// The session may have been resumed while the timer was firing.
				if srv.sessions[s.id] == s && s.conn == nil {
					srv.expireLocked(s.id)
				}
			})
		}
	}
	srv.mu.Unlock()

	sc.kill()
	sc.mu.Lock()
	started := sc.started
	sc.mu.Unlock()
	if started {
		<-sc.writerDone
	}
}
