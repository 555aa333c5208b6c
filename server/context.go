package server

import (
	golog "log"
	"time"

	"github.com/dermesser/zkmux/proto"
)

/*
Context carries one decoded request through processing and takes its outcome.
*/
type Context struct {
	session *session
	xid     int32
	request proto.Request
	started time.Time

	result proto.Response
	code   proto.ErrCode
	zxid   int64

	logger *golog.Logger
	// 0 = None, 1 = logged request, 2 = logged response
	log_state int
}

func newContext(s *session, xid int32, rq proto.Request, logger *golog.Logger) *Context {
	return &Context{session: s, xid: xid, request: rq, started: time.Now(), logger: logger}
}

// Success sets the result of the request.
func (c *Context) Success(rsp proto.Response) {
	c.result = rsp
	c.code = proto.ErrCodeOk
}

// Fail sets an error code as the outcome of the request.
func (c *Context) Fail(code proto.ErrCode) {
	c.result = nil
	c.code = code
}

func (c *Context) Failed() bool {
	return c.code != proto.ErrCodeOk
}

func (c *Context) Code() proto.ErrCode {
	return c.code
}

// Path returns the path the request refers to.
func (c *Context) Path() string {
	switch r := c.request.(type) {
	case *proto.CreateRequest:
		return r.Path
	case *proto.DeleteRequest:
		return r.Path
	case *proto.ExistsRequest:
		return r.Path
	case *proto.GetDataRequest:
		return r.Path
	case *proto.SetDataRequest:
		return r.Path
	case *proto.GetChildrenRequest:
		return r.Path
	}
	return ""
}
