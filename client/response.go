package client

import "github.com/dermesser/zkmux/proto"

// Response is the outcome of one request. Exactly one is delivered per request.
type Response struct {
	err  error
	rsp  proto.Response
	zxid int64
}

// Check whether the request was successful.
func (rp *Response) Ok() bool {
	return rp.err == nil
}

// Returns the decoded result. nil if the request failed.
func (rp *Response) Result() proto.Response {
	return rp.rsp
}

// The zxid the server stamped on the reply.
func (rp *Response) Zxid() int64 {
	return rp.zxid
}

// Get the error that has occurred: a *RequestError for a nonzero server error code, or a
// transport error such as ErrConnectionLost.
func (rp *Response) Err() error {
	return rp.err
}
