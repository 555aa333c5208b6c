package client

import (
	"context"

	"github.com/dermesser/zkmux/log"
	"github.com/dermesser/zkmux/proto"
)

// An operation on its way through the filter stack.
type Request struct {
	client *Client
	ctx    context.Context
	op     proto.Request

	path string
	// version the caller expected; reported with BadVersion
	expected int32
	// tags this request in logs and traces
	rpcid string
}

func (r *Request) Op() proto.Request {
	return r.op
}

func (r *Request) Path() string {
	return r.path
}

func (r *Request) Context() context.Context {
	return r.ctx
}

// Next passes the request on to the filter at index; custom filters call it with the
// index they were given.
func (r *Request) Next(index int) Response {
	return r.callNextFilter(index)
}

func (r *Request) callNextFilter(index int) Response {
	if len(r.client.filters) < index+1 {
		panic("Bad filter setup: Not enough filters.")
	}
	return r.client.filters[index](r, index+1)
}

// Send a request through the client's filter stack and wait for its outcome.
func (r *Request) Go() Response {
	r.rpcid = log.GetLogToken()
	r.client.touch()
	return r.callNextFilter(0)
}
