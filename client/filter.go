package client

import (
	"context"
	"errors"
)

// A ClientFilter is a function that is called with a request and fulfills a certain task.
// Filters are stacked in Client.filters; filters[0] is called first, and calls in turn filters[1]
// until the last filter hands the request to the connection.
type ClientFilter (func(rq *Request, next_filter int) Response)

var default_filters = []ClientFilter{TraceFilter, MetricsFilter, TimeoutFilter, LogFilter, SendFilter}

// Applies the client's request timeout, if any, as a deadline on the request's context.
// Nothing is sent to the server when a request times out; a late reply is discarded.
func TimeoutFilter(rq *Request, next int) Response {
	if rq.client.params.requestTimeout <= 0 {
		return rq.callNextFilter(next)
	}
	ctx, cancel := context.WithTimeout(rq.ctx, rq.client.params.requestTimeout)
	defer cancel()
	rq.ctx = ctx
	return rq.callNextFilter(next)
}

// Writes REQ/RSP/ERR lines to the client's request logger.
func LogFilter(rq *Request, next int) Response {
	if rq.client.rpclogger == nil {
		return rq.callNextFilter(next)
	}
	rq.client.rpclogRequest(rq)
	rsp := rq.callNextFilter(next)
	if rsp.err != nil {
		rq.client.rpclogErr(rq, rsp.err)
	} else {
		rq.client.rpclogResponse(rq, rsp)
	}
	return rsp
}

// Queue a request on the connection and wait for it to complete. Must be the last filter in the stack.
func SendFilter(rq *Request, next int) Response {
	// Enforce that this is the last filter.
	if len(rq.client.filters) != next {
		panic("Bad filter setup")
	}

	cl := newCall(rq.op)
	if err := rq.client.m.enqueue(rq.ctx, cl); err != nil {
		return Response{err: err}
	}

	select {
	case rsp := <-cl.done:
		var rqerr *RequestError
		if errors.As(rsp.err, &rqerr) {
			rqerr.Path = rq.path
			rqerr.Expected = rq.expected
		}
		return rsp
	case <-rq.ctx.Done():
		return Response{err: rq.ctx.Err()}
	}
}
