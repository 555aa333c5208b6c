package client

import (
	"context"

	"github.com/dermesser/zkmux/log"
	"github.com/dermesser/zkmux/proto"
)

type Callback func(Response)

type asyncRequest struct {
	callback Callback
	op       proto.Request
	path     string
	expected int32
	// set if the request was rejected before sending
	err error
}

type AsyncClient struct {
	request_queue chan *asyncRequest
	qlength       uint
	done          chan struct{}

	client *Client
}

/*
Create an asynchronous client on top of cl. Requests are queued (in a buffered channel with
the length queue_length) and Request() returns immediately unless the queue is full. A
background goroutine submits queued requests in order and calls each callback with the
outcome once it arrives; callbacks run on that goroutine, one at a time.
*/
func NewAsyncClient(cl *Client, queue_length uint) *AsyncClient {
	acl := &AsyncClient{
		request_queue: make(chan *asyncRequest, queue_length),
		qlength:       queue_length,
		done:          make(chan struct{}),
		client:        cl,
	}
	go acl.startThread()
	return acl
}

// Close stops accepting requests and waits until the queued ones have been answered.
// The underlying client is left open.
func (cl *AsyncClient) Close() {
	close(cl.request_queue)
	<-cl.done
}

func (cl *AsyncClient) startThread() {
	defer close(cl.done)

	for rq := range cl.request_queue {
		if log.IsLoggingEnabled(log.LOGLEVEL_WARNINGS) && float64(len(cl.request_queue)) > 0.7*float64(cl.qlength) {
			log.ZK_log(log.LOGLEVEL_WARNINGS, "AsyncClient", cl.client.Addr(), "Warning: Queue is fuller than 70% of its capacity!")
		}

		var rsp Response
		if rq.err != nil {
			rsp = Response{err: rq.err}
		} else {
			rsp = cl.client.request(context.Background(), rq.op, rq.path, rq.expected)
		}

		if rq.callback != nil {
			rq.callback(rsp)
		}
	}
}

// An invalid path is reported through cb in queue order, without contacting the server.
func (cl *AsyncClient) enqueue(op proto.Request, path string, expected int32, cb Callback) {
	sequential := false
	if c, ok := op.(*proto.CreateRequest); ok {
		sequential = c.Mode.IsSequential()
	}
	cl.request_queue <- &asyncRequest{callback: cb, op: op, path: path, expected: expected,
		err: validatePath(path, sequential)}
}

func (cl *AsyncClient) Create(path string, data []byte, acl []proto.ACL, mode proto.CreateMode, cb Callback) {
	cl.enqueue(&proto.CreateRequest{Path: path, Data: data, ACL: acl, Mode: mode}, path, AnyVersion, cb)
}

func (cl *AsyncClient) Exists(path string, watch bool, cb Callback) {
	cl.enqueue(&proto.ExistsRequest{Path: path, Watch: watch}, path, AnyVersion, cb)
}

func (cl *AsyncClient) Delete(path string, version int32, cb Callback) {
	cl.enqueue(&proto.DeleteRequest{Path: path, Version: version}, path, version, cb)
}

func (cl *AsyncClient) GetData(path string, watch bool, cb Callback) {
	cl.enqueue(&proto.GetDataRequest{Path: path, Watch: watch}, path, AnyVersion, cb)
}

func (cl *AsyncClient) SetData(path string, data []byte, version int32, cb Callback) {
	cl.enqueue(&proto.SetDataRequest{Path: path, Data: data, Version: version}, path, version, cb)
}

func (cl *AsyncClient) Children(path string, watch bool, cb Callback) {
	cl.enqueue(&proto.GetChildrenRequest{Path: path, Watch: watch}, path, AnyVersion, cb)
}
