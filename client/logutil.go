package client

import (
	"fmt"
	"strings"

	"github.com/dermesser/zkmux/proto"
)

type rpclog_type int

const (
	log_REQUEST rpclog_type = iota
	log_RESPONSE
	log_ERROR
)

func (t rpclog_type) String() string {
	switch t {
	case log_REQUEST:
		return "REQ"
	case log_RESPONSE:
		return "RSP"
	case log_ERROR:
		return "ERR"
	default:
		return ""
	}
}

func transformRuneToPrintable(r rune) rune {
	if r >= 32 && r < 127 {
		return r
	}
	return '.'
}

func logString(str []byte) string {
	return strings.Map(transformRuneToPrintable, string(str))
}

func (cl *Client) connIdString(rq *Request, size int) string {
	return fmt.Sprintf("%s/%#x->%s %s %d B:", rq.rpcid, cl.SessionID(), cl.addr.String(), rq.op.OpCode(), size)
}

// requestData returns the payload of requests that carry one.
func requestData(op proto.Request) []byte {
	switch r := op.(type) {
	case *proto.CreateRequest:
		return r.Data
	case *proto.SetDataRequest:
		return r.Data
	}
	return nil
}

func describeResponse(rsp proto.Response) (string, int) {
	switch r := rsp.(type) {
	case *proto.CreateResponse:
		return r.Path, len(r.Path)
	case *proto.GetDataResponse:
		return logString(r.Data), len(r.Data)
	case *proto.GetChildrenResponse:
		return strings.Join(r.Children, ","), len(r.Children)
	case *proto.ExistsResponse:
		return fmt.Sprintf("version=%d", r.Stat.Version), 0
	case *proto.SetDataResponse:
		return fmt.Sprintf("version=%d", r.Stat.Version), 0
	}
	return "", 0
}

func (cl *Client) rpclogRequest(rq *Request) {
	if cl.rpclogger != nil {
		data := requestData(rq.op)
		cl.rpclogger.Println(log_REQUEST.String(), cl.connIdString(rq, len(data)), rq.path, logString(data))
	}
}

func (cl *Client) rpclogResponse(rq *Request, rsp Response) {
	if cl.rpclogger != nil {
		str, size := describeResponse(rsp.rsp)
		cl.rpclogger.Println(log_RESPONSE.String(), cl.connIdString(rq, size), fmt.Sprintf("zxid=%#x", rsp.zxid), str)
	}
}

func (cl *Client) rpclogErr(rq *Request, err error) {
	if cl.rpclogger != nil {
		cl.rpclogger.Println(log_ERROR.String(), cl.connIdString(rq, 0), err.Error())
	}
}
