package server

import (
	"fmt"
	"strings"
	"time"

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

func (ctx *Context) connIdString(size int) string {
	return fmt.Sprintf("%#x/%d %s %s %d B [%d us]", ctx.session.id, ctx.xid, ctx.request.OpCode(), ctx.Path(),
		size, time.Since(ctx.started).Microseconds())
}

func requestData(rq proto.Request) []byte {
	switch r := rq.(type) {
	case *proto.CreateRequest:
		return r.Data
	case *proto.SetDataRequest:
		return r.Data
	}
	return nil
}

func (ctx *Context) rpclogErr(err error) {
	if ctx.logger != nil {
		ctx.logger.Println(log_ERROR.String(), err.Error())
	}
}

func (ctx *Context) rpclogRequest() {
	if ctx.logger != nil && ctx.log_state == 0 {
		b := requestData(ctx.request)
		ctx.logger.Println(log_REQUEST.String(), ctx.connIdString(len(b)), logString(b))
		ctx.log_state++
	}
}

func (ctx *Context) rpclogResponse() {
	if ctx.logger != nil && ctx.log_state == 1 {
		if ctx.Failed() {
			ctx.logger.Println(log_ERROR.String(), ctx.connIdString(0), ctx.code.String())
		} else {
			ctx.logger.Println(log_RESPONSE.String(), ctx.connIdString(0), fmt.Sprintf("zxid=%#x", ctx.zxid))
		}
		ctx.log_state++
	}
}
