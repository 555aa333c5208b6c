package client

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name. The tracer comes from the global OpenTelemetry provider.
const defaultTracerName = "github.com/dermesser/zkmux/client"

// Opens one client span per operation. The span's context becomes the request's context,
// so filters further down (and the caller's own instrumentation) nest under it.
func TraceFilter(rq *Request, next int) Response {
	ctx, span := rq.client.tracer.Start(rq.ctx, "zk."+rq.op.OpCode().String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("zk.path", rq.path),
			attribute.String("zk.rpcid", rq.rpcid),
			attribute.String("net.peer.name", rq.client.addr.String()),
		),
	)
	defer span.End()
	rq.ctx = ctx

	rsp := rq.callNextFilter(next)

	if rsp.err != nil {
		var rqerr *RequestError
		if errors.As(rsp.err, &rqerr) {
			span.SetAttributes(attribute.String("zk.status", rqerr.Status()))
		}
		span.RecordError(rsp.err)
		span.SetStatus(codes.Error, rsp.err.Error())
		return rsp
	}
	span.SetAttributes(attribute.Int64("zk.zxid", rsp.zxid))
	span.SetStatus(codes.Ok, "")
	return rsp
}
