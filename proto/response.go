package proto

import "fmt"

// Response mirrors Request: one type per operation kind.
type Response interface {
	isResponse()
}

type ConnectResponse struct {
	ProtocolVersion int32
	Timeout         int32 // negotiated, milliseconds
	SessionID       int64
	Password        []byte
	ReadOnly        bool
}

type CreateResponse struct {
	Path string
}

type DeleteResponse struct{}

type ExistsResponse struct {
	Stat Stat
}

type GetDataResponse struct {
	Data []byte
	Stat Stat
}

type SetDataResponse struct {
	Stat Stat
}

type GetChildrenResponse struct {
	Children []string
}

type PingResponse struct{}

type CloseResponse struct{}

func (*ConnectResponse) isResponse()     {}
func (*CreateResponse) isResponse()      {}
func (*DeleteResponse) isResponse()      {}
func (*ExistsResponse) isResponse()      {}
func (*GetDataResponse) isResponse()     {}
func (*SetDataResponse) isResponse()     {}
func (*GetChildrenResponse) isResponse() {}
func (*PingResponse) isResponse()        {}
func (*CloseResponse) isResponse()       {}

// ReplyHeader precedes every server reply except the handshake reply.
type ReplyHeader struct {
	Xid  int32
	Zxid int64
	Err  ErrCode
}

// ReplyHeaderLength is xid + zxid + err.
const ReplyHeaderLength = 16

func DecodeReplyHeader(buf []byte) (ReplyHeader, []byte, error) {
	d := newDecoder(buf)
	h := ReplyHeader{Xid: d.int32(), Zxid: d.int64(), Err: ErrCode(d.int32())}
	if d.err != nil {
		return ReplyHeader{}, nil, d.err
	}
	return h, buf[d.off:], nil
}

func AppendReplyHeader(buf []byte, h ReplyHeader) []byte {
	buf = appendInt32(buf, h.Xid)
	buf = appendInt64(buf, h.Zxid)
	return appendInt32(buf, int32(h.Err))
}

// DecodeResponse parses the result that follows a reply header, using the opcode
// recorded when the request was sent. Replies carrying a nonzero error code have no
// result and must not be passed here.
func DecodeResponse(op OpCode, buf []byte) (Response, error) {
	d := newDecoder(buf)
	var rsp Response
	switch op {
	case OpConnect:
		r := &ConnectResponse{
			ProtocolVersion: d.int32(),
			Timeout:         d.int32(),
			SessionID:       d.int64(),
			Password:        d.buffer(),
		}
		if d.err == nil && d.remaining() > 0 {
			r.ReadOnly = d.bool()
		}
		rsp = r
	case OpCreate:
		rsp = &CreateResponse{Path: d.string()}
	case OpDelete:
		rsp = &DeleteResponse{}
	case OpExists:
		rsp = &ExistsResponse{Stat: d.stat()}
	case OpGetData:
		rsp = &GetDataResponse{Data: d.buffer(), Stat: d.stat()}
	case OpSetData:
		rsp = &SetDataResponse{Stat: d.stat()}
	case OpGetChildren:
		rsp = &GetChildrenResponse{Children: d.strings()}
	case OpPing:
		rsp = &PingResponse{}
	case OpCloseSession:
		rsp = &CloseResponse{}
	default:
		return nil, fmt.Errorf("%w: no decoder for opcode %d", ErrUnimplemented, int32(op))
	}
	if d.err != nil {
		return nil, d.err
	}
	return rsp, nil
}

// AppendResponse appends the result of rsp. Used by the server side.
func AppendResponse(buf []byte, rsp Response) []byte {
	switch r := rsp.(type) {
	case *ConnectResponse:
		buf = appendInt32(buf, r.ProtocolVersion)
		buf = appendInt32(buf, r.Timeout)
		buf = appendInt64(buf, r.SessionID)
		buf = appendBuffer(buf, r.Password)
		return appendBool(buf, r.ReadOnly)
	case *CreateResponse:
		return appendString(buf, r.Path)
	case *ExistsResponse:
		return appendStat(buf, &r.Stat)
	case *GetDataResponse:
		buf = appendBuffer(buf, r.Data)
		return appendStat(buf, &r.Stat)
	case *SetDataResponse:
		return appendStat(buf, &r.Stat)
	case *GetChildrenResponse:
		return appendStrings(buf, r.Children)
	case *DeleteResponse, *PingResponse, *CloseResponse:
		return buf
	}
	panic(fmt.Sprintf("zk: unknown response type %T", rsp))
}

// DecodeWatchedEvent parses the body of an xid -1 frame.
func DecodeWatchedEvent(buf []byte) (WatchedEvent, error) {
	d := newDecoder(buf)
	ev := WatchedEvent{Type: EventType(d.int32()), State: State(d.int32()), Path: d.string()}
	return ev, d.err
}

func AppendWatchedEvent(buf []byte, ev WatchedEvent) []byte {
	buf = appendInt32(buf, int32(ev.Type))
	buf = appendInt32(buf, int32(ev.State))
	return appendString(buf, ev.Path)
}
