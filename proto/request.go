package proto

import "fmt"

// Request is one of the request types below. The set is closed: adding an operation
// means a new type here plus its arms in AppendRequest and DecodeRequest.
type Request interface {
	OpCode() OpCode
	isRequest()
}

// ConnectRequest is the handshake. It is framed without xid and opcode.
type ConnectRequest struct {
	ProtocolVersion int32
	LastZxidSeen    int64
	Timeout         int32 // milliseconds
	SessionID       int64
	Password        []byte
	ReadOnly        bool
}

type CreateRequest struct {
	Path string
	Data []byte
	ACL  []ACL
	Mode CreateMode
}

type DeleteRequest struct {
	Path    string
	Version int32
}

type ExistsRequest struct {
	Path  string
	Watch bool
}

type GetDataRequest struct {
	Path  string
	Watch bool
}

type SetDataRequest struct {
	Path    string
	Data    []byte
	Version int32
}

type GetChildrenRequest struct {
	Path  string
	Watch bool
}

type PingRequest struct{}

type CloseRequest struct{}

func (*ConnectRequest) OpCode() OpCode     { return OpConnect }
func (*CreateRequest) OpCode() OpCode      { return OpCreate }
func (*DeleteRequest) OpCode() OpCode      { return OpDelete }
func (*ExistsRequest) OpCode() OpCode      { return OpExists }
func (*GetDataRequest) OpCode() OpCode     { return OpGetData }
func (*SetDataRequest) OpCode() OpCode     { return OpSetData }
func (*GetChildrenRequest) OpCode() OpCode { return OpGetChildren }
func (*PingRequest) OpCode() OpCode        { return OpPing }
func (*CloseRequest) OpCode() OpCode       { return OpCloseSession }

func (*ConnectRequest) isRequest()     {}
func (*CreateRequest) isRequest()      {}
func (*DeleteRequest) isRequest()      {}
func (*ExistsRequest) isRequest()      {}
func (*GetDataRequest) isRequest()     {}
func (*SetDataRequest) isRequest()     {}
func (*GetChildrenRequest) isRequest() {}
func (*PingRequest) isRequest()        {}
func (*CloseRequest) isRequest()       {}

// AppendRequest appends the operation-specific payload of rq to buf. Frame length, xid
// and opcode are written by the caller.
func AppendRequest(buf []byte, rq Request) []byte {
	switch r := rq.(type) {
	case *ConnectRequest:
		buf = appendInt32(buf, r.ProtocolVersion)
		buf = appendInt64(buf, r.LastZxidSeen)
		buf = appendInt32(buf, r.Timeout)
		buf = appendInt64(buf, r.SessionID)
		buf = appendBuffer(buf, r.Password)
		return appendBool(buf, r.ReadOnly)
	case *CreateRequest:
		buf = appendString(buf, r.Path)
		buf = appendBuffer(buf, r.Data)
		buf = appendACL(buf, r.ACL)
		return appendInt32(buf, int32(r.Mode))
	case *DeleteRequest:
		buf = appendString(buf, r.Path)
		return appendInt32(buf, r.Version)
	case *ExistsRequest:
		buf = appendString(buf, r.Path)
		return appendBool(buf, r.Watch)
	case *GetDataRequest:
		buf = appendString(buf, r.Path)
		return appendBool(buf, r.Watch)
	case *SetDataRequest:
		buf = appendString(buf, r.Path)
		buf = appendBuffer(buf, r.Data)
		return appendInt32(buf, r.Version)
	case *GetChildrenRequest:
		buf = appendString(buf, r.Path)
		return appendBool(buf, r.Watch)
	case *PingRequest, *CloseRequest:
		return buf
	}
	panic(fmt.Sprintf("zk: unknown request type %T", rq))
}

// DecodeConnectRequest parses a handshake payload. The read-only flag is optional,
// older clients omit it.
func DecodeConnectRequest(buf []byte) (*ConnectRequest, error) {
	d := newDecoder(buf)
	r := &ConnectRequest{
		ProtocolVersion: d.int32(),
		LastZxidSeen:    d.int64(),
		Timeout:         d.int32(),
		SessionID:       d.int64(),
		Password:        d.buffer(),
	}
	if d.err == nil && d.remaining() > 0 {
		r.ReadOnly = d.bool()
	}
	return r, d.err
}

// DecodeRequest parses the payload following xid and opcode. Used by the server side.
func DecodeRequest(op OpCode, buf []byte) (Request, error) {
	d := newDecoder(buf)
	var rq Request
	switch op {
	case OpCreate:
		rq = &CreateRequest{Path: d.string(), Data: d.buffer(), ACL: d.acl(), Mode: CreateMode(d.int32())}
	case OpDelete:
		rq = &DeleteRequest{Path: d.string(), Version: d.int32()}
	case OpExists:
		rq = &ExistsRequest{Path: d.string(), Watch: d.bool()}
	case OpGetData:
		rq = &GetDataRequest{Path: d.string(), Watch: d.bool()}
	case OpSetData:
		rq = &SetDataRequest{Path: d.string(), Data: d.buffer(), Version: d.int32()}
	case OpGetChildren:
		rq = &GetChildrenRequest{Path: d.string(), Watch: d.bool()}
	case OpPing:
		rq = &PingRequest{}
	case OpCloseSession:
		rq = &CloseRequest{}
	case OpConnect:
		return DecodeConnectRequest(buf)
	default:
		return nil, fmt.Errorf("%w: unknown opcode %d", ErrUnimplemented, int32(op))
	}
	if d.err != nil {
		return nil, d.err
	}
	return rq, nil
}

// AppendRequestHeader appends xid and opcode.
func AppendRequestHeader(buf []byte, xid int32, op OpCode) []byte {
	buf = appendInt32(buf, xid)
	return appendInt32(buf, int32(op))
}

// DecodeRequestHeader splits a non-handshake request payload into xid, opcode and body.
func DecodeRequestHeader(buf []byte) (xid int32, op OpCode, body []byte, err error) {
	d := newDecoder(buf)
	xid = d.int32()
	op = OpCode(d.int32())
	if d.err != nil {
		return 0, 0, nil, d.err
	}
	return xid, op, buf[d.off:], nil
}
