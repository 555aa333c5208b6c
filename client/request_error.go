package client

import (
	"errors"
	"fmt"

	"github.com/dermesser/zkmux/proto"
)

var (
	// The connection serving a request died before the reply arrived. The request may or
	// may not have been applied by the server.
	ErrConnectionLost = errors.New("zk: connection lost")
	// A reply carried an xid that no request was waiting for.
	ErrUnknownXid = errors.New("zk: reply for unknown xid")
	// The server ended a closing session while requests were still outstanding.
	ErrPendingOnClose = errors.New("zk: session closed with requests outstanding")
	// The client was closed.
	ErrClosing = errors.New("zk: client is closing")
	// The session could not be (re-)established.
	ErrHandshake = errors.New("zk: handshake failed")
)

// A RequestError is returned when the server answered a request with a nonzero error code.
// The connection is still healthy. errors.Is(err, proto.ErrNoNode) and friends work on it.
type RequestError struct {
	Op   proto.OpCode
	Path string
	Code proto.ErrCode
	// For BadVersion on delete and setData: the version the caller expected. -1 means any.
	Expected int32
}

func (e *RequestError) Error() string {
	if e.Code == proto.ErrCodeBadVersion {
		return fmt.Sprintf("%s %s: %s (expected version %d)", e.Op, e.Path, e.Code.Err(), e.Expected)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Code.Err())
}

func (e *RequestError) Unwrap() error {
	return e.Code.Err()
}

/*
Returns the name of the server error code, e.g. "NoNode" or "BadVersion". Use
errors.As(err, &rqerr) to obtain the RequestError from an error returned by the client.
*/
func (e *RequestError) Status() string {
	if name, ok := codeNames[e.Code]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int32(e.Code))
}

/*
Returns a human-readable error message such as "zk: node does not exist".
*/
func (e *RequestError) Message() string {
	return e.Code.Err().Error()
}

var codeNames = map[proto.ErrCode]string{
	proto.ErrCodeSystemError:             "SystemError",
	proto.ErrCodeRuntimeInconsistency:    "RuntimeInconsistency",
	proto.ErrCodeDataInconsistency:       "DataInconsistency",
	proto.ErrCodeConnectionLoss:          "ConnectionLoss",
	proto.ErrCodeMarshallingError:        "MarshallingError",
	proto.ErrCodeUnimplemented:           "Unimplemented",
	proto.ErrCodeOperationTimeout:        "OperationTimeout",
	proto.ErrCodeBadArguments:            "BadArguments",
	proto.ErrCodeInvalidState:            "InvalidState",
	proto.ErrCodeAPIError:                "APIError",
	proto.ErrCodeNoNode:                  "NoNode",
	proto.ErrCodeNoAuth:                  "NoAuth",
	proto.ErrCodeBadVersion:              "BadVersion",
	proto.ErrCodeNoChildrenForEphemerals: "NoChildrenForEphemerals",
	proto.ErrCodeNodeExists:              "NodeExists",
	proto.ErrCodeNotEmpty:                "NotEmpty",
	proto.ErrCodeSessionExpired:          "SessionExpired",
	proto.ErrCodeInvalidCallback:         "InvalidCallback",
	proto.ErrCodeInvalidACL:              "InvalidACL",
	proto.ErrCodeAuthFailed:              "AuthFailed",
	proto.ErrCodeClosing:                 "Closing",
	proto.ErrCodeNothing:                 "Nothing",
	proto.ErrCodeSessionMoved:            "SessionMoved",
}
