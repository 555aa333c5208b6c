package proto

import (
	"errors"
	"fmt"
)

// ErrCode is the error field of a reply header. Zero means success.
type ErrCode int32

const (
	ErrCodeOk ErrCode = 0
	// system and server-side errors
	ErrCodeSystemError          ErrCode = -1
	ErrCodeRuntimeInconsistency ErrCode = -2
	ErrCodeDataInconsistency    ErrCode = -3
	ErrCodeConnectionLoss       ErrCode = -4
	ErrCodeMarshallingError     ErrCode = -5
	ErrCodeUnimplemented        ErrCode = -6
	ErrCodeOperationTimeout     ErrCode = -7
	ErrCodeBadArguments         ErrCode = -8
	ErrCodeInvalidState         ErrCode = -9
	// API errors
	ErrCodeAPIError                ErrCode = -100
	ErrCodeNoNode                  ErrCode = -101
	ErrCodeNoAuth                  ErrCode = -102
	ErrCodeBadVersion              ErrCode = -103
	ErrCodeNoChildrenForEphemerals ErrCode = -108
	ErrCodeNodeExists              ErrCode = -110
	ErrCodeNotEmpty                ErrCode = -111
	ErrCodeSessionExpired          ErrCode = -112
	ErrCodeInvalidCallback         ErrCode = -113
	ErrCodeInvalidACL              ErrCode = -114
	ErrCodeAuthFailed              ErrCode = -115
	ErrCodeClosing                 ErrCode = -116
	ErrCodeNothing                 ErrCode = -117
	ErrCodeSessionMoved            ErrCode = -118
)

var (
	// Returned by the decoder when a buffer ends before the value it describes.
	ErrMalformed = errors.New("zk: malformed frame")

	ErrSystemError             = errors.New("zk: system error")
	ErrRuntimeInconsistency    = errors.New("zk: runtime inconsistency")
	ErrDataInconsistency       = errors.New("zk: data inconsistency")
	ErrConnectionLoss          = errors.New("zk: connection loss")
	ErrMarshallingError        = errors.New("zk: marshalling error")
	ErrUnimplemented           = errors.New("zk: unimplemented")
	ErrOperationTimeout        = errors.New("zk: operation timeout")
	ErrBadArguments            = errors.New("zk: bad arguments")
	ErrInvalidState            = errors.New("zk: invalid state")
	ErrAPIError                = errors.New("zk: api error")
	ErrNoNode                  = errors.New("zk: node does not exist")
	ErrNoAuth                  = errors.New("zk: not authenticated")
	ErrBadVersion              = errors.New("zk: version conflict")
	ErrNoChildrenForEphemerals = errors.New("zk: ephemeral nodes may not have children")
	ErrNodeExists              = errors.New("zk: node already exists")
	ErrNotEmpty                = errors.New("zk: node has children")
	ErrSessionExpired          = errors.New("zk: session has been expired by the server")
	ErrInvalidCallback         = errors.New("zk: invalid callback")
	ErrInvalidACL              = errors.New("zk: invalid ACL specified")
	ErrAuthFailed              = errors.New("zk: client authentication failed")
	ErrClosing                 = errors.New("zk: zookeeper is closing")
	ErrNothing                 = errors.New("zk: no server responses to process")
	ErrSessionMoved            = errors.New("zk: session moved to another server, so operation is ignored")

	codeToError = map[ErrCode]error{
		ErrCodeOk:                      nil,
		ErrCodeSystemError:             ErrSystemError,
		ErrCodeRuntimeInconsistency:    ErrRuntimeInconsistency,
		ErrCodeDataInconsistency:       ErrDataInconsistency,
		ErrCodeConnectionLoss:          ErrConnectionLoss,
		ErrCodeMarshallingError:        ErrMarshallingError,
		ErrCodeUnimplemented:           ErrUnimplemented,
		ErrCodeOperationTimeout:        ErrOperationTimeout,
		ErrCodeBadArguments:            ErrBadArguments,
		ErrCodeInvalidState:            ErrInvalidState,
		ErrCodeAPIError:                ErrAPIError,
		ErrCodeNoNode:                  ErrNoNode,
		ErrCodeNoAuth:                  ErrNoAuth,
		ErrCodeBadVersion:              ErrBadVersion,
		ErrCodeNoChildrenForEphemerals: ErrNoChildrenForEphemerals,
		ErrCodeNodeExists:              ErrNodeExists,
		ErrCodeNotEmpty:                ErrNotEmpty,
		ErrCodeSessionExpired:          ErrSessionExpired,
		ErrCodeInvalidCallback:         ErrInvalidCallback,
		ErrCodeInvalidACL:              ErrInvalidACL,
		ErrCodeAuthFailed:              ErrAuthFailed,
		ErrCodeClosing:                 ErrClosing,
		ErrCodeNothing:                 ErrNothing,
		ErrCodeSessionMoved:            ErrSessionMoved,
	}
)

// Err returns the sentinel error for the code, nil for ErrCodeOk.
func (c ErrCode) Err() error {
	if err, ok := codeToError[c]; ok {
		return err
	}
	return fmt.Errorf("zk: unknown error code %d", int32(c))
}

func (c ErrCode) String() string {
	if c == ErrCodeOk {
		return "OK"
	}
	return c.Err().Error()
}

// CodeOf maps a sentinel error back to its code. Unknown errors map to ErrCodeSystemError.
func CodeOf(err error) ErrCode {
	for code, e := range codeToError {
		if e != nil && errors.Is(err, e) {
			return code
		}
	}
	if err == nil {
		return ErrCodeOk
	}
	return ErrCodeSystemError
}
