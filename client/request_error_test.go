package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dermesser/zkmux/proto"
	"github.com/stretchr/testify/assert"
)

func TestRequestError(t *testing.T) {
	err := &RequestError{Op: proto.OpDelete, Path: "/a", Code: proto.ErrCodeBadVersion, Expected: 4}
	assert.Equal(t, "delete /a: zk: version conflict (expected version 4)", err.Error())
	assert.Equal(t, "BadVersion", err.Status())
	assert.Equal(t, "zk: version conflict", err.Message())

	wrapped := fmt.Errorf("while locking: %w", err)
	assert.ErrorIs(t, wrapped, proto.ErrBadVersion)
	var rqerr *RequestError
	assert.True(t, errors.As(wrapped, &rqerr))

	unknown := &RequestError{Op: proto.OpCreate, Path: "/b", Code: proto.ErrCode(-999)}
	assert.Equal(t, "Code(-999)", unknown.Status())
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "ok", statusLabel(nil))
	assert.Equal(t, "NoNode", statusLabel(&RequestError{Code: proto.ErrCodeNoNode}))
	assert.Equal(t, "connection_lost", statusLabel(fmt.Errorf("%w: eof", ErrConnectionLost)))
	assert.Equal(t, "timeout", statusLabel(context.DeadlineExceeded))
	assert.Equal(t, "session_expired", statusLabel(proto.ErrSessionExpired))
	assert.Equal(t, "error", statusLabel(errors.New("other")))
}
