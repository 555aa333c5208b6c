package proto

import (
	"errors"

	pb "github.com/gogo/protobuf/proto"
)

// SessionSnapshot is what a process needs to resume a session after a restart.
// Stored as a protocol buffer so the format can grow fields.
type SessionSnapshot struct {
	SessionId int64  `protobuf:"varint,1,opt,name=session_id,json=sessionId" json:"session_id,omitempty"`
	Password  []byte `protobuf:"bytes,2,opt,name=password" json:"password,omitempty"`
	LastZxid  int64  `protobuf:"varint,3,opt,name=last_zxid,json=lastZxid" json:"last_zxid,omitempty"`
	TimeoutMs int32  `protobuf:"varint,4,opt,name=timeout_ms,json=timeoutMs" json:"timeout_ms,omitempty"`
	Address   string `protobuf:"bytes,5,opt,name=address" json:"address,omitempty"`
}

func (m *SessionSnapshot) Reset()         { *m = SessionSnapshot{} }
func (m *SessionSnapshot) String() string { return pb.CompactTextString(m) }
func (*SessionSnapshot) ProtoMessage()    {}

var ErrNoSession = errors.New("zk: snapshot carries no session")

// Bytes encodes the snapshot. Not named Marshal: pb.Marshal would call it back.
func (m *SessionSnapshot) Bytes() ([]byte, error) {
	return pb.Marshal(m)
}

// UnmarshalSessionSnapshot rejects snapshots without a session id.
func UnmarshalSessionSnapshot(data []byte) (*SessionSnapshot, error) {
	m := new(SessionSnapshot)
	if err := pb.Unmarshal(data, m); err != nil {
		return nil, err
	}
	if m.SessionId == 0 {
		return nil, ErrNoSession
	}
	return m, nil
}

func init() {
	pb.RegisterType((*SessionSnapshot)(nil), "zkmux.SessionSnapshot")
}
