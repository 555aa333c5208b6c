package proto

import "fmt"

// OpCode identifies the operation carried by a request frame.
type OpCode int32

const (
	OpNotification OpCode = 0
	OpCreate       OpCode = 1
	OpDelete       OpCode = 2
	OpExists       OpCode = 3
	OpGetData      OpCode = 4
	OpSetData      OpCode = 5
	OpGetChildren  OpCode = 8
	OpPing         OpCode = 11
	OpCloseSession OpCode = -11
	// Never written to the wire; the handshake frame carries no opcode.
	OpConnect OpCode = -100
)

var opNames = map[OpCode]string{
	OpNotification: "notification",
	OpCreate:       "create",
	OpDelete:       "delete",
	OpExists:       "exists",
	OpGetData:      "getData",
	OpSetData:      "setData",
	OpGetChildren:  "getChildren",
	OpPing:         "ping",
	OpCloseSession: "close",
	OpConnect:      "connect",
}

func (o OpCode) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int32(o))
}

// Reserved transaction ids.
const (
	// Handshake reply and session-close acknowledgment.
	XidSession int32 = 0
	// Unsolicited watch notification.
	XidWatchEvent int32 = -1
	// Heartbeat reply.
	XidPing int32 = -2
)

const (
	ProtocolVersion int32 = 0
	DefaultPort           = 2181
	// Length of the password the server hands out on session creation.
	PasswordLength = 16
)

// EventType is the kind of change a watch notification reports.
type EventType int32

const (
	EventSession             EventType = -1
	EventNodeCreated         EventType = 1
	EventNodeDeleted         EventType = 2
	EventNodeDataChanged     EventType = 3
	EventNodeChildrenChanged EventType = 4
)

func (t EventType) String() string {
	switch t {
	case EventSession:
		return "Session"
	case EventNodeCreated:
		return "NodeCreated"
	case EventNodeDeleted:
		return "NodeDeleted"
	case EventNodeDataChanged:
		return "NodeDataChanged"
	case EventNodeChildrenChanged:
		return "NodeChildrenChanged"
	}
	return fmt.Sprintf("EventType(%d)", int32(t))
}

// State is the keeper state reported alongside a watch notification.
type State int32

const (
	StateUnknown       State = -1
	StateDisconnected  State = 0
	StateSyncConnected State = 3
	StateAuthFailed    State = 4
	StateConnectedRO   State = 5
	StateExpired       State = -112
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "Unknown"
	case StateDisconnected:
		return "Disconnected"
	case StateSyncConnected:
		return "SyncConnected"
	case StateAuthFailed:
		return "AuthFailed"
	case StateConnectedRO:
		return "ConnectedReadOnly"
	case StateExpired:
		return "Expired"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// CreateMode is sent as the flags field of a create request.
type CreateMode int32

const (
	ModePersistent           CreateMode = 0
	ModeEphemeral            CreateMode = 1
	ModePersistentSequential CreateMode = 2
	ModeEphemeralSequential  CreateMode = 3
)

func (m CreateMode) IsEphemeral() bool {
	return m == ModeEphemeral || m == ModeEphemeralSequential
}

func (m CreateMode) IsSequential() bool {
	return m == ModePersistentSequential || m == ModeEphemeralSequential
}

const (
	PermRead   int32 = 1
	PermWrite  int32 = 2
	PermCreate int32 = 4
	PermDelete int32 = 8
	PermAdmin  int32 = 16
	PermAll    int32 = 31
)

// ACL is passed through to the server untouched.
type ACL struct {
	Perms  int32
	Scheme string
	ID     string
}

// OpenACL grants everything to everyone.
func OpenACL() []ACL {
	return []ACL{{Perms: PermAll, Scheme: "world", ID: "anyone"}}
}

// Stat is the metadata the server keeps per node.
type Stat struct {
	Czxid          int64 // zxid of the change that created the node
	Mzxid          int64 // zxid of the last modification
	Ctime          int64 // milliseconds since epoch
	Mtime          int64
	Version        int32 // number of data changes
	Cversion       int32 // number of child changes
	Aversion       int32 // number of ACL changes
	EphemeralOwner int64 // owning session id, or 0
	DataLength     int32
	NumChildren    int32
	Pzxid          int64 // zxid of the last child change
}

// WatchedEvent is pushed by the server with xid -1.
type WatchedEvent struct {
	Type  EventType
	State State
	Path  string
}

func (e WatchedEvent) String() string {
	return fmt.Sprintf("%s(%s) %s", e.Type, e.State, e.Path)
}
