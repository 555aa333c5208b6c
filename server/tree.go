package server

import (
	"fmt"
	"strings"

	"github.com/dermesser/zkmux/proto"
)

type znode struct {
	data     []byte
	acl      []proto.ACL
	stat     proto.Stat
	children map[string]*znode
}

// A trigger is a watch that fired: ev is to be sent to session.
type trigger struct {
	session int64
	ev      proto.WatchedEvent
}

/*
tree is the node hierarchy plus the one-shot watches set on it. Data watches are set by
exists and getData and fire on creation, deletion and data changes. Child watches are set
by getChildren and fire when the node is deleted or its children change.

Not safe for concurrent use; the server serializes access.
*/
type tree struct {
	root         *znode
	dataWatches  map[string]map[int64]struct{}
	childWatches map[string]map[int64]struct{}
}

func newTree() *tree {
	return &tree{
		root:         &znode{acl: proto.OpenACL(), children: make(map[string]*znode)},
		dataWatches:  make(map[string]map[int64]struct{}),
		childWatches: make(map[string]map[int64]struct{}),
	}
}

// splitPath returns the parent path and the last component.
func splitPath(path string) (string, string) {
	i := strings.LastIndexByte(path, '/')
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

func (t *tree) lookup(path string) *znode {
	if path == "/" {
		return t.root
	}
	n := t.root
	for _, name := range strings.Split(path[1:], "/") {
		if n = n.children[name]; n == nil {
			return nil
		}
	}
	return n
}

func addWatch(watches map[string]map[int64]struct{}, path string, session int64) {
	w, ok := watches[path]
	if !ok {
		w = make(map[int64]struct{})
		watches[path] = w
	}
	w[session] = struct{}{}
}

// fire removes the watches on path and returns a trigger for each.
func fire(watches map[string]map[int64]struct{}, path string, typ proto.EventType, out []trigger) []trigger {
	for session := range watches[path] {
		out = append(out, trigger{session: session, ev: proto.WatchedEvent{Type: typ, State: proto.StateSyncConnected, Path: path}})
	}
	delete(watches, path)
	return out
}

// dropWatches removes every watch held by session.
func (t *tree) dropWatches(session int64) {
	for _, watches := range []map[string]map[int64]struct{}{t.dataWatches, t.childWatches} {
		for path, w := range watches {
			delete(w, session)
			if len(w) == 0 {
				delete(watches, path)
			}
		}
	}
}

func (t *tree) create(path string, data []byte, acl []proto.ACL, mode proto.CreateMode, owner, zxid, now int64) (string, []trigger, proto.ErrCode) {
	if path == "/" {
		return "", nil, proto.ErrCodeNodeExists
	}
	if len(acl) == 0 {
		return "", nil, proto.ErrCodeInvalidACL
	}
	parentPath, name := splitPath(path)
	parent := t.lookup(parentPath)
	if parent == nil {
		return "", nil, proto.ErrCodeNoNode
	}
	if parent.stat.EphemeralOwner != 0 {
		return "", nil, proto.ErrCodeNoChildrenForEphemerals
	}
	if mode.IsSequential() {
		name = fmt.Sprintf("%s%010d", name, parent.stat.Cversion)
		path = joinPath(parentPath, name)
	} else if name == "" {
		return "", nil, proto.ErrCodeBadArguments
	}
	if _, ok := parent.children[name]; ok {
		return "", nil, proto.ErrCodeNodeExists
	}

	n := &znode{
		data:     append([]byte(nil), data...),
		acl:      acl,
		children: make(map[string]*znode),
		stat: proto.Stat{
			Czxid:      zxid,
			Mzxid:      zxid,
			Pzxid:      zxid,
			Ctime:      now,
			Mtime:      now,
			DataLength: int32(len(data)),
		},
	}
	if mode.IsEphemeral() {
		n.stat.EphemeralOwner = owner
	}
	parent.children[name] = n
	parent.stat.Cversion++
	parent.stat.NumChildren++
	parent.stat.Pzxid = zxid

	triggers := fire(t.dataWatches, path, proto.EventNodeCreated, nil)
	triggers = fire(t.childWatches, parentPath, proto.EventNodeChildrenChanged, triggers)
	return path, triggers, proto.ErrCodeOk
}

// delete returns the owner of the removed node, 0 if it was not ephemeral.
func (t *tree) delete(path string, version int32, zxid int64) (int64, []trigger, proto.ErrCode) {
	if path == "/" {
		return 0, nil, proto.ErrCodeBadArguments
	}
	parentPath, name := splitPath(path)
	parent := t.lookup(parentPath)
	if parent == nil {
		return 0, nil, proto.ErrCodeNoNode
	}
	n := parent.children[name]
	if n == nil {
		return 0, nil, proto.ErrCodeNoNode
	}
	if version != -1 && version != n.stat.Version {
		return 0, nil, proto.ErrCodeBadVersion
	}
	if len(n.children) > 0 {
		return 0, nil, proto.ErrCodeNotEmpty
	}

	delete(parent.children, name)
	parent.stat.Cversion++
	parent.stat.NumChildren--
	parent.stat.Pzxid = zxid

	triggers := fire(t.dataWatches, path, proto.EventNodeDeleted, nil)
	triggers = fire(t.childWatches, path, proto.EventNodeDeleted, triggers)
	triggers = fire(t.childWatches, parentPath, proto.EventNodeChildrenChanged, triggers)
	return n.stat.EphemeralOwner, triggers, proto.ErrCodeOk
}

func (t *tree) setData(path string, data []byte, version int32, zxid, now int64) (proto.Stat, []trigger, proto.ErrCode) {
	n := t.lookup(path)
	if n == nil {
		return proto.Stat{}, nil, proto.ErrCodeNoNode
	}
	if version != -1 && version != n.stat.Version {
		return proto.Stat{}, nil, proto.ErrCodeBadVersion
	}
	n.data = append([]byte(nil), data...)
	n.stat.Version++
	n.stat.Mzxid = zxid
	n.stat.Mtime = now
	n.stat.DataLength = int32(len(data))

	return n.stat, fire(t.dataWatches, path, proto.EventNodeDataChanged, nil), proto.ErrCodeOk
}

// exists sets a data watch even if the node is missing, so that its creation is reported.
func (t *tree) exists(path string, watch bool, session int64) (proto.Stat, proto.ErrCode) {
	if watch {
		addWatch(t.dataWatches, path, session)
	}
	n := t.lookup(path)
	if n == nil {
		return proto.Stat{}, proto.ErrCodeNoNode
	}
	return n.stat, proto.ErrCodeOk
}

func (t *tree) getData(path string, watch bool, session int64) ([]byte, proto.Stat, proto.ErrCode) {
	n := t.lookup(path)
	if n == nil {
		return nil, proto.Stat{}, proto.ErrCodeNoNode
	}
	if watch {
		addWatch(t.dataWatches, path, session)
	}
	return append([]byte(nil), n.data...), n.stat, proto.ErrCodeOk
}

func (t *tree) children(path string, watch bool, session int64) ([]string, proto.ErrCode) {
	n := t.lookup(path)
	if n == nil {
		return nil, proto.ErrCodeNoNode
	}
	if watch {
		addWatch(t.childWatches, path, session)
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	return names, proto.ErrCodeOk
}

func joinPath(parent, child string) string {
	if parent == "/" {
		return "/" + child
	}
	return parent + "/" + child
}
