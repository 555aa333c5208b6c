package server

import (
	"sort"
	"testing"

	"github.com/dermesser/zkmux/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeCreateAndLookup(t *testing.T) {
	tr := newTree()
	path, _, code := tr.create("/a", []byte("x"), proto.OpenACL(), proto.ModePersistent, 0, 1, 100)
	require.Equal(t, proto.ErrCodeOk, code)
	assert.Equal(t, "/a", path)

	_, _, code = tr.create("/a/b", nil, proto.OpenACL(), proto.ModePersistent, 0, 2, 100)
	require.Equal(t, proto.ErrCodeOk, code)

	n := tr.lookup("/a/b")
	require.NotNil(t, n)
	assert.Equal(t, int64(2), n.stat.Czxid)

	a := tr.lookup("/a")
	assert.Equal(t, int32(1), a.stat.NumChildren)
	assert.Equal(t, int32(1), a.stat.DataLength)
	assert.Equal(t, int64(2), a.stat.Pzxid)
}

func TestTreeCreateErrors(t *testing.T) {
	tr := newTree()
	_, _, code := tr.create("/a/b", nil, proto.OpenACL(), proto.ModePersistent, 0, 1, 0)
	assert.Equal(t, proto.ErrCodeNoNode, code)

	_, _, code = tr.create("/a", nil, nil, proto.ModePersistent, 0, 1, 0)
	assert.Equal(t, proto.ErrCodeInvalidACL, code)

	_, _, code = tr.create("/", nil, proto.OpenACL(), proto.ModePersistent, 0, 1, 0)
	assert.Equal(t, proto.ErrCodeNodeExists, code)

	_, _, code = tr.create("/e", nil, proto.OpenACL(), proto.ModeEphemeral, 7, 1, 0)
	require.Equal(t, proto.ErrCodeOk, code)
	_, _, code = tr.create("/e/c", nil, proto.OpenACL(), proto.ModePersistent, 0, 2, 0)
	assert.Equal(t, proto.ErrCodeNoChildrenForEphemerals, code)

	_, _, code = tr.create("/e", nil, proto.OpenACL(), proto.ModePersistent, 0, 3, 0)
	assert.Equal(t, proto.ErrCodeNodeExists, code)
}

func TestTreeSequentialNames(t *testing.T) {
	tr := newTree()
	first, _, code := tr.create("/job-", nil, proto.OpenACL(), proto.ModePersistentSequential, 0, 1, 0)
	require.Equal(t, proto.ErrCodeOk, code)
	second, _, code := tr.create("/job-", nil, proto.OpenACL(), proto.ModePersistentSequential, 0, 2, 0)
	require.Equal(t, proto.ErrCodeOk, code)

	assert.Equal(t, "/job-0000000000", first)
	assert.Equal(t, "/job-0000000001", second)
}

func TestTreeDeleteVersions(t *testing.T) {
	tr := newTree()
	tr.create("/a", nil, proto.OpenACL(), proto.ModePersistent, 0, 1, 0)
	tr.create("/a/b", nil, proto.OpenACL(), proto.ModePersistent, 0, 2, 0)

	_, _, code := tr.delete("/a", -1, 3)
	assert.Equal(t, proto.ErrCodeNotEmpty, code)

	_, _, code = tr.delete("/a/b", 4, 3)
	assert.Equal(t, proto.ErrCodeBadVersion, code)

	stat, _, code := tr.setData("/a/b", []byte("v"), 0, 3, 0)
	require.Equal(t, proto.ErrCodeOk, code)
	assert.Equal(t, int32(1), stat.Version)

	_, _, code = tr.delete("/a/b", 1, 4)
	assert.Equal(t, proto.ErrCodeOk, code)
	_, _, code = tr.delete("/a/b", -1, 5)
	assert.Equal(t, proto.ErrCodeNoNode, code)
	_, _, code = tr.delete("/", -1, 5)
	assert.Equal(t, proto.ErrCodeBadArguments, code)
}

func TestTreeDeleteReportsOwner(t *testing.T) {
	tr := newTree()
	tr.create("/e", nil, proto.OpenACL(), proto.ModeEphemeral, 42, 1, 0)
	owner, _, code := tr.delete("/e", -1, 2)
	require.Equal(t, proto.ErrCodeOk, code)
	assert.Equal(t, int64(42), owner)
}

func TestTreeWatchesFireOnce(t *testing.T) {
	tr := newTree()

	_, code := tr.exists("/w", true, 1)
	assert.Equal(t, proto.ErrCodeNoNode, code)

	_, triggers, _ := tr.create("/w", nil, proto.OpenACL(), proto.ModePersistent, 0, 1, 0)
	require.Len(t, triggers, 1)
	assert.Equal(t, int64(1), triggers[0].session)
	assert.Equal(t, proto.EventNodeCreated, triggers[0].ev.Type)
	assert.Equal(t, "/w", triggers[0].ev.Path)

	_, triggers, _ = tr.setData("/w", []byte("x"), -1, 2, 0)
	assert.Empty(t, triggers)
}

func TestTreeChildWatches(t *testing.T) {
	tr := newTree()
	tr.create("/p", nil, proto.OpenACL(), proto.ModePersistent, 0, 1, 0)

	_, code := tr.children("/p", true, 5)
	require.Equal(t, proto.ErrCodeOk, code)
	_, _, code = tr.getData("/p", true, 6)
	require.Equal(t, proto.ErrCodeOk, code)

	_, triggers, _ := tr.create("/p/c", nil, proto.OpenACL(), proto.ModePersistent, 0, 2, 0)
	require.Len(t, triggers, 1)
	assert.Equal(t, proto.EventNodeChildrenChanged, triggers[0].ev.Type)
	assert.Equal(t, int64(5), triggers[0].session)

	tr.children("/p", true, 5)
	tr.delete("/p/c", -1, 3)
	_, triggers, _ = tr.delete("/p", -1, 4)

	sessions := []int64{}
	for _, tg := range triggers {
		assert.Equal(t, proto.EventNodeDeleted, tg.ev.Type)
		sessions = append(sessions, tg.session)
	}
	assert.ElementsMatch(t, []int64{6}, sessions)
}

func TestTreeDropWatches(t *testing.T) {
	tr := newTree()
	tr.exists("/x", true, 1)
	tr.exists("/x", true, 2)
	tr.dropWatches(1)

	_, triggers, _ := tr.create("/x", nil, proto.OpenACL(), proto.ModePersistent, 0, 1, 0)
	require.Len(t, triggers, 1)
	assert.Equal(t, int64(2), triggers[0].session)
}

func TestTreeChildren(t *testing.T) {
	tr := newTree()
	for _, p := range []string{"/a", "/b", "/c"} {
		tr.create(p, nil, proto.OpenACL(), proto.ModePersistent, 0, 1, 0)
	}
	names, code := tr.children("/", false, 0)
	require.Equal(t, proto.ErrCodeOk, code)
	sort.Strings(names)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	_, code = tr.children("/nope", false, 0)
	assert.Equal(t, proto.ErrCodeNoNode, code)
}
