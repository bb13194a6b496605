package trackerserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/selection"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

func encodeStorageJoin(group, domain string, storagePort, storePathCount int64, status cluster.Status) []byte {
	buf := make([]byte, storageJoinFixedLen)
	off := 0
	trackerproto.PutFixedString(buf[off:off+16], group)
	off += 16
	trackerproto.PutInt64(buf[off:off+8], storagePort)
	off += 8
	trackerproto.PutInt64(buf[off:off+8], 80) // storageHTTPPort
	off += 8
	trackerproto.PutInt64(buf[off:off+8], storePathCount)
	off += 8
	trackerproto.PutInt64(buf[off:off+8], 1) // subdirCountPerPath
	off += 8
	trackerproto.PutInt64(buf[off:off+8], 0) // uploadPriority
	off += 8
	trackerproto.PutInt64(buf[off:off+8], 1000) // joinTime
	off += 8
	trackerproto.PutInt64(buf[off:off+8], 1000) // upTime
	off += 8
	trackerproto.PutFixedString(buf[off:off+16], "6.06")
	off += 16
	trackerproto.PutFixedString(buf[off:off+16], domain)
	off += 16
	buf[off] = 0 // initFlag
	off++
	buf[off] = byte(status)
	off++
	trackerproto.PutInt64(buf[off:off+8], 0) // trackerCount
	return buf
}

func newTestServer() *Server {
	s := New(Config{})
	s.Store = cluster.New(nil)
	return s
}

func TestDispatchStorageJoinThenListAllGroups(t *testing.T) {
	s := newTestServer()
	rcStorage := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}

	joinBody := encodeStorageJoin("group1", "", 23000, 1, cluster.StatusOnline)
	_, err := s.dispatch(rcStorage, trackerproto.CmdStorageJoin, joinBody)
	require.NoError(t, err)

	rcClient := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.2"}
	resp, err := s.dispatch(rcClient, trackerproto.CmdServerListAllGroups, nil)
	require.NoError(t, err)
	require.Len(t, resp, 8+groupSummarySize)
	count := trackerproto.Int64(resp[0:8])
	assert.EqualValues(t, 1, count)

	name := trackerproto.FixedString(resp[8 : 8+16])
	assert.Equal(t, "group1", name)
}

func TestDispatchAllowListBlocksClientCommands(t *testing.T) {
	s := newTestServer()
	s.Allow = NewAllowList([]string{"10.0.0.0/24"})

	rc := &requestContext{ctx: context.Background(), remoteHost: "192.168.1.1"}
	_, err := s.dispatch(rc, trackerproto.CmdServerListAllGroups, nil)
	require.Error(t, err)
	assert.Equal(t, trackerproto.StatusPermissionDenied, trackerproto.StatusOf(err))
}

func TestDispatchAllowListNeverGatesStorageOrPeerCommands(t *testing.T) {
	s := newTestServer()
	s.Allow = NewAllowList([]string{"10.0.0.0/24"})

	rc := &requestContext{ctx: context.Background(), remoteHost: "192.168.1.1"}
	joinBody := encodeStorageJoin("group1", "", 23000, 1, cluster.StatusOnline)
	_, err := s.dispatch(rc, trackerproto.CmdStorageJoin, joinBody)
	require.NoError(t, err)
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := newTestServer()
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}
	_, err := s.dispatch(rc, trackerproto.Cmd(250), nil)
	require.Error(t, err)
	assert.Equal(t, trackerproto.StatusOpNotSupported, trackerproto.StatusOf(err))
}

func joinAndActivate(t *testing.T, s *Server, group, host string) {
	t.Helper()
	rc := &requestContext{ctx: context.Background(), remoteHost: host}
	_, err := s.dispatch(rc, trackerproto.CmdStorageJoin, encodeStorageJoin(group, "", 23000, 1, cluster.StatusOnline))
	require.NoError(t, err)
	_, err = s.Store.ActivateStorage(group, host)
	require.NoError(t, err)
	require.NoError(t, s.Store.RecordDiskUsage(group, host, []int64{1000}, []int64{500}))
}

func TestServiceQueryStoreWithoutGroupOneRoundRobinsEveryCall(t *testing.T) {
	s := newTestServer()
	s.Sel = selection.New(selection.Config{})

	joinAndActivate(t, s, "groupA", "10.0.0.1")
	joinAndActivate(t, s, "groupB", "10.0.0.2")

	clientRC := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.3"}
	first, err := s.dispatch(clientRC, trackerproto.CmdServiceQueryStoreWithoutGroupOne, nil)
	require.NoError(t, err)
	second, err := s.dispatch(clientRC, trackerproto.CmdServiceQueryStoreWithoutGroupOne, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "round-robin group selection should alternate across calls")
}
