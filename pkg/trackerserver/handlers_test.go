package trackerserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
	"github.com/happyfish100/fastdfs-sub006/pkg/selection"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

func encodeDownloadQuery(group, sourceID string, ts int64, isNormal bool, knownFresher string) []byte {
	buf := make([]byte, 57)
	trackerproto.PutFixedString(buf[0:16], group)
	trackerproto.PutFixedString(buf[16:32], sourceID)
	trackerproto.PutInt64(buf[32:40], ts)
	if isNormal {
		buf[40] = 1
	}
	trackerproto.PutFixedString(buf[41:57], knownFresher)
	return buf
}

func TestStorageJoinReplyCarriesAssignedStatus(t *testing.T) {
	s := newTestServer()
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}
	resp, err := s.dispatch(rc, trackerproto.CmdStorageJoin, encodeStorageJoin("group1", "", 23000, 1, cluster.StatusOnline))
	require.NoError(t, err)
	require.Len(t, resp, 1+16)
	assert.Equal(t, byte(cluster.StatusOnline), resp[0], "join reply body must carry the storage's assigned status, not the RPC success code")
}

func TestServiceQueryStoreWithGroupOnePinsGroup(t *testing.T) {
	s := newTestServer()
	s.Sel = selection.New(selection.Config{})
	joinAndActivate(t, s, "groupA", "10.0.0.1")
	joinAndActivate(t, s, "groupB", "10.0.0.2")

	body := make([]byte, 16)
	trackerproto.PutFixedString(body, "groupB")
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.3"}
	resp, err := s.dispatch(rc, trackerproto.CmdServiceQueryStoreWithGroupOne, body)
	require.NoError(t, err)
	require.Len(t, resp, storeAnswerSize)
	assert.Equal(t, "groupB", trackerproto.FixedString(resp[0:16]))
}

func TestServiceQueryStoreWithGroupOneUnknownGroup(t *testing.T) {
	s := newTestServer()
	s.Sel = selection.New(selection.Config{})
	body := make([]byte, 16)
	trackerproto.PutFixedString(body, "nosuch")
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.3"}
	_, err := s.dispatch(rc, trackerproto.CmdServiceQueryStoreWithGroupOne, body)
	require.Error(t, err)
}

func TestServiceQueryUpdateTargetsSourceStorage(t *testing.T) {
	s := newTestServer()
	s.Sel = selection.New(selection.Config{})
	joinAndActivate(t, s, "groupA", "10.0.0.1")

	body := encodeDownloadQuery("groupA", "10.0.0.1", 0, true, "")
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.9"}
	resp, err := s.dispatch(rc, trackerproto.CmdServiceQueryUpdate, body)
	require.NoError(t, err)
	require.Len(t, resp, storeAnswerSize)
	assert.Equal(t, "10.0.0.1", trackerproto.FixedString(resp[16:32]))
}

func TestServiceQueryUpdateUnknownSourceFails(t *testing.T) {
	s := newTestServer()
	s.Sel = selection.New(selection.Config{})
	joinAndActivate(t, s, "groupA", "10.0.0.1")

	body := encodeDownloadQuery("groupA", "10.0.0.99", 0, true, "")
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.9"}
	_, err := s.dispatch(rc, trackerproto.CmdServiceQueryUpdate, body)
	require.Error(t, err)
	assert.Equal(t, selection.ErrNoStorage, err)
}

func TestServerDeleteStorageRemovesIt(t *testing.T) {
	s := newTestServer()
	joinAndActivate(t, s, "groupA", "10.0.0.1")
	// an active storage is Busy for deletion; take it offline first
	require.NoError(t, s.Store.OfflineStorage("groupA", "10.0.0.1"))

	body := make([]byte, 32)
	trackerproto.PutFixedString(body[0:16], "groupA")
	trackerproto.PutFixedString(body[16:32], "10.0.0.1")
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}
	_, err := s.dispatch(rc, trackerproto.CmdServerDeleteStorage, body)
	require.NoError(t, err)

	g, ok := s.Store.GroupByName("groupA")
	require.True(t, ok)
	// soft delete: the record stays counted and is marked deleted
	assert.Equal(t, 1, g.Count)
	require.Len(t, g.SortedByIDStorages, 1)
	assert.Equal(t, cluster.StatusDeleted, g.SortedByIDStorages[0].Status)
}

func TestStorageBeatRecordsCountersAndReturnsDelta(t *testing.T) {
	s := newTestServer()
	joinAndActivate(t, s, "groupA", "10.0.0.1")

	body := make([]byte, 16+8*4)
	trackerproto.PutFixedString(body[0:16], "groupA")
	trackerproto.PutInt64(body[16:24], 10)
	trackerproto.PutInt64(body[24:32], 9)
	trackerproto.PutInt64(body[32:40], 5)
	trackerproto.PutInt64(body[40:48], 5)

	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}
	resp, err := s.dispatch(rc, trackerproto.CmdStorageBeat, body)
	require.NoError(t, err)
	assert.NotNil(t, resp)

	g, ok := s.Store.GroupByName("groupA")
	require.True(t, ok)
	st := g.ActiveByID("10.0.0.1")
	require.NotNil(t, st)
	assert.EqualValues(t, 10, st.Stat.TotalUploadCount)
	assert.EqualValues(t, 9, st.Stat.SuccessUploadCount)
}

func TestStorageBeatEmptyBodyIsKeepAlive(t *testing.T) {
	s := newTestServer()
	joinAndActivate(t, s, "groupA", "10.0.0.1")
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}
	resp, err := s.dispatch(rc, trackerproto.CmdStorageBeat, nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestStorageReportDiskUsageUpdatesGroupTotals(t *testing.T) {
	s := newTestServer()
	joinAndActivate(t, s, "groupA", "10.0.0.1")

	body := make([]byte, 24+16)
	trackerproto.PutFixedString(body[0:16], "groupA")
	trackerproto.PutInt64(body[16:24], 1)
	trackerproto.PutInt64(body[24:32], 2000)
	trackerproto.PutInt64(body[32:40], 1500)

	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}
	_, err := s.dispatch(rc, trackerproto.CmdStorageReportDiskUsage, body)
	require.NoError(t, err)

	g, ok := s.Store.GroupByName("groupA")
	require.True(t, ok)
	assert.EqualValues(t, 1500, g.FreeMB)
}

func TestStorageGetStatusReportsActivatedStorage(t *testing.T) {
	s := newTestServer()
	joinAndActivate(t, s, "groupA", "10.0.0.1")

	body := make([]byte, 32)
	trackerproto.PutFixedString(body[0:16], "groupA")
	trackerproto.PutFixedString(body[16:32], "10.0.0.1")
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}
	resp, err := s.dispatch(rc, trackerproto.CmdStorageGetStatus, body)
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Equal(t, cluster.StatusActive, cluster.Status(resp[0]))
}

func TestStorageBeatFlagsLeaderChangeOnceThenGoesQuiet(t *testing.T) {
	s := newTestServer()
	s.Peers = peerset.New([]string{"10.0.0.9"}, 22122)
	joinAndActivate(t, s, "groupA", "10.0.0.1")
	require.NoError(t, s.Peers.SetLeader("10.0.0.9:22122"))

	beatBody := make([]byte, 16)
	trackerproto.PutFixedString(beatBody, "groupA")
	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}

	first, err := s.dispatch(rc, trackerproto.CmdStorageBeat, beatBody)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.NotZero(t, first[0]&byte(trackerproto.ChangeLeader), "first heartbeat after a leader change must flag it")

	second, err := s.dispatch(rc, trackerproto.CmdStorageBeat, beatBody)
	require.NoError(t, err)
	require.NotEmpty(t, second)
	assert.Zero(t, second[0]&byte(trackerproto.ChangeLeader), "the bit clears once the storage has acknowledged the change")
}

func TestTrackerGetStatusReflectsLeaderAndPeerCount(t *testing.T) {
	s := newTestServer()
	s.Peers = peerset.New([]string{"10.0.0.1"}, 22122)
	local := s.Peers.Local()
	require.NotNil(t, local)
	local.IsLeader = true
	local.RunningTime = 42

	rc := &requestContext{ctx: context.Background(), remoteHost: "10.0.0.1"}
	resp, err := s.dispatch(rc, trackerproto.CmdTrackerGetStatus, nil)
	require.NoError(t, err)
	require.Len(t, resp, 1+8+8+8)
	assert.Equal(t, byte(1), resp[0])
	assert.EqualValues(t, 42, trackerproto.Int64(resp[1:9]))
	assert.EqualValues(t, 1, trackerproto.Int64(resp[17:25]))
}
