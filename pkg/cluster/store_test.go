package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddStorageAndActivate(t *testing.T) {
	st := New(nil)

	s, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, StatusInit, s.Status)

	g, ok := st.GroupByName("group1")
	require.True(t, ok)
	assert.Equal(t, 1, g.Count)

	// init is not activatable; a joined storage is online before it activates.
	s.Status = StatusOnline
	activated, err := st.ActivateStorage("group1", "1")
	require.NoError(t, err)
	assert.True(t, activated)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 1, g.ActiveCount)
	assert.Same(t, s, g.TrunkServer)
}

func TestActivateStorageNoOpWhenNotActivatable(t *testing.T) {
	st := New(nil)
	s, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = StatusWaitSync

	activated, err := st.ActivateStorage("group1", "1")
	require.NoError(t, err)
	assert.False(t, activated)
	assert.Equal(t, StatusWaitSync, s.Status)
}

func TestStatusMergeRuleIgnoresActiveFromPeer(t *testing.T) {
	st := New(nil)
	s, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = StatusOffline

	err = st.SyncStorageBriefs("group1", []Brief{{ID: "1", Status: StatusActive}})
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, s.Status, "active coming over the wire must never override local state")
}

func TestStatusMergeRuleAppliesDeletedFromPeer(t *testing.T) {
	st := New(nil)
	s, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = StatusOffline

	err = st.SyncStorageBriefs("group1", []Brief{{ID: "1", Status: StatusDeleted}})
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, s.Status)
}

func TestDeleteGroupBusyWhenCountNonZero(t *testing.T) {
	st := New(nil)
	_, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	s, _ := st.GroupByName("group1")
	_ = s

	require.NoError(t, st.DeleteStorage("group1", "1"))

	// Soft-deleted storage still counts: deleteGroup must stay Busy.
	err = st.DeleteGroup("group1")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestDeleteStorageRejectsWhileBusy(t *testing.T) {
	st := New(nil)
	s, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = StatusActive

	err = st.DeleteStorage("group1", "1")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestDeleteStorageAlreadyDeleted(t *testing.T) {
	st := New(nil)
	_, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, st.DeleteStorage("group1", "1"))

	err = st.DeleteStorage("group1", "1")
	assert.ErrorIs(t, err, ErrAlready)
}

func TestStorageIPChangedSwapsIdentity(t *testing.T) {
	st := New(nil)
	s, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = StatusOffline

	err = st.StorageIPChanged("group1", "10.0.0.1", "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.2"}, s.IPAddrs)

	g, _ := st.GroupByName("group1")
	assert.Equal(t, 2, g.Count, "a ghost record for the old ip is retained in the slab")
}

func TestStorageIPChangedRejectedWhenIdentityModeOn(t *testing.T) {
	st := New(nil)
	st.IdentityMode = true
	_, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)

	err = st.StorageIPChanged("group1", "10.0.0.1", "10.0.0.2")
	assert.ErrorIs(t, err, ErrOpNotSupported)
}

func TestRecordDiskUsageTracksGroupMinFree(t *testing.T) {
	st := New(nil)
	a, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	b, err := st.AddStorage("group1", "2", "10.0.0.2")
	require.NoError(t, err)
	a.Status, b.Status = StatusOnline, StatusOnline
	_, err = st.ActivateStorage("group1", "1")
	require.NoError(t, err)
	_, err = st.ActivateStorage("group1", "2")
	require.NoError(t, err)

	require.NoError(t, st.RecordDiskUsage("group1", a.ID, []int64{1000}, []int64{800}))
	require.NoError(t, st.RecordDiskUsage("group1", b.ID, []int64{1000}, []int64{300}))

	g, _ := st.GroupByName("group1")
	assert.EqualValues(t, 300, g.FreeMB)
}

func TestRecordSyncTimestampsMinForRoundRobin(t *testing.T) {
	st := New(nil)
	st.StoreServerPolicy = StoreServerRoundRobin
	_, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, st.RecordSyncTimestamps("group1", "1", []SyncTuple{{Src: "2", Ts: 100}, {Src: "3", Ts: 50}}))

	g, _ := st.GroupByName("group1")
	assert.EqualValues(t, 50, LastSyncedTimestamp(g, "1", true))
	assert.EqualValues(t, 100, LastSyncedTimestamp(g, "1", false))
}

func TestOfflineStorageSkipsTransitionalStatuses(t *testing.T) {
	st := New(nil)
	s, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = StatusSyncing

	require.NoError(t, st.OfflineStorage("group1", "1"))
	assert.Equal(t, StatusSyncing, s.Status, "offline must not clobber a transitional status")
}

func TestOfflineStorageDemotesOnlineStatus(t *testing.T) {
	st := New(nil)
	s, err := st.AddStorage("group1", "1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = StatusOnline

	require.NoError(t, st.OfflineStorage("group1", "1"))
	assert.Equal(t, StatusOffline, s.Status)
}
