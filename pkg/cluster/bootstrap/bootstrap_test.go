package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster/persist"
)

func TestLoadReplaysSavedSnapshots(t *testing.T) {
	dir := t.TempDir()
	disk, err := persist.Open(dir, nil)
	require.NoError(t, err)
	defer disk.Close()

	src := cluster.New(nil)
	s, err := src.AddStorage("group1", "10.0.0.1", "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, src.RecordDiskUsage("group1", "10.0.0.1", []int64{1000}, []int64{400}))
	s.Status = cluster.StatusOnline
	_, err = src.ActivateStorage("group1", "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, src.RecordSyncTimestamps("group1", "10.0.0.1", []cluster.SyncTuple{{Src: "10.0.0.2", Ts: 555}}))

	groups := src.Groups()
	require.NoError(t, disk.SaveGroups(groups))
	require.NoError(t, disk.SaveStorages(groups))
	require.NoError(t, disk.SaveSyncTimestamps(groups))

	dst := cluster.New(nil)
	require.NoError(t, Load(dir, dst))

	g, ok := dst.GroupByName("group1")
	require.True(t, ok)
	assert.EqualValues(t, 400, g.FreeMB)
	require.Len(t, g.SortedByIDStorages, 1)
	assert.Equal(t, "10.0.0.1", g.SortedByIDStorages[0].ID)
	assert.EqualValues(t, 555, g.PairwiseLastSyncTs["10.0.0.1"]["10.0.0.2"])
}

func TestLoadOnEmptyDataDirIsNoop(t *testing.T) {
	dir := t.TempDir()
	st := cluster.New(nil)
	require.NoError(t, Load(dir, st))
	assert.Empty(t, st.Groups())
}
