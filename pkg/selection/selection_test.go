package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

func storageWith(id string, freeMB, totalMB int64, pri int) *cluster.Storage {
	return &cluster.Storage{ID: id, Status: cluster.StatusActive, FreeMB: freeMB, TotalMB: totalMB, UploadPriority: pri}
}

func groupWith(name string, activeCount int, freeMB, totalMB, trunkFreeMB int64) *cluster.Group {
	g := &cluster.Group{Name: name, FreeMB: freeMB, TotalMB: totalMB, TrunkFreeMB: trunkFreeMB}
	for i := 0; i < activeCount; i++ {
		g.ActiveStorages = append(g.ActiveStorages, storageWith(name, freeMB, totalMB, 0))
	}
	g.ActiveCount = activeCount
	return g
}

func TestSelectGroupReservedSpaceGateBlocksRatio(t *testing.T) {
	// spec.md §8 scenario 4: freeMB=1000 totalMB=10000 reserved=50% fails;
	// with trunk files enabled and trunkFreeMB=5000, it passes.
	g := groupWith("A", 1, 1000, 10000, 5000)
	e := New(Config{Group: GroupRoundRobin, Reserved: ReservedSpace{Ratio: 0.5}})

	_, err := e.SelectGroup([]*cluster.Group{g})
	assert.ErrorIs(t, err, ErrNoSpace)

	e2 := New(Config{Group: GroupRoundRobin, Reserved: ReservedSpace{Ratio: 0.5}, UseTrunkFile: true})
	got, err := e2.SelectGroup([]*cluster.Group{g})
	require.NoError(t, err)
	assert.Same(t, g, got)
}

func TestSelectGroupSpecGroupMissingFails(t *testing.T) {
	e := New(Config{Group: GroupSpecGroup, SpecGroup: "nope"})
	_, err := e.SelectGroup([]*cluster.Group{groupWith("A", 1, 100, 1000, 0)})
	assert.ErrorIs(t, err, ErrNoGroup)
}

func TestSelectGroupLoadBalancePicksLargestFree(t *testing.T) {
	a := groupWith("A", 1, 100, 1000, 0)
	b := groupWith("B", 1, 900, 1000, 0)
	e := New(Config{Group: GroupLoadBalance})

	got, err := e.SelectGroup([]*cluster.Group{a, b})
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestSelectGroupRoundRobinSkipsInactiveAndAdvances(t *testing.T) {
	a := groupWith("A", 1, 500, 1000, 0)
	b := groupWith("B", 0, 500, 1000, 0) // inactive: ActiveCount==0
	c := groupWith("C", 1, 500, 1000, 0)
	e := New(Config{Group: GroupRoundRobin})

	// regardless of start point, b must never be selected
	for i := 0; i < 5; i++ {
		got, err := e.SelectGroup([]*cluster.Group{a, b, c})
		require.NoError(t, err)
		assert.NotSame(t, b, got)
	}
}

func TestSelectStorageFirstByPriPicksMinPriority(t *testing.T) {
	g := &cluster.Group{}
	s1 := storageWith("1", 0, 0, 5)
	s2 := storageWith("2", 0, 0, 1)
	g.ActiveStorages = []*cluster.Storage{s1, s2}

	e := New(Config{Storage: StorageFirstByPri})
	got, err := e.SelectStorage(g)
	require.NoError(t, err)
	assert.Same(t, s2, got)
}

func TestSelectStorageRoundRobinRotates(t *testing.T) {
	g := &cluster.Group{}
	s1 := storageWith("1", 0, 0, 0)
	s2 := storageWith("2", 0, 0, 0)
	g.ActiveStorages = []*cluster.Storage{s1, s2}

	e := New(Config{Storage: StorageRoundRobin})
	first, err := e.SelectStorage(g)
	require.NoError(t, err)
	second, err := e.SelectStorage(g)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestUpgradeForcesFirstByIPWhenTrunkFilesEnabled(t *testing.T) {
	cfg := Config{Storage: StorageRoundRobin, UseTrunkFile: true}
	e := New(cfg)
	assert.Equal(t, StorageFirstByIP, e.Config.Storage)
}

func TestSelectPathLoadBalancePicksMaxFree(t *testing.T) {
	s := &cluster.Storage{PathTotalMB: []int64{1000, 1000}, PathFreeMB: []int64{100, 900}}
	e := New(Config{Path: PathLoadBalance})
	idx, err := e.SelectPath(&cluster.Group{}, s)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestSelectDownloadServerSourceFirstReturnsSourceWhenActive(t *testing.T) {
	g := &cluster.Group{}
	src := storageWith("1", 0, 0, 0)
	other := storageWith("2", 0, 0, 0)
	g.ActiveStorages = []*cluster.Storage{src, other}

	e := New(Config{Download: DownloadSourceFirst})
	got, err := e.SelectDownloadServer(g, DownloadQuery{SourceID: "1"}, time.Now())
	require.NoError(t, err)
	assert.Same(t, src, got)
}

func TestSelectDownloadServerRoundRobinPrefersKnownFresherWhenStale(t *testing.T) {
	g := &cluster.Group{}
	src := storageWith("1", 0, 0, 0)
	stale := storageWith("2", 0, 0, 0)
	fresher := storageWith("3", 0, 0, 0)
	g.ActiveStorages = []*cluster.Storage{src, stale, fresher}
	g.CurrentReadServer = 0 // next pick will be index 1: stale

	e := New(Config{Download: DownloadRoundRobin})
	got, err := e.SelectDownloadServer(g, DownloadQuery{
		SourceID:       "1",
		FileTimestamp:  time.Now().Unix(),
		IsNormalFile:   true,
		KnownFresherID: "3",
	}, time.Now())
	require.NoError(t, err)
	assert.Same(t, fresher, got)
}
