package liveness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

type fakeTrunkClient struct {
	sizes map[string]int64
}

func (f *fakeTrunkClient) BinlogSize(ctx context.Context, s *cluster.Storage) (int64, error) {
	return f.sizes[s.ID], nil
}

func (f *fakeTrunkClient) DeleteBinlogMarks(ctx context.Context, s *cluster.Storage) error {
	return nil
}

func TestTickDemotesStaleHeartbeat(t *testing.T) {
	// spec.md §8 scenario 6.
	st := cluster.New(nil)
	s, err := st.AddStorage("group1", "10.0.0.1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = cluster.StatusOnline
	_, err = st.ActivateStorage("group1", "10.0.0.1")
	require.NoError(t, err)
	s.LastHeartbeat = 1000

	now := time.Unix(1000+121, 0)
	sv := New(st, Config{CheckActiveInterval: 120 * time.Second}, func() bool { return false }, nil, nil, func() time.Time { return now })

	require.NoError(t, sv.Tick(context.Background()))
	assert.Equal(t, cluster.StatusOffline, s.Status)

	g, _ := st.GroupByName("group1")
	assert.Equal(t, 0, g.ActiveCount)
}

func TestTickLeavesFreshHeartbeatAlone(t *testing.T) {
	st := cluster.New(nil)
	s, err := st.AddStorage("group1", "10.0.0.1", "10.0.0.1")
	require.NoError(t, err)
	s.Status = cluster.StatusOnline
	_, err = st.ActivateStorage("group1", "10.0.0.1")
	require.NoError(t, err)
	s.LastHeartbeat = 1000

	now := time.Unix(1050, 0)
	sv := New(st, Config{CheckActiveInterval: 120 * time.Second}, func() bool { return false }, nil, nil, func() time.Time { return now })

	require.NoError(t, sv.Tick(context.Background()))
	assert.Equal(t, cluster.StatusActive, s.Status)
}

func TestTrunkReelectionOnlyRunsWhenLeader(t *testing.T) {
	st := cluster.New(nil)
	a, err := st.AddStorage("group1", "10.0.0.1", "10.0.0.1")
	require.NoError(t, err)
	a.Status = cluster.StatusOnline
	_, err = st.ActivateStorage("group1", "10.0.0.1")
	require.NoError(t, err)
	a.UpTime = 0
	a.LastHeartbeat = 0

	g, _ := st.GroupByName("group1")
	changesBeforeTick := g.TrunkChangeCount

	trunk := &fakeTrunkClient{sizes: map[string]int64{}}
	sv := New(st, Config{CheckActiveInterval: 120 * time.Second, UseTrunkFile: true}, func() bool { return false }, trunk, nil, func() time.Time { return time.Unix(100000, 0) })

	require.NoError(t, sv.Tick(context.Background()))

	g2, _ := st.GroupByName("group1")
	assert.Equal(t, changesBeforeTick, g2.TrunkChangeCount, "non-leader must not run trunk re-election")
}

func TestTrunkReelectionPicksLargestBinlog(t *testing.T) {
	// spec.md §8 scenario 5.
	st := cluster.New(nil)
	s1, err := st.AddStorage("group1", "10.0.0.1", "10.0.0.1")
	require.NoError(t, err)
	s2, err := st.AddStorage("group1", "10.0.0.2", "10.0.0.2")
	require.NoError(t, err)
	s1.Status, s2.Status = cluster.StatusOnline, cluster.StatusOnline
	_, err = st.ActivateStorage("group1", "10.0.0.1")
	require.NoError(t, err)
	_, err = st.ActivateStorage("group1", "10.0.0.2")
	require.NoError(t, err)

	g, _ := st.GroupByName("group1")
	require.NotNil(t, g.TrunkServer)
	silent := g.TrunkServer.ID
	g.TrunkServer.LastHeartbeat = 0
	g.TrunkServer.UpTime = 0

	other := "10.0.0.1"
	if silent == other {
		other = "10.0.0.2"
	}

	trunk := &fakeTrunkClient{sizes: map[string]int64{other: 999}}
	now := time.Unix(int64((5 * 120 * time.Second).Seconds())+1, 0)
	// the other storage keeps heartbeating, so it stays active through the
	// demotion pass and is a candidate for the new trunk.
	g.ActiveByID(other).LastHeartbeat = now.Unix()
	sv := New(st, Config{CheckActiveInterval: 120 * time.Second, UseTrunkFile: true}, func() bool { return true }, trunk, nil, func() time.Time { return now })

	require.NoError(t, sv.Tick(context.Background()))

	g2, _ := st.GroupByName("group1")
	require.NotNil(t, g2.TrunkServer)
	assert.Equal(t, other, g2.TrunkServer.ID)
	assert.EqualValues(t, 2, g2.TrunkChangeCount, "one from initial election, one from re-election")
	assert.EqualValues(t, 1, st.TrunkChangeCount)
}
