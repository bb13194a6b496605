package peerset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetHasLocalPeer(t *testing.T) {
	s := New([]string{"10.0.0.1"}, 22122)
	local := s.Local()
	require.NotNil(t, local)
	assert.True(t, local.IsLocal)
	assert.Equal(t, "10.0.0.1:22122", local.Key())
}

func TestMergeAddsNewPeersAndKeepsKnownUntouched(t *testing.T) {
	s := New([]string{"10.0.0.1"}, 22122)

	grew := s.Merge([]Peer{
		{IPAddrs: []string{"10.0.0.1"}, Port: 22122}, // already known, the local entry
		{IPAddrs: []string{"10.0.0.2"}, Port: 22122},
	})
	assert.True(t, grew)
	assert.Len(t, s.Peers(), 2)

	p, ok := s.ByKey("10.0.0.2:22122")
	require.True(t, ok)
	assert.False(t, p.IsLocal)

	grewAgain := s.Merge([]Peer{{IPAddrs: []string{"10.0.0.2"}, Port: 22122}})
	assert.False(t, grewAgain, "no new peers in the reported list")
}

func TestMergeRetainsLastPeersUntilReleased(t *testing.T) {
	s := New([]string{"10.0.0.1"}, 22122)
	before := s.Peers()

	s.Merge([]Peer{{IPAddrs: []string{"10.0.0.2"}, Port: 22122}})

	// the snapshot taken before the grow remains a valid, independent slice
	assert.Len(t, before, 1)
	assert.Len(t, s.Peers(), 2)

	s.ReleaseStale()
	assert.Len(t, s.Peers(), 2, "release only drops the stale backing slice, not the live one")
}

func TestSetLeaderDemotesOthers(t *testing.T) {
	s := New([]string{"10.0.0.1"}, 22122)
	s.Merge([]Peer{{IPAddrs: []string{"10.0.0.2"}, Port: 22122}})

	require.NoError(t, s.SetLeader("10.0.0.2:22122"))
	leader := s.Leader()
	require.NotNil(t, leader)
	assert.Equal(t, "10.0.0.2:22122", leader.Key())

	for _, p := range s.Peers() {
		if p.Key() != "10.0.0.2:22122" {
			assert.False(t, p.IsLeader)
		}
	}
}

func TestSetLeaderUnknownKeyFails(t *testing.T) {
	s := New([]string{"10.0.0.1"}, 22122)
	err := s.SetLeader("10.9.9.9:1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearLeaderDemotesAll(t *testing.T) {
	s := New([]string{"10.0.0.1"}, 22122)
	require.NoError(t, s.SetLeader("10.0.0.1:22122"))
	s.ClearLeader()
	assert.Nil(t, s.Leader())
	for _, p := range s.Peers() {
		assert.False(t, p.IsLeader)
	}
}

func TestLeaderGenerationBumpsOnSetAndClear(t *testing.T) {
	s := New([]string{"10.0.0.1"}, 22122)
	assert.EqualValues(t, 0, s.LeaderGeneration())

	require.NoError(t, s.SetLeader("10.0.0.1:22122"))
	assert.EqualValues(t, 1, s.LeaderGeneration())

	s.ClearLeader()
	assert.EqualValues(t, 2, s.LeaderGeneration())
}
