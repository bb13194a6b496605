package electionstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastKnownCheckTimeDefaultsToZero(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "election.db"))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LastKnownCheckTime()
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestSetAndGetLastKnownCheckTimeRoundTrips(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "election.db"))
	require.NoError(t, err)
	defer s.Close()

	want := time.Now().Truncate(time.Second)
	require.NoError(t, s.SetLastKnownCheckTime(want))

	got, err := s.LastKnownCheckTime()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "election.db")
	want := time.Now().Truncate(time.Second)

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.SetLastKnownCheckTime(want))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.LastKnownCheckTime()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}
