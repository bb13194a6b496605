package storageid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatIDRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "42", "16777215", "1000000"} {
		id, err := ParseID(s)
		require.NoError(t, err)
		assert.Equal(t, s, FormatID(id))
	}
}

func TestParseIDRejectsInvalid(t *testing.T) {
	cases := []string{"0", "01", "-1", "16777216", "abc", ""}
	for _, s := range cases {
		_, err := ParseID(s)
		assert.Error(t, err, "expected error for %q", s)
	}
}

func TestLoadBuildsIndexes(t *testing.T) {
	text := `
# storage_ids table
1 group1 192.168.0.10:23000 rw=both
2 group1 10.0.0.11:23000
3 group2 8.8.8.8:23000 rw=readonly
`
	reg, err := Load(text)
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Len())

	id, ok := reg.GetIDByGroupIP("group1", "192.168.0.10")
	require.True(t, ok)
	assert.EqualValues(t, 1, id)

	id, ok = reg.GetIDByIPPort("8.8.8.8", 23000)
	require.True(t, ok)
	assert.EqualValues(t, 3, id)

	// (ip, 0) fallback: a table without a port column is indexed at port 0
	noPort, err := Load("3 group2 8.8.8.8\n")
	require.NoError(t, err)
	id, ok = noPort.GetIDByIPPort("8.8.8.8", 23000)
	require.True(t, ok)
	assert.EqualValues(t, 3, id)

	rec, ok := reg.GetByID(3)
	require.True(t, ok)
	assert.Equal(t, RWReadOnly, rec.RW)
}

func TestLoadRejectsDuplicateID(t *testing.T) {
	text := "1 group1 10.0.0.1:1000\n1 group1 10.0.0.2:1000\n"
	_, err := Load(text)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestLoadRejectsInconsistentPortColumn(t *testing.T) {
	text := "1 group1 10.0.0.1:1000\n2 group1 10.0.0.2\n"
	_, err := Load(text)
	assert.ErrorIs(t, err, ErrInconsistentPort)
}

func TestLoadReordersInnerFirst(t *testing.T) {
	text := "1 group1 8.8.8.8,10.0.0.1:1000\n"
	reg, err := Load(text)
	require.NoError(t, err)
	rec, ok := reg.GetByID(1)
	require.True(t, ok)
	require.Len(t, rec.Addrs, 2)
	assert.Equal(t, ClassInner, rec.Addrs[0].Class)
	assert.Equal(t, "10.0.0.1", rec.Addrs[0].IP)
}
