package trackerproto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
	"github.com/happyfish100/fastdfs-sub006/pkg/selection"
	"github.com/happyfish100/fastdfs-sub006/pkg/storageid"
)

func TestHeaderRoundTrips(t *testing.T) {
	h := Header{PkgLen: 1234, Cmd: CmdStorageJoin, Status: StatusOK}
	var buf [HeaderSize]byte
	h.Encode(buf[:])
	got := DecodeHeader(buf[:])
	assert.Equal(t, h, got)
}

func TestReadWriteHeader(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, WriteHeader(&b, Header{PkgLen: 99, Cmd: CmdResp, Status: StatusNotFound}))
	got, err := ReadHeader(&b)
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.PkgLen)
	assert.Equal(t, CmdResp, got.Cmd)
	assert.Equal(t, StatusNotFound, got.Status)
}

func TestWriteFramePrefixesLength(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, WriteFrame(&b, CmdStorageBeat, StatusOK, []byte("hello")))
	h, err := ReadHeader(&b)
	require.NoError(t, err)
	assert.Equal(t, int64(5), h.PkgLen)
	assert.Equal(t, "hello", b.String())
}

func TestFixedStringTruncatesAtPadding(t *testing.T) {
	buf := make([]byte, FieldWidth)
	PutFixedString(buf, "group1")
	assert.Equal(t, "group1", FixedString(buf))
	for i := len("group1"); i < FieldWidth; i++ {
		assert.Equal(t, byte(0), buf[i])
	}
}

func TestFixedStringTruncatesOversizeInput(t *testing.T) {
	buf := make([]byte, 4)
	PutFixedString(buf, "toolongvalue")
	assert.Equal(t, "tool", FixedString(buf))
}

func TestStorageBriefRoundTrips(t *testing.T) {
	b := StorageBrief{Status: StatusOK, Port: 23000, ID: "10.0.0.1", IP: "10.0.0.1"}
	buf := make([]byte, StorageBriefSize)
	b.Encode(buf)
	got := DecodeStorageBrief(buf)
	assert.Equal(t, b, got)
}

func TestEncodeDecodeStorageBriefsArray(t *testing.T) {
	in := []StorageBrief{
		{Status: StatusOK, Port: 1, ID: "a", IP: "10.0.0.1"},
		{Status: StatusBusy, Port: 2, ID: "b", IP: "10.0.0.2"},
	}
	buf := EncodeStorageBriefs(in)
	assert.Len(t, buf, StorageBriefSize*2)
	out := DecodeStorageBriefs(buf)
	assert.Equal(t, in, out)
}

func TestChangeFlagsHas(t *testing.T) {
	f := ChangeLeader | ChangeGroupMembership
	assert.True(t, f.Has(ChangeLeader))
	assert.False(t, f.Has(ChangeTrunkServer))
	assert.True(t, f.Has(ChangeGroupMembership))
}

func TestStatusOfMapsKnownSentinels(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusNotFound, StatusOf(cluster.ErrNotFound))
	assert.Equal(t, StatusBusy, StatusOf(cluster.ErrBusy))
	assert.Equal(t, StatusNoSpace, StatusOf(selection.ErrNoSpace))
	assert.Equal(t, StatusNotFound, StatusOf(peerset.ErrNotFound))
	assert.Equal(t, StatusExists, StatusOf(storageid.ErrDuplicateID))
}

func TestStatusOfFallsBackToIOForUnclassified(t *testing.T) {
	assert.Equal(t, StatusIO, StatusOf(assert.AnError))
}
