package trackerserver

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// fakePeerServer accepts one connection, reads one frame, and replies
// with whatever respond computes, so PeerClient/TrunkClient can be
// exercised without a full Server on the other end.
func fakePeerServer(t *testing.T, respond func(cmd trackerproto.Cmd, body []byte) (trackerproto.Status, []byte)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		h, err := trackerproto.ReadHeader(conn)
		if err != nil {
			return
		}
		reqBody := make([]byte, h.PkgLen)
		if h.PkgLen > 0 {
			if _, err := io.ReadFull(conn, reqBody); err != nil {
				return
			}
		}
		status, respBody := respond(h.Cmd, reqBody)
		_ = trackerproto.WriteFrame(conn, trackerproto.CmdResp, status, respBody)
	}()
	return ln.Addr().String()
}

func mustSplitHostPort(t *testing.T, addr string) (string, uint16) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, uint16(port)
}

func peerAt(t *testing.T, addr string) *peerset.Peer {
	host, port := mustSplitHostPort(t, addr)
	return &peerset.Peer{IPAddrs: []string{host}, Port: port}
}

func storageAt(t *testing.T, addr string) *cluster.Storage {
	host, port := mustSplitHostPort(t, addr)
	return &cluster.Storage{IPAddrs: []string{host}, StoragePort: port}
}

func TestPeerClientGetStatus(t *testing.T) {
	addr := fakePeerServer(t, func(cmd trackerproto.Cmd, body []byte) (trackerproto.Status, []byte) {
		assert.Equal(t, trackerproto.CmdTrackerGetStatus, cmd)
		resp := make([]byte, 1+8+8)
		resp[0] = 1
		trackerproto.PutInt64(resp[1:9], 300)
		trackerproto.PutInt64(resp[9:17], 600)
		return trackerproto.StatusOK, resp
	})

	c := &PeerClient{Timeout: 2 * time.Second}
	status, err := c.GetStatus(context.Background(), peerAt(t, addr))
	require.NoError(t, err)
	assert.True(t, status.IsLeader)
	assert.EqualValues(t, 300, status.RunningTime)
	assert.EqualValues(t, 600, status.RestartInterval)
}

func TestPeerClientNotifyNextLeaderPropagatesRemoteError(t *testing.T) {
	addr := fakePeerServer(t, func(cmd trackerproto.Cmd, body []byte) (trackerproto.Status, []byte) {
		assert.Equal(t, trackerproto.CmdTrackerNotifyNextLeader, cmd)
		assert.Equal(t, "leaderA", trackerproto.FixedString(body[0:16]))
		return trackerproto.StatusInvalidArgument, nil
	})

	c := &PeerClient{Timeout: 2 * time.Second}
	err := c.NotifyNextLeader(context.Background(), peerAt(t, addr), "leaderA")
	require.Error(t, err)
}

func TestPeerClientCommitNextLeaderSendsCandidateKey(t *testing.T) {
	addr := fakePeerServer(t, func(cmd trackerproto.Cmd, body []byte) (trackerproto.Status, []byte) {
		assert.Equal(t, trackerproto.CmdTrackerCommitNextLeader, cmd)
		assert.Equal(t, "leaderB", trackerproto.FixedString(body[0:16]))
		return trackerproto.StatusOK, nil
	})

	c := &PeerClient{Timeout: 2 * time.Second}
	require.NoError(t, c.CommitNextLeader(context.Background(), peerAt(t, addr), "leaderB"))
}

func TestTrunkClientBinlogSize(t *testing.T) {
	addr := fakePeerServer(t, func(cmd trackerproto.Cmd, body []byte) (trackerproto.Status, []byte) {
		assert.Equal(t, trackerproto.CmdTrunkGetBinlogSize, cmd)
		resp := make([]byte, 8)
		trackerproto.PutInt64(resp, 4096)
		return trackerproto.StatusOK, resp
	})

	c := &TrunkClient{Timeout: 2 * time.Second}
	size, err := c.BinlogSize(context.Background(), storageAt(t, addr))
	require.NoError(t, err)
	assert.EqualValues(t, 4096, size)
}

func TestTrunkClientDeleteBinlogMarks(t *testing.T) {
	addr := fakePeerServer(t, func(cmd trackerproto.Cmd, body []byte) (trackerproto.Status, []byte) {
		assert.Equal(t, trackerproto.CmdTrunkDeleteBinlogMarks, cmd)
		return trackerproto.StatusOK, nil
	})

	c := &TrunkClient{Timeout: 2 * time.Second}
	require.NoError(t, c.DeleteBinlogMarks(context.Background(), storageAt(t, addr)))
}
