package trackerserver

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
	"github.com/happyfish100/fastdfs-sub006/pkg/relationship"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// PeerClient dials other trackers in the peer set over the same wire
// protocol this tracker serves, implementing relationship.Client so the
// relationship manager can run its election and leader-handoff protocol
// without knowing anything about sockets or framing.
type PeerClient struct {
	Timeout time.Duration
}

var _ relationship.Client = (*PeerClient)(nil)

func (c *PeerClient) dialTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 10 * time.Second
}

// roundTrip dials peer, writes one request frame, and reads back one
// response frame's body, honoring ctx's deadline if it has one.
func (c *PeerClient) roundTrip(ctx context.Context, peer *peerset.Peer, cmd trackerproto.Cmd, body []byte) ([]byte, error) {
	var ip string
	if len(peer.IPAddrs) > 0 {
		ip = peer.IPAddrs[0]
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(int(peer.Port)))

	d := net.Dialer{Timeout: c.dialTimeout()}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.dialTimeout()))
	}

	if err := trackerproto.WriteFrame(conn, cmd, trackerproto.StatusOK, body); err != nil {
		return nil, Error.Wrap(err)
	}
	h, err := trackerproto.ReadHeader(conn)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	respBody := make([]byte, h.PkgLen)
	if h.PkgLen > 0 {
		if _, err := io.ReadFull(conn, respBody); err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if h.Status != trackerproto.StatusOK {
		return respBody, trackerproto.ErrorFor(h.Status)
	}
	return respBody, nil
}

// GetStatus implements relationship.Client by calling TRACKER_GET_STATUS
// (123), the same response shape handleTrackerGetStatus produces.
func (c *PeerClient) GetStatus(ctx context.Context, peer *peerset.Peer) (relationship.Status, error) {
	body, err := c.roundTrip(ctx, peer, trackerproto.CmdTrackerGetStatus, nil)
	if err != nil {
		return relationship.Status{}, err
	}
	if len(body) < 1+8+8 {
		return relationship.Status{}, trackerproto.Error.New("short TRACKER_GET_STATUS response")
	}
	return relationship.Status{
		IsLeader:        body[0] != 0,
		RunningTime:     trackerproto.Int64(body[1:9]),
		RestartInterval: trackerproto.Int64(body[9:17]),
	}, nil
}

// NotifyNextLeader implements relationship.Client by calling
// TRACKER_NOTIFY_NEXT_LEADER (131) with body `{candidateKey:16}`.
func (c *PeerClient) NotifyNextLeader(ctx context.Context, peer *peerset.Peer, leaderKey string) error {
	body := make([]byte, 16)
	trackerproto.PutFixedString(body, leaderKey)
	_, err := c.roundTrip(ctx, peer, trackerproto.CmdTrackerNotifyNextLeader, body)
	return err
}

// CommitNextLeader implements relationship.Client by calling
// TRACKER_COMMIT_NEXT_LEADER (132) with body `{candidateKey:16}`.
func (c *PeerClient) CommitNextLeader(ctx context.Context, peer *peerset.Peer, leaderKey string) error {
	body := make([]byte, 16)
	trackerproto.PutFixedString(body, leaderKey)
	_, err := c.roundTrip(ctx, peer, trackerproto.CmdTrackerCommitNextLeader, body)
	return err
}
