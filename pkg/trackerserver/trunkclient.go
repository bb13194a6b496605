package trackerserver

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/liveness"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// TrunkClient dials a group's storages directly over the storage
// protocol, implementing liveness.TrunkClient for spec.md §4.4's
// trunk-server election pass.
type TrunkClient struct {
	Timeout time.Duration
}

var _ liveness.TrunkClient = (*TrunkClient)(nil)

func (c *TrunkClient) dialTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 10 * time.Second
}

func (c *TrunkClient) roundTrip(ctx context.Context, s *cluster.Storage, cmd trackerproto.Cmd, body []byte) ([]byte, error) {
	var ip string
	if len(s.IPAddrs) > 0 {
		ip = s.IPAddrs[0]
	}
	addr := net.JoinHostPort(ip, strconv.Itoa(int(s.StoragePort)))

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

// BinlogSize implements liveness.TrunkClient by calling
// TRUNK_GET_BINLOG_SIZE, response `{size:8}`.
func (c *TrunkClient) BinlogSize(ctx context.Context, s *cluster.Storage) (int64, error) {
	body, err := c.roundTrip(ctx, s, trackerproto.CmdTrunkGetBinlogSize, nil)
	if err != nil {
		return 0, err
	}
	if len(body) < 8 {
		return 0, trackerproto.Error.New("short TRUNK_GET_BINLOG_SIZE response")
	}
	return trackerproto.Int64(body[0:8]), nil
}

// DeleteBinlogMarks implements liveness.TrunkClient by calling
// TRUNK_DELETE_BINLOG_MARKS, an empty-body acknowledgment.
func (c *TrunkClient) DeleteBinlogMarks(ctx context.Context, s *cluster.Storage) error {
	_, err := c.roundTrip(ctx, s, trackerproto.CmdTrunkDeleteBinlogMarks, nil)
	return err
}
