package trackerserver

import (
	"context"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// connState names the per-connection state machine spec.md §4.6
// describes: Idle → ReadingHeader → ReadingBody → Dispatching →
// WritingResponse → Idle | Closed.
type connState int

const (
	stateIdle connState = iota
	stateReadingHeader
	stateReadingBody
	stateDispatching
	stateWritingResponse
	stateClosed
)

// handleConn drives one connection's state machine until it closes,
// either because the peer hung up, a parse error occurred, an invalid
// pkgLen was seen, or ctx was canceled.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remoteHost, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	state := stateIdle
	reqCount := 0

	timeout := s.Cfg.NetworkTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		state = stateReadingHeader
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		h, err := trackerproto.ReadHeader(conn)
		if err != nil {
			if err != io.EOF {
				s.Log.Debug("connection closed reading header", zap.Error(err))
			}
			state = stateClosed
			return
		}

		if h.PkgLen < 0 || h.PkgLen > trackerproto.MaxPackageSize {
			if !isSysFileTransferCmd(h.Cmd) {
				s.Log.Warn("invalid pkgLen, closing connection", zap.Int64("pkgLen", h.PkgLen), zap.Stringer("cmd", h.Cmd))
				state = stateClosed
				return
			}
		}

		state = stateReadingBody
		body := make([]byte, h.PkgLen)
		if h.PkgLen > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
			if _, err := io.ReadFull(conn, body); err != nil {
				s.Log.Debug("connection closed reading body", zap.Error(err))
				state = stateClosed
				return
			}
		}

		state = stateDispatching
		reqCtx := &requestContext{ctx: ctx, conn: conn, remoteHost: remoteHost}
		respBody, herr := s.dispatch(reqCtx, h.Cmd, body)

		state = stateWritingResponse
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		if werr := trackerproto.WriteResponse(conn, herr, respBody); werr != nil {
			s.Log.Debug("connection closed writing response", zap.Error(werr))
			state = stateClosed
			return
		}

		reqCount++
		state = stateIdle

		if herr != nil && trackerproto.StatusOf(herr) == trackerproto.StatusInvalidArgument && len(respBody) == 0 {
			return
		}
		if h.Cmd == trackerproto.CmdStorageBeat && h.PkgLen == 0 {
			// ACTIVE_TEST keepalive ping: reply then keep the connection
			// open for the next request, per spec.md §6.
			continue
		}
	}
}

// isSysFileTransferCmd reports whether cmd is one of the system-file
// transfer commands spec.md §6 exempts from TRACKER_MAX_PACKAGE_SIZE.
func isSysFileTransferCmd(cmd trackerproto.Cmd) bool {
	switch cmd {
	case trackerproto.CmdTrackerGetSysFilesStart, trackerproto.CmdTrackerGetSysFilesEnd, trackerproto.CmdTrackerGetOneSysFile:
		return true
	default:
		return false
	}
}

// requestContext carries the per-request facts handlers need beyond the
// decoded body: the connection (for the rare handler that must know the
// peer's address, e.g. STORAGE_JOIN's "else use reported client ip") and
// the outer shutdown context.
type requestContext struct {
	ctx        context.Context
	conn       net.Conn
	remoteHost string
}
