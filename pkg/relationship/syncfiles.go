package relationship

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
)

// SysFileIndex enumerates the four on-disk snapshots a joining or stale
// tracker fetches from a peer, per spec.md §4.3 "System-file catch-up"
// and the GLOSSARY's "System files" entry.
type SysFileIndex int

const (
	SysFileGroups SysFileIndex = iota
	SysFileServers
	SysFileSyncTimestamps
	SysFileChangelog
)

var sysFileNames = [...]string{"groups", "servers", "sync-timestamps", "change-log"}

func (i SysFileIndex) String() string {
	if int(i) < 0 || int(i) >= len(sysFileNames) {
		return "unknown"
	}
	return sysFileNames[i]
}

// SysFileChunkSize bounds each GET_ONE_SYS_FILE round trip.
const SysFileChunkSize = 64 * 1024

// SysFileClient abstracts the wire calls used by the system-file
// catch-up transfer, per spec.md §4.3 and §4.6's
// "Shared-state locking for peer transfers".
type SysFileClient interface {
	// StartSysFilesTransfer issues GET_SYS_FILES_START, which sets the
	// peer's single-transfer marker so a concurrent START fails with
	// Busy. The peer's snapshot writes are not paused during the copy.
	StartSysFilesTransfer(ctx context.Context, peer *peerset.Peer) error
	// EndSysFilesTransfer issues GET_SYS_FILES_END, clearing the marker.
	EndSysFilesTransfer(ctx context.Context, peer *peerset.Peer) error
	// GetOneSysFile issues GET_ONE_SYS_FILE(index, offset) and returns
	// the file's total size and the chunk read at offset. At
	// offset == totalSize it returns a zero-length chunk, not an error.
	GetOneSysFile(ctx context.Context, peer *peerset.Peer, index SysFileIndex, offset int64) (totalSize int64, chunk []byte, err error)
}

// ShouldCatchUp reports whether a joining or restarting tracker must
// pull system files from a peer before serving, per spec.md §4.3: its
// state is empty, or its downtime exceeded 2x SyncStatusFileInterval.
func ShouldCatchUp(stateEmpty bool, downtime time.Duration) bool {
	return stateEmpty || downtime > 2*SyncStatusFileInterval
}

// PickCatchUpPeer selects the highest-ranked live peer to catch up from,
// per spec.md §4.3: "it picks the highest-ranked live peer". Ranking
// reuses the same ordering as leader election (larger running time wins,
// ties by smaller restart interval; a declared leader always outranks a
// non-leader here, since it is by definition live and authoritative).
func (m *Manager) PickCatchUpPeer(ctx context.Context) (*peerset.Peer, error) {
	var best *peerset.Peer
	var bestStatus Status
	haveBest := false

	for _, p := range m.Peers.Peers() {
		if p.IsLocal {
			continue
		}
		st, err := m.Client.GetStatus(ctx, p)
		if err != nil {
			m.Log.Warn("catch-up peer probe failed", zap.String("peer", p.Key()), zap.Error(err))
			continue
		}
		switch {
		case !haveBest:
			best, bestStatus, haveBest = p, st, true
		case st.IsLeader && !bestStatus.IsLeader:
			best, bestStatus = p, st
		case st.IsLeader == bestStatus.IsLeader && st.RunningTime > bestStatus.RunningTime:
			best, bestStatus = p, st
		case st.IsLeader == bestStatus.IsLeader && st.RunningTime == bestStatus.RunningTime && st.RestartInterval < bestStatus.RestartInterval:
			best, bestStatus = p, st
		}
	}
	if !haveBest {
		return nil, Error.New("no reachable peer to catch up from")
	}
	return best, nil
}

// FetchSysFiles runs the full bracketed transfer described by spec.md
// §4.3 and §4.6: GET_SYS_FILES_START, piecewise GET_ONE_SYS_FILE for
// each of the four files, GET_SYS_FILES_END. The caller is responsible
// for atomically installing the returned bytes as the new on-disk state
// (spec.md: "the new state replaces the old atomically").
func FetchSysFiles(ctx context.Context, client SysFileClient, peer *peerset.Peer) (map[SysFileIndex][]byte, error) {
	if err := client.StartSysFilesTransfer(ctx, peer); err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { _ = client.EndSysFilesTransfer(ctx, peer) }()

	out := make(map[SysFileIndex][]byte, 4)
	for _, idx := range []SysFileIndex{SysFileGroups, SysFileServers, SysFileSyncTimestamps, SysFileChangelog} {
		buf, err := fetchOneFile(ctx, client, peer, idx)
		if err != nil {
			return nil, err
		}
		out[idx] = buf
	}
	return out, nil
}

func fetchOneFile(ctx context.Context, client SysFileClient, peer *peerset.Peer, idx SysFileIndex) ([]byte, error) {
	var offset int64
	var buf []byte
	for {
		totalSize, chunk, err := client.GetOneSysFile(ctx, peer, idx, offset)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		buf = append(buf, chunk...)
		offset += int64(len(chunk))
		if offset >= totalSize {
			break
		}
		if len(chunk) == 0 {
			// no progress and not yet at the reported size: the peer is
			// misbehaving or the file shrank mid-transfer.
			return nil, Error.New("system file transfer stalled for " + idx.String())
		}
	}
	return buf, nil
}
