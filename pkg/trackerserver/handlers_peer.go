package trackerserver

import (
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// handleTrackerGetSysFilesStart implements GET_SYS_FILES_START (124),
// per spec.md §4.6's "Shared-state locking for peer transfers": takes
// the single-writer marker so a concurrent START fails with Busy.
func handleTrackerGetSysFilesStart(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sysFilesBusy {
		return nil, cluster.ErrBusy
	}
	s.sysFilesBusy = true
	return nil, nil
}

// handleTrackerGetSysFilesEnd implements GET_SYS_FILES_END (125):
// releases the marker GET_SYS_FILES_START took.
func handleTrackerGetSysFilesEnd(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sysFilesBusy = false
	return nil, nil
}

// handleTrackerGetOneSysFile implements GET_ONE_SYS_FILE (126): body is
// `{index:8, offset:8}`, response is `{totalSize:8, chunk...}`. At
// offset == totalSize the chunk is zero-length, not an error, matching
// pkg/relationship's SysFileClient contract.
func handleTrackerGetOneSysFile(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	if s.Persist == nil {
		return nil, invalidArgErr{}
	}
	index := int(trackerproto.Int64(body[0:8]))
	offset := trackerproto.Int64(body[8:16])

	size, err := s.Persist.SysFileSize(index)
	if err != nil {
		return nil, invalidArgErr{}
	}
	if offset > size {
		return nil, invalidArgErr{}
	}
	maxLen := trackerproto.MaxPackageSize - trackerproto.HeaderSize - 8
	chunk, err := s.Persist.ReadSysFileSlice(index, offset, maxLen)
	if err != nil {
		return nil, err
	}
	resp := make([]byte, 8+len(chunk))
	trackerproto.PutInt64(resp[0:8], size)
	copy(resp[8:], chunk)
	return resp, nil
}

// handleStorageFetchTrunkFid implements STORAGE_FETCH_TRUNK_FID (128):
// body is `{group:16}`, response is `{fileId:8}`, the group's next trunk
// file id for the calling storage to allocate from.
func handleStorageFetchTrunkFid(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	g, ok := s.Store.GroupByName(group)
	if !ok {
		return nil, notFoundErr{}
	}
	var fid int64
	s.Store.WithStateLock(func() {
		g.CurrentTrunkFileID++
		fid = g.CurrentTrunkFileID
	})
	resp := make([]byte, 8)
	trackerproto.PutInt64(resp, fid)
	return resp, nil
}

// handleStorageReportTrunkFid implements STORAGE_REPORT_TRUNK_FID (129):
// a storage informing the tracker of the highest trunk file id it has
// observed (e.g. after restoring from a snapshot), so the tracker's
// counter never regresses.
func handleStorageReportTrunkFid(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 24 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	fid := trackerproto.Int64(body[16:24])
	g, ok := s.Store.GroupByName(group)
	if !ok {
		return nil, notFoundErr{}
	}
	s.Store.WithStateLock(func() {
		if fid > g.CurrentTrunkFileID {
			g.CurrentTrunkFileID = fid
		}
	})
	return nil, nil
}

// handleStorageReportTrunkFree implements STORAGE_REPORT_TRUNK_FREE
// (130): body is `{group:16, trunkFreeMB:8}`.
func handleStorageReportTrunkFree(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 24 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	freeMB := trackerproto.Int64(body[16:24])
	g, ok := s.Store.GroupByName(group)
	if !ok {
		return nil, notFoundErr{}
	}
	s.Store.WithStateLock(func() {
		g.TrunkFreeMB = freeMB
	})
	return nil, nil
}

// handleTrackerNotifyNextLeader implements TRACKER_NOTIFY_NEXT_LEADER
// (131): body is `{candidateKey:16}`.
func handleTrackerNotifyNextLeader(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	s.Rel.HandleNotifyNextLeader(trackerproto.FixedString(body[0:16]))
	return nil, nil
}

// handleTrackerCommitNextLeader implements TRACKER_COMMIT_NEXT_LEADER
// (132): body is `{candidateKey:16}`.
func handleTrackerCommitNextLeader(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	return nil, s.Rel.HandleCommitNextLeader(trackerproto.FixedString(body[0:16]))
}

// handleTrackerNotifyReselectLeader implements
// TRACKER_NOTIFY_RESELECT_LEADER (133): empty body.
func handleTrackerNotifyReselectLeader(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	s.Rel.HandleNotifyReselectLeader()
	return nil, nil
}
