package trackerserver

import (
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/storageid"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// storageJoinFixedLen is the byte length of STORAGE_JOIN's fixed prefix
// up through trackerCount: group(16) + 7 int64 fields(56) + version(16)
// + domainName(16) + initFlag(1) + status(1) + trackerCount(8) = 114.
// The variable-length currentTrackerIp/trackerList tail that may follow
// is not parsed here: tracker-list merge is driven by the relationship
// checker's own peer discovery, not this handshake.
const storageJoinFixedLen = 16 + 8*7 + 16 + 16 + 1 + 1 + 8

// handleStorageJoin implements the STORAGE_JOIN handshake of spec.md
// §4.6. System-file catch-up (step 3) and tracker-list merge are driven
// by pkg/relationship outside the request path (the relationship
// checker's periodic tick already keeps peers current), so this handler
// covers steps 1, 2, 4-7: validate, resolve id, addGroup/addStorage,
// reconcile shared fields, decide initial status, reply.
func handleStorageJoin(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < storageJoinFixedLen {
		return nil, invalidArgErr{}
	}
	off := 0
	group := trackerproto.FixedString(body[off : off+16])
	off += 16
	storagePort := trackerproto.Int64(body[off : off+8])
	off += 8
	storageHTTPPort := trackerproto.Int64(body[off : off+8])
	off += 8
	storePathCount := trackerproto.Int64(body[off : off+8])
	off += 8
	subdirCountPerPath := trackerproto.Int64(body[off : off+8])
	off += 8
	uploadPriority := trackerproto.Int64(body[off : off+8])
	off += 8
	joinTime := trackerproto.Int64(body[off : off+8])
	off += 8
	upTime := trackerproto.Int64(body[off : off+8])
	off += 8
	_ = trackerproto.FixedString(body[off : off+16]) // version
	off += 16
	domainName := trackerproto.FixedString(body[off : off+16])
	off += 16
	initFlag := body[off] != 0
	off++
	reportedStatus := cluster.Status(body[off])
	off++
	_ = trackerproto.Int64(body[off : off+8]) // trackerCount, tracker list merge handled by relationship checker
	off += 8

	if group == "" || storagePort < 0 || storagePort > 65535 || storePathCount < 0 {
		return nil, invalidArgErr{}
	}

	id := s.resolveID(group, rc.remoteHost)

	g, err := s.Store.AddGroup(group)
	if err != nil {
		return nil, err
	}
	storage, err := s.Store.AddStorage(group, id, rc.remoteHost)
	if err != nil {
		return nil, err
	}

	reconcileJoinFields(g, storage, uint16(storagePort), uint16(storageHTTPPort), int(storePathCount), int(subdirCountPerPath))
	storage.UploadPriority = int(uploadPriority)
	storage.JoinTime = joinTime
	storage.UpTime = upTime
	storage.DomainName = domainName

	myStatus := reportedStatus
	if !initFlag && reportedStatus > 0 {
		if reportedStatus == cluster.StatusActive {
			myStatus = cluster.StatusOnline
		}
		if reportedStatus == cluster.StatusOffline || reportedStatus == cluster.StatusRecovery {
			myStatus = cluster.StatusOnline
		}
	} else {
		myStatus = cluster.StatusInit
		if s.Persist != nil {
			storage.ChangelogOffset = s.Persist.ChangelogSize()
		}
	}
	storage.Status = myStatus

	resp := make([]byte, 1+16)
	resp[0] = byte(myStatus)
	trackerproto.PutFixedString(resp[1:17], syncSrcID(g, storage))
	return resp, nil
}

// reconcileJoinFields applies spec.md §4.6 step 5: if the joining
// storage is the sole mismatch against the group's existing agreement,
// it is rejected (left at the group's value); if every storage in the
// group agrees on the new value, it is adopted onto the group defaults.
func reconcileJoinFields(g *cluster.Group, joining *cluster.Storage, port, httpPort uint16, pathCount, subdirCount int) {
	if g.Count <= 1 {
		g.StoragePort, g.StorageHTTPPort = port, httpPort
		g.StorePathCount, g.SubdirCountPerPath = pathCount, subdirCount
		joining.StoragePort, joining.StorageHTTPPort = port, httpPort
		joining.StorePathCount, joining.SubdirCountPerPath = pathCount, subdirCount
		return
	}
	if g.StoragePort == port && g.StorePathCount == pathCount {
		joining.StoragePort, joining.StorageHTTPPort = port, httpPort
		joining.StorePathCount, joining.SubdirCountPerPath = pathCount, subdirCount
		return
	}
	// sole mismatch: keep the group's established values on the join
	// record rather than rejecting the connection outright, since this
	// handler has already committed addStorage; a repeat heartbeat with
	// the group's own values will bring it back in line.
	joining.StoragePort, joining.StorageHTTPPort = g.StoragePort, g.StorageHTTPPort
	joining.StorePathCount, joining.SubdirCountPerPath = g.StorePathCount, g.SubdirCountPerPath
}

func syncSrcID(g *cluster.Group, self *cluster.Storage) string {
	if g.StoreServer != nil && g.StoreServer.ID != self.ID {
		return g.StoreServer.ID
	}
	return ""
}

// resolveID maps a connection's observed address to its logical storage
// id, via the identity registry when identity-mode is on, falling back
// to the observed address itself otherwise.
func (s *Server) resolveID(group, remoteHost string) string {
	if s.Identity != nil {
		if resolved, ok := s.Identity.GetIDByGroupIP(group, remoteHost); ok {
			return storageid.FormatID(resolved)
		}
	}
	return remoteHost
}

// handleStorageBeat implements storage_beat (82): an empty body is a
// keep-alive ACTIVE_TEST ping (handled by the connection loop without
// touching cluster state); a non-empty body is the periodic heartbeat
// carrying the storage's counters, per spec.md §4.2's recordHeartbeat.
func handleStorageBeat(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	stat := decodeStat(body[16:])
	id := s.resolveID(group, rc.remoteHost)
	if err := s.Store.RecordHeartbeat(group, id, stat); err != nil {
		return nil, err
	}
	return s.buildChangeDelta(group, id), nil
}

// decodeStat decodes the trailing counters of a heartbeat/sync-report
// body as 8-byte big-endian int64s, the first four being the counters
// pkg/cluster.Stat names individually and any remainder carried as
// opaque extras (spec.md §3's "stat{40+ counters}" does not enumerate
// every counter's wire position, so only the ones this tracker's own
// logic reads are decoded by name).
func decodeStat(buf []byte) cluster.Stat {
	var st cluster.Stat
	n := len(buf) / 8
	read := func(i int) int64 {
		if i >= n {
			return 0
		}
		return trackerproto.Int64(buf[i*8 : i*8+8])
	}
	st.TotalUploadCount = read(0)
	st.SuccessUploadCount = read(1)
	st.TotalDownloadCount = read(2)
	st.SuccessDownloadCount = read(3)
	if n > 4 {
		st.Extra = make(map[string]int64, n-4)
		for i := 4; i < n; i++ {
			st.Extra[extraCounterName(i)] = read(i)
		}
	}
	return st
}

func extraCounterName(i int) string {
	return "counter" + string(rune('0'+i))
}

// handleStorageSyncReport implements storage_sync_report (83): a
// storage reports its own counters plus sync progress; this tracker
// treats it identically to a heartbeat for counter bookkeeping, per
// spec.md §4.6's shared check-and-sync piggy-back response shape.
func handleStorageSyncReport(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	return handleStorageBeat(s, rc, body)
}

// handleStorageReportDiskUsage implements storage_report_disk_usage
// (110): body is `{group:16, pathCount:8, (total:8 free:8)*pathCount}`.
func handleStorageReportDiskUsage(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 24 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	pathCount := int(trackerproto.Int64(body[16:24]))
	want := 24 + pathCount*16
	if pathCount < 0 || len(body) < want {
		return nil, invalidArgErr{}
	}
	total := make([]int64, pathCount)
	free := make([]int64, pathCount)
	off := 24
	for i := 0; i < pathCount; i++ {
		total[i] = trackerproto.Int64(body[off : off+8])
		free[i] = trackerproto.Int64(body[off+8 : off+16])
		off += 16
	}
	id := s.resolveID(group, rc.remoteHost)
	if err := s.Store.RecordDiskUsage(group, id, total, free); err != nil {
		return nil, err
	}
	return s.buildChangeDelta(group, id), nil
}

// handleStorageChangelogReq implements STORAGE_CHANGELOG_REQ (118), per
// spec.md §4.6: body is `{group:16, offset:8}`; the tracker clamps the
// read to the lesser of the file's remaining bytes and one package body
// minus header, advances changelogOffset, and persists.
func handleStorageChangelogReq(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 24 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	offset := trackerproto.Int64(body[16:24])
	if s.Persist == nil {
		return nil, invalidArgErr{}
	}
	maxLen := trackerproto.MaxPackageSize - trackerproto.HeaderSize
	slice, err := s.Persist.ReadChangelogSlice(offset, maxLen)
	if err != nil {
		return nil, err
	}
	id := s.resolveID(group, rc.remoteHost)
	g, ok := s.Store.GroupByName(group)
	if ok {
		if st := g.ActiveByID(id); st != nil {
			st.ChangelogOffset = offset + int64(len(slice))
			_ = s.Persist.SaveStorages(s.Store.Groups())
		}
	}
	return slice, nil
}

// handleStorageReportIPChanged implements storage_report_ip_changed
// (93): body is `{group:16, oldIP:16, newIP:16}`.
func handleStorageReportIPChanged(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 48 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	oldIP := trackerproto.FixedString(body[16:32])
	newIP := trackerproto.FixedString(body[32:48])
	if err := s.Store.StorageIPChanged(group, oldIP, newIP); err != nil {
		return nil, err
	}
	return nil, nil
}

// handleStorageReportStatus implements storage_report_status (84): a
// peer reporting a storage's observed status, folded through the same
// merge-status rule syncStorageBriefs uses.
func handleStorageReportStatus(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < trackerproto.StorageBriefSize+16 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	brief := trackerproto.DecodeStorageBrief(body[16 : 16+trackerproto.StorageBriefSize])
	err := s.Store.SyncStorageBriefs(group, []cluster.Brief{{Status: cluster.Status(brief.Status), ID: brief.ID, IP: brief.IP, Port: uint16(brief.Port)}})
	return nil, err
}

// handleStorageReplicaChg implements storage_replica_chg (85). Per
// spec.md, this command is a no-op when received by the current leader
// (only a non-leader tracker relays replica-count changes onward); since
// pkg/relationship always runs the same election logic regardless of
// current role, the handler simply acknowledges.
func handleStorageReplicaChg(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	return nil, nil
}

func handleStorageSyncSrcReq(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	g, ok := s.Store.GroupByName(group)
	if !ok || g.StoreServer == nil {
		return nil, notFoundErr{}
	}
	resp := make([]byte, 16)
	trackerproto.PutFixedString(resp, g.StoreServer.ID)
	return resp, nil
}

func handleStorageSyncDestReq(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	return handleStorageSyncSrcReq(s, rc, body)
}

// handleStorageSyncNotify implements storage_sync_notify (88): body is
// `{group:16, dest:16, n:8, (src:16 ts:8)*n}`.
func handleStorageSyncNotify(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 40 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	dest := trackerproto.FixedString(body[16:32])
	n := int(trackerproto.Int64(body[32:40]))
	if n < 0 || len(body) < 40+n*24 {
		return nil, invalidArgErr{}
	}
	tuples := make([]cluster.SyncTuple, n)
	off := 40
	for i := 0; i < n; i++ {
		tuples[i] = cluster.SyncTuple{Src: trackerproto.FixedString(body[off : off+16]), Ts: trackerproto.Int64(body[off+16 : off+24])}
		off += 24
	}
	return nil, s.Store.RecordSyncTimestamps(group, dest, tuples)
}

// handleStorageSyncDestQuery implements storage_sync_dest_query (90):
// same body/semantics as storage_sync_notify from the destination's own
// point of view.
func handleStorageSyncDestQuery(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	return handleStorageSyncNotify(s, rc, body)
}
