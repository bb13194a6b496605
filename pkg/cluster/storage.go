package cluster

import "time"

// Stat holds the storage's self-reported activity counters, per spec.md
// §3's "stat{40+ counters}". Only the counters the core selection and
// liveness logic reads or the heartbeat handler writes are named
// individually; the rest travel as an opaque decoded blob attached to the
// storage for pass-through persistence and reporting.
type Stat struct {
	TotalUploadCount   int64
	SuccessUploadCount int64
	TotalDownloadCount int64
	SuccessDownloadCount int64
	LastSourceUpdate  time.Time
	LastSyncUpdate    time.Time
	Extra             map[string]int64 // remaining counters, keyed by wire field name
}

// Storage is one storage server within a Group, per spec.md §3.
type Storage struct {
	ID       string
	IPAddrs  []string
	Version  string
	DomainName string
	Status   Status

	SyncSrc     *Storage // borrowed reference into the same group's slab
	SyncUntilTs int64

	JoinTime int64
	UpTime   int64

	TotalMB int64
	FreeMB  int64

	PathTotalMB []int64
	PathFreeMB  []int64
	CurrentWritePath int

	StoragePort     uint16
	StorageHTTPPort uint16
	StorePathCount  int
	SubdirCountPerPath int
	UploadPriority  int

	ChangelogOffset int64

	Stat Stat

	LastHeartbeat int64 // unix seconds

	ChangeCount      int64
	TrunkChangeCount int64

	// LeaderChangeCount is this storage's last-acknowledged value of the
	// tracker cluster's leader-election generation (pkg/peerset.Set), so
	// the piggy-back delta can flag a leader change exactly once per
	// storage, the same way ChangeCount/TrunkChangeCount flag membership
	// and trunk-server changes.
	LeaderChangeCount int64

	deleted bool // soft-delete tombstone flag, kept for index stability
}

// clearStats resets the storage's reported counters back to zero, as
// done by deleteStorage in spec.md §4.2 before marking the record
// deleted.
func (s *Storage) clearStats() {
	s.Stat = Stat{}
	s.TotalMB, s.FreeMB = 0, 0
	s.PathTotalMB, s.PathFreeMB = nil, nil
}
