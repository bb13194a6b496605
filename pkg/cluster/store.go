// Package cluster implements the tracker's in-memory cluster state store
// (spec component C2): the catalog of groups and the storages within
// each, their liveness and capacity, and the mutation/query contract used
// by the protocol dispatcher, the liveness supervisor, and the
// relationship manager.
package cluster

import (
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

var groupNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)

// TrackerSyncToFileFreq is TRACKER_SYNC_TO_FILE_FREQ from spec.md §4.2:
// every this-many heartbeats (or sync-timestamp updates), the
// corresponding snapshot is persisted.
const TrackerSyncToFileFreq = 1000

// StoreServerPolicy and its sibling policy enums live in pkg/selection;
// Store only needs to know the "round robin" tag to implement
// recordSyncTimestamps' min-vs-max rule (spec.md §4.2) and the
// trunk-file upgrade rule (spec.md §4.5), so it is re-declared narrowly
// here to avoid an import cycle with pkg/selection (which takes *Group
// snapshots from Store).
type StoreServerPolicy int

const (
	StoreServerRoundRobin StoreServerPolicy = iota
	StoreServerFirstByIP
	StoreServerFirstByPri
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Store is the cluster state store: one stateLock over every mutable
// field of every Group and Storage it owns. All exported methods acquire
// stateLock; none perform blocking I/O while holding it (persistence is
// triggered by copying what's needed and handing it to Persister after
// unlocking), per spec.md §4.2 "Concurrency".
type Store struct {
	mu     sync.Mutex
	groups map[string]*Group
	order  []string // insertion order, for deterministic iteration

	IdentityMode bool // "use_storage_id" config: storages are named by id, not ip
	StoreServerPolicy StoreServerPolicy

	Persister Persister // C8; may be nil in tests
	Now       Clock

	// TrunkChangeCount is the cluster-wide trunk-server change counter,
	// bumped alongside each group's own TrunkChangeCount per spec.md
	// §4.4's trunk-election step ("bump trunkChangeCount globally and
	// per-group").
	TrunkChangeCount int64

	heartbeatTick int
	syncTsTick    int

	Log *zap.Logger
}

// Persister is the subset of pkg/cluster/persist that Store calls into
// to flush snapshots. It is an interface so Store can be tested without
// real disk I/O and so pkg/cluster/persist can depend on cluster's types
// without cluster depending on persist's file-format details.
type Persister interface {
	SaveGroups(groups []*Group) error
	SaveStorages(groups []*Group) error
	SaveSyncTimestamps(groups []*Group) error
	AppendChangelog(ts int64, group string, storageID string, status Status, arg string) error
}

// New constructs an empty Store.
func New(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		groups: make(map[string]*Group),
		Now:    time.Now,
		Log:    log,
	}
}

// withLock runs fn under stateLock. Used to keep every exported method's
// locking pattern identical and auditable.
func (st *Store) withLock(fn func()) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn()
}

// Groups returns a shallow, lock-protected copy of the current group
// list in insertion order. Callers must not mutate the returned Groups'
// slice fields without holding the store's lock again via a mutating
// method; this is a read-only snapshot for listing commands.
func (st *Store) Groups() []*Group {
	var out []*Group
	st.withLock(func() {
		out = make([]*Group, 0, len(st.order))
		for _, name := range st.order {
			out = append(out, st.groups[name])
		}
	})
	return out
}

// GroupByName returns the group, if any, taking stateLock.
func (st *Store) GroupByName(name string) (*Group, bool) {
	var g *Group
	var ok bool
	st.withLock(func() {
		g, ok = st.groups[name]
	})
	return g, ok
}

// addGroup creates the named group if absent, per spec.md §4.2. Fails
// with ErrInvalidName if name does not match `[A-Za-z0-9_-]{1,16}`.
func (st *Store) addGroup(name string) (*Group, error) {
	defer mon.Task()(nil)(nil)
	if !groupNamePattern.MatchString(name) {
		return nil, ErrInvalidName
	}
	var g *Group
	var fresh bool
	st.withLock(func() {
		var ok bool
		g, ok = st.groups[name]
		if !ok {
			g = newGroup(name)
			st.groups[name] = g
			st.order = append(st.order, name)
			fresh = true
		}
	})
	if fresh {
		st.Log.Info("group created", zap.String("group", name))
		st.persistGroups()
	}
	return g, nil
}

// AddGroup is the exported entry point for addGroup, used by the
// storage-join handler and by admin tooling.
func (st *Store) AddGroup(name string) (*Group, error) { return st.addGroup(name) }

// DeleteGroup removes a group, succeeding only when it has zero storages
// (including soft-deleted ones: count does not drop on soft-delete), per
// spec.md §4.2 and the boundary behavior in §8.
func (st *Store) DeleteGroup(name string) error {
	defer mon.Task()(nil)(nil)
	var err error
	st.withLock(func() {
		g, ok := st.groups[name]
		if !ok {
			err = ErrNotFound
			return
		}
		if g.Count != 0 {
			err = ErrBusy
			return
		}
		delete(st.groups, name)
		for i, n := range st.order {
			if n == name {
				st.order = append(st.order[:i], st.order[i+1:]...)
				break
			}
		}
	})
	if err == nil {
		st.Log.Info("group deleted", zap.String("group", name))
		st.persistGroups()
	}
	return err
}

// AddStorage implements spec.md §4.2's addStorage: if identity-mode is
// on, id must be supplied and match the registry; otherwise id equals
// ip. If the storage already exists, its ip is refreshed (identity-mode)
// and any deleted/ipChanged status is cleared back to init; otherwise a
// fresh slot is allocated in id order.
func (st *Store) AddStorage(groupName string, id string, observedIP string) (*Storage, error) {
	defer mon.Task()(nil)(nil)
	g, err := st.addGroup(groupName)
	if err != nil {
		return nil, err
	}

	var s *Storage
	var changed bool
	st.withLock(func() {
		s = g.findByID(id)
		if s != nil {
			if observedIP != "" && (len(s.IPAddrs) == 0 || s.IPAddrs[0] != observedIP) {
				s.IPAddrs = []string{observedIP}
				changed = true
			}
			if s.Status == StatusDeleted || s.Status == StatusIPChanged {
				s.Status = StatusInit
				changed = true
			}
			return
		}
		s = &Storage{ID: id, Status: StatusInit}
		if observedIP != "" {
			s.IPAddrs = []string{observedIP}
		}
		g.insertSorted(s)
		changed = true
	})
	if changed {
		st.Log.Debug("storage added/refreshed", zap.String("group", groupName), zap.String("id", id))
	}
	return s, nil
}

// DeleteStorage implements spec.md §4.2's deleteStorage.
func (st *Store) DeleteStorage(groupName string, id string) error {
	defer mon.Task()(nil)(nil)
	var err error
	var g *Group
	st.withLock(func() {
		var ok bool
		g, ok = st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		s := g.findByID(id)
		if s == nil {
			err = ErrNotFound
			return
		}
		switch s.Status {
		case StatusOnline, StatusActive, StatusRecovery:
			err = ErrBusy
			return
		case StatusDeleted:
			err = ErrAlready
			return
		}
		g.removeActive(s)
		s.clearStats()
		s.Status = StatusDeleted
		g.recomputeFreeMB()
	})
	if err == nil {
		ts := st.Now().Unix()
		st.Log.Info("storage deleted", zap.String("group", groupName), zap.String("id", id))
		if st.Persister != nil {
			_ = st.Persister.AppendChangelog(ts, groupName, id, StatusDeleted, "")
		}
	}
	return err
}

// StorageIPChanged implements spec.md §4.2's storageIpChanged: only
// allowed when identity-mode is off.
func (st *Store) StorageIPChanged(groupName, oldIP, newIP string) error {
	defer mon.Task()(nil)(nil)
	if st.IdentityMode {
		return ErrOpNotSupported
	}
	var err error
	st.withLock(func() {
		g, ok := st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		var old *Storage
		for _, s := range g.Storages {
			if len(s.IPAddrs) > 0 && s.IPAddrs[0] == oldIP && s.Status != StatusDeleted {
				old = s
				break
			}
		}
		if old == nil {
			err = ErrNotFound
			return
		}
		switch old.Status {
		case StatusOnline, StatusActive, StatusRecovery, StatusSyncing, StatusWaitSync:
			err = ErrBusy
			return
		case StatusIPChanged:
			err = ErrAlready
			return
		}
		for _, s := range g.Storages {
			if len(s.IPAddrs) > 0 && s.IPAddrs[0] == newIP && s.Status != StatusDeleted && s.Status != StatusIPChanged {
				err = ErrExists
				return
			}
		}

		ghost := &Storage{ID: old.ID, IPAddrs: []string{oldIP}, Status: StatusIPChanged}
		old.IPAddrs = []string{newIP}
		g.Storages = append(g.Storages, ghost)
		i := 0
		for i < len(g.SortedByIDStorages) && g.SortedByIDStorages[i].ID < ghost.ID {
			i++
		}
		g.SortedByIDStorages = append(g.SortedByIDStorages, nil)
		copy(g.SortedByIDStorages[i+1:], g.SortedByIDStorages[i:])
		g.SortedByIDStorages[i] = ghost
		g.Count = len(g.Storages)
	})
	if err == nil {
		st.Log.Info("storage ip changed", zap.String("group", groupName), zap.String("old", oldIP), zap.String("new", newIP))
	}
	return err
}

// SyncStorageBriefs implements spec.md §4.2's syncStorageBriefs: merges a
// peer's reported briefs into local state via the status-merge rule.
func (st *Store) SyncStorageBriefs(groupName string, briefs []Brief) error {
	defer mon.Task()(nil)(nil)
	g, err := st.addGroup(groupName)
	if err != nil {
		return err
	}
	st.withLock(func() {
		for _, b := range briefs {
			s := g.findByID(b.ID)
			if s == nil {
				if b.Status == StatusDeleted || b.Status == StatusIPChanged || b.Status == StatusOnline || b.Status == StatusActive {
					continue
				}
				s = &Storage{ID: b.ID, Status: b.Status, IPAddrs: []string{b.IP}, StoragePort: b.Port}
				g.insertSorted(s)
				continue
			}
			s.Status = mergeStatus(s.Status, b.Status)
		}
	})
	return nil
}

// Brief is the decoded form of the wire StorageBrief record, per
// spec.md §4.6 "check-and-sync piggy-back".
type Brief struct {
	Status Status
	ID     string
	IP     string
	Port   uint16
}

// ActivateStorage implements spec.md §4.2's activateStorage.
func (st *Store) ActivateStorage(groupName string, id string) (bool, error) {
	defer mon.Task()(nil)(nil)
	var activated bool
	var err error
	st.withLock(func() {
		g, ok := st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		s := g.findByID(id)
		if s == nil {
			err = ErrNotFound
			return
		}
		if !s.Status.isActivatable() {
			return
		}
		s.Status = StatusActive
		g.insertActiveSorted(s)
		g.ChangeCount++
		st.recomputeStoreServerLocked(g)
		if g.TrunkServer == nil {
			st.electTrunkServerLocked(g)
		}
		activated = true
	})
	return activated, err
}

// DeactivateStorage implements spec.md §4.2's deactivateStorage.
func (st *Store) DeactivateStorage(groupName string, id string) error {
	defer mon.Task()(nil)(nil)
	var err error
	st.withLock(func() {
		g, ok := st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		s := g.findByID(id)
		if s == nil {
			err = ErrNotFound
			return
		}
		g.removeActive(s)
		g.ChangeCount++
		g.recomputeFreeMB()
		st.recomputeStoreServerLocked(g)
	})
	return err
}

// OfflineStorage implements spec.md §4.2's offlineStorage: sets status
// to offline unless it is in a transitional/terminal state, then
// deactivates.
func (st *Store) OfflineStorage(groupName string, id string) error {
	defer mon.Task()(nil)(nil)
	var err error
	var doDeactivate bool
	st.withLock(func() {
		g, ok := st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		s := g.findByID(id)
		if s == nil {
			err = ErrNotFound
			return
		}
		switch s.Status {
		case StatusWaitSync, StatusSyncing, StatusInit, StatusDeleted, StatusIPChanged, StatusRecovery:
			// not set to offline, but still falls through to deactivate
		default:
			s.Status = StatusOffline
		}
		doDeactivate = true
	})
	if err == nil && doDeactivate {
		return st.DeactivateStorage(groupName, id)
	}
	return err
}

// recomputeStoreServerLocked recomputes g.StoreServer under the caller's
// lock, per the configured StoreServerPolicy. Pure bookkeeping; actual
// policy semantics mirror pkg/selection's storage-selection policies,
// duplicated narrowly here because Store must keep StoreServer current
// as activations/deactivations happen, without importing pkg/selection.
func (st *Store) recomputeStoreServerLocked(g *Group) {
	if len(g.ActiveStorages) == 0 {
		g.StoreServer = nil
		return
	}
	switch st.StoreServerPolicy {
	case StoreServerFirstByPri:
		best := g.ActiveStorages[0]
		for _, s := range g.ActiveStorages[1:] {
			if s.UploadPriority < best.UploadPriority {
				best = s
			}
		}
		g.StoreServer = best
	default: // FirstByIP and RoundRobin both pin to the head by id/ip here;
		// RoundRobin's rotation for uploads is handled in pkg/selection,
		// which reads CurrentWriteServer directly.
		g.StoreServer = g.ActiveStorages[0]
	}
}

// electTrunkServerLocked performs the simple "no trunk yet" election
// described by spec.md §4.2: elects the group's StoreServer as an
// interim trunk server. The comparative "largest trunk-binlog size"
// election described in spec.md §4.4 is driven by pkg/liveness, which
// has the network access to query binlog sizes; this path only covers
// the case of filling a null TrunkServer at activation time with the
// obvious local candidate.
func (st *Store) electTrunkServerLocked(g *Group) {
	if g.StoreServer == nil {
		return
	}
	g.TrunkServer = g.StoreServer
	g.LastTrunkServerID = g.StoreServer.ID
	g.TrunkChangeCount++
}

// SetTrunkServer implements the re-election half of spec.md §4.4's
// "Trunk election": installs the storage identified by id as the
// group's trunk server, bumping both the per-group and cluster-wide
// trunkChangeCount, and persists the groups snapshot. Called by
// pkg/liveness once it has picked the winner by largest trunk-binlog
// size; this method only performs the bookkeeping, not the query.
func (st *Store) SetTrunkServer(groupName, id string) error {
	defer mon.Task()(nil)(nil)
	var err error
	st.withLock(func() {
		g, ok := st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		s := g.findByID(id)
		if s == nil {
			err = ErrNotFound
			return
		}
		g.TrunkServer = s
		g.LastTrunkServerID = s.ID
		g.TrunkChangeCount++
		st.TrunkChangeCount++
	})
	if err == nil {
		st.persistGroups()
	}
	return err
}

// RecordHeartbeat implements spec.md §4.2's recordHeartbeat: installs
// counters, stamps LastHeartbeat, activates (possibly electing a trunk
// server), and persists storages every TrackerSyncToFileFreq heartbeats.
func (st *Store) RecordHeartbeat(groupName string, id string, stat Stat) error {
	defer mon.Task()(nil)(nil)
	var err error
	var shouldPersist bool
	st.withLock(func() {
		g, ok := st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		s := g.findByID(id)
		if s == nil {
			err = ErrNotFound
			return
		}
		s.Stat = stat
		s.LastHeartbeat = st.Now().Unix()
		st.heartbeatTick++
		if st.heartbeatTick%TrackerSyncToFileFreq == 0 {
			shouldPersist = true
		}
	})
	if err != nil {
		return err
	}
	if _, aerr := st.ActivateStorage(groupName, id); aerr != nil {
		return aerr
	}
	if shouldPersist {
		st.persistStorages()
	}
	return nil
}

// RecordDiskUsage implements spec.md §4.2's recordDiskUsage.
func (st *Store) RecordDiskUsage(groupName string, id string, pathTotal, pathFree []int64) error {
	defer mon.Task()(nil)(nil)
	var err error
	st.withLock(func() {
		g, ok := st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		s := g.findByID(id)
		if s == nil {
			err = ErrNotFound
			return
		}
		s.PathTotalMB = pathTotal
		s.PathFreeMB = pathFree
		var total, free int64
		for i := range pathTotal {
			total += pathTotal[i]
			free += pathFree[i]
		}
		s.TotalMB, s.FreeMB = total, free

		g.recomputeFreeMB()

		var totalMB int64
		for _, active := range g.ActiveStorages {
			totalMB += active.TotalMB
		}
		g.TotalMB = totalMB
	})
	return err
}

// RecordSyncTimestamps implements spec.md §4.2's recordSyncTimestamps.
// For each dest, lastSyncedTimestamp is the min over all non-self srcs
// when the configured StoreServerPolicy is round-robin, else the max.
func (st *Store) RecordSyncTimestamps(groupName string, dest string, tuples []SyncTuple) error {
	defer mon.Task()(nil)(nil)
	var err error
	var shouldPersist bool
	st.withLock(func() {
		g, ok := st.groups[groupName]
		if !ok {
			err = ErrNotFound
			return
		}
		if g.PairwiseLastSyncTs[dest] == nil {
			g.PairwiseLastSyncTs[dest] = make(map[string]int64)
		}
		for _, t := range tuples {
			if t.Src == dest {
				continue
			}
			g.PairwiseLastSyncTs[dest][t.Src] = t.Ts
		}
		st.syncTsTick++
		if st.syncTsTick%TrackerSyncToFileFreq == 0 {
			shouldPersist = true
		}
	})
	if err == nil && shouldPersist {
		st.persistSyncTimestamps()
	}
	return err
}

// SyncTuple is one (src, ts) pair reported in a storage_sync_notify or
// storage_sync_dest_query body, per spec.md §4.2.
type SyncTuple struct {
	Src string
	Ts  int64
}

// LastSyncedTimestamp computes the "is the server I'm about to use fresh
// enough" value for dest within group g: the min over all non-self srcs
// when roundRobin is true (StoreServerPolicy == RoundRobin), else the
// max, per spec.md §4.2.
func LastSyncedTimestamp(g *Group, dest string, roundRobin bool) int64 {
	srcs, ok := g.PairwiseLastSyncTs[dest]
	if !ok || len(srcs) == 0 {
		return 0
	}
	var result int64
	first := true
	for _, ts := range srcs {
		if first {
			result = ts
			first = false
			continue
		}
		if roundRobin {
			if ts < result {
				result = ts
			}
		} else if ts > result {
			result = ts
		}
	}
	return result
}

func (st *Store) persistGroups() {
	if st.Persister == nil {
		return
	}
	if err := st.Persister.SaveGroups(st.Groups()); err != nil {
		st.Log.Warn("persist groups failed", zap.Error(err))
	}
}

func (st *Store) persistStorages() {
	if st.Persister == nil {
		return
	}
	if err := st.Persister.SaveStorages(st.Groups()); err != nil {
		st.Log.Warn("persist storages failed", zap.Error(err))
	}
}

func (st *Store) persistSyncTimestamps() {
	if st.Persister == nil {
		return
	}
	if err := st.Persister.SaveSyncTimestamps(st.Groups()); err != nil {
		st.Log.Warn("persist sync timestamps failed", zap.Error(err))
	}
}

// WithStateLock runs fn with the store's stateLock held, for callers
// (the liveness supervisor, the relationship manager) that need to make
// several coordinated reads/mutations atomically. fn must not block on
// I/O.
func (st *Store) WithStateLock(fn func()) {
	st.withLock(fn)
}

// GroupFields carries the subset of a Group's persisted fields needed to
// replay a snapshot at startup (pkg/cluster/bootstrap), without exposing
// Store's private storage arrays to the bootstrap package.
type GroupFields struct {
	StoragePort        uint16
	StorageHTTPPort    uint16
	StorePathCount     int
	SubdirCountPerPath int
	CurrentTrunkFileID int64
	LastTrunkServerID  string
	ChangeCount        int64
	TrunkChangeCount   int64
}

// RestoreGroup recreates a group from a snapshot record at startup,
// before any storage has joined, per spec.md §4.7's load order.
func (st *Store) RestoreGroup(name string, f GroupFields) error {
	g, err := st.addGroup(name)
	if err != nil {
		return err
	}
	st.withLock(func() {
		g.StoragePort = f.StoragePort
		g.StorageHTTPPort = f.StorageHTTPPort
		g.StorePathCount = f.StorePathCount
		g.SubdirCountPerPath = f.SubdirCountPerPath
		g.CurrentTrunkFileID = f.CurrentTrunkFileID
		g.LastTrunkServerID = f.LastTrunkServerID
		g.ChangeCount = f.ChangeCount
		g.TrunkChangeCount = f.TrunkChangeCount
	})
	return nil
}

// StorageFields carries the subset of a Storage's persisted fields
// needed to replay a snapshot at startup.
type StorageFields struct {
	ID                 string
	IPAddr             string
	Status             Status
	StoragePort        uint16
	StorageHTTPPort    uint16
	StorePathCount     int
	SubdirCountPerPath int
	UploadPriority     int
	JoinTime           int64
	UpTime             int64
	TotalMB            int64
	FreeMB             int64
	ChangelogOffset    int64
	LastHeartbeat      int64
}

// RestoreStorage recreates a storage from a snapshot record at startup.
// It bypasses AddStorage's identity/refresh semantics (those apply only
// to a live join) and inserts the record directly in id order.
func (st *Store) RestoreStorage(groupName string, f StorageFields) error {
	g, err := st.addGroup(groupName)
	if err != nil {
		return err
	}
	st.withLock(func() {
		s := g.findByID(f.ID)
		if s == nil {
			s = &Storage{ID: f.ID}
			g.insertSorted(s)
		}
		if f.IPAddr != "" {
			s.IPAddrs = []string{f.IPAddr}
		}
		s.Status = f.Status
		s.StoragePort = f.StoragePort
		s.StorageHTTPPort = f.StorageHTTPPort
		s.StorePathCount = f.StorePathCount
		s.SubdirCountPerPath = f.SubdirCountPerPath
		s.UploadPriority = f.UploadPriority
		s.JoinTime = f.JoinTime
		s.UpTime = f.UpTime
		s.TotalMB = f.TotalMB
		s.FreeMB = f.FreeMB
		s.ChangelogOffset = f.ChangelogOffset
		s.LastHeartbeat = f.LastHeartbeat
		if f.Status == StatusActive {
			g.insertActiveSorted(s)
			g.recomputeFreeMB()
		}
	})
	return nil
}

// RestoreSyncTimestamp replays one pairwise sync-timestamp snapshot
// entry at startup.
func (st *Store) RestoreSyncTimestamp(groupName string, dest, src string, ts int64) error {
	g, ok := st.GroupByName(groupName)
	if !ok {
		var err error
		g, err = st.addGroup(groupName)
		if err != nil {
			return err
		}
	}
	st.withLock(func() {
		if g.PairwiseLastSyncTs[dest] == nil {
			g.PairwiseLastSyncTs[dest] = make(map[string]int64)
		}
		g.PairwiseLastSyncTs[dest][src] = ts
	})
	return nil
}

// RebindTrunkServers re-establishes each group's TrunkServer pointer by
// id after a bulk restore, per spec.md §4.7's load order step "rebind
// trunk-server pointers by id".
func (st *Store) RebindTrunkServers() {
	st.withLock(func() {
		for _, g := range st.groups {
			if g.LastTrunkServerID == "" {
				continue
			}
			if s := g.findByID(g.LastTrunkServerID); s != nil && s.Status == StatusActive {
				g.TrunkServer = s
			}
		}
	})
}
