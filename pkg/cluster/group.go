package cluster

// Group is a logical shard, per spec.md §3 "Group (C2)": storages
// within one group hold the same files.
type Group struct {
	Name string

	StoragePort        uint16
	StorageHTTPPort     uint16
	StorePathCount      int
	SubdirCountPerPath  int
	CurrentTrunkFileID  int64

	TotalMB     int64
	FreeMB      int64
	TrunkFreeMB int64

	Count       int // len(Storages)
	ActiveCount int // len(ActiveStorages)

	StoreServer *Storage // policy-selected write target, or nil
	TrunkServer *Storage // elected trunk packer, or nil
	LastTrunkServerID string

	CurrentWriteServer int // round-robin cursor into ActiveStorages
	CurrentReadServer  int

	ChangeCount      int64
	TrunkChangeCount int64

	Storages          []*Storage // slab, indexed by insertion slot; never shrinks
	SortedByIDStorages []*Storage // same elements, kept sorted by ID
	ActiveStorages     []*Storage // subset of SortedByIDStorages, status "active"

	// PairwiseLastSyncTs[dest][src] = latest applied timestamp from src
	// as observed by dest, keyed by storage id.
	PairwiseLastSyncTs map[string]map[string]int64
}

func newGroup(name string) *Group {
	return &Group{
		Name:               name,
		PairwiseLastSyncTs: make(map[string]map[string]int64),
	}
}

// recomputeFreeMB sets FreeMB to the minimum FreeMB over ActiveStorages,
// or 0 if there are none, per spec.md §3's cross-entity invariant.
func (g *Group) recomputeFreeMB() {
	if len(g.ActiveStorages) == 0 {
		g.FreeMB = 0
		return
	}
	min := g.ActiveStorages[0].FreeMB
	for _, s := range g.ActiveStorages[1:] {
		if s.FreeMB < min {
			min = s.FreeMB
		}
	}
	g.FreeMB = min
}

// ActiveByID returns the active storage with the given id, or nil. Used
// by pkg/selection to resolve ids decoded from a download request
// without exposing the group's full storage slab.
func (g *Group) ActiveByID(id string) *Storage {
	if i := g.findActiveIndex(id); i >= 0 {
		return g.ActiveStorages[i]
	}
	return nil
}

// findActiveIndex returns the index of storage id within ActiveStorages
// (which is kept sorted by id), or -1.
func (g *Group) findActiveIndex(id string) int {
	for i, s := range g.ActiveStorages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// insertActiveSorted inserts s into ActiveStorages keeping id order.
func (g *Group) insertActiveSorted(s *Storage) {
	i := 0
	for i < len(g.ActiveStorages) && g.ActiveStorages[i].ID < s.ID {
		i++
	}
	g.ActiveStorages = append(g.ActiveStorages, nil)
	copy(g.ActiveStorages[i+1:], g.ActiveStorages[i:])
	g.ActiveStorages[i] = s
	g.ActiveCount = len(g.ActiveStorages)
}

// removeActive removes s from ActiveStorages, if present.
func (g *Group) removeActive(s *Storage) {
	for i, a := range g.ActiveStorages {
		if a.ID == s.ID {
			g.ActiveStorages = append(g.ActiveStorages[:i], g.ActiveStorages[i+1:]...)
			g.ActiveCount = len(g.ActiveStorages)
			return
		}
	}
}

// findByID returns the storage with the given id within this group's
// SortedByIDStorages index, via binary search.
func (g *Group) findByID(id string) *Storage {
	lo, hi := 0, len(g.SortedByIDStorages)
	for lo < hi {
		mid := (lo + hi) / 2
		if g.SortedByIDStorages[mid].ID < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(g.SortedByIDStorages) && g.SortedByIDStorages[lo].ID == id {
		return g.SortedByIDStorages[lo]
	}
	return nil
}

// insertSorted inserts s into SortedByIDStorages keeping id order, and
// appends it to the Storages slab.
func (g *Group) insertSorted(s *Storage) {
	g.Storages = append(g.Storages, s)
	i := 0
	for i < len(g.SortedByIDStorages) && g.SortedByIDStorages[i].ID < s.ID {
		i++
	}
	g.SortedByIDStorages = append(g.SortedByIDStorages, nil)
	copy(g.SortedByIDStorages[i+1:], g.SortedByIDStorages[i:])
	g.SortedByIDStorages[i] = s
	g.Count = len(g.Storages)
}
