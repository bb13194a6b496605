// Package peerset implements the tracker's peer list (spec component C3):
// the other trackers in the small (<=16 node) cluster, the current leader
// index, and the leader-election bookkeeping the relationship manager
// (pkg/relationship) reads and mutates.
package peerset

import (
	"strconv"
	"sync"

	"github.com/zeebo/errs"
)

// Error is the error class for the peerset package.
var Error = errs.Class("peerset")

// ErrNotFound is returned when a lookup by address fails.
var ErrNotFound = Error.New("peer not found")

// Peer is one tracker in the cluster, per spec.md §3 "Peer entry (C3)".
type Peer struct {
	IPAddrs         []string
	Port            uint16
	IsLocal         bool
	RunningTime     int64 // seconds, truncated per spec.md §4.3 step 1
	RestartInterval int64 // seconds, truncated likewise
	IsLeader        bool
}

// Key returns the peer's (ip, port) identity, used for lookups and for
// comparing a freshly reported peer against the known set.
func (p *Peer) Key() string {
	ip := ""
	if len(p.IPAddrs) > 0 {
		ip = p.IPAddrs[0]
	}
	return ip + ":" + strconv.Itoa(int(p.Port))
}

// Set is the peer set (C3): a list of peers with a "dirty peer list"
// pending-free pattern for live membership growth, per spec.md §4.3 and
// §9's "Peer-set mutation while live" design note.
//
// Mutation never shrinks or reorders Peers in place while a read may be
// in flight against the old slice: Merge copies, swaps the pointer,
// and retains the previous slice as lastPeers for exactly one supervisor
// cycle (ReleaseStale), so an in-flight handler that captured a snapshot
// via Peers() keeps seeing a valid, consistent array.
type Set struct {
	mu sync.Mutex

	peers     []*Peer
	lastPeers []*Peer // retained one cycle after peers grows, then dropped

	leaderIdx  int   // index into peers, or -1 if no leader is known
	leaderGen  int64 // bumped on every SetLeader/ClearLeader, for change-detection by callers
}

// New constructs an empty peer set. localAddrs/localPort identify this
// tracker's own entry, added immediately as IsLocal.
func New(localAddrs []string, localPort uint16) *Set {
	s := &Set{leaderIdx: -1}
	s.peers = []*Peer{{IPAddrs: localAddrs, Port: localPort, IsLocal: true}}
	return s
}

// Peers returns the current peer slice. The returned slice must be
// treated as read-only and is safe to retain across the caller's
// critical section: mutation never modifies it in place.
func (s *Set) Peers() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers
}

// Local returns this tracker's own peer entry.
func (s *Set) Local() *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		if p.IsLocal {
			return p
		}
	}
	return nil
}

// ByKey looks up a peer by its (ip, port) key.
func (s *Set) ByKey(key string) (*Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		if p.Key() == key {
			return p, true
		}
	}
	return nil, false
}

// Merge reconciles a reported tracker list (from a storage_join's
// trackerList, per spec.md §4.3 "A peer list is constructed from the
// first storage-join") into the set: peers already known are left
// untouched, new ones are appended. Growth is deferred-free: the
// previous peers slice becomes lastPeers, retained until ReleaseStale is
// called by the next supervisor cycle.
func (s *Set) Merge(reported []Peer) (grew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(s.peers))
	for _, p := range s.peers {
		known[p.Key()] = true
	}

	var additions []*Peer
	for i := range reported {
		r := reported[i]
		if known[r.Key()] {
			continue
		}
		known[r.Key()] = true
		additions = append(additions, &r)
	}
	if len(additions) == 0 {
		return false
	}

	next := make([]*Peer, 0, len(s.peers)+len(additions))
	next = append(next, s.peers...)
	next = append(next, additions...)

	// leaderIdx stays valid: additions are appended, never inserted, so
	// every prior index into the array is unchanged.
	s.lastPeers = s.peers
	s.peers = next
	return true
}

// ReleaseStale drops lastPeers, the deferred-free slot described by
// spec.md §9: called once per supervisor cycle, strictly after the cycle
// in which Merge last grew the set, so that any request that captured
// Peers() before the grow has had a chance to finish against it.
func (s *Set) ReleaseStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPeers = nil
}

// Leader returns the current leader, or nil if none is known.
func (s *Set) Leader() *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaderIdx < 0 || s.leaderIdx >= len(s.peers) {
		return nil
	}
	return s.peers[s.leaderIdx]
}

// SetLeader marks the peer at key as the sole leader, demoting every
// other peer's IsLeader flag. Returns ErrNotFound if key is unknown.
func (s *Set) SetLeader(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, p := range s.peers {
		if p.Key() == key {
			idx = i
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	for i, p := range s.peers {
		p.IsLeader = i == idx
	}
	s.leaderIdx = idx
	s.leaderGen++
	return nil
}

// ClearLeader demotes every peer, used when two peers simultaneously
// declare leadership and spec.md §4.3 step 4 requires both to demote and
// restart the selection.
func (s *Set) ClearLeader() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		p.IsLeader = false
	}
	s.leaderIdx = -1
	s.leaderGen++
}

// LeaderGeneration returns the number of times the leader has been set
// or cleared, so a caller can detect "did the leader change since I last
// looked" without comparing leader identities itself.
func (s *Set) LeaderGeneration() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderGen
}
