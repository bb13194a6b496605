// Package selection implements the tracker's upload/download selection
// policies (spec component C5): which group, which storage within the
// group, which path on the storage, and which server to hand back for a
// download. Each reads the cluster state (pkg/cluster) and writes only
// the round-robin cursors (the engine's group cursor, a group's
// CurrentWriteServer/CurrentReadServer, a storage's CurrentWritePath).
package selection

import (
	"time"

	"github.com/zeebo/errs"
)

// Error is the error class for the selection package.
var Error = errs.Class("selection")

var (
	// ErrNoGroup is returned when no group satisfies the selection
	// policy (spec-group absent/inactive, or round-robin over an empty
	// group list). A reserved-space failure returns ErrNoSpace instead.
	ErrNoGroup = Error.New("no group")
	// ErrNoSpace is returned when every candidate fails the
	// reserved-space gate, per spec.md §7's NoSpace kind.
	ErrNoSpace = Error.New("no space")
	// ErrNoStorage is returned when a group has no eligible storage.
	ErrNoStorage = Error.New("no storage")
)

// GroupPolicy is the upload-group selection policy, per spec.md §4.5.
type GroupPolicy int

const (
	GroupRoundRobin GroupPolicy = iota
	GroupLoadBalance
	GroupSpecGroup
)

// StoragePolicy is the upload-storage-within-group selection policy.
type StoragePolicy int

const (
	StorageFirstByIP StoragePolicy = iota
	StorageFirstByPri
	StorageRoundRobin
)

// PathPolicy is the upload-path-within-storage selection policy.
type PathPolicy int

const (
	PathRoundRobin PathPolicy = iota
	PathLoadBalance
)

// DownloadPolicy is the download-server selection policy.
type DownloadPolicy int

const (
	DownloadRoundRobin DownloadPolicy = iota
	DownloadSourceFirst
)

// ReservedSpace is the reserved-space floor, either an absolute MB
// amount or a ratio of total capacity, per spec.md §6's
// `reserved_storage_space` key.
type ReservedSpace struct {
	AbsoluteMB int64 // used when Ratio == 0
	Ratio      float64
}

// passes reports whether freeMB/totalMB clears the reserved-space floor.
func (r ReservedSpace) passes(freeMB, totalMB int64) bool {
	if r.Ratio > 0 {
		if totalMB <= 0 {
			return false
		}
		return float64(freeMB)/float64(totalMB) > r.Ratio
	}
	return freeMB > r.AbsoluteMB
}

// Config bundles the policy choices and thresholds selection needs, the
// Go-native form of spec.md §6's recognized upload/download config keys.
type Config struct {
	Group        GroupPolicy
	SpecGroup    string
	Storage      StoragePolicy
	Path         PathPolicy
	Download     DownloadPolicy
	Reserved     ReservedSpace
	UseTrunkFile bool

	StorageSyncFileMaxDelay time.Duration
	StorageSyncFileMaxTime  time.Duration
}

// Upgrade applies spec.md §4.5's "Policy upgrade rule": if trunk files
// are enabled and the store-server policy is round-robin, force it to
// first-by-ip, because trunk packing requires one designated writer.
func (c *Config) Upgrade() {
	if c.UseTrunkFile && c.Storage == StorageRoundRobin {
		c.Storage = StorageFirstByIP
	}
}
