package cluster

// Status is a storage's lifecycle state, per spec.md §3 "Storage (C2)".
// Numeric values follow the tracker's on-wire status byte and matter for
// the status-merge rule in spec.md §4.2: a strictly larger numeric value
// received from a peer can overwrite a strictly smaller local one.
type Status uint8

const (
	StatusInit     Status = 0
	StatusWaitSync Status = 1
	StatusSyncing  Status = 2
	StatusIPChanged Status = 3
	StatusDeleted  Status = 4
	StatusOffline  Status = 5
	StatusOnline   Status = 6
	StatusActive   Status = 7
	StatusRecovery Status = 9
	StatusNone     Status = 99
)

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusWaitSync:
		return "waitSync"
	case StatusSyncing:
		return "syncing"
	case StatusIPChanged:
		return "ipChanged"
	case StatusDeleted:
		return "deleted"
	case StatusOffline:
		return "offline"
	case StatusOnline:
		return "online"
	case StatusActive:
		return "active"
	case StatusRecovery:
		return "recovery"
	default:
		return "none"
	}
}

// isLocalOnly reports whether the status is one that only this tracker,
// never a peer sync, may set: init, online, active, recovery. Per the
// status-merge rule in spec.md §4.2, local state in one of these wins
// against any incoming brief.
func (s Status) isLocalOnly() bool {
	switch s {
	case StatusInit, StatusOnline, StatusActive, StatusRecovery:
		return true
	default:
		return false
	}
}

// mergeStatus applies spec.md §4.2's status-merge rule: local is the
// storage's current status, incoming is what a peer reported about the
// same storage. Returns the status to adopt.
func mergeStatus(local, incoming Status) Status {
	if incoming == local {
		return local
	}
	if local.isLocalOnly() {
		return local
	}
	if incoming == StatusDeleted || incoming == StatusIPChanged {
		return incoming
	}
	if incoming == StatusOnline || incoming == StatusActive {
		// "online"/"active" coming over the wire never override; they
		// are only ever set locally.
		return local
	}
	if incoming > local {
		return incoming
	}
	return local
}

// isActivatable reports whether activateStorage is permitted from this
// status, per spec.md §4.2's activatability rule: a no-op when status is
// waitSync, syncing, ipChanged, or init.
func (s Status) isActivatable() bool {
	switch s {
	case StatusWaitSync, StatusSyncing, StatusIPChanged, StatusInit:
		return false
	default:
		return true
	}
}
