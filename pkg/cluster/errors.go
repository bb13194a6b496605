package cluster

import "github.com/zeebo/errs"

// Error is the error class for the cluster state store (spec component
// C2) and its persistence helpers (C8).
var Error = errs.Class("cluster")

// Sentinel errors corresponding to spec.md §7's error kinds, as produced
// by C2 operations. pkg/trackerproto.StatusOf maps each of these (by
// errors.Is) to the wire status byte.
var (
	ErrInvalidName   = Error.New("invalid group name")
	ErrInvalidArg    = Error.New("invalid argument")
	ErrNotFound      = Error.New("not found")
	ErrBusy          = Error.New("busy")
	ErrAlready       = Error.New("already")
	ErrExists        = Error.New("exists")
	ErrOpNotSupported = Error.New("operation not supported")
)
