package trackerproto

import (
	"errors"

	"github.com/zeebo/errs"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
	"github.com/happyfish100/fastdfs-sub006/pkg/selection"
	"github.com/happyfish100/fastdfs-sub006/pkg/storageid"
)

// Error is the error class for the trackerproto package.
var Error = errs.Class("trackerproto")

// Status is the one-byte wire status carried in every response header:
// 0 on success, a positive error number otherwise, per spec.md §6.
type Status uint8

// Kind classifies a Status into the small set of error kinds spec.md §7
// names. Kind, not Status, is what package code reasons about; Status is
// only the wire encoding of a Kind.
type Kind int

const (
	KindOK Kind = iota
	KindInvalidArgument
	KindNotFound
	KindExists
	KindBusy
	KindAlready
	KindNoSpace
	KindOpNotSupported
	KindPermissionDenied
	KindNetworkTimeout
	KindIO
)

// Wire status codes. Values follow the errno-style numbering spec.md §7
// implies (EINVAL, ENOENT, EEXIST, EBUSY, EALREADY, ENOSPC, ENOTSUP,
// EACCES, ETIMEDOUT, EIO); 0 is success.
const (
	StatusOK              Status = 0
	StatusInvalidArgument Status = 22 // EINVAL
	StatusNotFound        Status = 2  // ENOENT
	StatusExists          Status = 17 // EEXIST
	StatusBusy            Status = 16 // EBUSY
	StatusAlready         Status = 114 // EALREADY
	StatusNoSpace         Status = 28 // ENOSPC
	StatusOpNotSupported  Status = 95 // ENOTSUP
	StatusPermissionDenied Status = 13 // EACCES
	StatusNetworkTimeout  Status = 110 // ETIMEDOUT
	StatusIO              Status = 5  // EIO
)

var kindToStatus = map[Kind]Status{
	KindOK:               StatusOK,
	KindInvalidArgument:  StatusInvalidArgument,
	KindNotFound:         StatusNotFound,
	KindExists:           StatusExists,
	KindBusy:             StatusBusy,
	KindAlready:          StatusAlready,
	KindNoSpace:          StatusNoSpace,
	KindOpNotSupported:   StatusOpNotSupported,
	KindPermissionDenied: StatusPermissionDenied,
	KindNetworkTimeout:   StatusNetworkTimeout,
	KindIO:               StatusIO,
}

// StatusFor converts a Kind directly to its wire Status, for handlers
// that classify their own failure without going through an error value.
func StatusFor(k Kind) Status {
	if s, ok := kindToStatus[k]; ok {
		return s
	}
	return StatusIO
}

// sentinelKinds maps every package-level sentinel error this tracker can
// return to its spec.md §7 kind, so trackerserver handlers can call
// StatusOf(err) instead of a type switch over every package's concrete
// error values.
var sentinelKinds = map[error]Kind{
	cluster.ErrInvalidName:     KindInvalidArgument,
	cluster.ErrInvalidArg:      KindInvalidArgument,
	cluster.ErrNotFound:        KindNotFound,
	cluster.ErrBusy:            KindBusy,
	cluster.ErrAlready:         KindAlready,
	cluster.ErrExists:          KindExists,
	cluster.ErrOpNotSupported:  KindOpNotSupported,

	selection.ErrNoGroup:   KindNotFound,
	selection.ErrNoSpace:   KindNoSpace,
	selection.ErrNoStorage: KindNotFound,

	peerset.ErrNotFound: KindNotFound,

	storageid.ErrDuplicateID:     KindExists,
	storageid.ErrDuplicatePort:   KindExists,
	storageid.ErrInconsistentPort: KindInvalidArgument,
	storageid.ErrMalformedLine:   KindInvalidArgument,
	storageid.ErrIDOutOfRange:    KindInvalidArgument,
}

// kinded is implemented by errors that know their own Kind directly,
// for conditions pkg/trackerserver itself detects (a caller outside the
// allow-list, an unrecognized command) rather than one propagated up
// from a cluster/selection/peerset/storageid sentinel.
type kinded interface {
	error
	Kind() Kind
}

// StatusOf extracts the wire Status for err: StatusOK for a nil error,
// the matching sentinel's Kind-derived status for any error identified
// by errors.Is against sentinelKinds (so a wrapped or errs.Class'd error
// still matches), the Kind-derived status for any error implementing
// kinded, and StatusIO as the catch-all for anything else, including a
// bare errs.Class membership match with no specific sentinel (handlers
// should prefer a named sentinel so callers get a precise status, but a
// class-only error is still reported as an I/O failure rather than
// crashing the response path).
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return StatusFor(kind)
		}
	}
	if ke, ok := err.(kinded); ok {
		return StatusFor(ke.Kind())
	}
	return StatusIO
}

// ErrorFor is StatusOf's inverse for the client side of the wire: it
// turns a response header's Status back into an error, for a caller
// that sent a request to a peer tracker or storage and needs something
// to return up its own call stack. nil for StatusOK.
func ErrorFor(status Status) error {
	if status == StatusOK {
		return nil
	}
	return Error.New("remote returned status %d", status)
}
