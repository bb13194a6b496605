// Package storageid implements the tracker's identity registry (spec
// component C1): parsing the static storage_ids table, classifying
// addresses as inner/outer, and the three sorted indexes used to resolve
// a storage's logical id from its group+ip or ip+port.
package storageid

import (
	"strconv"

	"github.com/zeebo/errs"
)

// Error is the error class for the storageid package.
var Error = errs.Class("storageid")

// Specific sentinel errors, tested by identity via errs.Is semantics.
var (
	ErrDuplicateID   = Error.New("duplicate id")
	ErrDuplicatePort = Error.New("duplicate (ip, port)")
	ErrInconsistentPort = Error.New("port column inconsistently present")
	ErrMalformedLine = Error.New("malformed storage_ids line")
	ErrIDOutOfRange  = Error.New("id out of range")
)

// MinID and MaxID bound the legal decimal storage id range, per spec.md
// §3: "1 ≤ n ≤ 16,777,215" (2^24-1).
const (
	MinID uint32 = 1
	MaxID uint32 = 16777215
)

// RWMode is a storage's configured read/write capability.
type RWMode int

// Recognized RWMode values, per spec.md §4.1's `rw=` parsing table.
const (
	RWBoth RWMode = iota
	RWReadOnly
	RWWriteOnly
	RWNone
)

func parseRWMode(s string) (RWMode, error) {
	switch s {
	case "", "both", "all":
		return RWBoth, nil
	case "read", "readonly":
		return RWReadOnly, nil
	case "write", "writeonly":
		return RWWriteOnly, nil
	case "none":
		return RWNone, nil
	default:
		return RWBoth, Error.New("unrecognized rw value %q", s)
	}
}

// AddressClass tags an IP address as inner (private/link-local) or outer
// (globally routable), per spec.md §4.1.
type AddressClass int

const (
	ClassOuter AddressClass = iota
	ClassInner
)

// Address is one parsed endpoint of a StorageIdentity.
type Address struct {
	IP    string
	Class AddressClass
}

// Identity is one row of the storage_ids table: the immutable mapping
// from a logical id to a group, up to two addresses, a port, and an
// rw-mode, exactly as spec.md §3 "Storage identity (C1)" describes.
type Identity struct {
	ID      uint32
	IDText  string // canonical decimal text, for round-trip and wire formatting
	Group   string
	Addrs   []Address
	Port    uint16
	RW      RWMode
}

// FormatID renders id as its canonical decimal string. Per the round-trip
// invariant in spec.md §3 and §8, ParseID(FormatID(id)) == id for every
// valid id.
func FormatID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses s as a storage id, enforcing spec.md §3's invariants:
// decimal, first digit non-zero, and 1 ≤ n ≤ 16,777,215.
func ParseID(s string) (uint32, error) {
	if s == "" || s[0] == '0' {
		return 0, ErrMalformedLine
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if uint32(n) < MinID || uint32(n) > MaxID {
		return 0, ErrIDOutOfRange
	}
	if FormatID(uint32(n)) != s {
		return 0, ErrMalformedLine
	}
	return uint32(n), nil
}
