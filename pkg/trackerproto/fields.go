package trackerproto

import (
	"bytes"
	"encoding/binary"
)

// FieldWidth is the width of every zero-padded fixed field spec.md §6
// names: group names, storage ids, and ip-address strings.
const FieldWidth = 16

// PutFixedString writes s, truncated or zero-padded, into a FieldWidth
// (or len(buf), if explicitly sized smaller) byte slice.
func PutFixedString(buf []byte, s string) {
	n := copy(buf, s)
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
}

// FixedString decodes a zero-padded fixed field back into a string,
// trimming the trailing NUL padding.
func FixedString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

// PutInt64 writes v as an 8-byte big-endian integer, the default width
// spec.md §6 specifies for wire integers.
func PutInt64(buf []byte, v int64) {
	binary.BigEndian.PutUint64(buf, uint64(v))
}

// Int64 decodes an 8-byte big-endian integer.
func Int64(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

// PutUint32 writes v as a 4-byte big-endian integer, used for the port
// field of StorageBrief.
func PutUint32(buf []byte, v uint32) {
	binary.BigEndian.PutUint32(buf, v)
}

// Uint32 decodes a 4-byte big-endian integer.
func Uint32(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf)
}
