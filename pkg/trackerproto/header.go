// Package trackerproto implements the wire encoding of spec.md §6's
// protocol: the fixed 10-byte frame header, the command code table, the
// fixed-width field layouts (StorageBrief, zero-padded id/ip/group
// strings), and the Status/Kind sentinel used to turn any package's
// classified error into the one byte a response header carries.
//
// This package only encodes and decodes bytes; pkg/trackerserver owns
// the connection state machine and the command handlers themselves.
package trackerproto

import (
	"encoding/binary"
	"io"
)

// HeaderSize is the fixed size of every frame header.
const HeaderSize = 10

// MaxPackageSize is TRACKER_MAX_PACKAGE_SIZE from spec.md §6: the largest
// body a normal request or response may carry. System-file transfers are
// explicitly exempted by spec.md and chunk around this limit instead of
// enforcing it.
const MaxPackageSize = 8 * 1024

// Header is the 10-byte `{ pkgLen int64 BE, cmd uint8, status uint8 }`
// frame header prefixing every request and response. PkgLen excludes the
// header itself.
type Header struct {
	PkgLen int64
	Cmd    Cmd
	Status Status
}

// Encode writes h's wire form into buf, which must be at least
// HeaderSize bytes.
func (h Header) Encode(buf []byte) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(h.PkgLen))
	buf[8] = byte(h.Cmd)
	buf[9] = byte(h.Status)
}

// DecodeHeader parses a HeaderSize-byte buffer into a Header.
func DecodeHeader(buf []byte) Header {
	return Header{
		PkgLen: int64(binary.BigEndian.Uint64(buf[0:8])),
		Cmd:    Cmd(buf[8]),
		Status: Status(buf[9]),
	}
}

// ReadHeader reads and decodes one header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf[:]), nil
}

// WriteHeader encodes and writes h to w.
func WriteHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	h.Encode(buf[:])
	_, err := w.Write(buf[:])
	return err
}

// WriteFrame writes a complete header+body frame to w in one call.
func WriteFrame(w io.Writer, cmd Cmd, status Status, body []byte) error {
	if err := WriteHeader(w, Header{PkgLen: int64(len(body)), Cmd: cmd, Status: status}); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// WriteResponse writes a RESP frame, translating err into its wire
// Status via StatusOf. Handlers that want a non-empty error body should
// still pass it in body; by spec.md §6 a handler that returns EINVAL with
// an empty body causes the connection to be closed right after.
func WriteResponse(w io.Writer, err error, body []byte) error {
	return WriteFrame(w, CmdResp, StatusOf(err), body)
}
