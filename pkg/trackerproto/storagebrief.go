package trackerproto

// StorageBriefSize is the wire size of one StorageBrief record: 1 byte
// status, 4 byte port, 16 byte id, 16 byte ip = 37 bytes, per spec.md §6.
const StorageBriefSize = 1 + 4 + FieldWidth + FieldWidth

// StorageBrief is the minimal per-storage record sent in the
// check-and-sync piggy-back of heartbeat/sync-report/disk-report
// responses (spec.md §4.6) and elsewhere a compact storage summary is
// needed on the wire.
type StorageBrief struct {
	Status Status
	Port   uint32
	ID     string
	IP     string
}

// Encode writes b's wire form into buf, which must be at least
// StorageBriefSize bytes.
func (b StorageBrief) Encode(buf []byte) {
	buf[0] = byte(b.Status)
	PutUint32(buf[1:5], b.Port)
	PutFixedString(buf[5:21], b.ID)
	PutFixedString(buf[21:37], b.IP)
}

// DecodeStorageBrief parses a StorageBriefSize-byte buffer into a
// StorageBrief.
func DecodeStorageBrief(buf []byte) StorageBrief {
	return StorageBrief{
		Status: Status(buf[0]),
		Port:   Uint32(buf[1:5]),
		ID:     FixedString(buf[5:21]),
		IP:     FixedString(buf[21:37]),
	}
}

// EncodeStorageBriefs encodes a slice of StorageBrief records back to
// back, for the array form the check-and-sync piggy-back uses.
func EncodeStorageBriefs(briefs []StorageBrief) []byte {
	buf := make([]byte, StorageBriefSize*len(briefs))
	for i, b := range briefs {
		b.Encode(buf[i*StorageBriefSize : (i+1)*StorageBriefSize])
	}
	return buf
}

// DecodeStorageBriefs decodes a back-to-back array of StorageBrief
// records. buf's length must be a multiple of StorageBriefSize.
func DecodeStorageBriefs(buf []byte) []StorageBrief {
	n := len(buf) / StorageBriefSize
	out := make([]StorageBrief, n)
	for i := 0; i < n; i++ {
		out[i] = DecodeStorageBrief(buf[i*StorageBriefSize : (i+1)*StorageBriefSize])
	}
	return out
}

// ChangeFlags is the 1-byte bitmask preceding the StorageBrief
// array(s) in a check-and-sync piggy-back response, per spec.md §4.6.
type ChangeFlags uint8

const (
	ChangeLeader ChangeFlags = 1 << iota
	ChangeTrunkServer
	ChangeGroupMembership
)

// Has reports whether bit is set in f.
func (f ChangeFlags) Has(bit ChangeFlags) bool { return f&bit != 0 }
