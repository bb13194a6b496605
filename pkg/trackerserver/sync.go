package trackerserver

import "github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"

// buildChangeDelta implements spec.md §4.6's check-and-sync piggy-back:
// every storage_beat/storage_report_disk_usage response carries a
// ChangeFlags byte plus, when group membership moved on, the group's
// current StorageBrief list, so a storage learns about its peers without
// a separate round trip. Trunk-server/leader changes are flagged but
// carry no extra payload here; the storage picks up the new values the
// same way it already reads g.TrunkServer/g.StoreServer through its own
// subsequent SERVICE_QUERY_* calls.
func (s *Server) buildChangeDelta(group, id string) []byte {
	g, ok := s.Store.GroupByName(group)
	if !ok {
		return encodeDelta(0, nil)
	}

	var leaderGen int64
	if s.Peers != nil {
		leaderGen = s.Peers.LeaderGeneration()
	}

	var flags trackerproto.ChangeFlags
	var briefs []trackerproto.StorageBrief
	s.Store.WithStateLock(func() {
		st := g.ActiveByID(id)
		if st == nil {
			return
		}
		if st.LeaderChangeCount != leaderGen {
			flags |= trackerproto.ChangeLeader
			st.LeaderChangeCount = leaderGen
		}
		if st.TrunkChangeCount != g.TrunkChangeCount {
			flags |= trackerproto.ChangeTrunkServer
			st.TrunkChangeCount = g.TrunkChangeCount
		}
		if st.ChangeCount != g.ChangeCount {
			flags |= trackerproto.ChangeGroupMembership
			st.ChangeCount = g.ChangeCount
		}

		if flags.Has(trackerproto.ChangeGroupMembership) {
			briefs = make([]trackerproto.StorageBrief, 0, len(g.SortedByIDStorages))
			for _, other := range g.SortedByIDStorages {
				var ip string
				if len(other.IPAddrs) > 0 {
					ip = other.IPAddrs[0]
				}
				briefs = append(briefs, trackerproto.StorageBrief{
					Status: trackerproto.Status(other.Status),
					Port:   uint32(other.StoragePort),
					ID:     other.ID,
					IP:     ip,
				})
			}
		}
	})
	return encodeDelta(flags, briefs)
}

func encodeDelta(flags trackerproto.ChangeFlags, briefs []trackerproto.StorageBrief) []byte {
	encoded := trackerproto.EncodeStorageBriefs(briefs)
	resp := make([]byte, 1+8+len(encoded))
	resp[0] = byte(flags)
	trackerproto.PutInt64(resp[1:9], int64(len(briefs)))
	copy(resp[9:], encoded)
	return resp
}
