package trackerserver

import (
	"github.com/happyfish100/fastdfs-sub006/pkg/storageid"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// handleStorageFetchStorageIDs implements command 111: body is empty,
// response is the whole identity table as `{count:8, (id:16, group:16, ip:16)*count}`,
// per spec.md §4.1's registry round-trip.
func handleStorageFetchStorageIDs(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if s.Identity == nil {
		return encodeIDCount(0), nil
	}
	all := s.Identity.All()
	resp := make([]byte, 8+len(all)*48)
	trackerproto.PutInt64(resp[0:8], int64(len(all)))
	off := 8
	for _, ident := range all {
		trackerproto.PutFixedString(resp[off:off+16], ident.IDText)
		trackerproto.PutFixedString(resp[off+16:off+32], ident.Group)
		ip := ""
		if len(ident.Addrs) > 0 {
			ip = ident.Addrs[0].IP
		}
		trackerproto.PutFixedString(resp[off+32:off+48], ip)
		off += 48
	}
	return resp, nil
}

func encodeIDCount(n int64) []byte {
	resp := make([]byte, 8)
	trackerproto.PutInt64(resp, n)
	return resp
}

// handleStorageGetStorageID implements command 112: body is
// `{group:16, ip:16}`, response is `{id:16}`.
func handleStorageGetStorageID(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 32 {
		return nil, invalidArgErr{}
	}
	if s.Identity == nil {
		return nil, opNotSupportedErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	ip := trackerproto.FixedString(body[16:32])
	id, ok := s.Identity.GetIDByGroupIP(group, ip)
	if !ok {
		return nil, notFoundErr{}
	}
	resp := make([]byte, 16)
	trackerproto.PutFixedString(resp, storageid.FormatID(id))
	return resp, nil
}

// handleStorageGetGroupName implements command 113: body is `{ip:16, port:8}`,
// response is `{group:16}`.
func handleStorageGetGroupName(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 24 {
		return nil, invalidArgErr{}
	}
	if s.Identity == nil {
		return nil, opNotSupportedErr{}
	}
	ip := trackerproto.FixedString(body[0:16])
	port := trackerproto.Int64(body[16:24])
	id, ok := s.Identity.GetIDByIPPort(ip, uint16(port))
	if !ok {
		return nil, notFoundErr{}
	}
	ident, ok := s.Identity.GetByID(id)
	if !ok {
		return nil, notFoundErr{}
	}
	resp := make([]byte, 16)
	trackerproto.PutFixedString(resp, ident.Group)
	return resp, nil
}

// handleStorageGetMyIP implements command 114: body is empty, response
// is `{ip:16}`, the connection's own observed remote address.
func handleStorageGetMyIP(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	resp := make([]byte, 16)
	trackerproto.PutFixedString(resp, rc.remoteHost)
	return resp, nil
}

// handleStorageParameterReq implements command 116: body is empty,
// response is a small set of tracker-side config values a storage needs
// to mirror, here just the ones this tracker actually enforces.
func handleStorageParameterReq(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	resp := make([]byte, 8*3)
	useStorageID := int64(0)
	if s.Identity != nil {
		useStorageID = 1
	}
	trackerproto.PutInt64(resp[0:8], useStorageID)
	trackerproto.PutInt64(resp[8:16], int64(trackerproto.MaxPackageSize))
	trackerproto.PutInt64(resp[16:24], int64(s.Cfg.NetworkTimeout.Seconds()))
	return resp, nil
}

// handleStorageGetStatus implements command 117: body is `{group:16, id:16}`,
// response is `{status:1}`.
func handleStorageGetStatus(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 32 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	id := trackerproto.FixedString(body[16:32])
	g, ok := s.Store.GroupByName(group)
	if !ok {
		return nil, notFoundErr{}
	}
	st := g.ActiveByID(id)
	if st == nil {
		for _, cand := range g.SortedByIDStorages {
			if cand.ID == id {
				st = cand
				break
			}
		}
	}
	if st == nil {
		return nil, notFoundErr{}
	}
	return []byte{byte(st.Status)}, nil
}

// handleTrackerGetStatus implements command 123: body is empty,
// response is `{isLeader:1, runningTime:8, restartInterval:8, peerCount:8}`,
// the same facts relationship.Status carries over the peer wire.
func handleTrackerGetStatus(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	local := s.Peers.Local()
	resp := make([]byte, 1+8+8+8)
	if local != nil && local.IsLeader {
		resp[0] = 1
	}
	if local != nil {
		trackerproto.PutInt64(resp[1:9], local.RunningTime)
		trackerproto.PutInt64(resp[9:17], local.RestartInterval)
	}
	trackerproto.PutInt64(resp[17:25], int64(len(s.Peers.Peers())))
	return resp, nil
}

// handleTrackerPingLeader implements command 127: a peer checking that
// this tracker still believes itself the leader; EALREADY-classified
// rejection doesn't apply here, this is a plain query.
func handleTrackerPingLeader(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	local := s.Peers.Local()
	resp := make([]byte, 1)
	if local != nil && local.IsLeader {
		resp[0] = 1
	}
	return resp, nil
}
