package trackerserver

import (
	"time"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/selection"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// clusterGeneration is the query cache's version key for cluster-wide
// answers: the sum of every group's ChangeCount, so it changes with
// group membership. Disk-usage reports do not change it, so a cached
// answer keeps the space figures it was built with until the next bump.
func clusterGeneration(groups []*cluster.Group) int64 {
	var gen int64
	for _, g := range groups {
		gen += g.ChangeCount
	}
	return gen
}

// storeAnswerSize is the wire size of one "where to upload" answer:
// group(16) + ip(16) + port(8) + storePathIndex(1), per the teacher's
// fixed-width field convention.
const storeAnswerSize = 16 + 16 + 8 + 1

func encodeStoreAnswer(groupName, ip string, port int, pathIndex int) []byte {
	buf := make([]byte, storeAnswerSize)
	trackerproto.PutFixedString(buf[0:16], groupName)
	trackerproto.PutFixedString(buf[16:32], ip)
	trackerproto.PutInt64(buf[32:40], int64(port))
	buf[40] = byte(pathIndex)
	return buf
}

// pickStoreTarget runs the full upload chain (group → storage → path)
// spec.md §4.5 describes, for any service_query_store_* variant.
func (s *Server) pickStoreTarget(preferredGroup string) ([]byte, error) {
	var g *cluster.Group
	var err error
	if preferredGroup != "" {
		var ok bool
		g, ok = s.Store.GroupByName(preferredGroup)
		if !ok {
			return nil, selection.ErrNoGroup
		}
	} else {
		g, err = s.Sel.SelectGroup(s.Store.Groups())
		if err != nil {
			return nil, err
		}
	}
	st, err := s.Sel.SelectStorage(g)
	if err != nil {
		return nil, err
	}
	path, err := s.Sel.SelectPath(g, st)
	if err != nil {
		return nil, err
	}
	var ip string
	if len(st.IPAddrs) > 0 {
		ip = st.IPAddrs[0]
	}
	return encodeStoreAnswer(g.Name, ip, int(st.StoragePort), path), nil
}

// handleServiceQueryStoreWithoutGroupOne implements command 101: the
// client supplies no group, the tracker picks one plus a storage and
// path and returns a single answer.
func handleServiceQueryStoreWithoutGroupOne(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	return s.pickStoreTarget("")
}

// handleServiceQueryStoreWithGroupOne implements command 120: body is
// `{group:16}`, a client-pinned group.
func handleServiceQueryStoreWithGroupOne(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	return s.pickStoreTarget(trackerproto.FixedString(body[0:16]))
}

// handleServiceQueryStoreWithoutGroupAll and handleServiceQueryStoreWithGroupAll
// implement commands 121/122: the "_all" variants return the same
// answer as their single-tracker counterpart, since this tracker never
// forwards to peer trackers on the client path (multi-tracker fallback
// is the client library's concern once it has every tracker's address).
//
// Without_group_all is the one query every client asks identically, so
// it's the one fronted by s.QueryCache: the answer is reused until the
// cluster's generation changes, trading this one handler's round-robin
// spread for fewer Store/Sel calls under load.
func handleServiceQueryStoreWithoutGroupAll(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if s.QueryCache == nil {
		return handleServiceQueryStoreWithoutGroupOne(s, rc, body)
	}
	groups := s.Store.Groups()
	gen := clusterGeneration(groups)
	const key = "store_without_group_all"
	if cached, ok := s.QueryCache.Get(key, gen); ok {
		return []byte(cached), nil
	}
	resp, err := s.pickStoreTarget("")
	if err != nil {
		return nil, err
	}
	_ = s.QueryCache.Set(key, gen, string(resp))
	return resp, nil
}

func handleServiceQueryStoreWithGroupAll(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	return handleServiceQueryStoreWithGroupOne(s, rc, body)
}

// decodeDownloadQuery parses the body shared by fetch/update queries:
// `{group:16, sourceId:16, fileTimestamp:8, isNormalFile:1, knownFresherId:16}`.
func decodeDownloadQuery(body []byte) (group string, q selection.DownloadQuery, err error) {
	if len(body) < 57 {
		return "", selection.DownloadQuery{}, invalidArgErr{}
	}
	group = trackerproto.FixedString(body[0:16])
	q.SourceID = trackerproto.FixedString(body[16:32])
	q.FileTimestamp = trackerproto.Int64(body[32:40])
	q.IsNormalFile = body[40] != 0
	q.KnownFresherID = trackerproto.FixedString(body[41:57])
	return group, q, nil
}

func (s *Server) answerDownload(body []byte) ([]byte, error) {
	group, q, err := decodeDownloadQuery(body)
	if err != nil {
		return nil, err
	}
	g, ok := s.Store.GroupByName(group)
	if !ok {
		return nil, selection.ErrNoGroup
	}
	st, err := s.Sel.SelectDownloadServer(g, q, time.Now())
	if err != nil {
		return nil, err
	}
	var ip string
	if len(st.IPAddrs) > 0 {
		ip = st.IPAddrs[0]
	}
	return encodeStoreAnswer(group, ip, int(st.StoragePort), 0), nil
}

// handleServiceQueryFetchOne implements command 102.
func handleServiceQueryFetchOne(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	return s.answerDownload(body)
}

// handleServiceQueryFetchAll implements command 119: same answer as
// fetch_one, for the reason given on the store_*_all handlers above.
func handleServiceQueryFetchAll(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	return s.answerDownload(body)
}

// handleServiceQueryUpdate implements command 103: an update (overwrite,
// append, delete) must always target the file's source storage, so it
// never falls through to round-robin the way fetch does.
func handleServiceQueryUpdate(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	group, q, err := decodeDownloadQuery(body)
	if err != nil {
		return nil, err
	}
	g, ok := s.Store.GroupByName(group)
	if !ok {
		return nil, selection.ErrNoGroup
	}
	st := g.ActiveByID(q.SourceID)
	if st == nil {
		return nil, selection.ErrNoStorage
	}
	var ip string
	if len(st.IPAddrs) > 0 {
		ip = st.IPAddrs[0]
	}
	return encodeStoreAnswer(group, ip, int(st.StoragePort), 0), nil
}

func encodeGroupSummary(g *cluster.Group) []byte {
	buf := make([]byte, 16+8*5)
	trackerproto.PutFixedString(buf[0:16], g.Name)
	trackerproto.PutInt64(buf[16:24], g.Count)
	trackerproto.PutInt64(buf[24:32], g.ActiveCount)
	trackerproto.PutInt64(buf[32:40], g.TotalMB)
	trackerproto.PutInt64(buf[40:48], g.FreeMB)
	trackerproto.PutInt64(buf[48:56], g.TrunkFreeMB)
	return buf
}

const groupSummarySize = 16 + 8*5

// handleServerListOneGroup implements command 104: body is `{group:16}`.
func handleServerListOneGroup(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	g, ok := s.Store.GroupByName(trackerproto.FixedString(body[0:16]))
	if !ok {
		return nil, selection.ErrNoGroup
	}
	return encodeGroupSummary(g), nil
}

// handleServerListAllGroups implements command 105: body is empty,
// response is `{count:8, groupSummary*count}`. Fronted by s.QueryCache
// the same way as store_without_group_all.
func handleServerListAllGroups(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	groups := s.Store.Groups()
	if s.QueryCache != nil {
		gen := clusterGeneration(groups)
		const key = "list_all_groups"
		if cached, ok := s.QueryCache.Get(key, gen); ok {
			return []byte(cached), nil
		}
		resp := encodeAllGroups(groups)
		_ = s.QueryCache.Set(key, gen, string(resp))
		return resp, nil
	}
	return encodeAllGroups(groups), nil
}

func encodeAllGroups(groups []*cluster.Group) []byte {
	resp := make([]byte, 8+len(groups)*groupSummarySize)
	trackerproto.PutInt64(resp[0:8], int64(len(groups)))
	off := 8
	for _, g := range groups {
		copy(resp[off:off+groupSummarySize], encodeGroupSummary(g))
		off += groupSummarySize
	}
	return resp
}

// handleServerListStorage implements command 106: body is `{group:16}`,
// response is `{count:8, StorageBrief*count}`.
func handleServerListStorage(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	g, ok := s.Store.GroupByName(trackerproto.FixedString(body[0:16]))
	if !ok {
		return nil, selection.ErrNoGroup
	}
	briefs := make([]trackerproto.StorageBrief, 0, len(g.SortedByIDStorages))
	for _, st := range g.SortedByIDStorages {
		var ip string
		if len(st.IPAddrs) > 0 {
			ip = st.IPAddrs[0]
		}
		briefs = append(briefs, trackerproto.StorageBrief{
			Status: trackerproto.Status(st.Status),
			Port:   uint32(st.StoragePort),
			ID:     st.ID,
			IP:     ip,
		})
	}
	return encodeDelta(0, briefs)[1:], nil // reuse the brief-array encoder, drop the unused flags byte
}

// handleServerDeleteStorage implements command 107: body is
// `{group:16, id:16}`, admin-gated.
func handleServerDeleteStorage(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 32 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	id := trackerproto.FixedString(body[16:32])
	return nil, s.Store.DeleteStorage(group, id)
}

// handleServerDeleteGroup implements command 108: body is `{group:16}`.
func handleServerDeleteGroup(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 16 {
		return nil, invalidArgErr{}
	}
	return nil, s.Store.DeleteGroup(trackerproto.FixedString(body[0:16]))
}

// handleServerSetTrunkServer implements command 109: body is
// `{group:16, id:16}`.
func handleServerSetTrunkServer(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 32 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	id := trackerproto.FixedString(body[16:32])
	return nil, s.Store.SetTrunkServer(group, id)
}

// handleStorageChangeStatus implements command 115 (admin-gated,
// despite its storage_ name prefix, per spec.md §6's direction column):
// body is `{group:16, id:16, status:1}`.
func handleStorageChangeStatus(s *Server, rc *requestContext, body []byte) ([]byte, error) {
	if len(body) < 33 {
		return nil, invalidArgErr{}
	}
	group := trackerproto.FixedString(body[0:16])
	id := trackerproto.FixedString(body[16:32])
	status := cluster.Status(body[32])
	switch status {
	case cluster.StatusOffline:
		return nil, s.Store.OfflineStorage(group, id)
	case cluster.StatusOnline, cluster.StatusActive:
		_, err := s.Store.ActivateStorage(group, id)
		return nil, err
	default:
		return nil, s.Store.DeactivateStorage(group, id)
	}
}
