package trackerserver

import (
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerproto"
)

// handlerFunc is the shape every command handler implements: decode body,
// mutate or read server state, return the response body (nil is fine for
// an empty-body success) and an error classified per pkg/trackerproto.
type handlerFunc func(s *Server, rc *requestContext, body []byte) ([]byte, error)

// table is the command dispatch table, keyed by wire command code. Every
// code in spec.md §6's table is present; codes this tracker treats as
// pure bookkeeping pass-throughs point at the same small handler where
// the request/response shape is identical.
var table map[trackerproto.Cmd]handlerFunc

func init() {
	table = map[trackerproto.Cmd]handlerFunc{
		trackerproto.CmdStorageJoin:            handleStorageJoin,
		trackerproto.CmdStorageBeat:            handleStorageBeat,
		trackerproto.CmdStorageSyncReport:      handleStorageSyncReport,
		trackerproto.CmdStorageReportStatus:    handleStorageReportStatus,
		trackerproto.CmdStorageReplicaChg:      handleStorageReplicaChg,
		trackerproto.CmdStorageSyncSrcReq:      handleStorageSyncSrcReq,
		trackerproto.CmdStorageSyncDestReq:     handleStorageSyncDestReq,
		trackerproto.CmdStorageSyncNotify:      handleStorageSyncNotify,
		trackerproto.CmdStorageSyncDestQuery:   handleStorageSyncDestQuery,
		trackerproto.CmdStorageReportIPChanged: handleStorageReportIPChanged,

		trackerproto.CmdServiceQueryStoreWithoutGroupOne: handleServiceQueryStoreWithoutGroupOne,
		trackerproto.CmdServiceQueryFetchOne:             handleServiceQueryFetchOne,
		trackerproto.CmdServiceQueryUpdate:               handleServiceQueryUpdate,
		trackerproto.CmdServerListOneGroup:               handleServerListOneGroup,
		trackerproto.CmdServerListAllGroups:              handleServerListAllGroups,
		trackerproto.CmdServerListStorage:                handleServerListStorage,
		trackerproto.CmdServerDeleteStorage:              handleServerDeleteStorage,
		trackerproto.CmdServerDeleteGroup:                handleServerDeleteGroup,
		trackerproto.CmdServerSetTrunkServer:             handleServerSetTrunkServer,
		trackerproto.CmdStorageReportDiskUsage:           handleStorageReportDiskUsage,
		trackerproto.CmdStorageFetchStorageIDs:           handleStorageFetchStorageIDs,
		trackerproto.CmdStorageGetStorageID:              handleStorageGetStorageID,
		trackerproto.CmdStorageGetGroupName:              handleStorageGetGroupName,
		trackerproto.CmdStorageGetMyIP:                   handleStorageGetMyIP,
		trackerproto.CmdStorageChangeStatus:              handleStorageChangeStatus,
		trackerproto.CmdStorageParameterReq:              handleStorageParameterReq,
		trackerproto.CmdStorageGetStatus:                 handleStorageGetStatus,
		trackerproto.CmdStorageChangelogReq:              handleStorageChangelogReq,
		trackerproto.CmdServiceQueryFetchAll:             handleServiceQueryFetchAll,
		trackerproto.CmdServiceQueryStoreWithGroupOne:    handleServiceQueryStoreWithGroupOne,
		trackerproto.CmdServiceQueryStoreWithoutGroupAll: handleServiceQueryStoreWithoutGroupAll,
		trackerproto.CmdServiceQueryStoreWithGroupAll:    handleServiceQueryStoreWithGroupAll,

		trackerproto.CmdTrackerGetStatus:              handleTrackerGetStatus,
		trackerproto.CmdTrackerGetSysFilesStart:       handleTrackerGetSysFilesStart,
		trackerproto.CmdTrackerGetSysFilesEnd:         handleTrackerGetSysFilesEnd,
		trackerproto.CmdTrackerGetOneSysFile:          handleTrackerGetOneSysFile,
		trackerproto.CmdTrackerPingLeader:             handleTrackerPingLeader,
		trackerproto.CmdStorageFetchTrunkFid:          handleStorageFetchTrunkFid,
		trackerproto.CmdStorageReportTrunkFid:         handleStorageReportTrunkFid,
		trackerproto.CmdStorageReportTrunkFree:        handleStorageReportTrunkFree,
		trackerproto.CmdTrackerNotifyNextLeader:       handleTrackerNotifyNextLeader,
		trackerproto.CmdTrackerCommitNextLeader:       handleTrackerCommitNextLeader,
		trackerproto.CmdTrackerNotifyReselectLeader:   handleTrackerNotifyReselectLeader,
	}
}

// dispatch validates the caller against the allow-list for
// non-storage/peer commands, then routes to the command's handler.
func (s *Server) dispatch(rc *requestContext, cmd trackerproto.Cmd, body []byte) ([]byte, error) {
	if requiresAllowList(cmd) && s.Allow != nil && !s.Allow.Allowed(rc.remoteHost) {
		return nil, permissionDeniedErr{}
	}

	h, ok := table[cmd]
	if !ok {
		return nil, opNotSupportedErr{}
	}
	return h(s, rc, body)
}

// requiresAllowList reports whether cmd originates from a client or
// admin connection, per spec.md §6's direction column; storage and peer
// traffic is never allow-list gated.
func requiresAllowList(cmd trackerproto.Cmd) bool {
	switch {
	case cmd >= trackerproto.CmdServiceQueryStoreWithoutGroupOne && cmd <= trackerproto.CmdServerListStorage:
		return true
	case cmd == trackerproto.CmdServerDeleteStorage || cmd == trackerproto.CmdServerDeleteGroup ||
		cmd == trackerproto.CmdServerSetTrunkServer || cmd == trackerproto.CmdStorageChangeStatus:
		return true
	case cmd == trackerproto.CmdServiceQueryFetchAll || cmd == trackerproto.CmdServiceQueryStoreWithGroupOne ||
		cmd == trackerproto.CmdServiceQueryStoreWithoutGroupAll || cmd == trackerproto.CmdServiceQueryStoreWithGroupAll:
		return true
	default:
		return false
	}
}

// permissionDeniedErr and opNotSupportedErr are local Kind-classified
// errors for conditions this package detects itself (an unlisted caller,
// or a command code with no handler), rather than one propagated up from
// a cluster/selection/peerset sentinel.
type permissionDeniedErr struct{}

func (permissionDeniedErr) Error() string         { return "trackerserver: caller not in allow list" }
func (permissionDeniedErr) Kind() trackerproto.Kind { return trackerproto.KindPermissionDenied }

type opNotSupportedErr struct{}

func (opNotSupportedErr) Error() string         { return "trackerserver: unsupported command" }
func (opNotSupportedErr) Kind() trackerproto.Kind { return trackerproto.KindOpNotSupported }
