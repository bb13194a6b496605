package trackerproto

// Cmd is the one-byte command code in a frame header.
type Cmd uint8

// Command codes from spec.md §6's table. pkg/trackerserver's dispatch
// table has a handler for every tracker command code listed here.
const (
	CmdStorageJoin             Cmd = 81
	CmdStorageBeat             Cmd = 82
	CmdStorageSyncReport       Cmd = 83
	CmdStorageReportStatus     Cmd = 84
	CmdStorageReplicaChg       Cmd = 85
	CmdStorageSyncSrcReq       Cmd = 86
	CmdStorageSyncDestReq      Cmd = 87
	CmdStorageSyncNotify       Cmd = 88
	CmdStorageSyncDestQuery    Cmd = 90
	CmdStorageReportIPChanged  Cmd = 93
	CmdServiceQueryStoreWithoutGroupOne Cmd = 101
	CmdServiceQueryFetchOne    Cmd = 102
	CmdServiceQueryUpdate      Cmd = 103
	CmdServerListOneGroup      Cmd = 104
	CmdServerListAllGroups     Cmd = 105
	CmdServerListStorage       Cmd = 106
	CmdServerDeleteStorage     Cmd = 107
	CmdServerDeleteGroup       Cmd = 108
	CmdServerSetTrunkServer    Cmd = 109
	CmdStorageReportDiskUsage  Cmd = 110
	CmdStorageFetchStorageIDs  Cmd = 111
	CmdStorageGetStorageID     Cmd = 112
	CmdStorageGetGroupName     Cmd = 113
	CmdStorageGetMyIP          Cmd = 114
	CmdStorageChangeStatus     Cmd = 115
	CmdStorageParameterReq     Cmd = 116
	CmdStorageGetStatus        Cmd = 117
	CmdStorageChangelogReq     Cmd = 118
	CmdServiceQueryFetchAll    Cmd = 119
	CmdServiceQueryStoreWithGroupOne    Cmd = 120
	CmdServiceQueryStoreWithoutGroupAll Cmd = 121
	CmdServiceQueryStoreWithGroupAll    Cmd = 122
	CmdTrackerGetStatus        Cmd = 123
	CmdTrackerGetSysFilesStart Cmd = 124
	CmdTrackerGetSysFilesEnd   Cmd = 125
	CmdTrackerGetOneSysFile    Cmd = 126
	CmdTrackerPingLeader       Cmd = 127
	CmdStorageFetchTrunkFid    Cmd = 128
	CmdStorageReportTrunkFid   Cmd = 129
	CmdStorageReportTrunkFree  Cmd = 130
	CmdTrackerNotifyNextLeader Cmd = 131
	CmdTrackerCommitNextLeader Cmd = 132
	CmdTrackerNotifyReselectLeader Cmd = 133

	// CmdResp is the command code every response header carries,
	// regardless of which command it answers.
	CmdResp Cmd = 100

	// CmdActiveTest and CmdQuit name the keepalive and quit codes; the
	// connection loop does not act on either. A storage_beat (82) frame
	// with an empty body is answered as a keepalive ping with cmd==CmdResp
	// and the connection stays open; no request closes it as a quit.
	CmdActiveTest Cmd = 0
	CmdQuit       Cmd = 82

	// CmdTrunkGetBinlogSize and CmdTrunkDeleteBinlogMarks are storage
	// protocol commands (not tracker protocol, hence the gap from 133):
	// the tracker's liveness supervisor dials a storage directly to run
	// spec.md §4.4's trunk-server election, reusing this package's frame
	// format since both protocols share the same header shape.
	CmdTrunkGetBinlogSize     Cmd = 140
	CmdTrunkDeleteBinlogMarks Cmd = 141
)

// names is used only by String, for log messages.
var names = map[Cmd]string{
	CmdStorageJoin:             "STORAGE_JOIN",
	CmdStorageBeat:             "STORAGE_BEAT",
	CmdStorageSyncReport:       "STORAGE_SYNC_REPORT",
	CmdStorageReportStatus:     "STORAGE_REPORT_STATUS",
	CmdStorageReplicaChg:       "STORAGE_REPLICA_CHG",
	CmdStorageSyncSrcReq:       "STORAGE_SYNC_SRC_REQ",
	CmdStorageSyncDestReq:      "STORAGE_SYNC_DEST_REQ",
	CmdStorageSyncNotify:       "STORAGE_SYNC_NOTIFY",
	CmdStorageSyncDestQuery:    "STORAGE_SYNC_DEST_QUERY",
	CmdStorageReportIPChanged:  "STORAGE_REPORT_IP_CHANGED",
	CmdServiceQueryStoreWithoutGroupOne: "SERVICE_QUERY_STORE_WITHOUT_GROUP_ONE",
	CmdServiceQueryFetchOne:    "SERVICE_QUERY_FETCH_ONE",
	CmdServiceQueryUpdate:      "SERVICE_QUERY_UPDATE",
	CmdServerListOneGroup:      "SERVER_LIST_ONE_GROUP",
	CmdServerListAllGroups:     "SERVER_LIST_ALL_GROUPS",
	CmdServerListStorage:       "SERVER_LIST_STORAGE",
	CmdServerDeleteStorage:     "SERVER_DELETE_STORAGE",
	CmdServerDeleteGroup:       "SERVER_DELETE_GROUP",
	CmdServerSetTrunkServer:    "SERVER_SET_TRUNK_SERVER",
	CmdStorageReportDiskUsage:  "STORAGE_REPORT_DISK_USAGE",
	CmdStorageFetchStorageIDs:  "STORAGE_FETCH_STORAGE_IDS",
	CmdStorageGetStorageID:     "STORAGE_GET_STORAGE_ID",
	CmdStorageGetGroupName:     "STORAGE_GET_GROUP_NAME",
	CmdStorageGetMyIP:          "STORAGE_GET_MY_IP",
	CmdStorageChangeStatus:     "STORAGE_CHANGE_STATUS",
	CmdStorageParameterReq:     "STORAGE_PARAMETER_REQ",
	CmdStorageGetStatus:        "STORAGE_GET_STATUS",
	CmdStorageChangelogReq:     "STORAGE_CHANGELOG_REQ",
	CmdServiceQueryFetchAll:    "SERVICE_QUERY_FETCH_ALL",
	CmdServiceQueryStoreWithGroupOne:    "SERVICE_QUERY_STORE_WITH_GROUP_ONE",
	CmdServiceQueryStoreWithoutGroupAll: "SERVICE_QUERY_STORE_WITHOUT_GROUP_ALL",
	CmdServiceQueryStoreWithGroupAll:    "SERVICE_QUERY_STORE_WITH_GROUP_ALL",
	CmdTrackerGetStatus:        "TRACKER_GET_STATUS",
	CmdTrackerGetSysFilesStart: "TRACKER_GET_SYS_FILES_START",
	CmdTrackerGetSysFilesEnd:   "TRACKER_GET_SYS_FILES_END",
	CmdTrackerGetOneSysFile:    "TRACKER_GET_ONE_SYS_FILE",
	CmdTrackerPingLeader:       "TRACKER_PING_LEADER",
	CmdStorageFetchTrunkFid:    "STORAGE_FETCH_TRUNK_FID",
	CmdStorageReportTrunkFid:   "STORAGE_REPORT_TRUNK_FID",
	CmdStorageReportTrunkFree:  "STORAGE_REPORT_TRUNK_FREE",
	CmdTrackerNotifyNextLeader: "TRACKER_NOTIFY_NEXT_LEADER",
	CmdTrackerCommitNextLeader: "TRACKER_COMMIT_NEXT_LEADER",
	CmdTrackerNotifyReselectLeader: "TRACKER_NOTIFY_RESELECT_LEADER",
	CmdResp:                    "RESP",
	CmdTrunkGetBinlogSize:      "TRUNK_GET_BINLOG_SIZE",
	CmdTrunkDeleteBinlogMarks:  "TRUNK_DELETE_BINLOG_MARKS",
}

func (c Cmd) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN"
}
