package main

import (
	"time"
)

// Config is the daemon's full configuration surface, the Go-native form
// of spec.md §6's recognized tracker.conf keys, bound to flags/env/file
// by pkg/cfgstruct the way the teacher's services bind their own Config
// structs.
type Config struct {
	BindAddress         string        `default:"0.0.0.0:22122" usage:"tracker listen address"`
	DataDir             string        `default:"/var/fdfs/tracker" usage:"snapshot and change-log directory"`
	LogLevel            string        `default:"" usage:"dev enables human-readable logging; anything else is production JSON"`
	DebugAddress        string        `default:"" usage:"address for the /debug/cluster HTTP endpoint; empty disables it"`
	NetworkTimeout      time.Duration `default:"30s" usage:"per-request socket read/write deadline"`
	CheckActiveInterval time.Duration `default:"30s" usage:"liveness supervisor tick interval"`
	ShutdownTimeout     time.Duration `default:"30s" usage:"grace period for in-flight connections to drain on shutdown"`

	AllowHosts string `default:"" usage:"comma-separated allow-list for client/admin connections; empty means allow all"`

	UseStorageID    bool   `default:"false" usage:"resolve storages by numeric id instead of observed ip"`
	StorageIDsFile  string `default:"" usage:"path to the storage_ids.conf identity table; required when use-storage-id is set"`
	RedisAddr       string `default:"" usage:"optional Redis address backing the query cache; empty runs the cache in-process only"`
	QueryCacheTTL   time.Duration `default:"5s" usage:"query cache entry lifetime"`

	Selection SelectionConfig
	Trunk     TrunkConfig

	LocalIP           string `default:"127.0.0.1" usage:"this tracker's own address, as advertised to peers"`
	LocalPort         int    `default:"22122" usage:"this tracker's own peer-protocol port"`
	Peers             string `default:"" usage:"comma-separated host:port list of the other trackers in this cluster"`
	ElectionStateFile string `default:"" usage:"boltdb file backing restart-interval bookkeeping across restarts; empty keeps it in memory only"`
}

// SelectionConfig mirrors pkg/selection.Config's policy knobs, per
// spec.md §6's upload/download policy keys.
type SelectionConfig struct {
	GroupPolicy    string  `default:"round_robin" usage:"round_robin | load_balance | spec_group"`
	SpecGroupName  string  `default:"" usage:"target group name when group-policy is spec_group"`
	StoragePolicy  string  `default:"first_by_ip" usage:"first_by_ip | first_by_pri | round_robin"`
	PathPolicy     string  `default:"round_robin" usage:"round_robin | load_balance"`
	DownloadPolicy string  `default:"round_robin" usage:"round_robin | source_first"`
	ReservedMB     int64   `default:"0" usage:"reserved_storage_space, absolute MB; ignored if reserved-ratio is set"`
	ReservedRatio  float64 `default:"0" usage:"reserved_storage_space, as a fraction of total capacity"`
}

// TrunkConfig mirrors pkg/liveness.Config and pkg/selection.Config's
// trunk-file feature flags, per spec.md §4.4/§4.5.
type TrunkConfig struct {
	UseTrunkFile          bool `default:"false" usage:"enable trunk-file allocation and trunk-server election"`
	InitCheckOccupying    bool `default:"false" usage:"check occupied trunk space on startup"`
	InitReloadFromBinlog  bool `default:"false" usage:"rebuild the trunk free-space map from binlog on startup"`
}
