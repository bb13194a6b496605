// Package liveness implements the tracker's heartbeat timeout
// supervisor (spec component C6): demoting storages that have gone
// quiet, and re-electing a group's trunk server when it has.
package liveness

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

var mon = monkit.Package()

// Error is the error class for the liveness package.
var Error = errs.Class("liveness")

// MaxDemotionsPerGroupPerTick is FDFS_MAX_SERVERS_EACH_GROUP from
// spec.md §4.4: the cap on how many storages one supervisor tick will
// demote within a single group, so one bad tick cannot mass-evict an
// entire group's membership in one pass.
const MaxDemotionsPerGroupPerTick = 32

// TrunkClient abstracts the network calls the trunk-election pass makes
// against other storages, keeping this package independent of the wire
// protocol (pkg/trackerserver supplies the real implementation on top of
// pkg/trackerproto's STORAGE_PROTO_CMD_TRUNK_GET_BINLOG_SIZE and
// TRUNK_DELETE_BINLOG_MARKS commands).
type TrunkClient interface {
	BinlogSize(ctx context.Context, s *cluster.Storage) (int64, error)
	DeleteBinlogMarks(ctx context.Context, s *cluster.Storage) error
}

// Config holds the trunk-file feature flags spec.md §4.4 names.
type Config struct {
	CheckActiveInterval       time.Duration
	UseTrunkFile              bool
	TrunkInitCheckOccupying   bool
	TrunkInitReloadFromBinlog bool
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Supervisor runs the periodic liveness checks of spec.md §4.4.
type Supervisor struct {
	Store    *cluster.Store
	Config   Config
	IsLeader func() bool
	Trunk    TrunkClient
	Log      *zap.Logger
	Now      Clock
}

// New constructs a Supervisor.
func New(store *cluster.Store, cfg Config, isLeader func() bool, trunk TrunkClient, log *zap.Logger, now Clock) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Supervisor{Store: store, Config: cfg, IsLeader: isLeader, Trunk: trunk, Log: log, Now: now}
}

// Tick runs one supervisor pass: heartbeat-timeout demotion (always),
// then trunk re-election (only when this tracker is leader and trunk
// files are enabled), per spec.md §4.4.
func (sv *Supervisor) Tick(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	sv.demoteStaleStorages()

	if sv.Config.UseTrunkFile && sv.IsLeader != nil && sv.IsLeader() {
		sv.reelectTrunkServers(ctx)
	}
	return nil
}

func (sv *Supervisor) demoteStaleStorages() {
	now := sv.Now().Unix()
	threshold := int64(sv.Config.CheckActiveInterval.Seconds())

	for _, g := range sv.Store.Groups() {
		demoted := 0
		for _, s := range append([]*cluster.Storage(nil), g.ActiveStorages...) {
			if demoted >= MaxDemotionsPerGroupPerTick {
				break
			}
			if now-s.LastHeartbeat <= threshold {
				continue
			}
			if err := sv.Store.OfflineStorage(g.Name, s.ID); err != nil {
				sv.Log.Warn("heartbeat demotion failed", zap.String("group", g.Name), zap.String("id", s.ID), zap.Error(err))
				continue
			}
			demoted++
			sv.Log.Info("storage demoted for stale heartbeat", zap.String("group", g.Name), zap.String("id", s.ID))
		}
	}
}

// trunkSilenceThreshold implements spec.md §4.4's adaptive threshold:
// 2x, 3x, or 5x CheckActiveInterval depending on how long the trunk
// server has been up and the two reload feature flags. A freshly-joined
// trunk server (short uptime) is given the longest grace period because
// it may still be reloading its trunk binlog from disk.
func (sv *Supervisor) trunkSilenceThreshold(trunkUpSeconds int64) time.Duration {
	base := sv.Config.CheckActiveInterval
	switch {
	case sv.Config.TrunkInitReloadFromBinlog && trunkUpSeconds < int64(5*base.Seconds()):
		return 5 * base
	case sv.Config.TrunkInitCheckOccupying && trunkUpSeconds < int64(3*base.Seconds()):
		return 3 * base
	default:
		return 2 * base
	}
}

func (sv *Supervisor) reelectTrunkServers(ctx context.Context) {
	now := sv.Now().Unix()
	for _, g := range sv.Store.Groups() {
		if g.TrunkServer != nil {
			upFor := now - g.TrunkServer.UpTime
			silentFor := now - g.TrunkServer.LastHeartbeat
			if time.Duration(silentFor)*time.Second <= sv.trunkSilenceThreshold(upFor) {
				continue
			}
			sv.Log.Info("trunk server silent past threshold, re-electing", zap.String("group", g.Name), zap.String("id", g.TrunkServer.ID))
		} else if g.StoreServer == nil {
			continue
		}
		sv.electTrunk(ctx, g)
	}
}

// electTrunk implements spec.md §4.4's "Trunk election": query every
// other active storage for its trunk-binlog size; the largest wins,
// ties go to storeServer.
func (sv *Supervisor) electTrunk(ctx context.Context, g *cluster.Group) {
	if g.StoreServer == nil {
		return
	}
	best := g.StoreServer
	var bestSize int64 = -1
	if size, err := sv.Trunk.BinlogSize(ctx, best); err != nil {
		sv.Log.Warn("trunk binlog size query failed", zap.String("group", g.Name), zap.String("id", best.ID), zap.Error(err))
	} else {
		bestSize = size
	}
	for _, s := range g.ActiveStorages {
		if s == g.StoreServer {
			continue
		}
		size, err := sv.Trunk.BinlogSize(ctx, s)
		if err != nil {
			sv.Log.Warn("trunk binlog size query failed", zap.String("group", g.Name), zap.String("id", s.ID), zap.Error(err))
			continue
		}
		if size > bestSize {
			best, bestSize = s, size
		}
	}

	if g.TrunkServer != nil && best.ID == g.TrunkServer.ID {
		return
	}
	if err := sv.Trunk.DeleteBinlogMarks(ctx, best); err != nil {
		sv.Log.Warn("delete binlog marks failed", zap.String("group", g.Name), zap.String("id", best.ID), zap.Error(err))
	}
	sv.Store.SetTrunkServer(g.Name, best.ID)
	sv.Log.Info("trunk server elected", zap.String("group", g.Name), zap.String("id", best.ID))
}
