// Package bootstrap replays on-disk snapshots (pkg/cluster/persist) into
// a fresh cluster.Store, implementing the startup load order of spec.md
// §4.7: change-log (opened by the caller to measure size) → groups
// snapshot → storages snapshot → per-storage per-path arrays (carried in
// the storages snapshot itself here) → sync-timestamps snapshot →
// rebind trunk-server pointers by id.
package bootstrap

import (
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster/persist"
)

// Load reads every snapshot file under dataDir and replays it into st.
// It is safe to call against an empty dataDir (fresh cluster): every
// Load* call returns an empty slice when its file does not exist.
func Load(dataDir string, st *cluster.Store) error {
	groups, err := persist.LoadGroups(dataDir)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := st.RestoreGroup(g.Name, cluster.GroupFields{
			StoragePort:        g.StoragePort,
			StorageHTTPPort:    g.StorageHTTPPort,
			StorePathCount:     g.StorePathCount,
			SubdirCountPerPath: g.SubdirCountPerPath,
			CurrentTrunkFileID: g.CurrentTrunkFileID,
			LastTrunkServerID:  g.LastTrunkServerID,
			ChangeCount:        g.ChangeCount,
			TrunkChangeCount:   g.TrunkChangeCount,
		}); err != nil {
			return err
		}
	}

	storages, err := persist.LoadStorages(dataDir)
	if err != nil {
		return err
	}
	for _, s := range storages {
		if err := st.RestoreStorage(s.GroupName, cluster.StorageFields{
			ID:                 s.ID,
			IPAddr:             s.IPAddr,
			Status:             cluster.Status(s.Status),
			StoragePort:        s.StoragePort,
			StorageHTTPPort:    s.StorageHTTPPort,
			StorePathCount:     s.StorePathCount,
			SubdirCountPerPath: s.SubdirCountPerPath,
			UploadPriority:     s.UploadPriority,
			JoinTime:           s.JoinTime,
			UpTime:             s.UpTime,
			TotalMB:            s.TotalMB,
			FreeMB:             s.FreeMB,
			ChangelogOffset:    s.ChangelogOffset,
			LastHeartbeat:      s.LastHeartbeat,
		}); err != nil {
			return err
		}
	}

	syncTs, err := persist.LoadSyncTimestamps(dataDir)
	if err != nil {
		return err
	}
	for _, t := range syncTs {
		if err := st.RestoreSyncTimestamp(t.GroupName, t.Dest, t.Src, t.Ts); err != nil {
			return err
		}
	}

	st.RebindTrunkServers()
	return nil
}
