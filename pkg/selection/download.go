package selection

import (
	"time"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

// DownloadQuery carries the per-request facts spec.md §4.5's
// "Download server" rule needs: the source storage id decoded from the
// filename, its upload timestamp, and whether the file is a plain
// ("normal") file as opposed to an appender or slave file. Under
// round-robin, a non-normal file gets the round-robin pick with no
// freshness check and no reroute to a fresher storage.
type DownloadQuery struct {
	SourceID      string
	FileTimestamp int64
	IsNormalFile  bool
	// KnownFresherID is the id of another storage already known to hold
	// an up-to-date copy of the file, if any; supplied by the caller
	// from its own bookkeeping (e.g. a recent sync notification).
	KnownFresherID string
}

// SelectDownloadServer implements spec.md §4.5's "Download server"
// rule, returning the storage that should serve the fetch.
func (e *Engine) SelectDownloadServer(g *cluster.Group, q DownloadQuery, now time.Time) (*cluster.Storage, error) {
	if len(g.ActiveStorages) == 0 {
		return nil, ErrNoStorage
	}

	source := g.ActiveByID(q.SourceID)

	if e.Config.Download == DownloadSourceFirst {
		if source != nil {
			return source, nil
		}
		return e.roundRobinDownload(g), nil
	}

	// ROUND_ROBIN.
	candidate := e.roundRobinDownload(g)
	if !q.IsNormalFile {
		return candidate, nil
	}
	if e.candidateIsFresh(g, candidate, q, now) {
		return candidate, nil
	}
	if q.KnownFresherID != "" {
		if fresher := g.ActiveByID(q.KnownFresherID); fresher != nil {
			return fresher, nil
		}
	}
	return candidate, nil
}

func (e *Engine) roundRobinDownload(g *cluster.Group) *cluster.Storage {
	g.CurrentReadServer = (g.CurrentReadServer + 1) % len(g.ActiveStorages)
	return g.ActiveStorages[g.CurrentReadServer]
}

// candidateIsFresh reports whether candidate has synchronized past
// fileTimestamp within the configured freshness window, per spec.md
// §4.5's round-robin download rule.
func (e *Engine) candidateIsFresh(g *cluster.Group, candidate *cluster.Storage, q DownloadQuery, now time.Time) bool {
	if candidate.ID == q.SourceID {
		return true
	}
	lastSynced := cluster.LastSyncedTimestamp(g, candidate.ID, false)
	if lastSynced >= q.FileTimestamp {
		return true
	}
	delay := now.Sub(time.Unix(q.FileTimestamp, 0))
	if e.Config.StorageSyncFileMaxDelay > 0 && delay <= e.Config.StorageSyncFileMaxDelay {
		return true
	}
	if e.Config.StorageSyncFileMaxTime > 0 && now.Sub(time.Unix(lastSynced, 0)) <= e.Config.StorageSyncFileMaxTime {
		return true
	}
	return false
}
