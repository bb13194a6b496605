package selection

import (
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

// SelectStorage implements spec.md §4.5's "Upload storage (within
// group)" policies. g.ActiveStorages is assumed sorted by id, per
// pkg/cluster's invariant.
func (e *Engine) SelectStorage(g *cluster.Group) (*cluster.Storage, error) {
	if len(g.ActiveStorages) == 0 {
		return nil, ErrNoStorage
	}
	switch e.Config.Storage {
	case StorageFirstByPri:
		best := g.ActiveStorages[0]
		for _, s := range g.ActiveStorages[1:] {
			if s.UploadPriority < best.UploadPriority {
				best = s
			}
		}
		return best, nil
	case StorageRoundRobin:
		g.CurrentWriteServer = (g.CurrentWriteServer + 1) % len(g.ActiveStorages)
		return g.ActiveStorages[g.CurrentWriteServer], nil
	default: // StorageFirstByIP
		return g.ActiveStorages[0], nil
	}
}
