package selection

import (
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

func pathPasses(total, free int64, pathCount int, reserved ReservedSpace) bool {
	if pathCount <= 0 {
		return false
	}
	perPathReserved := reserved
	if perPathReserved.Ratio == 0 {
		perPathReserved.AbsoluteMB = reserved.AbsoluteMB / int64(pathCount)
	}
	return perPathReserved.passes(free, total)
}

// SelectPath implements spec.md §4.5's "Upload path (within storage)"
// policies, returning the chosen path's index into s.PathTotalMB /
// s.PathFreeMB. g is needed only for its TrunkFreeMB, consulted on the
// round-robin fallback pass when trunk files are enabled.
func (e *Engine) SelectPath(g *cluster.Group, s *cluster.Storage) (int, error) {
	n := len(s.PathFreeMB)
	if n == 0 {
		return -1, ErrNoStorage
	}
	switch e.Config.Path {
	case PathLoadBalance:
		best := 0
		for i := 1; i < n; i++ {
			if s.PathFreeMB[i] > s.PathFreeMB[best] {
				best = i
			}
		}
		return best, nil
	default: // PathRoundRobin
		return e.selectPathRoundRobin(g, s)
	}
}

func (e *Engine) selectPathRoundRobin(g *cluster.Group, s *cluster.Storage) (int, error) {
	n := len(s.PathFreeMB)
	if idx, ok := e.roundRobinPathPass(s, n, 0); ok {
		return idx, nil
	}
	if e.Config.UseTrunkFile {
		if idx, ok := e.roundRobinPathPass(s, n, g.TrunkFreeMB/int64(n)); ok {
			return idx, nil
		}
	}
	return -1, ErrNoSpace
}

func (e *Engine) roundRobinPathPass(s *cluster.Storage, n int, trunkExtraPerPath int64) (int, bool) {
	for i := 0; i < n; i++ {
		idx := (s.CurrentWritePath + i) % n
		free := s.PathFreeMB[idx] + trunkExtraPerPath
		if pathPasses(s.PathTotalMB[idx], free, n, e.Config.Reserved) {
			s.CurrentWritePath = (idx + 1) % n
			return idx, true
		}
	}
	return -1, false
}
