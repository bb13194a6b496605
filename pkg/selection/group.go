package selection

import (
	"sync"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

// Engine holds the selection policy configuration and the small amount
// of cross-group cursor state (currentWriteGroup) that spec.md §3
// describes as living on the store but which, since it is pure
// round-robin bookkeeping independent of any one group, belongs to the
// selection engine itself.
type Engine struct {
	Config Config

	mu               sync.Mutex
	currentWriteGroup int
}

// New constructs an Engine, applying the policy-upgrade rule to cfg.
func New(cfg Config) *Engine {
	cfg.Upgrade()
	return &Engine{Config: cfg}
}

func groupFree(g *cluster.Group, withTrunk bool) (free, total int64) {
	free = g.FreeMB
	if withTrunk {
		free += g.TrunkFreeMB
	}
	return free, g.TotalMB
}

func (e *Engine) groupEligible(g *cluster.Group, withTrunk bool) bool {
	if g.ActiveCount == 0 {
		return false
	}
	free, total := groupFree(g, withTrunk)
	return e.Config.Reserved.passes(free, total)
}

// SelectGroup implements spec.md §4.5's "Upload group" policies.
func (e *Engine) SelectGroup(groups []*cluster.Group) (*cluster.Group, error) {
	switch e.Config.Group {
	case GroupSpecGroup:
		for _, g := range groups {
			if g.Name == e.Config.SpecGroup {
				if g.ActiveCount == 0 {
					return nil, ErrNoGroup
				}
				return g, nil
			}
		}
		return nil, ErrNoGroup
	case GroupLoadBalance:
		return e.selectGroupLoadBalance(groups)
	default:
		return e.selectGroupRoundRobin(groups)
	}
}

func (e *Engine) selectGroupRoundRobin(groups []*cluster.Group) (*cluster.Group, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroup
	}
	g, err := e.roundRobinPass(groups, false)
	if err == nil {
		return g, nil
	}
	if e.Config.UseTrunkFile {
		if g, err := e.roundRobinPass(groups, true); err == nil {
			return g, nil
		}
	}
	return nil, ErrNoSpace
}

func (e *Engine) roundRobinPass(groups []*cluster.Group, withTrunk bool) (*cluster.Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(groups)
	for i := 0; i < n; i++ {
		idx := (e.currentWriteGroup + 1 + i) % n
		g := groups[idx]
		if e.groupEligible(g, withTrunk) {
			e.currentWriteGroup = idx
			return g, nil
		}
	}
	return nil, ErrNoSpace
}

func (e *Engine) selectGroupLoadBalance(groups []*cluster.Group) (*cluster.Group, error) {
	g, err := e.loadBalancePass(groups, false)
	if err == nil {
		return g, nil
	}
	if e.Config.UseTrunkFile {
		if g, err := e.loadBalancePass(groups, true); err == nil {
			return g, nil
		}
	}
	return nil, ErrNoSpace
}

func (e *Engine) loadBalancePass(groups []*cluster.Group, withTrunk bool) (*cluster.Group, error) {
	var best *cluster.Group
	var bestFree int64
	for _, g := range groups {
		if g.ActiveCount == 0 {
			continue
		}
		free, total := groupFree(g, withTrunk)
		if !e.Config.Reserved.passes(free, total) {
			continue
		}
		if best == nil || free > bestFree {
			best, bestFree = g, free
		}
	}
	if best == nil {
		return nil, ErrNoSpace
	}
	return best, nil
}
