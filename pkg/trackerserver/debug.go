package trackerserver

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

// DebugHandler serves spec.md §5's operator-facing introspection: a JSON
// cluster snapshot at /debug/cluster, allow-list gated the same way
// client/admin commands are, since a cluster snapshot leaks group
// membership and storage addresses. Per-package monkit counters
// (registered via monkit.Package()/mon.Task() throughout this module,
// e.g. Server.Run) are exported the ordinary way a process embedding
// this package already does for its own metrics sink, rather than
// duplicated behind a second HTTP surface here.
type DebugHandler struct {
	Store *cluster.Store
	Allow *AllowList
}

func (h *DebugHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Allow != nil {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if !h.Allow.Allowed(host) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	switch r.URL.Path {
	case "/debug/cluster":
		h.serveCluster(w, r)
	default:
		http.NotFound(w, r)
	}
}

type groupSnapshot struct {
	Name             string            `json:"name"`
	Count            int               `json:"count"`
	ActiveCount      int               `json:"active_count"`
	TotalMB          int64             `json:"total_mb"`
	FreeMB           int64             `json:"free_mb"`
	TrunkFreeMB      int64             `json:"trunk_free_mb"`
	ChangeCount      int64             `json:"change_count"`
	TrunkChangeCount int64             `json:"trunk_change_count"`
	Storages         []storageSnapshot `json:"storages"`
}

type storageSnapshot struct {
	ID     string `json:"id"`
	IP     string `json:"ip"`
	Status string `json:"status"`
}

func (h *DebugHandler) serveCluster(w http.ResponseWriter, r *http.Request) {
	groups := h.Store.Groups()
	out := make([]groupSnapshot, 0, len(groups))
	for _, g := range groups {
		gs := groupSnapshot{
			Name:             g.Name,
			Count:            g.Count,
			ActiveCount:      g.ActiveCount,
			TotalMB:          g.TotalMB,
			FreeMB:           g.FreeMB,
			TrunkFreeMB:      g.TrunkFreeMB,
			ChangeCount:      g.ChangeCount,
			TrunkChangeCount: g.TrunkChangeCount,
		}
		for _, s := range g.SortedByIDStorages {
			var ip string
			if len(s.IPAddrs) > 0 {
				ip = s.IPAddrs[0]
			}
			gs.Storages = append(gs.Storages, storageSnapshot{ID: s.ID, IP: ip, Status: s.Status.String()})
		}
		out = append(out, gs)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
