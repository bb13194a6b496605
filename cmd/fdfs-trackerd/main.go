// Command fdfs-trackerd runs the tracker daemon: the protocol dispatcher
// (pkg/trackerserver) wired to the cluster store (pkg/cluster), the
// upload/download selection engine (pkg/selection), the peer-tracker
// election manager (pkg/relationship), and the heartbeat/trunk-election
// supervisor (pkg/liveness), loaded from and persisted to the on-disk
// snapshot format of pkg/cluster/persist.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster/bootstrap"
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster/persist"
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster/querycache"
	"github.com/happyfish100/fastdfs-sub006/pkg/liveness"
	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
	"github.com/happyfish100/fastdfs-sub006/pkg/process"
	"github.com/happyfish100/fastdfs-sub006/pkg/relationship"
	"github.com/happyfish100/fastdfs-sub006/pkg/relationship/electionstate"
	"github.com/happyfish100/fastdfs-sub006/pkg/selection"
	"github.com/happyfish100/fastdfs-sub006/pkg/storageid"
	"github.com/happyfish100/fastdfs-sub006/pkg/trackerserver"
)

func main() {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:   "fdfs-trackerd",
		Short: "FastDFS-compatible tracker daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}
	cmd.PersistentFlags().String("config-dir", "", "directory holding config.yaml")
	process.Bind(cmd, cfg)

	process.Exec(cmd)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseGroupPolicy(s string) selection.GroupPolicy {
	switch s {
	case "load_balance":
		return selection.GroupLoadBalance
	case "spec_group":
		return selection.GroupSpecGroup
	default:
		return selection.GroupRoundRobin
	}
}

func parseStoragePolicy(s string) selection.StoragePolicy {
	switch s {
	case "first_by_pri":
		return selection.StorageFirstByPri
	case "round_robin":
		return selection.StorageRoundRobin
	default:
		return selection.StorageFirstByIP
	}
}

func parsePathPolicy(s string) selection.PathPolicy {
	if s == "load_balance" {
		return selection.PathLoadBalance
	}
	return selection.PathRoundRobin
}

func parseDownloadPolicy(s string) selection.DownloadPolicy {
	if s == "source_first" {
		return selection.DownloadSourceFirst
	}
	return selection.DownloadRoundRobin
}

func parseHostPort(hostport string) (ip string, port uint16) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 0
	}
	p, _ := strconv.Atoi(portStr)
	return host, uint16(p)
}

func run(cfg *Config) error {
	log, err := process.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store := cluster.New(log)
	store.IdentityMode = cfg.UseStorageID

	disk, err := persist.Open(cfg.DataDir, log)
	if err != nil {
		return fmt.Errorf("opening data dir: %w", err)
	}
	defer disk.Close()
	store.Persister = disk

	if err := bootstrap.Load(cfg.DataDir, store); err != nil {
		return fmt.Errorf("restoring cluster snapshot: %w", err)
	}

	var identity *storageid.Registry
	if cfg.UseStorageID {
		if cfg.StorageIDsFile == "" {
			return fmt.Errorf("use-storage-id is set but storage-ids-file is empty")
		}
		text, err := os.ReadFile(cfg.StorageIDsFile)
		if err != nil {
			return fmt.Errorf("reading storage-ids-file: %w", err)
		}
		identity, err = storageid.Load(string(text))
		if err != nil {
			return fmt.Errorf("parsing storage-ids-file: %w", err)
		}
	}

	selCfg := selection.Config{
		Group:     parseGroupPolicy(cfg.Selection.GroupPolicy),
		SpecGroup: cfg.Selection.SpecGroupName,
		Storage:   parseStoragePolicy(cfg.Selection.StoragePolicy),
		Path:      parsePathPolicy(cfg.Selection.PathPolicy),
		Download:  parseDownloadPolicy(cfg.Selection.DownloadPolicy),
		Reserved: selection.ReservedSpace{
			AbsoluteMB: cfg.Selection.ReservedMB,
			Ratio:      cfg.Selection.ReservedRatio,
		},
		UseTrunkFile: cfg.Trunk.UseTrunkFile,
	}
	sel := selection.New(selCfg)

	localIP, localPort := cfg.LocalIP, uint16(cfg.LocalPort)
	peers := peerset.New([]string{localIP}, localPort)
	for _, hostport := range splitCSV(cfg.Peers) {
		ip, port := parseHostPort(hostport)
		peers.Merge([]peerset.Peer{{IPAddrs: []string{ip}, Port: port}})
	}

	var election *electionstate.Store
	if cfg.ElectionStateFile != "" {
		election, err = electionstate.Open(cfg.ElectionStateFile)
		if err != nil {
			return fmt.Errorf("opening election-state-file: %w", err)
		}
		defer election.Close()
	}

	peerClient := &trackerserver.PeerClient{Timeout: cfg.NetworkTimeout}
	rel := relationship.New(peers, peerClient, log, election, nil)

	trunkClient := &trackerserver.TrunkClient{Timeout: cfg.NetworkTimeout}
	isLeader := func() bool {
		leader := peers.Leader()
		return leader != nil && leader.IsLocal
	}
	liveCfg := liveness.Config{
		CheckActiveInterval:       cfg.CheckActiveInterval,
		UseTrunkFile:              cfg.Trunk.UseTrunkFile,
		TrunkInitCheckOccupying:   cfg.Trunk.InitCheckOccupying,
		TrunkInitReloadFromBinlog: cfg.Trunk.InitReloadFromBinlog,
	}
	live := liveness.New(store, liveCfg, isLeader, trunkClient, log, nil)

	var qc *querycache.Cache
	if cfg.RedisAddr != "" || cfg.QueryCacheTTL > 0 {
		qc = querycache.New(cfg.RedisAddr, cfg.QueryCacheTTL)
	}

	allow := trackerserver.NewAllowList(splitCSV(cfg.AllowHosts))

	srv := trackerserver.New(trackerserver.Config{
		BindAddress:         cfg.BindAddress,
		NetworkTimeout:      cfg.NetworkTimeout,
		CheckActiveInterval: cfg.CheckActiveInterval,
		ShutdownTimeout:     cfg.ShutdownTimeout,
	})
	srv.Store = store
	srv.Sel = sel
	srv.Rel = rel
	srv.Live = live
	srv.Peers = peers
	srv.Persist = disk
	srv.Allow = allow
	srv.Log = log
	srv.QueryCache = qc
	srv.Identity = identity

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.DebugAddress != "" {
		dbg := &http.Server{
			Addr:    cfg.DebugAddress,
			Handler: &trackerserver.DebugHandler{Store: store, Allow: allow},
		}
		go func() {
			if err := dbg.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Sugar().Warnf("debug server stopped: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = dbg.Shutdown(shutdownCtx)
		}()
	}

	return srv.Run(ctx)
}
