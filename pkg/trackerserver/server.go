// Package trackerserver implements the tracker's protocol dispatcher
// (spec component C7): the per-connection state machine, the command
// table, and the handlers that turn a decoded request into a mutation or
// read of pkg/cluster, pkg/selection, pkg/relationship, and
// pkg/liveness, replying over pkg/trackerproto's wire encoding.
package trackerserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster/persist"
	"github.com/happyfish100/fastdfs-sub006/pkg/cluster/querycache"
	"github.com/happyfish100/fastdfs-sub006/pkg/liveness"
	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
	"github.com/happyfish100/fastdfs-sub006/pkg/relationship"
	"github.com/happyfish100/fastdfs-sub006/pkg/selection"
	"github.com/happyfish100/fastdfs-sub006/pkg/storageid"
)

var mon = monkit.Package()

// Error is the error class for the trackerserver package.
var Error = errs.Class("trackerserver")

// Config holds the connection-level settings spec.md §6 and §5 name.
type Config struct {
	BindAddress     string
	NetworkTimeout  time.Duration
	CheckActiveInterval time.Duration
	ShutdownTimeout time.Duration
}

// Server is the tracker daemon's network half: one TCP listener, a pool
// of per-connection goroutines (the "I/O worker" role spec.md §5
// describes as thread-pool dispatch is, in Go, simply one goroutine per
// accepted connection), and the background scheduler loops for the
// liveness supervisor and relationship checker.
type Server struct {
	Cfg    Config
	Store  *cluster.Store
	Sel    *selection.Engine
	Rel    *relationship.Manager
	Live   *liveness.Supervisor
	Peers  *peerset.Set
	Persist  *persist.Disk
	Identity *storageid.Registry // nil unless identity-mode (use_storage_id) is on
	Allow    *AllowList
	Log      *zap.Logger

	// QueryCache fronts the two read-only cluster-wide queries
	// (server_list_all_groups, service_query_store_without_group_all)
	// that every client hits identically regardless of who's asking;
	// nil runs both uncached.
	QueryCache *querycache.Cache

	ln       net.Listener
	closers  lifecycle
	wg       sync.WaitGroup

	mu           sync.Mutex
	sysFilesBusy bool
}

// New constructs a Server. Callers must set the exported fields they
// need before calling Run; nil Log is replaced with a no-op logger.
func New(cfg Config) *Server {
	return &Server{Cfg: cfg, Log: zap.NewNop()}
}

// Run accepts connections until ctx is canceled, then drains in-flight
// connections and returns, per spec.md §5's shutdown sequence. It blocks
// until shutdown completes or Cfg.ShutdownTimeout elapses.
func (s *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ln, err := net.Listen("tcp", s.Cfg.BindAddress)
	if err != nil {
		return Error.Wrap(err)
	}
	s.ln = ln
	s.closers.add("listener", ln.Close)
	s.Log.Info("tracker listening", zap.String("addr", ln.Addr().String()))

	stopBackground := s.runBackgroundLoops(ctx)
	s.closers.add("background loops", func() error { stopBackground(); return nil })

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		s.acceptLoop(ctx)
	}()

	<-ctx.Done()
	s.Log.Info("shutting down tracker")

	shutdownTimeout := s.Cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(shutdownTimeout):
		s.Log.Warn("shutdown timeout exceeded, forcing exit")
	}

	return s.closers.closeAll(s.Log)
}

// Close unblocks a pending Accept by dialing the local bind address, the
// "best-effort quit" spec.md §5 describes, then closes the listener.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	if conn, err := net.DialTimeout("tcp", s.ln.Addr().String(), time.Second); err == nil {
		_ = conn.Close()
	}
	return s.ln.Close()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.Log.Warn("accept failed", zap.Error(err))
				return
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// runBackgroundLoops starts the periodic scheduler threads spec.md §5
// names: the liveness supervisor and the relationship checker, each on
// its own ticker, stopped when the returned func is called.
func (s *Server) runBackgroundLoops(ctx context.Context) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup

	interval := s.Cfg.CheckActiveInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if s.Live != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ctx.Done():
					return
				case <-t.C:
					if err := s.Live.Tick(ctx); err != nil {
						s.Log.Warn("liveness tick failed", zap.Error(err))
					}
				}
			}
		}()
	}

	if s.Rel != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTicker(relationship.SyncStatusFileInterval)
			defer t.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ctx.Done():
					return
				case <-t.C:
					if err := s.Rel.Check(ctx); err != nil {
						s.Log.Warn("relationship check failed", zap.Error(err))
					}
				}
			}
		}()
	}

	return func() {
		close(stop)
		wg.Wait()
	}
}
