// Package relationship implements the tracker-peer coordination (spec
// component C4): periodic leader election across the peer set (C3) and
// the system-file catch-up transfer a joining or stale tracker uses to
// pull groups/storages/sync-timestamps/change-log from a live peer.
package relationship

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/happyfish100/fastdfs-sub006/pkg/peerset"
	"github.com/happyfish100/fastdfs-sub006/pkg/relationship/electionstate"
)

var mon = monkit.Package()

// Error is the error class for the relationship package.
var Error = errs.Class("relationship")

// SyncStatusFileInterval is TRACKER_SYNC_STATUS_FILE_INTERVAL from
// spec.md §4.3: the truncation granularity for running-time and
// restart-interval comparisons, and the threshold multiple (2x) that
// triggers a system-file catch-up on join.
const SyncStatusFileInterval = 300 * time.Second

// Status is one peer's self-reported election status, per spec.md §4.3
// step 2: "asks each for its (R_i, restart_i, isLeader_i)".
type Status struct {
	RunningTime     int64
	RestartInterval int64
	IsLeader        bool
}

// Client abstracts the network calls the relationship manager makes
// against other trackers, so this package stays independent of
// pkg/trackerproto's wire encoding (pkg/trackerserver supplies the real
// implementation on top of the wire protocol).
type Client interface {
	GetStatus(ctx context.Context, peer *peerset.Peer) (Status, error)
	NotifyNextLeader(ctx context.Context, peer *peerset.Peer, leaderKey string) error
	CommitNextLeader(ctx context.Context, peer *peerset.Peer, leaderKey string) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Manager drives spec.md §4.3's leader election and §4.3's "System-file
// catch-up" section.
type Manager struct {
	Peers  *peerset.Set
	Client Client
	Log    *zap.Logger
	Now    Clock

	processStart time.Time
	election     *electionstate.Store

	mu            sync.Mutex
	backoff       map[string]*peerBackoff
	pendingLeader string // candidate key received via NOTIFY, awaiting COMMIT
}

type peerBackoff struct {
	nextAttempt time.Time
	delay       time.Duration
}

// New constructs a Manager. election may be nil, in which case
// restartInterval is always 0 (fresh-process behavior, e.g. in tests).
func New(peers *peerset.Set, client Client, log *zap.Logger, election *electionstate.Store, now Clock) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		Peers:        peers,
		Client:       client,
		Log:          log,
		Now:          now,
		processStart: now(),
		election:     election,
		backoff:      make(map[string]*peerBackoff),
	}
}

func truncate(d time.Duration, to time.Duration) int64 {
	if to <= 0 {
		return int64(d.Seconds())
	}
	return int64((d / to) * to / time.Second)
}

// runningTime computes R = (now - processStart) truncated to
// SyncStatusFileInterval, per spec.md §4.3 step 1.
func (m *Manager) runningTime() int64 {
	return truncate(m.Now().Sub(m.processStart), SyncStatusFileInterval)
}

// restartInterval computes (processStart - lastKnownCheckTime) truncated
// likewise. With no persisted check time (fresh install), it is 0.
func (m *Manager) restartInterval() int64 {
	if m.election == nil {
		return 0
	}
	last, err := m.election.LastKnownCheckTime()
	if err != nil || last.IsZero() {
		return 0
	}
	return truncate(m.processStart.Sub(last), SyncStatusFileInterval)
}

// readyForAttempt reports whether peer may be contacted again, honoring
// spec.md §7's "Peer-sync errors are retried on the next tick with
// exponential-capped backoff (1s, 5s)".
func (m *Manager) readyForAttempt(key string) bool {
	b, ok := m.backoff[key]
	if !ok {
		return true
	}
	return !m.Now().Before(b.nextAttempt)
}

func (m *Manager) recordFailure(key string) {
	b, ok := m.backoff[key]
	if !ok {
		b = &peerBackoff{delay: time.Second}
	} else if b.delay < 5*time.Second {
		b.delay = 5 * time.Second
	}
	b.nextAttempt = m.Now().Add(b.delay)
	m.backoff[key] = b
}

func (m *Manager) recordSuccess(key string) {
	delete(m.backoff, key)
}

type rankedStatus struct {
	key    string
	isLocal bool
	status Status
}

// rank orders statuses per spec.md §4.3 step 3: declared leaders last;
// within non-leaders, larger RunningTime wins; ties broken by smaller
// RestartInterval.
func rank(statuses []rankedStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		a, b := statuses[i], statuses[j]
		if a.status.IsLeader != b.status.IsLeader {
			return !a.status.IsLeader // non-leaders sort first
		}
		if a.status.RunningTime != b.status.RunningTime {
			return a.status.RunningTime > b.status.RunningTime
		}
		return a.status.RestartInterval < b.status.RestartInterval
	})
}

// Check runs one relationship-check tick: spec.md §4.3 steps 1-5.
func (m *Manager) Check(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	m.mu.Lock()
	defer m.mu.Unlock()

	local := m.Peers.Local()
	if local == nil {
		return Error.New("peer set has no local entry")
	}
	localKey := local.Key()

	self := rankedStatus{
		key:     localKey,
		isLocal: true,
		status:  Status{RunningTime: m.runningTime(), RestartInterval: m.restartInterval(), IsLeader: local.IsLeader},
	}
	statuses := []rankedStatus{self}

	var remoteLeaderKey string
	leaderDeclarations := 0
	if local.IsLeader {
		leaderDeclarations++
		remoteLeaderKey = localKey
	}

	for _, p := range m.Peers.Peers() {
		if p.IsLocal {
			continue
		}
		key := p.Key()
		if !m.readyForAttempt(key) {
			continue
		}
		st, gerr := m.Client.GetStatus(ctx, p)
		if gerr != nil {
			m.recordFailure(key)
			m.Log.Warn("relationship check: peer unreachable", zap.String("peer", key), zap.Error(gerr))
			continue
		}
		m.recordSuccess(key)
		statuses = append(statuses, rankedStatus{key: key, status: st})
		if st.IsLeader {
			leaderDeclarations++
			remoteLeaderKey = key
		}
	}

	if leaderDeclarations >= 2 {
		// Two peers declared leadership simultaneously: both demote and
		// restart the selection next tick, per spec.md §4.3 step 4.
		m.Peers.ClearLeader()
		m.Log.Warn("relationship check: split-brain leadership detected, demoting")
		m.stampCheckTime()
		return nil
	}

	if leaderDeclarations == 1 {
		if err := m.Peers.SetLeader(remoteLeaderKey); err != nil {
			m.Log.Warn("relationship check: accepted leader not in peer set", zap.String("leader", remoteLeaderKey))
		}
		m.stampCheckTime()
		return nil
	}

	// No leader declared anywhere: the tracker with the highest ranking
	// that is "us" declares itself leader.
	rank(statuses)
	if len(statuses) > 0 && statuses[0].isLocal {
		if err := m.electSelf(ctx, localKey); err != nil {
			return err
		}
	}
	m.stampCheckTime()
	return nil
}

// electSelf performs the two-phase NOTIFY/COMMIT broadcast of spec.md
// §4.3 step 5.
func (m *Manager) electSelf(ctx context.Context, localKey string) error {
	peers := m.Peers.Peers()
	for _, p := range peers {
		if p.IsLocal {
			continue
		}
		if err := m.Client.NotifyNextLeader(ctx, p, localKey); err != nil {
			m.Log.Warn("notify next leader failed", zap.String("peer", p.Key()), zap.Error(err))
		}
	}
	for _, p := range peers {
		if p.IsLocal {
			continue
		}
		if err := m.Client.CommitNextLeader(ctx, p, localKey); err != nil {
			m.Log.Warn("commit next leader failed", zap.String("peer", p.Key()), zap.Error(err))
		}
	}
	if err := m.Peers.SetLeader(localKey); err != nil {
		return Error.Wrap(err)
	}
	m.Log.Info("elected self as leader", zap.String("leader", localKey))
	return nil
}

func (m *Manager) stampCheckTime() {
	if m.election == nil {
		return
	}
	if err := m.election.SetLastKnownCheckTime(m.Now()); err != nil {
		m.Log.Warn("persist last known check time failed", zap.Error(err))
	}
}

// HandleNotifyNextLeader implements the receiving side of
// TRACKER_NOTIFY_NEXT_LEADER (wire command 131): records candidateKey as
// the pending next leader this peer will accept on COMMIT.
func (m *Manager) HandleNotifyNextLeader(candidateKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingLeader = candidateKey
}

// HandleCommitNextLeader implements the receiving side of
// TRACKER_COMMIT_NEXT_LEADER (wire command 132): accepts candidateKey as
// leader only if it matches the index received via the prior NOTIFY, per
// spec.md §4.3 step 5.
func (m *Manager) HandleCommitNextLeader(candidateKey string) error {
	m.mu.Lock()
	pending := m.pendingLeader
	m.mu.Unlock()
	if pending != candidateKey {
		return Error.New("commit does not match last notified candidate")
	}
	return m.Peers.SetLeader(candidateKey)
}

// HandleNotifyReselectLeader implements TRACKER_NOTIFY_RESELECT_LEADER
// (wire command 133): a peer asking this tracker to drop its leader
// belief and re-run the election on the next tick.
func (m *Manager) HandleNotifyReselectLeader() {
	m.Peers.ClearLeader()
}
