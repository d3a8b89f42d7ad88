// Package versionmanager implements the cluster feature-version
// manager: a single-leader control-plane component that observes
// per-node logical version reports, decides when the whole cluster
// has advanced past a new common version, and publishes that version
// to the replicated feature table through the cluster's consensus
// log.
//
// The Manager is the reconciler, the advance predicate, and the
// lifecycle controller in one: it owns the version registry, the
// pending-update queue, and the wake signal. The registry is read and
// written only from its own reconciliation goroutine. Notification
// adapters (health reports, leadership changes) run on the caller's
// goroutine and only ever push to the queue (which has its own lock),
// signal the wake signal, or flip the leader flag — they never touch
// the registry directly.
package versionmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/clusterver/pkg/clusternode"
	"github.com/cuemby/clusterver/pkg/featuretable"
	"github.com/cuemby/clusterver/pkg/health"
	"github.com/cuemby/clusterver/pkg/log"
	"github.com/cuemby/clusterver/pkg/members"
	"github.com/cuemby/clusterver/pkg/metrics"
	"github.com/cuemby/clusterver/pkg/notify"
	"github.com/cuemby/clusterver/pkg/registry"
	"github.com/cuemby/clusterver/pkg/updatequeue"
	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/cuemby/clusterver/pkg/wakesignal"
	"github.com/rs/zerolog"
)

// RetryInterval governs both the failure-backoff sleep and the
// consensus-write deadline. It is fixed: the health monitor already
// rate-limits state changes, and the reconciliation loop is
// idempotent, so exponential backoff buys nothing.
const RetryInterval = 5 * time.Second

// HealthNotifier registers a callback fired on every edge-triggered
// node health report (spec §4.D).
type HealthNotifier interface {
	RegisterNodeCallback(cb func(current health.Report, prior *health.Report)) notify.Handle
	UnregisterNodeCallback(handle notify.Handle)
}

// LeadershipNotifier registers a callback fired on every raft
// leadership observation.
type LeadershipNotifier interface {
	RegisterLeadershipCallback(cb func(group string, term uint64, leader *verid.NodeId)) notify.Handle
	UnregisterLeadershipCallback(handle notify.Handle)
}

// ConsensusLog is the replicate-and-wait surface the predicate
// publishes through.
type ConsensusLog interface {
	Replicate(ctx context.Context, cmd featuretable.Command, deadline time.Time) (clusternode.ReplicateResult, error)
}

// Config configures a Manager.
type Config struct {
	// Self is this node's identity, used to recognize leadership of
	// self and to self-inject the bootstrap observation.
	Self verid.NodeId

	// ControllerGroup is the consensus group this manager gates on.
	// Leadership notifications for any other group are ignored.
	ControllerGroup string

	// RetryInterval overrides the default 5s backoff/deadline. Zero
	// uses the default.
	RetryInterval time.Duration
}

// Manager is the cluster feature-version manager.
type Manager struct {
	cfg Config

	health         health.Frontend
	healthNotifier HealthNotifier
	membersReg     members.Registry
	consensusLog   ConsensusLog
	table          featuretable.Table
	leadership     LeadershipNotifier

	registry *registry.Registry
	queue    *updatequeue.Queue
	wake     *wakesignal.Signal
	isLeader atomic.Bool

	logger zerolog.Logger

	healthHandle     notify.Handle
	leadershipHandle notify.Handle

	cancel context.CancelFunc
	done   chan struct{}

	startStopMu sync.Mutex
	running     bool
}

// New constructs a Manager. It does not start the reconciler; call
// Start.
func New(
	cfg Config,
	healthFrontend health.Frontend,
	healthNotifier HealthNotifier,
	membersReg members.Registry,
	consensusLog ConsensusLog,
	table featuretable.Table,
	leadership LeadershipNotifier,
) *Manager {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = RetryInterval
	}
	return &Manager{
		cfg:            cfg,
		health:         healthFrontend,
		healthNotifier: healthNotifier,
		membersReg:     membersReg,
		consensusLog:   consensusLog,
		table:          table,
		leadership:     leadership,
		registry:       registry.New(),
		queue:          updatequeue.New(),
		wake:           wakesignal.New(),
		logger:         log.WithComponent("versionmanager"),
	}
}

// IsLeader reports whether this node currently believes it holds
// leadership of the controller group. Safe to call concurrently.
func (m *Manager) IsLeader() bool {
	return m.isLeader.Load()
}

// ActiveVersion returns the feature table's current active version.
func (m *Manager) ActiveVersion() verid.Version {
	return m.table.GetActiveVersion()
}

// Start begins the reconciliation loop. The order is load-bearing:
// registering the leadership callback before the health callback
// means a leadership transition observed during startup can never be
// missed by a health report that arrived first.
func (m *Manager) Start() {
	m.startStopMu.Lock()
	defer m.startStopMu.Unlock()
	if m.running {
		return
	}

	m.leadershipHandle = m.leadership.RegisterLeadershipCallback(m.onLeadershipChange)
	m.healthHandle = m.healthNotifier.RegisterNodeCallback(m.onHealthReport)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.run(ctx)
	m.logger.Info().Msg("version manager started")
}

// Stop unregisters the leadership and health callbacks first, then
// breaks the wake signal, cancels the reconciler's context, and waits
// for the reconciler goroutine to exit, so that both callbacks are
// deregistered before the reconciler is torn down.
func (m *Manager) Stop() {
	m.startStopMu.Lock()
	defer m.startStopMu.Unlock()
	if !m.running {
		return
	}

	m.leadership.UnregisterLeadershipCallback(m.leadershipHandle)
	m.healthNotifier.UnregisterNodeCallback(m.healthHandle)
	m.wake.Break()
	m.cancel()
	<-m.done

	m.running = false
	m.logger.Info().Msg("version manager stopped")
}

// onHealthReport is the health adapter (spec §4.D): it runs on the
// caller's goroutine and only ever pushes to the queue, never touches
// the registry. The edge-trigger filter ("emit iff prior absent or
// version changed") is already applied by pkg/health.Backend before
// this callback fires.
func (m *Manager) onHealthReport(current health.Report, _ *health.Report) {
	m.queue.Push(verid.Observation{Node: current.Node, Version: current.LogicalVersion})
	m.wake.Signal()
}

// onLeadershipChange is the leadership adapter (spec §4.D).
func (m *Manager) onLeadershipChange(group string, term uint64, leader *verid.NodeId) {
	if group != m.cfg.ControllerGroup {
		return
	}

	wasLeader := m.isLeader.Load()
	nowLeader := leader != nil && *leader == m.cfg.Self
	m.isLeader.Store(nowLeader)
	metrics.RaftIsLeader.Set(boolToFloat(nowLeader))

	m.logger.Debug().
		Str("group", group).
		Uint64("term", term).
		Bool("leader", nowLeader).
		Msg("leadership notification")

	if nowLeader && !wasLeader && m.table.GetActiveVersion() != verid.Latest {
		// Self-injection: without this, a leader of a brand-new
		// single-node cluster would never receive its own health
		// report in time to publish the initial cluster version.
		m.logger.Debug().Msg("generating self version observation for new controller leader")
		m.queue.Push(verid.Observation{Node: m.cfg.Self, Version: verid.Latest})
		m.wake.Signal()
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
