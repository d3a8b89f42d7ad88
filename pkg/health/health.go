// Package health implements the health-monitor notifier and health
// frontend collaborators: a backend that receives per-node heartbeats,
// fires an edge-triggered notification whenever a node's reported
// logical version changes, and answers liveness queries for the
// reconciler's membership gate.
//
// A real cluster's health monitor gossips status between nodes over
// the network; this package tracks only what the reconciler needs
// (logical version plus last-seen time) and treats any node silent for
// longer than Config.DeadAfter as not alive.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/clusterver/pkg/notify"
	"github.com/cuemby/clusterver/pkg/verid"
)

// Report is one node's self-reported logical version at a point in
// time.
type Report struct {
	Node           verid.NodeId
	LogicalVersion verid.Version
	At             time.Time
}

// NodeStatus is one node's liveness as seen by GetNodesStatus.
type NodeStatus struct {
	Node    verid.NodeId
	IsAlive bool
}

// Frontend is the read side of the health backend, consulted by the
// advance predicate's membership gate. It may
// perform network I/O in a real deployment, hence the context and
// error return, though this in-process implementation always resolves
// from a cached snapshot.
type Frontend interface {
	GetNodesStatus(ctx context.Context) ([]NodeStatus, error)
}

// Config tunes the liveness heuristic.
type Config struct {
	// DeadAfter is how long a node may go without a heartbeat before
	// GetNodesStatus reports it as not alive.
	DeadAfter time.Duration
}

// DefaultConfig uses a 30-second down-detection window.
func DefaultConfig() Config {
	return Config{DeadAfter: 30 * time.Second}
}

// Event is delivered to every registered node callback: the current
// report, and the prior report for the same node if one exists.
type Event struct {
	Current Report
	Prior   *Report
}

// Backend is the concrete health-monitor notifier and frontend. It is
// safe for concurrent use: ReportHeartbeat and GetNodesStatus may be
// called from any goroutine (e.g. an HTTP handler per incoming
// heartbeat), independent of the reconciler goroutine that consumes
// the notifications it fires.
type Backend struct {
	cfg Config

	mu    sync.Mutex
	last  map[verid.NodeId]Report
	clock func() time.Time

	hub *notify.Hub[Event]
}

// NewBackend constructs a Backend with the given config.
func NewBackend(cfg Config) *Backend {
	return &Backend{
		cfg:   cfg,
		last:  make(map[verid.NodeId]Report),
		clock: time.Now,
		hub:   notify.NewHub[Event](),
	}
}

// RegisterNodeCallback registers cb to be invoked on every heartbeat
// that either is the first ever seen for its node, or reports a
// logical version different from the node's previous report. This
// edge-triggered filter is what prevents the reconciler being flooded
// with duplicate observations on every heartbeat interval.
func (b *Backend) RegisterNodeCallback(cb func(current Report, prior *Report)) notify.Handle {
	return b.hub.Register(func(e Event) { cb(e.Current, e.Prior) })
}

// UnregisterNodeCallback removes a callback registered with
// RegisterNodeCallback.
func (b *Backend) UnregisterNodeCallback(handle notify.Handle) {
	b.hub.Unregister(handle)
}

// ReportHeartbeat records a node's self-reported logical version and
// fires the node callback hub if this report differs from the node's
// last known one (or there was no prior report at all).
func (b *Backend) ReportHeartbeat(node verid.NodeId, version verid.Version) {
	now := b.clock()
	report := Report{Node: node, LogicalVersion: version, At: now}

	b.mu.Lock()
	prior, hadPrior := b.last[node]
	b.last[node] = report
	b.mu.Unlock()

	var priorPtr *Report
	if hadPrior {
		p := prior
		priorPtr = &p
	}

	if !hadPrior || prior.LogicalVersion != version {
		b.hub.Fire(Event{Current: report, Prior: priorPtr})
	}
}

// GetNodesStatus implements Frontend: a node is alive iff it has sent
// at least one heartbeat within Config.DeadAfter of now.
func (b *Backend) GetNodesStatus(_ context.Context) ([]NodeStatus, error) {
	now := b.clock()

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]NodeStatus, 0, len(b.last))
	for node, report := range b.last {
		out = append(out, NodeStatus{
			Node:    node,
			IsAlive: now.Sub(report.At) <= b.cfg.DeadAfter,
		})
	}
	return out, nil
}
