// Package clusternode wraps hashicorp/raft to provide the two
// consensus-log collaborators: the
// leadership notifier (raft leader-change observations filtered to
// this node's controller group) and the replicate-and-wait consensus
// log that pkg/versionmanager submits feature-update commands through.
//
// This package is intentionally thin: it does not know anything about
// logical versions, registries, or the advance predicate. It only
// knows how to run a raft group and translate raft's own leadership
// and apply semantics into the shapes pkg/versionmanager expects.
package clusternode

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/clusterver/pkg/featuretable"
	"github.com/cuemby/clusterver/pkg/log"
	"github.com/cuemby/clusterver/pkg/metrics"
	"github.com/cuemby/clusterver/pkg/notify"
	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// GroupID is the single consensus group this core cares about. A
// production multi-raft deployment would carry many groups; this core
// only ever gates on one, so the group id is a fixed constant rather
// than a runtime parameter.
const GroupID = "controller"

// ReplicateResult distinguishes the outcomes the advance predicate
// needs to tell apart: a clean commit, a loss of leadership (silent
// defer), and everything else (transient error).
type ReplicateResult int

const (
	ReplicateOK ReplicateResult = iota
	ReplicateNotLeader
	ReplicateOtherError
)

// LeadershipEvent is fired once per raft leadership observation.
// Leader is nil when the group currently has no leader.
type LeadershipEvent struct {
	Group  string
	Term   uint64
	Leader *verid.NodeId
}

// Config configures a single raft node.
type Config struct {
	NodeID   verid.NodeId
	BindAddr string
	DataDir  string

	// HeartbeatTimeout/ElectionTimeout/LeaderLeaseTimeout tune raft's
	// failure-detection latency. Zero values fall back to raft's
	// defaults.
	HeartbeatTimeout   time.Duration
	ElectionTimeout    time.Duration
	LeaderLeaseTimeout time.Duration
}

// Node owns a raft.Raft instance and the featuretable FSM it drives.
type Node struct {
	cfg       Config
	raft      *raft.Raft
	transport *raft.NetworkTransport
	fsm       *featuretable.FSM

	leadershipHub *notify.Hub[LeadershipEvent]
	observer      *raft.Observer
	observerCh    chan raft.Observation
	stopObserve   chan struct{}
}

// New constructs a Node with a fresh featuretable FSM but does not yet
// start raft; call Bootstrap (new cluster) or JoinExisting (existing
// cluster) next.
func New(cfg Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("clusternode: create data dir: %w", err)
	}
	return &Node{
		cfg:           cfg,
		fsm:           featuretable.NewFSM(),
		leadershipHub: notify.NewHub[LeadershipEvent](),
	}, nil
}

// FeatureTable returns the FSM backing this node's feature table.
func (n *Node) FeatureTable() *featuretable.FSM {
	return n.fsm
}

func (n *Node) raftConfig() *raft.Config {
	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(n.cfg.NodeID)
	if n.cfg.HeartbeatTimeout > 0 {
		cfg.HeartbeatTimeout = n.cfg.HeartbeatTimeout
	}
	if n.cfg.ElectionTimeout > 0 {
		cfg.ElectionTimeout = n.cfg.ElectionTimeout
	}
	if n.cfg.LeaderLeaseTimeout > 0 {
		cfg.LeaderLeaseTimeout = n.cfg.LeaderLeaseTimeout
	}
	return cfg
}

func (n *Node) newRaft() (*raft.Raft, error) {
	addr, err := net.ResolveTCPAddr("tcp", n.cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("clusternode: resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(n.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("clusternode: create transport: %w", err)
	}
	n.transport = transport

	snapshotStore, err := raft.NewFileSnapshotStore(n.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("clusternode: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("clusternode: create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("clusternode: create stable store: %w", err)
	}

	r, err := raft.NewRaft(n.raftConfig(), n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("clusternode: create raft: %w", err)
	}
	return r, nil
}

// Bootstrap initializes a brand-new single-node raft cluster.
func (n *Node) Bootstrap() error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	cfg := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(n.cfg.NodeID), Address: n.transport.LocalAddr()},
		},
	}
	if err := n.raft.BootstrapCluster(cfg).Error(); err != nil {
		return fmt.Errorf("clusternode: bootstrap cluster: %w", err)
	}

	n.startObserving()
	return nil
}

// JoinExisting starts raft for a node joining a cluster whose leader
// has already been told (out of band) to AddVoter this node. It does
// not itself perform the join request: the caller's transport layer
// is responsible for contacting the leader and asking it to call
// AddVoter.
func (n *Node) JoinExisting() error {
	r, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r
	n.startObserving()
	return nil
}

// AddVoter adds a new node to the raft configuration. Only the leader
// may do this; callers should check IsLeader first.
func (n *Node) AddVoter(nodeID verid.NodeId, addr string) error {
	if n.raft == nil {
		return fmt.Errorf("clusternode: raft not initialized")
	}
	requestID := uuid.NewString()
	log.WithComponent("clusternode").Info().
		Str("request_id", requestID).
		Str("node_id", string(nodeID)).
		Str("address", addr).
		Msg("adding voter")

	future := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("clusternode: add voter: %w", err)
	}
	return nil
}

// AllBrokerIDs implements members.Registry over the live raft
// configuration.
func (n *Node) AllBrokerIDs() []verid.NodeId {
	if n.raft == nil {
		return nil
	}
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil
	}
	servers := future.Configuration().Servers
	out := make([]verid.NodeId, 0, len(servers))
	for _, s := range servers {
		out = append(out, verid.NodeId(s.ID))
	}
	return out
}

// IsLeader reports whether this node currently holds raft leadership.
func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

// RegisterLeadershipCallback registers cb for leadership-change
// observations on this node's (single) consensus group.
func (n *Node) RegisterLeadershipCallback(cb func(group string, term uint64, leader *verid.NodeId)) notify.Handle {
	return n.leadershipHub.Register(func(e LeadershipEvent) { cb(e.Group, e.Term, e.Leader) })
}

// UnregisterLeadershipCallback removes a callback registered with
// RegisterLeadershipCallback.
func (n *Node) UnregisterLeadershipCallback(h notify.Handle) {
	n.leadershipHub.Unregister(h)
}

func (n *Node) startObserving() {
	n.observerCh = make(chan raft.Observation, 8)
	n.observer = raft.NewObserver(n.observerCh, false, func(o *raft.Observation) bool {
		_, ok := o.Data.(raft.LeaderObservation)
		return ok
	})
	n.raft.RegisterObserver(n.observer)

	n.stopObserve = make(chan struct{})
	go n.observeLeadership()
}

func (n *Node) observeLeadership() {
	for {
		select {
		case obs, ok := <-n.observerCh:
			if !ok {
				return
			}
			leaderObs, ok := obs.Data.(raft.LeaderObservation)
			if !ok {
				continue
			}
			var leader *verid.NodeId
			if leaderObs.LeaderID != "" {
				id := verid.NodeId(leaderObs.LeaderID)
				leader = &id
			}
			term, _ := n.currentTerm()
			n.leadershipHub.Fire(LeadershipEvent{Group: GroupID, Term: term, Leader: leader})
		case <-n.stopObserve:
			return
		}
	}
}

func (n *Node) currentTerm() (uint64, error) {
	stats := n.raft.Stats()
	var term uint64
	if _, err := fmt.Sscanf(stats["term"], "%d", &term); err != nil {
		return 0, err
	}
	return term, nil
}

// Replicate submits cmd to the raft log and waits for it to commit (or
// for the deadline to elapse). It implements the consensus log
// collaborator that submits a command and waits for it to commit.
func (n *Node) Replicate(_ context.Context, cmd featuretable.Command, deadline time.Time) (ReplicateResult, error) {
	if n.raft == nil {
		return ReplicateOtherError, fmt.Errorf("clusternode: raft not initialized")
	}
	if n.raft.State() != raft.Leader {
		return ReplicateNotLeader, nil
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return ReplicateOtherError, fmt.Errorf("clusternode: marshal command: %w", err)
	}

	timer := metrics.NewTimer()
	future := n.raft.Apply(data, time.Until(deadline))
	err = future.Error()
	timer.ObserveDuration(metrics.ReplicateDuration)

	if err != nil {
		if err == raft.ErrNotLeader || err == raft.ErrLeadershipLost {
			return ReplicateNotLeader, nil
		}
		return ReplicateOtherError, err
	}
	return ReplicateOK, nil
}

// Shutdown tears down the raft instance. Safe to call on a Node that
// was never started.
func (n *Node) Shutdown() error {
	if n.stopObserve != nil {
		close(n.stopObserve)
	}
	if n.observer != nil && n.raft != nil {
		n.raft.DeregisterObserver(n.observer)
	}
	if n.raft == nil {
		return nil
	}
	return n.raft.Shutdown().Error()
}
