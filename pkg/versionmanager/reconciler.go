package versionmanager

import (
	"context"
	"sort"
	"time"

	"github.com/cuemby/clusterver/pkg/clusternode"
	"github.com/cuemby/clusterver/pkg/featuretable"
	"github.com/cuemby/clusterver/pkg/metrics"
	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/cuemby/clusterver/pkg/wakesignal"
)

// run is the reconciler loop (spec §4.E). It is the only goroutine
// that touches the registry and the only one that drains the queue;
// the notification adapters only push to the queue and signal the
// wake signal, and Stop breaks it.
func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		o := m.advanceOnce(ctx)
		m.observeOutcome(o)

		if o.kind == outcomeTransient {
			if !m.sleepAbortable(ctx, m.cfg.RetryInterval) {
				return
			}
			continue
		}

		result := m.wake.Wait(0, func() bool { return !m.queue.Empty() })
		if result == wakesignal.Broken {
			return
		}
	}
}

func (m *Manager) observeOutcome(o outcome) {
	switch o.kind {
	case outcomeAdvance:
		metrics.ReconciliationOutcomesTotal.WithLabelValues("advance").Inc()
		metrics.ActiveVersion.Set(float64(o.version))
	case outcomeDefer:
		metrics.ReconciliationOutcomesTotal.WithLabelValues("defer").Inc()
	case outcomeTransient:
		metrics.ReconciliationOutcomesTotal.WithLabelValues("transient").Inc()
		m.logger.Debug().Str("reason", o.reason).Msg("transient error, will retry")
	}
}

// sleepAbortable sleeps for d, returning false if ctx is canceled
// first.
func (m *Manager) sleepAbortable(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// advanceOnce is the advance predicate and publication step (spec
// §4.F). It is executed only when the leader flag is true; followers
// return outcomeDefer without touching the registry or queue, so that
// stale observations simply accumulate until this node becomes
// leader.
func (m *Manager) advanceOnce(ctx context.Context) outcome {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	if !m.isLeader.Load() {
		return deferred()
	}

	// 1. Fold: drain the queue into the registry, last write wins.
	for _, obs := range m.queue.Drain() {
		m.registry.Set(obs.Node, obs.Version)
	}

	// 2. Compute candidate.
	active := m.table.GetActiveVersion()
	candidate := verid.Invalid
	for _, e := range m.registry.Iter() {
		if e.Version > candidate {
			candidate = e.Version
		}
	}

	// 3. Cheap exit.
	if candidate <= active {
		m.logger.Debug().
			Int64("candidate", int64(candidate)).
			Int64("active", int64(active)).
			Msg("no update, candidate not ahead of active version")
		return deferred()
	}

	// 4. Gather liveness.
	statuses, err := m.health.GetNodesStatus(ctx)
	if err != nil {
		return transient("health query failed: " + err.Error())
	}
	liveness := make(map[verid.NodeId]bool, len(statuses))
	for _, s := range statuses {
		liveness[s.Node] = s.IsAlive
	}

	// 5. Membership gate.
	for _, node := range m.membersReg.AllBrokerIDs() {
		v, ok := m.registry.Get(node)
		if !ok {
			m.logger.Debug().Str("node_id", string(node)).
				Int64("candidate", int64(candidate)).
				Msg("deferring, node version unknown")
			return deferred()
		}
		if v < candidate {
			m.logger.Debug().Str("node_id", string(node)).
				Int64("candidate", int64(candidate)).Int64("node_version", int64(v)).
				Msg("deferring, node version too low")
			return deferred()
		}

		alive, known := liveness[node]
		if !known {
			return transient("no health state for node " + string(node))
		}
		if !alive {
			return transient("node not alive: " + string(node))
		}
	}

	// 6. Publish.
	deadline := time.Now().Add(m.cfg.RetryInterval)
	cmd := featuretable.Command{LogicalVersion: candidate}
	result, err := m.consensusLog.Replicate(ctx, cmd, deadline)
	switch result {
	case clusternode.ReplicateNotLeader:
		// Harmless: we lost leadership, the new leader drives the
		// next attempt.
		return deferred()
	case clusternode.ReplicateOK:
		m.logPublication(candidate)
		return advanced(candidate)
	default:
		reason := "replicate failed"
		if err != nil {
			reason = err.Error()
		}
		return transient(reason)
	}
}

func (m *Manager) logPublication(version verid.Version) {
	entries := m.registry.Iter()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Node < entries[j].Node })
	for _, e := range entries {
		m.logger.Info().Str("node_id", string(e.Node)).Int64("logical_version", int64(e.Version)).
			Msg("node logical version")
	}
	m.logger.Info().Int64("active_version", int64(version)).Msg("updated cluster version")
}
