/*
Package metrics provides Prometheus metrics collection and exposition
for clusterver.

# Metrics Catalog

clusterver_active_version:
  - Type: Gauge
  - Description: Current cluster-wide active logical version

clusterver_raft_is_leader:
  - Type: Gauge
  - Description: Whether this node is the raft leader for the controller group (1=leader, 0=follower)

clusterver_replicate_duration_seconds:
  - Type: Histogram
  - Description: Time taken for a consensus-log replicate-and-wait call

clusterver_reconciliation_duration_seconds:
  - Type: Histogram
  - Description: Time taken for one reconciliation attempt

clusterver_reconciliation_outcomes_total{outcome}:
  - Type: Counter
  - Description: Total reconciliation attempts by outcome
  - Labels: outcome ("advance", "defer", "transient")

# Usage

	timer := metrics.NewTimer()
	result, err := node.Replicate(ctx, cmd, deadline)
	timer.ObserveDuration(metrics.ReplicateDuration)

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
