// Package members implements the members registry collaborator: a
// read-only snapshot of current cluster membership, consulted by the
// advance predicate's membership gate.
package members

import "github.com/cuemby/clusterver/pkg/verid"

// Registry reports current cluster membership.
type Registry interface {
	// AllBrokerIDs returns every node currently listed as a cluster
	// member. Order is unspecified.
	AllBrokerIDs() []verid.NodeId
}

// Static is a fixed membership list, useful for tests and for a
// single-node bootstrap before any join has happened. Production
// deployments wire members.Registry to pkg/clusternode, which derives
// membership from the live raft configuration.
type Static struct {
	nodes []verid.NodeId
}

// NewStatic returns a Static registry over the given nodes.
func NewStatic(nodes ...verid.NodeId) *Static {
	cp := make([]verid.NodeId, len(nodes))
	copy(cp, nodes)
	return &Static{nodes: cp}
}

// AllBrokerIDs implements Registry.
func (s *Static) AllBrokerIDs() []verid.NodeId {
	out := make([]verid.NodeId, len(s.nodes))
	copy(out, s.nodes)
	return out
}
