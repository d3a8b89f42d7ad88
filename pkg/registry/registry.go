// Package registry implements the version registry described in the
// cluster feature-version manager design: an in-memory, last-write-wins
// mapping from node identity to the most recently observed logical
// version. It is mutated only by the reconciler goroutine; see
// pkg/versionmanager for the single-writer guarantee.
package registry

import "github.com/cuemby/clusterver/pkg/verid"

// Registry is a plain map wrapper. It holds no lock of its own: the
// caller (pkg/versionmanager) is responsible for confining all access
// to a single goroutine, per the design's "shared-state without locks"
// strategy.
type Registry struct {
	entries map[verid.NodeId]verid.Version
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[verid.NodeId]verid.Version)}
}

// Set unconditionally overwrites the version recorded for node.
// Monotonicity is not enforced here: a stale observation arriving out
// of order simply overwrites a newer one, which is harmless because
// the advance predicate only ever reads the current snapshot.
func (r *Registry) Set(node verid.NodeId, version verid.Version) {
	r.entries[node] = version
}

// Get returns the version recorded for node, and whether any
// observation has been recorded at all.
func (r *Registry) Get(node verid.NodeId) (verid.Version, bool) {
	v, ok := r.entries[node]
	return v, ok
}

// Entry is a single (node, version) pair returned by Iter.
type Entry struct {
	Node    verid.NodeId
	Version verid.Version
}

// Iter returns a snapshot of all entries currently in the registry.
// No ordering is guaranteed; callers that need determinism (e.g. for
// logging) must sort the result themselves.
func (r *Registry) Iter() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for node, version := range r.entries {
		out = append(out, Entry{Node: node, Version: version})
	}
	return out
}

// Len reports the number of distinct nodes with a recorded version.
func (r *Registry) Len() int {
	return len(r.entries)
}
