// Package verid defines the opaque node-identity and logical-version
// types shared by every other package in clusterver. Nothing here
// knows about raft, health, or reconciliation: it is pure data.
package verid

// NodeId identifies a cluster member. It is opaque to this package:
// callers compare NodeId values for equality, use them as map keys,
// and order them with < where they need a deterministic sort.
type NodeId string

// Version is an opaque, monotonically-ordered logical version
// identifying a software/protocol revision. Real versions are >= 0.
type Version int64

// Invalid is strictly less than every real version. A fresh registry
// with no observations yields Invalid as its candidate version.
const Invalid Version = -1

// Latest is the version this build of clusterver implements. A
// cluster's active version can never exceed Latest, because no node
// running this binary can ever report more than Latest for itself.
const Latest Version = 3

// Observation pairs a node with a version it has reported. Observations
// are never merged or reordered before reaching the reconciler; the
// registry applies last-write-wins semantics per node.
type Observation struct {
	Node    NodeId
	Version Version
}
