// Package updatequeue implements the bounded append-only buffer of
// pending version observations handed to the reconciler (design
// component B). Overflow is not a concern in practice: the buffer is
// bounded by the number of nodes times observation rate, so this
// implementation uses a plain growable slice rather than a fixed-size
// ring.
package updatequeue

import (
	"sync"

	"github.com/cuemby/clusterver/pkg/verid"
)

// Queue is safe for concurrent Push from any number of notification
// adapters; Drain is intended to be called only by the reconciler
// goroutine, but takes the same lock so it is safe either way.
type Queue struct {
	mu      sync.Mutex
	pending []verid.Observation
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push appends an observation. Called from any notification adapter.
func (q *Queue) Push(obs verid.Observation) {
	q.mu.Lock()
	q.pending = append(q.pending, obs)
	q.mu.Unlock()
}

// Drain atomically swaps the pending buffer for an empty one and
// returns everything that had accumulated. After Drain returns, none
// of the returned observations are still visible in the queue.
// Ordering within the result is not observable to correctness: the
// reconciler takes per-node last-writer-wins when folding into the
// registry.
func (q *Queue) Drain() []verid.Observation {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	drained := q.pending
	q.pending = nil
	return drained
}

// Empty reports whether the queue currently holds no observations.
// Used as the wake-signal predicate: the reconciler only wakes once
// there is something to fold.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}
