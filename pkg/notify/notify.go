// Package notify provides the generic callback-registration hub that
// the notification adapters (design component D) are built on top of:
// a collaborator (the health backend, the raft group manager) calls
// Register once to obtain a Handle, invokes every registered callback
// via Fire as events occur, and calls Unregister to stop delivery.
//
// Unlike the core's own state (registry, queue, leader flag), a Hub is
// invoked from whatever goroutine the collaborator runs on, so it is
// guarded by a mutex rather than confined to a single goroutine.
package notify

import "sync"

// Handle identifies a registered callback for later Unregister calls.
type Handle uint64

// Hub fans a single event type out to every registered callback.
type Hub[T any] struct {
	mu        sync.Mutex
	next      Handle
	callbacks map[Handle]func(T)
}

// NewHub returns an empty Hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{callbacks: make(map[Handle]func(T))}
}

// Register adds a callback and returns a Handle for later removal.
func (h *Hub[T]) Register(cb func(T)) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	handle := h.next
	h.callbacks[handle] = cb
	return handle
}

// Unregister removes a previously-registered callback. Unregistering
// an unknown or already-removed handle is a no-op.
func (h *Hub[T]) Unregister(handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.callbacks, handle)
}

// Fire invokes every currently-registered callback with event, in
// unspecified order. Callbacks registered or unregistered during Fire
// do not affect the set of callbacks this call delivers to (Fire
// snapshots the callback list before invoking any of them).
func (h *Hub[T]) Fire(event T) {
	h.mu.Lock()
	snapshot := make([]func(T), 0, len(h.callbacks))
	for _, cb := range h.callbacks {
		snapshot = append(snapshot, cb)
	}
	h.mu.Unlock()

	for _, cb := range snapshot {
		cb(event)
	}
}
