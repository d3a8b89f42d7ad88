// Package featuretable implements the feature table collaborator: the
// raft finite state machine that applies committed feature-update
// commands and exposes the resulting active version as a read-only
// value. The core (pkg/versionmanager) never mutates this table
// directly — it only submits commands through pkg/clusternode's
// consensus log, which this FSM applies once the cluster has
// committed them.
package featuretable

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/hashicorp/raft"
)

// Command is the wire format of the single command this FSM
// understands. ActionKind is reserved for future use and is always
// written as 0 and never read.
type Command struct {
	LogicalVersion verid.Version `json:"logical_version"`
	ActionKind     uint8         `json:"action_kind"`
}

// Table is the read-only surface the advance predicate consults for
// the current active version.
type Table interface {
	GetActiveVersion() verid.Version
}

// FSM applies committed Command entries from the raft log and tracks
// the resulting active version. The active version never decreases:
// Apply ignores any command whose LogicalVersion is not strictly
// greater than the current one, which makes the FSM itself a second,
// redundant guarantee of the predicate's own monotonicity invariant.
type FSM struct {
	mu     sync.RWMutex
	active verid.Version
}

// NewFSM returns an FSM with the active version initialized to
// verid.Invalid.
func NewFSM() *FSM {
	return &FSM{active: verid.Invalid}
}

// GetActiveVersion implements Table.
func (f *FSM) GetActiveVersion() verid.Version {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.active
}

// Apply implements raft.FSM. It is invoked by raft once a log entry is
// committed by a majority of the cluster.
func (f *FSM) Apply(entry *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("featuretable: unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cmd.LogicalVersion > f.active {
		f.active = cmd.LogicalVersion
	}
	return nil
}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &fsmSnapshot{Active: f.active}, nil
}

// Restore implements raft.FSM.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("featuretable: decode snapshot: %w", err)
	}

	f.mu.Lock()
	f.active = snap.Active
	f.mu.Unlock()
	return nil
}

type fsmSnapshot struct {
	Active verid.Version `json:"active_version"`
}

// Persist implements raft.FSMSnapshot.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		return json.NewEncoder(sink).Encode(s)
	}()
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release implements raft.FSMSnapshot.
func (s *fsmSnapshot) Release() {}
