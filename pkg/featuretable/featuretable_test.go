package featuretable

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyCmd(t *testing.T, f *FSM, v verid.Version) {
	t.Helper()
	data, err := json.Marshal(Command{LogicalVersion: v})
	require.NoError(t, err)
	resp := f.Apply(&raft.Log{Data: data})
	require.Nil(t, resp)
}

func TestApplyAdvancesActiveVersion(t *testing.T) {
	f := NewFSM()
	assert.Equal(t, verid.Invalid, f.GetActiveVersion())

	applyCmd(t, f, 11)
	assert.Equal(t, verid.Version(11), f.GetActiveVersion())
}

func TestApplyNeverDecreases(t *testing.T) {
	f := NewFSM()
	applyCmd(t, f, 11)
	applyCmd(t, f, 5) // stale/out-of-order command
	assert.Equal(t, verid.Version(11), f.GetActiveVersion(), "active version must never go backwards")
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	f := NewFSM()
	applyCmd(t, f, 11)

	snap, err := f.Snapshot()
	require.NoError(t, err)

	var buf bytes.Buffer
	sink := &fakeSink{Buffer: &buf}
	require.NoError(t, snap.Persist(sink))

	restored := NewFSM()
	require.NoError(t, restored.Restore(io.NopCloser(&buf)))
	assert.Equal(t, verid.Version(11), restored.GetActiveVersion())
}

// fakeSink is a minimal raft.SnapshotSink backed by a bytes.Buffer, for
// testing Persist without standing up a real raft.FileSnapshotStore.
type fakeSink struct {
	*bytes.Buffer
}

func (s *fakeSink) ID() string    { return "test-snapshot" }
func (s *fakeSink) Cancel() error { return nil }
func (s *fakeSink) Close() error  { return nil }
