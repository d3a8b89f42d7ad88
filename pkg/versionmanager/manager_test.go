package versionmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/clusterver/pkg/clusternode"
	"github.com/cuemby/clusterver/pkg/featuretable"
	"github.com/cuemby/clusterver/pkg/health"
	"github.com/cuemby/clusterver/pkg/notify"
	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGroup = "controller"

// fakeHealth is a fully scriptable health.Frontend + HealthNotifier.
type fakeHealth struct {
	mu        sync.Mutex
	statuses  map[verid.NodeId]bool
	statusErr error
	cb        func(current health.Report, prior *health.Report)
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{statuses: map[verid.NodeId]bool{}}
}

func (f *fakeHealth) setAlive(node verid.NodeId, alive bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[node] = alive
}

func (f *fakeHealth) GetNodesStatus(_ context.Context) ([]health.NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	out := make([]health.NodeStatus, 0, len(f.statuses))
	for n, alive := range f.statuses {
		out = append(out, health.NodeStatus{Node: n, IsAlive: alive})
	}
	return out, nil
}

func (f *fakeHealth) RegisterNodeCallback(cb func(current health.Report, prior *health.Report)) notify.Handle {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	return 1
}

func (f *fakeHealth) UnregisterNodeCallback(_ notify.Handle) {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *fakeHealth) report(node verid.NodeId, version verid.Version) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(health.Report{Node: node, LogicalVersion: version, At: time.Now()}, nil)
	}
}

// fakeMembers is a static members.Registry.
type fakeMembers struct {
	mu    sync.Mutex
	nodes []verid.NodeId
}

func (f *fakeMembers) AllBrokerIDs() []verid.NodeId {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]verid.NodeId, len(f.nodes))
	copy(out, f.nodes)
	return out
}

// fakeTable is a fully scriptable featuretable.Table.
type fakeTable struct {
	mu     sync.Mutex
	active verid.Version
}

func (f *fakeTable) GetActiveVersion() verid.Version {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeTable) set(v verid.Version) {
	f.mu.Lock()
	f.active = v
	f.mu.Unlock()
}

// fakeLog is a scriptable ConsensusLog that also drives leadership
// notifications.
type fakeLog struct {
	mu         sync.Mutex
	leaderCb   func(group string, term uint64, leader *verid.NodeId)
	nextResult clusternode.ReplicateResult
	nextErr    error
	replicated []featuretable.Command
	table      *fakeTable
}

func (f *fakeLog) RegisterLeadershipCallback(cb func(group string, term uint64, leader *verid.NodeId)) notify.Handle {
	f.mu.Lock()
	f.leaderCb = cb
	f.mu.Unlock()
	return 1
}

func (f *fakeLog) UnregisterLeadershipCallback(_ notify.Handle) {
	f.mu.Lock()
	f.leaderCb = nil
	f.mu.Unlock()
}

func (f *fakeLog) becomeLeader(self verid.NodeId) {
	f.mu.Lock()
	cb := f.leaderCb
	f.mu.Unlock()
	if cb != nil {
		cb(testGroup, 1, &self)
	}
}

func (f *fakeLog) loseLeadership() {
	f.mu.Lock()
	cb := f.leaderCb
	f.mu.Unlock()
	if cb != nil {
		cb(testGroup, 2, nil)
	}
}

func (f *fakeLog) Replicate(_ context.Context, cmd featuretable.Command, _ time.Time) (clusternode.ReplicateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replicated = append(f.replicated, cmd)
	if f.nextResult == clusternode.ReplicateOK && f.table != nil {
		f.table.set(cmd.LogicalVersion)
	}
	return f.nextResult, f.nextErr
}

type harness struct {
	mgr     *Manager
	health  *fakeHealth
	members *fakeMembers
	table   *fakeTable
	log     *fakeLog
	self    verid.NodeId
}

func newHarness(t *testing.T, members []verid.NodeId) *harness {
	t.Helper()
	h := &harness{
		health:  newFakeHealth(),
		members: &fakeMembers{nodes: members},
		table:   &fakeTable{active: 10},
		self:    verid.NodeId("node-1"),
	}
	h.log = &fakeLog{nextResult: clusternode.ReplicateOK, table: h.table}
	h.mgr = New(Config{
		Self:            h.self,
		ControllerGroup: testGroup,
		RetryInterval:   50 * time.Millisecond,
	}, h.health, h.health, h.members, h.log, h.table, h.log)
	return h
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestScenarioS1ThreeNodeUpgrade(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"1", "2", "3"})
	h.health.setAlive("1", true)
	h.health.setAlive("2", true)
	h.health.setAlive("3", true)

	h.mgr.Start()
	defer h.mgr.Stop()

	h.log.becomeLeader(h.self)
	h.health.report("1", 11)
	h.health.report("2", 11)
	h.health.report("3", 10)
	h.health.report("3", 11)

	waitForCondition(t, time.Second, func() bool { return h.table.GetActiveVersion() == 11 })
}

func TestScenarioS2DeadNodeBlocksThenRecovers(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"1", "2"})
	h.health.setAlive("1", true)
	h.health.setAlive("2", false)

	h.mgr.Start()
	defer h.mgr.Stop()

	h.log.becomeLeader(h.self)
	h.health.report("1", 11)
	h.health.report("2", 11)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, verid.Version(10), h.table.GetActiveVersion(), "dead node must block publication")

	h.health.setAlive("2", true)
	waitForCondition(t, time.Second, func() bool { return h.table.GetActiveVersion() == 11 })
}

func TestScenarioS3PartialReportingDefersSilently(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"1", "2", "3"})
	h.health.setAlive("1", true)
	h.health.setAlive("2", true)
	h.health.setAlive("3", true)

	h.mgr.Start()
	defer h.mgr.Stop()

	h.log.becomeLeader(h.self)
	h.health.report("1", 11)
	h.health.report("2", 11)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, verid.Version(10), h.table.GetActiveVersion())
	assert.Empty(t, h.log.replicated, "partial reporting must not attempt a publish")

	h.health.report("3", 11)
	waitForCondition(t, time.Second, func() bool { return h.table.GetActiveVersion() == 11 })
}

func TestScenarioS5ColdSingleNodeClusterBootstraps(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"node-1"})
	h.health.setAlive("node-1", true)
	h.table.set(verid.Invalid)

	h.mgr.Start()
	defer h.mgr.Stop()

	h.log.becomeLeader(h.self)

	waitForCondition(t, time.Second, func() bool { return h.table.GetActiveVersion() == verid.Latest })
}

func TestScenarioS4LeadershipLossReturnsNotLeaderSilently(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"1"})
	h.health.setAlive("1", true)
	h.log.nextResult = clusternode.ReplicateNotLeader

	h.mgr.Start()
	defer h.mgr.Stop()

	h.log.becomeLeader(h.self)
	h.health.report("1", 11)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, verid.Version(10), h.table.GetActiveVersion())
	assert.NotEmpty(t, h.log.replicated, "a replicate attempt should have been made")
}

func TestTransientHealthQueryErrorRetriesAfterBackoff(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"1"})
	h.health.mu.Lock()
	h.health.statusErr = errors.New("health backend unavailable")
	h.health.mu.Unlock()

	h.mgr.Start()
	defer h.mgr.Stop()

	h.log.becomeLeader(h.self)
	h.health.report("1", 11)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, verid.Version(10), h.table.GetActiveVersion())

	h.health.mu.Lock()
	h.health.statusErr = nil
	h.health.mu.Unlock()
	h.health.setAlive("1", true)

	waitForCondition(t, time.Second, func() bool { return h.table.GetActiveVersion() == 11 })
}

func TestStopUnregistersBeforeBreakingSignal(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"1"})
	h.mgr.Start()
	h.mgr.Stop()

	// A callback fired after Stop must not be able to reach the
	// manager: the adapters were unregistered before the reconciler
	// goroutine was torn down, so these calls are no-ops from the
	// fakes' perspective (no listener is registered to receive them).
	h.health.report("1", 99)
	h.log.becomeLeader(h.self)

	assert.Equal(t, verid.Version(10), h.table.GetActiveVersion())
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"1"})
	h.mgr.Start()
	h.mgr.Stop()
	assert.NotPanics(t, func() { h.mgr.Stop() })
}

func TestDuplicateObservationIsIdempotent(t *testing.T) {
	h := newHarness(t, []verid.NodeId{"1"})
	h.health.setAlive("1", true)

	h.mgr.Start()
	defer h.mgr.Stop()

	h.log.becomeLeader(h.self)
	h.health.report("1", 11)
	h.health.report("1", 11)

	waitForCondition(t, time.Second, func() bool { return h.table.GetActiveVersion() == 11 })
	assert.LessOrEqual(t, len(h.log.replicated), 2)
}
