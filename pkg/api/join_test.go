package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVoterAdder struct {
	leader  bool
	added   map[verid.NodeId]string
	failErr error
}

func newFakeVoterAdder(leader bool) *fakeVoterAdder {
	return &fakeVoterAdder{leader: leader, added: map[verid.NodeId]string{}}
}

func (f *fakeVoterAdder) IsLeader() bool { return f.leader }

func (f *fakeVoterAdder) AddVoter(nodeID verid.NodeId, addr string) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.added[nodeID] = addr
	return nil
}

func postJoin(t *testing.T, hs *HealthServer, req JoinRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/join", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	hs.GetHandler().ServeHTTP(rec, r)
	return rec
}

func TestJoinHandlerAddsVoterWhenLeader(t *testing.T) {
	adder := newFakeVoterAdder(true)
	hs := NewHealthServer(nil)
	hs.EnableJoin(adder)

	rec := postJoin(t, hs, JoinRequest{NodeID: "node-2", Addr: "10.0.0.2:7000"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.0.0.2:7000", adder.added[verid.NodeId("node-2")])
}

func TestJoinHandlerRejectsWhenNotLeader(t *testing.T) {
	adder := newFakeVoterAdder(false)
	hs := NewHealthServer(nil)
	hs.EnableJoin(adder)

	rec := postJoin(t, hs, JoinRequest{NodeID: "node-2", Addr: "10.0.0.2:7000"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, adder.added)
}

func TestJoinHandlerRejectsMissingFields(t *testing.T) {
	adder := newFakeVoterAdder(true)
	hs := NewHealthServer(nil)
	hs.EnableJoin(adder)

	rec := postJoin(t, hs, JoinRequest{NodeID: "", Addr: ""})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinHandlerRejectsNonPost(t *testing.T) {
	adder := newFakeVoterAdder(true)
	hs := NewHealthServer(nil)
	hs.EnableJoin(adder)

	r := httptest.NewRequest(http.MethodGet, "/join", nil)
	rec := httptest.NewRecorder()
	hs.GetHandler().ServeHTTP(rec, r)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestJoinHandlerWithoutEnableJoinReturns404(t *testing.T) {
	hs := NewHealthServer(nil)

	r := httptest.NewRequest(http.MethodPost, "/join", nil)
	rec := httptest.NewRecorder()
	hs.GetHandler().ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
