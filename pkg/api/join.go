package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/clusterver/pkg/verid"
)

// VoterAdder is the leader-only surface that admits a new node into
// the raft configuration. Only pkg/clusternode.Node implements it in
// production; a node that is not currently leader still exposes the
// /join endpoint but answers every request with 409, so a joining
// node that guesses wrong can retry against another member.
type VoterAdder interface {
	AddVoter(nodeID verid.NodeId, addr string) error
	IsLeader() bool
}

// JoinRequest is the body a new node posts to an existing member's
// /join endpoint to be admitted as a raft voter: a single
// unauthenticated HTTP call in place of a heavier RPC-based join-token
// flow, since the core carries no RPC framework; see DESIGN.md for
// what was dropped.
type JoinRequest struct {
	NodeID string `json:"node_id"`
	Addr   string `json:"addr"`
}

// JoinResponse is the /join response body.
type JoinResponse struct {
	Status string `json:"status"`
}

// EnableJoin registers the /join endpoint backed by adder. Call it
// only on a HealthServer serving a node that participates in the
// raft group; a node with no VoterAdder (e.g. a test harness) simply
// never calls this and /join is not registered at all.
func (hs *HealthServer) EnableJoin(adder VoterAdder) {
	hs.mux.HandleFunc("/join", hs.joinHandler(adder))
}

func (hs *HealthServer) joinHandler(adder VoterAdder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req JoinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.NodeID == "" || req.Addr == "" {
			http.Error(w, "node_id and addr are required", http.StatusBadRequest)
			return
		}

		if !adder.IsLeader() {
			writeJSON(w, http.StatusConflict, JoinResponse{Status: "not leader"})
			return
		}

		if err := adder.AddVoter(verid.NodeId(req.NodeID), req.Addr); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, JoinResponse{Status: "joined"})
	}
}
