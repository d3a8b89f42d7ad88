package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/clusterver/pkg/verid"
)

// HeartbeatReporter is the write side of a health-monitor notifier
// (pkg/health.Backend in production): it records one node's
// self-reported logical version.
type HeartbeatReporter interface {
	ReportHeartbeat(node verid.NodeId, version verid.Version)
}

// HeartbeatRequest is the body a node posts to a peer's /heartbeat
// endpoint to report its own logical version. Real clusters gossip
// this over an existing membership protocol; this core has none, so
// every node pushes its heartbeat to every peer it knows about on a
// fixed interval (see cmd/clusterverd).
type HeartbeatRequest struct {
	NodeID  string        `json:"node_id"`
	Version verid.Version `json:"version"`
}

// EnableHeartbeat registers the /heartbeat endpoint backed by
// reporter.
func (hs *HealthServer) EnableHeartbeat(reporter HeartbeatReporter) {
	hs.mux.HandleFunc("/heartbeat", hs.heartbeatHandler(reporter))
}

func (hs *HealthServer) heartbeatHandler(reporter HeartbeatReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req HeartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.NodeID == "" {
			http.Error(w, "node_id is required", http.StatusBadRequest)
			return
		}

		reporter.ReportHeartbeat(verid.NodeId(req.NodeID), req.Version)
		w.WriteHeader(http.StatusNoContent)
	}
}
