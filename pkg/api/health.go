// Package api exposes the HTTP surface of a clusterver node: the
// health, readiness, and metrics endpoints an orchestrator or load
// balancer polls, plus the optional /join (raft voter admission) and
// /heartbeat (version report) endpoints. Raft's own replication
// traffic is handled by pkg/clusternode, not here.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/clusterver/pkg/metrics"
	"github.com/cuemby/clusterver/pkg/verid"
)

// StatusProvider is the minimal view of the version manager the health
// server needs: whether this node holds raft leadership, and the
// cluster's current active version.
type StatusProvider interface {
	IsLeader() bool
	ActiveVersion() verid.Version
}

// HealthServer provides HTTP health, readiness, and metrics endpoints.
type HealthServer struct {
	status StatusProvider
	mux    *http.ServeMux
}

// NewHealthServer creates a new health check HTTP server backed by
// status.
func NewHealthServer(status StatusProvider) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{status: status, mux: mux}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start runs the health check HTTP server. It blocks until the server
// stops or errors.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// HealthResponse is the /health response body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready response body.
type ReadyResponse struct {
	Status        string        `json:"status"`
	Timestamp     time.Time     `json:"timestamp"`
	Leader        bool          `json:"leader"`
	ActiveVersion verid.Version `json:"active_version"`
}

// healthHandler is a liveness check: 200 if the process is alive,
// independent of raft or cluster state.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// readyHandler reports whether the node has an initialized version
// manager to read state from. Like /health, this does not require
// raft leadership: followers are ready too.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if hs.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status:    "not ready",
			Timestamp: time.Now(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ReadyResponse{
		Status:        "ready",
		Timestamp:     time.Now(),
		Leader:        hs.status.IsLeader(),
		ActiveVersion: hs.status.ActiveVersion(),
	})
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
