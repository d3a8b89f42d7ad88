package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/clusterver/pkg/api"
	"github.com/cuemby/clusterver/pkg/clusternode"
	"github.com/cuemby/clusterver/pkg/health"
	"github.com/cuemby/clusterver/pkg/log"
	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/cuemby/clusterver/pkg/versionmanager"
)

const heartbeatInterval = 3 * time.Second

// serve wires a raft node that has already been bootstrapped or
// joined into a running daemon: health backend, version manager, HTTP
// health/metrics/join surface, and a heartbeat pusher, then blocks
// until SIGINT/SIGTERM.
func serve(cfg FileConfig, node *clusternode.Node) error {
	logger := log.WithComponent("clusterverd")

	healthBackend := health.NewBackend(health.DefaultConfig())
	mgr := versionmanager.New(versionmanager.Config{
		Self:            verid.NodeId(cfg.NodeID),
		ControllerGroup: clusternode.GroupID,
		RetryInterval:   cfg.RetryInterval,
	}, healthBackend, healthBackend, node, node, node.FeatureTable(), node)

	healthServer := api.NewHealthServer(mgr)
	healthServer.EnableJoin(node)
	healthServer.EnableHeartbeat(healthBackend)

	mgr.Start()
	defer mgr.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go runHeartbeatPusher(ctx, cfg, healthBackend)

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("serving health/metrics/join endpoints")
		serverErrs <- healthServer.Start(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		return node.Shutdown()
	case err := <-serverErrs:
		_ = node.Shutdown()
		return err
	}
}

// runHeartbeatPusher periodically reports this node's own version to
// itself and to every known peer, standing in for the gossip layer a
// production deployment would already have. It never reports any
// version other than verid.Latest: a running binary cannot claim to
// be any other version of itself.
func runHeartbeatPusher(ctx context.Context, cfg FileConfig, self *health.Backend) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 2 * time.Second}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			self.ReportHeartbeat(verid.NodeId(cfg.NodeID), verid.Latest)
			for _, peer := range cfg.Peers {
				pushHeartbeat(client, peer.HTTPAddr, cfg.NodeID)
			}
		}
	}
}

func pushHeartbeat(client *http.Client, peerHTTPAddr, nodeID string) {
	body, err := json.Marshal(api.HeartbeatRequest{NodeID: nodeID, Version: verid.Latest})
	if err != nil {
		return
	}
	resp, err := client.Post("http://"+peerHTTPAddr+"/heartbeat", "application/json", bytes.NewReader(body))
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}
