package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/clusterver/pkg/api"
	"github.com/cuemby/clusterver/pkg/clusternode"
	"github.com/cuemby/clusterver/pkg/storage"
	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join an existing cluster",
	Long: `Join starts raft on this node and asks an existing member (in
order, from this node's peers list) to admit it as a voter.

Examples:
  clusterverd join -f node.yaml`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringP("file", "f", "", "Node config file (required)")
	_ = joinCmd.MarkFlagRequired("file")
}

func runJoin(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	cfg, err := loadConfig(file)
	if err != nil {
		return err
	}
	if len(cfg.Peers) == 0 {
		return fmt.Errorf("join: config must list at least one peer")
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open node store: %w", err)
	}
	defer store.Close()

	node, err := clusternode.New(clusternode.Config{
		NodeID:   verid.NodeId(cfg.NodeID),
		BindAddr: cfg.BindAddr,
		DataDir:  cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	if err := node.JoinExisting(); err != nil {
		return fmt.Errorf("start raft: %w", err)
	}

	if err := requestAdmission(cfg); err != nil {
		return fmt.Errorf("request admission: %w", err)
	}

	if err := store.SaveSelf(storage.NodeConfig{
		NodeID:   verid.NodeId(cfg.NodeID),
		BindAddr: cfg.BindAddr,
	}); err != nil {
		return fmt.Errorf("persist node identity: %w", err)
	}

	return serve(cfg, node)
}

// requestAdmission asks each configured peer's /join endpoint, in
// order, to add this node as a raft voter. It stops at the first peer
// that reports success; a peer that is not currently leader responds
// 409 and the caller moves on to the next one.
func requestAdmission(cfg FileConfig) error {
	client := &http.Client{Timeout: 5 * time.Second}
	body, err := json.Marshal(api.JoinRequest{NodeID: cfg.NodeID, Addr: cfg.BindAddr})
	if err != nil {
		return err
	}

	var lastErr error
	for _, peer := range cfg.Peers {
		resp, err := client.Post("http://"+peer.HTTPAddr+"/join", "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		status := resp.StatusCode
		resp.Body.Close()
		if status == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("peer %s refused join (status %d)", peer.NodeID, status)
	}
	return lastErr
}
