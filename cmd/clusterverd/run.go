package main

import (
	"fmt"

	"github.com/cuemby/clusterver/pkg/clusternode"
	"github.com/cuemby/clusterver/pkg/storage"
	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Restart a node that has already bootstrapped or joined",
	Long: `Run restarts raft over the data directory's existing log and
stable stores. Unlike bootstrap and join, it does not mutate cluster
membership: it expects the node to already be a recognized voter.

Examples:
  clusterverd run -f node.yaml`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "Node config file (required)")
	_ = runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	cfg, err := loadConfig(file)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open node store: %w", err)
	}
	defer store.Close()

	self, ok, err := store.LoadSelf()
	if err != nil {
		return fmt.Errorf("load node identity: %w", err)
	}
	if !ok {
		return fmt.Errorf("run: no persisted node identity in %s; use bootstrap or join first", cfg.DataDir)
	}
	if self.NodeID != verid.NodeId(cfg.NodeID) {
		return fmt.Errorf("run: config nodeId %q does not match persisted identity %q", cfg.NodeID, self.NodeID)
	}

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

	return serve(cfg, node)
}
