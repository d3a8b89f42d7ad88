package main

import (
	"fmt"

	"github.com/cuemby/clusterver/pkg/clusternode"
	"github.com/cuemby/clusterver/pkg/storage"
	"github.com/cuemby/clusterver/pkg/verid"
	"github.com/spf13/cobra"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize a brand-new single-node cluster",
	Long: `Bootstrap starts a fresh raft group containing only this node.

Examples:
  clusterverd bootstrap -f node.yaml`,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().StringP("file", "f", "", "Node config file (required)")
	_ = bootstrapCmd.MarkFlagRequired("file")
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
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

	node, err := clusternode.New(clusternode.Config{
		NodeID:   verid.NodeId(cfg.NodeID),
		BindAddr: cfg.BindAddr,
		DataDir:  cfg.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	if err := node.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}

	if err := store.SaveSelf(storage.NodeConfig{
		NodeID:   verid.NodeId(cfg.NodeID),
		BindAddr: cfg.BindAddr,
	}); err != nil {
		return fmt.Errorf("persist node identity: %w", err)
	}

	return serve(cfg, node)
}
