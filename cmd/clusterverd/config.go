package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PeerConfig names one other member of the cluster a bootstrapping or
// joining node already knows about. RaftAddr records the peer's raft
// transport address; nothing in this daemon reads it. HTTPAddr is
// where that peer serves /join, /heartbeat, and /metrics.
type PeerConfig struct {
	NodeID   string `yaml:"nodeId"`
	RaftAddr string `yaml:"raftAddr"`
	HTTPAddr string `yaml:"httpAddr"`
}

// FileConfig is the on-disk shape of a clusterverd config file: flat,
// since this daemon has exactly one kind of document.
type FileConfig struct {
	NodeID          string        `yaml:"nodeId"`
	BindAddr        string        `yaml:"bindAddr"`
	DataDir         string        `yaml:"dataDir"`
	HTTPAddr        string        `yaml:"httpAddr"`
	ControllerGroup string        `yaml:"controllerGroup"`
	RetryInterval   time.Duration `yaml:"retryInterval"`
	Peers           []PeerConfig  `yaml:"peers,omitempty"`
}

// loadConfig reads and parses a clusterverd config file, applying the
// same defaults the daemon would fall back to if a field is left
// blank.
func loadConfig(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.NodeID == "" {
		return FileConfig{}, fmt.Errorf("config: nodeId is required")
	}
	if cfg.BindAddr == "" {
		return FileConfig{}, fmt.Errorf("config: bindAddr is required")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = "127.0.0.1:8080"
	}
	if cfg.ControllerGroup == "" {
		cfg.ControllerGroup = "controller"
	}
	return cfg, nil
}
