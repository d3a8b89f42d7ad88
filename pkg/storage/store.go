// Package storage persists a node's local identity and known peer
// list to disk. On restart, clusterverd's run command still reads the
// node id and bind address from its config file and uses the stored
// identity only to refuse a config whose node id differs from it. It
// is deliberately small: the cluster-wide feature table is owned by
// pkg/featuretable and replicated via raft, not stored here.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/clusterver/pkg/verid"
	bolt "go.etcd.io/bbolt"
)

var bucketConfig = []byte("config")

const keySelf = "self"

// NodeConfig is the local identity record persisted across restarts.
type NodeConfig struct {
	NodeID   verid.NodeId `json:"node_id"`
	BindAddr string       `json:"bind_addr"`
	Peers    []string     `json:"peers,omitempty"`
}

// Store is a BoltDB-backed store for a node's local configuration.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the store at dataDir/clusterver.db.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "clusterver.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConfig)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSelf persists this node's local configuration, overwriting any
// previously saved value.
func (s *Store) SaveSelf(cfg NodeConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("storage: marshal config: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfig).Put([]byte(keySelf), data)
	})
}

// LoadSelf returns the previously saved local configuration. ok is
// false if nothing has been saved yet.
func (s *Store) LoadSelf() (cfg NodeConfig, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConfig).Get([]byte(keySelf))
		if data == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(data, &cfg)
	})
	if err != nil {
		return NodeConfig{}, false, fmt.Errorf("storage: load config: %w", err)
	}
	return cfg, ok, nil
}
