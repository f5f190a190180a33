package store

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/gmsas95/dosetrack/internal/config"
)

// KV is the durable key/value collaborator the treatment store persists
// through. Get returns (nil, nil) for a missing key.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Close() error
}

// Store provides BadgerDB-backed durable key/value access
type Store struct {
	badger *badger.DB
}

var _ KV = (*Store)(nil)

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	opts := badger.DefaultOptions(badgerPath).
		WithLogger(nil). // Disable verbose logging
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20). // 16MB value log files
		WithMemTableSize(16 << 20)      // 16MB memtable

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{badger: db}, nil
}

// NewInMemory creates an ephemeral Store, used in tests
func NewInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{badger: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.badger.Close()
}

// Set stores a key-value pair
func (s *Store) Set(key string, value []byte) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("kv:"+key), value)
	})
}

// Get retrieves a value by key
func (s *Store) Get(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("kv:" + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	return val, err
}
