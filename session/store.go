package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
	keyState      = []byte("state")
)

// State is the durable record of the last session. It survives process restarts
// so a later run can reconnect without prompting.
type State struct {
	Connected bool      `json:"isConnected"`
	Role      string    `json:"role,omitempty"`
	Account   string    `json:"account,omitempty"`
	ChainID   uint64    `json:"chainId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists State in a BoltDB file.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (and creates) the session database at path.
func OpenStore(path string, options *bolt.Options) (*Store, error) {
	if path == "" {
		return nil, errors.New("session: store path required")
	}
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the persisted state. A missing record yields the zero State.
func (s *Store) Load() (State, error) {
	var state State
	if s == nil || s.db == nil {
		return state, nil
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSession).Get(keyState)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &state)
	})
	return state, err
}

// Save replaces the persisted state.
func (s *Store) Save(state State) error {
	if s == nil || s.db == nil {
		return nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyState, raw)
	})
}

// Clear removes the persisted state.
func (s *Store) Clear() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(keyState)
	})
}
