// Package state persists small per-installation settings: the minted
// client identifier and the API key. Share mappings deliberately do NOT
// live here - the note's own frontmatter is the single source of truth
// for those, so the mapping moves with the note.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory
	// (~/.vault-share/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt
	// database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket   = []byte("app")
	clientIDKey = []byte("client_id")
	apiKeyKey   = []byte("api_key")
)

// State wraps a bbolt database for persistent application state.
type State struct {
	db *bolt.DB
}

// Load opens the state database at ~/.vault-share/state.db, creating it
// if it does not exist.
func Load() (*State, error) {
	return LoadAt(dbPath())
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

func (s *State) get(key []byte) string {
	var value string

	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(appBucket).Get(key); v != nil {
			value = string(v)
		}

		return nil
	})

	return value
}

func (s *State) put(key []byte, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(key, []byte(value))
	})
}

// ClientID returns the stored client identifier, or empty string.
func (s *State) ClientID() string {
	return s.get(clientIDKey)
}

// SetClientID persists the client identifier.
func (s *State) SetClientID(id string) error {
	return s.put(clientIDKey, id)
}

// EnsureClientID returns the stored client identifier, minting and
// persisting a new one via mint on first use. This is the explicit
// initialization step for the one-time random identifier.
func (s *State) EnsureClientID(mint func() (string, error)) (string, error) {
	if id := s.ClientID(); id != "" {
		return id, nil
	}

	id, err := mint()
	if err != nil {
		return "", fmt.Errorf("minting client id: %w", err)
	}

	if err := s.SetClientID(id); err != nil {
		return "", fmt.Errorf("persisting client id: %w", err)
	}

	return id, nil
}

// APIKey returns the stored backend API key, or empty string.
func (s *State) APIKey() string {
	return s.get(apiKeyKey)
}

// SetAPIKey persists the backend API key.
func (s *State) SetAPIKey(key string) error {
	return s.put(apiKeyKey, key)
}

func dbPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		// Fail loudly rather than silently writing to the current
		// directory where the database (containing the API key) might
		// end up with wrong permissions or inside a source-controlled
		// tree.
		fmt.Fprintf(os.Stderr, "fatal: cannot determine home directory: %v\n", err)
		os.Exit(1)
	}

	return filepath.Join(dir, ".vault-share", "state.db")
}
