// SPDX-License-Identifier: MIT

// Package state keeps the small amount of durable dispatch state between
// runs: the last synced submodule commit, the last PR opened, and the last
// bundle digest. BadgerDB keeps it crash-safe without a schema.
package state

import (
	"errors"
	"fmt"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("state: not found")

const (
	keySubmoduleCommit = "last_submodule_commit"
	keyPRNumber        = "last_pr_number"
	keyBundleDigest    = "last_bundle_digest"
)

// Store is a badger-backed key/value state store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the state database in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(key string) (string, error) {
	var out string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("state get %s: %w", key, err)
	}
	return out, nil
}

func (s *Store) set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("state set %s: %w", key, err)
	}
	return nil
}

// SubmoduleCommit returns the submodule commit recorded by the last run.
func (s *Store) SubmoduleCommit() (string, error) { return s.get(keySubmoduleCommit) }

// SetSubmoduleCommit records the submodule commit after a successful sync.
func (s *Store) SetSubmoduleCommit(sha string) error { return s.set(keySubmoduleCommit, sha) }

// BundleDigest returns the bundle digest recorded by the last run.
func (s *Store) BundleDigest() (string, error) { return s.get(keyBundleDigest) }

// SetBundleDigest records the bundle digest after a successful sync.
func (s *Store) SetBundleDigest(digest string) error { return s.set(keyBundleDigest, digest) }

// PRNumber returns the number of the last pull request cabot opened,
// or ErrNotFound if none was recorded.
func (s *Store) PRNumber() (int, error) {
	v, err := s.get(keyPRNumber)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("state: corrupt pr number %q: %w", v, err)
	}
	return n, nil
}

// SetPRNumber records the last opened pull request.
func (s *Store) SetPRNumber(n int) error { return s.set(keyPRNumber, strconv.Itoa(n)) }
