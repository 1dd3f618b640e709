// Package store provides the key-value persisted store contract and its
// in-memory and file-backed implementations.
package store

import "github.com/cockroachdb/errors"

// ErrNotFound is returned by Get and Delete when the key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a minimal key-value store for serialized snapshots.
// Alternate backends (file, in-memory, remote) satisfy the same contract.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
