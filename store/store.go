// Package store provides the key-value persistence used for grid state.
//
// A Store holds opaque byte values under string keys. Codecs turn a
// grid.State into those bytes:
//
//   - JSONCodec writes the grid's own JSON format (browser localStorage compatible)
//   - MsgpackCodec writes MessagePack, optionally ZStandard-compressed
//
// Implementations: MemoryStore, FileStore (one file per key) and SQLStore
// (a single key/value table on any database/sql driver).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is a string-keyed byte store.
// Implementations MUST be goroutine-safe.
type Store interface {
	// Get returns the value of key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
