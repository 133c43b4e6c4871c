// Package storage provides the durable key-value store backing session
// snapshots, the offline submission queue and local result fallbacks.
// Backends: in-memory (tests), local filesystem, Redis.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// KV is a minimal durable key-value store. Values are opaque bytes (JSON in
// practice); Set must be atomic per key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
