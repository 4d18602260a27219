// Package store defines the key-value persistence used for session
// snapshots. Values are opaque bytes; callers own the encoding.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: key not found")

type Store interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
