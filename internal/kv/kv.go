// Package kv is the string-keyed persistence the goal and log stores sit on.
// Values are opaque strings; callers store JSON.
package kv

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("kv: store closed")

// Store is a durable string-keyed get/set/remove store.
type Store interface {
	// Get returns ok=false when the key does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove is a no-op for missing keys.
	Remove(ctx context.Context, key string) error
	RemoveMany(ctx context.Context, keys ...string) error
}
