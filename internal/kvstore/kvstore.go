// Package kvstore provides the durable key-value storage behind the persistence gateway.
package kvstore

import "context"

// Store is a string key-value store with last-write-wins semantics.
type Store interface {
	// Get returns the value and true, or "" and false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Ping(ctx context.Context) error
	Close() error
}
