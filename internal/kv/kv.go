// Package kv defines the durable key-value contract the stores sit on. Each
// collection (records, ledger, contacts) lives under a single namespaced key
// as a JSON document, so a backend only needs string get/set/delete.
package kv

import "context"

// Backend is the minimal durable storage surface. Implementations may block
// on network I/O; all methods honour the context.
type Backend interface {
	// Get returns the stored value, or ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
