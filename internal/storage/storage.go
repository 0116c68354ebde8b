// Package storage defines the record store used to persist cached entries. A namespace is a
// hash of field -> value, mirroring a Redis hash key.
package storage

import (
	"context"
	"time"
)

// RecordStore is a namespaced hash store with whole-namespace expiry.
type RecordStore interface {
	HashSet(ctx context.Context, namespace, field, value string) error
	// HashMultiGet returns one Entry per requested field, in request order.
	HashMultiGet(ctx context.Context, namespace string, fields []string) ([]Entry, error)
	HashGetAll(ctx context.Context, namespace string) (map[string]string, error)
	DeleteNamespace(ctx context.Context, namespace string) error
	// Expire sets the time-to-live of the whole namespace.
	Expire(ctx context.Context, namespace string, ttl time.Duration) error
	// Backend names the implementation ("redis", "sqlite").
	Backend() string
	Close() error
}

// Entry is one HashMultiGet result; Found is false when the field is absent.
type Entry struct {
	Value string
	Found bool
}
