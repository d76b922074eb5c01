package kvstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Keys the domain components persist under.
const (
	KeyClasses  = "classes"
	KeyStudents = "students"
	KeyArrivals = "arrivals"
)

// ErrNotFound indicates a key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is the namespaced JSON key-value surface every component persists
// through. Values are JSON documents; callers fall back to their own default
// when Get returns ErrNotFound.
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value any) error

	// ExportAll returns every key under the namespace with its raw value.
	ExportAll(ctx context.Context) (map[string]json.RawMessage, error)

	// ImportAll overwrites the namespace with the provided entries.
	ImportAll(ctx context.Context, data map[string]json.RawMessage) error

	Close() error
}
