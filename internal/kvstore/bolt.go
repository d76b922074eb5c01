package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// Bolt keeps the namespace as a single BoltDB bucket of JSON documents.
type Bolt struct {
	db     *bbolt.DB
	bucket []byte
}

// OpenBolt opens (or creates) the store file at path.
func OpenBolt(path, namespace string) (*Bolt, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if namespace == "" {
		namespace = "tardiness"
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Bolt{db: db, bucket: []byte(namespace)}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(store.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return store, nil
}

// Get returns the stored document or ErrNotFound.
func (b *Bolt) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out json.RawMessage
	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket(b.bucket).Get([]byte(key))
		if val == nil {
			return ErrNotFound
		}
		out = make(json.RawMessage, len(val))
		copy(out, val)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set marshals and stores the value under key.
func (b *Bolt) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), payload)
	})
}

// ExportAll walks the bucket and returns every entry.
func (b *Bolt) ExportAll(ctx context.Context) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).ForEach(func(k, v []byte) error {
			doc := make(json.RawMessage, len(v))
			copy(doc, v)
			out[string(k)] = doc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ImportAll replaces the bucket contents in one transaction.
func (b *Bolt) ImportAll(ctx context.Context, data map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(b.bucket); err != nil {
			return err
		}
		bucket, err := tx.CreateBucket(b.bucket)
		if err != nil {
			return err
		}
		for k, v := range data {
			if err := bucket.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying BoltDB database.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
