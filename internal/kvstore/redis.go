package kvstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each namespaced key as a plain Redis string holding JSON.
type Redis struct {
	client    *redis.Client
	namespace string
}

// NewRedisClient dials redis with short timeouts. Shared with the queue.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

// NewRedis builds a redis-backed store.
func NewRedis(addr, namespace string) *Redis {
	if namespace == "" {
		namespace = "tardiness"
	}
	return &Redis{client: NewRedisClient(addr), namespace: namespace}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.client == nil {
		return false
	}
	return r.client.Ping(ctx).Err() == nil
}

func (r *Redis) prefixed(key string) string {
	return r.namespace + ":" + key
}

// Get returns the stored document or ErrNotFound.
func (r *Redis) Get(ctx context.Context, key string) (json.RawMessage, error) {
	val, err := r.client.Get(ctx, r.prefixed(key)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(val), nil
}

// Set marshals and stores the value under the namespaced key.
func (r *Redis) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefixed(key), string(payload), 0).Err()
}

// ExportAll scans the namespace prefix and returns every entry.
func (r *Redis) ExportAll(ctx context.Context) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	prefix := r.namespace + ":"
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		val, err := r.client.Get(ctx, full).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[strings.TrimPrefix(full, prefix)] = json.RawMessage(val)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ImportAll overwrites the namespace in a single pipeline.
func (r *Redis) ImportAll(ctx context.Context, data map[string]json.RawMessage) error {
	existing, err := r.client.Keys(ctx, r.namespace+":*").Result()
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	if len(existing) > 0 {
		pipe.Del(ctx, existing...)
	}
	for k, v := range data {
		pipe.Set(ctx, r.prefixed(k), string(v), 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
