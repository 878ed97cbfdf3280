package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/go-redis/redis/v8"
)

// KeyPrefix namespaces mirrored snapshots in redis.
const KeyPrefix = "vigil:snapshot:"

// Key is the redis key for one subject.
func Key(subjectID string) string {
	return KeyPrefix + subjectID
}

// KVStore is the mirror target. Tests swap redis for a fake.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore is a KVStore backed by go-redis.
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

// Get returns ErrNotFound on a missing key.
func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", key, types.ErrNotFound)
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Mirror stores rec under Key(rec.ID) with the given ttl.
func Mirror(ctx context.Context, kv KVStore, rec Record, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return kv.Set(ctx, Key(rec.ID), string(b), ttl)
}

// Fetch reads a mirrored record.
func Fetch(ctx context.Context, kv KVStore, subjectID string) (Record, error) {
	val, err := kv.Get(ctx, Key(subjectID))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, fmt.Errorf("decode mirrored snapshot: %w: %v", types.ErrDecode, err)
	}
	return rec, nil
}
