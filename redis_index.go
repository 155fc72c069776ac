package iptrace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisIndex keeps index entries in Redis under "<prefix>:last:<host>".
type RedisIndex struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

func NewRedisIndex(client redis.UniversalClient, keyPrefix string) *RedisIndex {
	if keyPrefix == "" {
		keyPrefix = "iptrace"
	}
	return &RedisIndex{rdb: client, keyPrefix: keyPrefix}
}

func (r *RedisIndex) key(parts ...string) string {
	return r.keyPrefix + ":" + strings.Join(parts, ":")
}

func (r *RedisIndex) Get(ctx context.Context, host string) (IndexEntry, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key("last", host)).Bytes()
	if errors.Is(err, redis.Nil) {
		return IndexEntry{}, false, nil
	}
	if err != nil {
		return IndexEntry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e IndexEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return IndexEntry{}, false, fmt.Errorf("error decoding index for %s: %w", host, err)
	}
	return e, true, nil
}

func (r *RedisIndex) Put(ctx context.Context, host string, e IndexEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("error encoding index: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key("last", host), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
