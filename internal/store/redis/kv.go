// Package redis backs the store.KV scopes with a single Redis client.
// Values are stored as JSON without TTL; the daemon's cache is the
// authoritative local copy between syncs and must not expire.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tabula-sync/tabula/internal/store"
)

// KV is a store.KV over one Redis connection, with a fixed key prefix
// selecting the scope.
type KV struct {
	client *goredis.Client
	prefix string
}

// NewSynced returns the synced-scope KV (follows the user).
func NewSynced(client *goredis.Client) *KV {
	return &KV{client: client, prefix: KeyPrefixSynced}
}

// NewLocal returns the device-local KV.
func NewLocal(client *goredis.Client) *KV {
	return &KV{client: client, prefix: KeyPrefixLocal}
}

func (s *KV) Get(ctx context.Context, key string, dest any) error {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *KV) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
