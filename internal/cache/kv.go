package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/fjod/go_cart/sharedcart-service/internal/storage"
)

// KVCache stores snapshots in the device-persistent KV engine.
type KVCache struct {
	kv storage.KV
}

func NewKVCache(kv storage.KV) *KVCache {
	return &KVCache{kv: kv}
}

func (c *KVCache) Get(ctx context.Context, id string) (*domain.CartSnapshot, error) {
	data, err := c.kv.Get(ctx, []byte(cacheKey(id)))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("kv get failed: %w", err)
	}

	var snapshot domain.CartSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	return &snapshot, nil
}

func (c *KVCache) Set(ctx context.Context, snapshot *domain.CartSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}
	if err := c.kv.Set(ctx, []byte(cacheKey(snapshot.ID)), data); err != nil {
		return fmt.Errorf("kv set failed: %w", err)
	}
	return nil
}

func (c *KVCache) Delete(ctx context.Context, id string) error {
	if err := c.kv.Delete(ctx, []byte(cacheKey(id))); err != nil {
		return fmt.Errorf("kv delete failed: %w", err)
	}
	return nil
}
