// Package activecart persists the device's active cart in the "cart" slot
// shared with the cart UI.
package activecart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/fjod/go_cart/sharedcart-service/internal/storage"
)

const Key = "cart"

type Store interface {
	Load(ctx context.Context) ([]domain.CartItem, error)
	Save(ctx context.Context, items []domain.CartItem) error
}

type KVStore struct {
	kv storage.KV
}

func NewKVStore(kv storage.KV) *KVStore {
	return &KVStore{kv: kv}
}

// Load returns an empty cart when the slot was never written.
func (s *KVStore) Load(ctx context.Context) ([]domain.CartItem, error) {
	data, err := s.kv.Get(ctx, []byte(Key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return []domain.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active cart: %w", err)
	}

	var items []domain.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode active cart: %w", err)
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	return items, nil
}

func (s *KVStore) Save(ctx context.Context, items []domain.CartItem) error {
	if items == nil {
		items = []domain.CartItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode active cart: %w", err)
	}
	if err := s.kv.Set(ctx, []byte(Key), data); err != nil {
		return fmt.Errorf("save active cart: %w", err)
	}
	return nil
}

// MemoryStore keeps the active cart in process.
type MemoryStore struct {
	m     sync.RWMutex
	items []domain.CartItem
	err   error
}

func NewMemoryStore(items ...domain.CartItem) *MemoryStore {
	return &MemoryStore{items: items}
}

func (s *MemoryStore) Load(context.Context) ([]domain.CartItem, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.CartItem, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, items []domain.CartItem) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items = make([]domain.CartItem, len(items))
	copy(s.items, items)
	return nil
}

// FailWith makes every later call return err.
func (s *MemoryStore) FailWith(err error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.err = err
}
