package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
)

// MemoryStore implements SnapshotStore in process. Used by tests and when
// no remote URI is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.CartSnapshot
	now       func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		snapshots: make(map[string]*domain.CartSnapshot),
		now:       now,
	}
}

func (s *MemoryStore) Put(_ context.Context, snapshot *domain.CartSnapshot, ttl time.Duration) (*domain.CartSnapshot, error) {
	doc, err := toDocument(stamp(snapshot, s.now(), ttl))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[doc.CartID]; ok {
		return nil, ErrSnapshotExists
	}
	stored, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	s.snapshots[doc.CartID] = stored
	return clone(stored), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.CartSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return clone(snap), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, fn func(*domain.CartSnapshot) bool) error {
	s.mu.RLock()
	all := make([]*domain.CartSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		all = append(all, clone(snap))
	}
	s.mu.RUnlock()

	for _, snap := range all {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !fn(snap) {
			return nil
		}
	}
	return nil
}

// Len returns the number of stored snapshots, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

func clone(s *domain.CartSnapshot) *domain.CartSnapshot {
	c := *s
	c.Items = make([]domain.SnapshotItem, len(s.Items))
	for i, item := range s.Items {
		if item.Addons != nil {
			addons := make([]domain.AddonSelection, len(item.Addons))
			copy(addons, item.Addons)
			item.Addons = addons
		}
		c.Items[i] = item
	}
	return &c
}
