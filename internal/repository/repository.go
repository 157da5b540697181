package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
)

var (
	ErrSnapshotNotFound = errors.New("shared cart not found")
	ErrSnapshotExists   = errors.New("shared cart id already taken")
	ErrStoreUnavailable = errors.New("shared cart store unavailable")
	ErrInvalidDocument  = errors.New("shared cart document is invalid")
)

// SnapshotStore is the authoritative remote tier. Any transport failure is
// reported as ErrStoreUnavailable and must be treated as transient.
type SnapshotStore interface {
	// Put stores the snapshot with ExpiresAt = now + ttl and returns the
	// stored copy. Fails with ErrSnapshotExists if the id is taken.
	Put(ctx context.Context, snapshot *domain.CartSnapshot, ttl time.Duration) (*domain.CartSnapshot, error)

	// Get returns ErrSnapshotNotFound when no document exists. Expiry is
	// not checked here.
	Get(ctx context.Context, id string) (*domain.CartSnapshot, error)

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error

	// Scan calls fn for every stored snapshot until fn returns false.
	Scan(ctx context.Context, fn func(*domain.CartSnapshot) bool) error
}

func stamp(snapshot *domain.CartSnapshot, now time.Time, ttl time.Duration) *domain.CartSnapshot {
	stored := *snapshot
	stored.Items = append([]domain.SnapshotItem(nil), snapshot.Items...)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	stored.ExpiresAt = now.Add(ttl).UTC()
	return &stored
}
