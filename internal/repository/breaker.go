package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit. Zero disables the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the circuit stays open before probing again.
	OpenTimeout time.Duration
}

// BreakerStore fails fast with ErrStoreUnavailable while the remote store is
// known to be down, so readers reach the local cache without waiting for a
// timeout on every call.
type BreakerStore struct {
	next SnapshotStore
	cb   *gobreaker.CircuitBreaker[*domain.CartSnapshot]
}

func NewBreakerStore(next SnapshotStore, settings BreakerSettings, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	threshold := settings.ConsecutiveFailures
	st := gobreaker.Settings{
		Name:    "shared-cart-store",
		Timeout: settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// only transport failures count against the remote store
		IsSuccessful: func(err error) bool {
			var gone callerGone
			if err == nil || errors.As(err, &gone) {
				return true
			}
			return !errors.Is(err, ErrStoreUnavailable)
		},
	}
	return &BreakerStore{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[*domain.CartSnapshot](st),
	}
}

// callerGone marks a failure caused by the caller cancelling mid-call. It says
// nothing about the store.
type callerGone struct{ err error }

func (e callerGone) Error() string { return e.err.Error() }
func (e callerGone) Unwrap() error { return e.err }

func (b *BreakerStore) execute(ctx context.Context, req func() (*domain.CartSnapshot, error)) (*domain.CartSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	snap, err := b.cb.Execute(func() (*domain.CartSnapshot, error) {
		snap, err := req()
		if err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return snap, callerGone{err}
		}
		return snap, err
	})
	var gone callerGone
	if errors.As(err, &gone) {
		return snap, gone.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return snap, err
}

func (b *BreakerStore) Put(ctx context.Context, snapshot *domain.CartSnapshot, ttl time.Duration) (*domain.CartSnapshot, error) {
	return b.execute(ctx, func() (*domain.CartSnapshot, error) {
		return b.next.Put(ctx, snapshot, ttl)
	})
}

func (b *BreakerStore) Get(ctx context.Context, id string) (*domain.CartSnapshot, error) {
	return b.execute(ctx, func() (*domain.CartSnapshot, error) {
		return b.next.Get(ctx, id)
	})
}

func (b *BreakerStore) Delete(ctx context.Context, id string) error {
	_, err := b.execute(ctx, func() (*domain.CartSnapshot, error) {
		return nil, b.next.Delete(ctx, id)
	})
	return err
}

func (b *BreakerStore) Scan(ctx context.Context, fn func(*domain.CartSnapshot) bool) error {
	_, err := b.execute(ctx, func() (*domain.CartSnapshot, error) {
		return nil, b.next.Scan(ctx, fn)
	})
	return err
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}
