package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/cache"
	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/fjod/go_cart/sharedcart-service/internal/merge"
	"github.com/fjod/go_cart/sharedcart-service/internal/metrics"
	"github.com/fjod/go_cart/sharedcart-service/internal/publisher"
	"github.com/fjod/go_cart/sharedcart-service/internal/repository"
	"github.com/fjod/go_cart/sharedcart-service/internal/resolver"
	"github.com/fjod/go_cart/sharedcart-service/internal/snapshot"
)

var (
	ErrShareInProgress = errors.New("a share of the active cart is already running")
	ErrIDExhausted     = errors.New("could not allocate a free shared cart id")
)

type Config struct {
	TTL time.Duration
	// PutAttempts bounds id regeneration after a collision.
	PutAttempts int
}

type SharingService struct {
	builder   *snapshot.Builder
	remote    repository.SnapshotStore
	local     cache.SnapshotCache
	resolver  *resolver.Resolver
	importer  *merge.Importer
	publisher publisher.Publisher
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics

	busy atomic.Bool
}

func NewSharingService(
	builder *snapshot.Builder,
	remote repository.SnapshotStore,
	local cache.SnapshotCache,
	res *resolver.Resolver,
	importer *merge.Importer,
	pub publisher.Publisher,
	cfg Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *SharingService {
	if cfg.PutAttempts < 1 {
		cfg.PutAttempts = 1
	}
	if pub == nil {
		pub = publisher.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SharingService{
		builder:   builder,
		remote:    remote,
		local:     local,
		resolver:  res,
		importer:  importer,
		publisher: pub,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// CreateAndShare snapshots cartItems and publishes the snapshot remotely.
// Only one share runs at a time.
func (s *SharingService) CreateAndShare(ctx context.Context, cartItems []domain.CartItem) (*domain.CartSnapshot, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.ObserveShare("busy")
		return nil, ErrShareInProgress
	}
	defer s.busy.Store(false)

	snap, err := s.builder.Build(cartItems)
	if err != nil {
		s.metrics.ObserveShare("invalid")
		return nil, err
	}

	stored, err := s.put(ctx, snap, cartItems)
	if err != nil {
		s.metrics.ObserveShare("failed")
		return nil, err
	}

	if err := s.local.Set(ctx, stored); err != nil {
		s.logger.WarnContext(ctx, "local cache mirror failed after share", "cart_id", stored.ID, "error", err)
	}
	s.publish(ctx, publisher.NewEvent(publisher.EventCartShared, stored, ""))

	s.metrics.ObserveShare("ok")
	s.logger.InfoContext(ctx, "shared cart created", "cart_id", stored.ID, "items", len(stored.Items), "expires_at", stored.ExpiresAt)
	return stored, nil
}

func (s *SharingService) put(ctx context.Context, snap *domain.CartSnapshot, cartItems []domain.CartItem) (*domain.CartSnapshot, error) {
	for attempt := 1; attempt <= s.cfg.PutAttempts; attempt++ {
		stored, err := s.remote.Put(ctx, snap, s.cfg.TTL)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, repository.ErrSnapshotExists) {
			return nil, fmt.Errorf("share cart: %w", err)
		}

		s.logger.WarnContext(ctx, "shared cart id collision, regenerating", "cart_id", snap.ID, "attempt", attempt)
		if snap, err = s.builder.Build(cartItems); err != nil {
			return nil, err
		}
	}
	return nil, ErrIDExhausted
}

// Resolve returns resolver.ErrNotFound or resolver.ErrUnavailable when no
// live snapshot can be served. Both mean "cart not found" to the user.
func (s *SharingService) Resolve(ctx context.Context, id string) (*domain.CartSnapshot, error) {
	snap, err := s.resolver.Resolve(ctx, id)
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		s.logger.InfoContext(ctx, "shared cart not found", "cart_id", id)
	case errors.Is(err, resolver.ErrUnavailable):
		s.logger.WarnContext(ctx, "shared cart unavailable", "cart_id", id)
	}
	return snap, err
}

// ImportResolved applies policy to a snapshot previously returned by Resolve.
func (s *SharingService) ImportResolved(ctx context.Context, snap *domain.CartSnapshot, policy merge.Policy) (*merge.Result, error) {
	result, err := s.importer.Import(ctx, snap, policy)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveImport(string(policy))
	if policy.Mutates() {
		s.publish(ctx, publisher.NewEvent(publisher.EventCartImported, snap, string(policy)))
		s.logger.InfoContext(ctx, "shared cart imported", "cart_id", snap.ID, "policy", policy, "cart_items", len(result.Items))
	}
	return result, nil
}

func (s *SharingService) publish(ctx context.Context, event publisher.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event_type", event.Type, "cart_id", event.CartID, "error", err)
	}
}
