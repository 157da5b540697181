package housekeeping

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/fjod/go_cart/sharedcart-service/internal/metrics"
	"github.com/fjod/go_cart/sharedcart-service/internal/repository"
)

// Sweeper removes expired shared carts from the remote store. It only
// reclaims space: readers already treat expired records as absent.
type Sweeper struct {
	store    repository.SnapshotStore
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewSweeper(store repository.SnapshotStore, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		timeout:  time.Minute,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables housekeeping.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
			s.Sweep(sweepCtx)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep deletes every expired snapshot and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now()

	var expired []string
	err := s.store.Scan(ctx, func(snap *domain.CartSnapshot) bool {
		if domain.IsExpired(snap, now) {
			expired = append(expired, snap.ID)
		}
		return true
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to scan shared carts", "error", err)
	}

	deleted := 0
	for _, id := range expired {
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "failed to delete expired shared cart", "cart_id", id, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.InfoContext(ctx, "swept expired shared carts", "deleted", deleted)
	}
	s.metrics.ObserveSwept(deleted)
	return deleted
}
