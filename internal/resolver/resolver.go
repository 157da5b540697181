// Package resolver reads shared carts through the remote and local tiers.
//
// The remote store is authoritative. The local cache is populated from every
// successful remote read and serves as an offline fallback. Expiry is checked
// on every read with domain.IsExpired, for both tiers.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/cache"
	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/fjod/go_cart/sharedcart-service/internal/metrics"
	"github.com/fjod/go_cart/sharedcart-service/internal/repository"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound = errors.New("no shared cart found for this id")
	// ErrUnavailable means the remote store could not be reached and no
	// local copy exists. Users see it the same way as ErrNotFound.
	ErrUnavailable = errors.New("shared cart unavailable")
)

const (
	DefaultRemoteTimeout = 5 * time.Second
	bestEffortTimeout    = time.Second
)

type Resolver struct {
	remote  repository.SnapshotStore
	local   cache.SnapshotCache
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	sfg     singleflight.Group // one remote round trip per id
}

type Option func(*Resolver)

func WithRemoteTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func New(remote repository.SnapshotStore, local cache.SnapshotCache, opts ...Option) *Resolver {
	r := &Resolver{
		remote:  remote,
		local:   local,
		timeout: DefaultRemoteTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the live snapshot for id, ErrNotFound, or ErrUnavailable.
// Concurrent calls for one id share a resolution that outlives any single
// caller; each caller still returns as soon as its own ctx is done.
func (r *Resolver) Resolve(ctx context.Context, id string) (*domain.CartSnapshot, error) {
	ch := r.sfg.DoChan(id, func() (interface{}, error) {
		return r.resolve(context.WithoutCancel(ctx), id)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.CartSnapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) resolve(ctx context.Context, id string) (*domain.CartSnapshot, error) {
	now := r.now()

	snap, err := r.getRemote(ctx, id)
	remoteMissing := false
	switch {
	case err == nil && !domain.IsExpired(snap, now):
		r.mirror(ctx, snap)
		r.metrics.ObserveResolve("remote", "found")
		return snap, nil
	case err == nil:
		r.logger.InfoContext(ctx, "shared cart expired", "cart_id", id, "expires_at", snap.ExpiresAt)
		r.deleteRemote(ctx, id)
		remoteMissing = true
	case errors.Is(err, repository.ErrSnapshotNotFound):
		remoteMissing = true
	default:
		r.logger.WarnContext(ctx, "remote store unavailable, falling back to local cache", "cart_id", id, "error", err)
	}

	local, err := r.local.Get(ctx, id)
	switch {
	case err == nil && !domain.IsExpired(local, now):
		r.metrics.ObserveResolve("local", "found")
		return local, nil
	case err == nil:
		r.deleteLocal(ctx, id)
		r.metrics.ObserveResolve("local", "expired")
		return nil, ErrNotFound
	case !errors.Is(err, cache.ErrCacheMiss):
		r.logger.WarnContext(ctx, "local cache read failed", "cart_id", id, "error", err)
	}

	if remoteMissing {
		r.metrics.ObserveResolve("none", "not_found")
		return nil, ErrNotFound
	}
	r.metrics.ObserveResolve("none", "unavailable")
	return nil, ErrUnavailable
}

func (r *Resolver) getRemote(ctx context.Context, id string) (*domain.CartSnapshot, error) {
	remoteCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.remote.Get(remoteCtx, id)
}

// mirror refreshes the local copy. Failures only cost offline availability.
func (r *Resolver) mirror(ctx context.Context, snap *domain.CartSnapshot) {
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bestEffortTimeout)
	defer cancel()
	if err := r.local.Set(setCtx, snap); err != nil {
		r.logger.WarnContext(ctx, "local cache mirror failed", "cart_id", snap.ID, "error", err)
	}
}

// deleteRemote is best effort; a failed delete is detected again on the next read.
func (r *Resolver) deleteRemote(ctx context.Context, id string) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bestEffortTimeout)
	defer cancel()
	if err := r.remote.Delete(delCtx, id); err != nil {
		r.logger.DebugContext(ctx, "expired shared cart delete failed", "cart_id", id, "error", err)
	}
}

func (r *Resolver) deleteLocal(ctx context.Context, id string) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bestEffortTimeout)
	defer cancel()
	if err := r.local.Delete(delCtx, id); err != nil {
		r.logger.DebugContext(ctx, "expired local copy delete failed", "cart_id", id, "error", err)
	}
}
