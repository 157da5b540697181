package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/cache"
	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/fjod/go_cart/sharedcart-service/internal/metrics"
	"github.com/fjod/go_cart/sharedcart-service/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	m   sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.m.Lock()
	defer c.m.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	c.now = c.now.Add(d)
}

type mockCache struct {
	m         sync.RWMutex
	snapshots map[string]*domain.CartSnapshot
	setErr    error
	getErr    error
}

func newMockCache() *mockCache {
	return &mockCache{snapshots: map[string]*domain.CartSnapshot{}}
}

func (c *mockCache) Get(_ context.Context, id string) (*domain.CartSnapshot, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	s, ok := c.snapshots[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return s, nil
}

func (c *mockCache) Set(_ context.Context, s *domain.CartSnapshot) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.snapshots[s.ID] = s
	return nil
}

func (c *mockCache) Delete(_ context.Context, id string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.snapshots, id)
	return nil
}

func (c *mockCache) has(id string) bool {
	c.m.RLock()
	defer c.m.RUnlock()
	_, ok := c.snapshots[id]
	return ok
}

// downStore fails every call the way an unreachable remote does.
type downStore struct {
	block bool
}

func (d downStore) fail(ctx context.Context) error {
	if d.block {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, ctx.Err())
	}
	return fmt.Errorf("%w: connection refused", repository.ErrStoreUnavailable)
}

func (d downStore) Put(ctx context.Context, _ *domain.CartSnapshot, _ time.Duration) (*domain.CartSnapshot, error) {
	return nil, d.fail(ctx)
}

func (d downStore) Get(ctx context.Context, _ string) (*domain.CartSnapshot, error) {
	return nil, d.fail(ctx)
}

func (d downStore) Delete(ctx context.Context, _ string) error {
	return d.fail(ctx)
}

func (d downStore) Scan(ctx context.Context, _ func(*domain.CartSnapshot) bool) error {
	return d.fail(ctx)
}

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshot(id string) *domain.CartSnapshot {
	return &domain.CartSnapshot{
		ID: id,
		Items: []domain.SnapshotItem{{
			Product:   domain.ProductRef{Kind: domain.KindProduct, ID: "pizza", Name: "Pizza"},
			Quantity:  2,
			UnitPrice: decimal.NewFromInt(1500),
			LineTotal: decimal.NewFromInt(3000),
		}},
		CreatedAt: start,
	}
}

func setup(t *testing.T) (*fakeClock, *repository.MemoryStore, *mockCache) {
	t.Helper()
	clock := &fakeClock{now: start}
	return clock, repository.NewMemoryStore(clock.Now), newMockCache()
}

func TestResolve_RemoteHitMirrorsLocally(t *testing.T) {
	clock, remote, local := setup(t)
	ctx := context.Background()
	_, err := remote.Put(ctx, snapshot("cart_1_a"), 24*time.Hour)
	require.NoError(t, err)

	sut := New(remote, local, WithClock(clock.Now))
	got, err := sut.Resolve(ctx, "cart_1_a")
	require.NoError(t, err)
	assert.Equal(t, "cart_1_a", got.ID)
	assert.True(t, local.has("cart_1_a"))
}

func TestResolve_ExpiredRemoteIsDeleted(t *testing.T) {
	clock, remote, local := setup(t)
	ctx := context.Background()
	_, err := remote.Put(ctx, snapshot("cart_1_a"), time.Hour)
	require.NoError(t, err)

	// expiresAt = now - 1s
	clock.Advance(time.Hour + time.Second)

	sut := New(remote, local, WithClock(clock.Now))
	got, err := sut.Resolve(ctx, "cart_1_a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
	assert.Equal(t, 0, remote.Len(), "expired record should be deleted")
}

func TestResolve_ExpiryBoundaryIsExclusive(t *testing.T) {
	clock, remote, local := setup(t)
	ctx := context.Background()
	_, err := remote.Put(ctx, snapshot("cart_1_a"), time.Hour)
	require.NoError(t, err)
	sut := New(remote, local, WithClock(clock.Now))

	clock.Advance(time.Hour - time.Nanosecond)
	_, err = sut.Resolve(ctx, "cart_1_a")
	require.NoError(t, err)

	clock.Advance(time.Nanosecond)
	_, err = sut.Resolve(ctx, "cart_1_a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_ExpiredRemoteWithUndeletableRecord(t *testing.T) {
	clock, _, local := setup(t)
	expired := snapshot("cart_1_a")
	expired.ExpiresAt = start.Add(-time.Second)

	remote := &expiredStore{snap: expired}
	sut := New(remote, local, WithClock(clock.Now))

	_, err := sut.Resolve(context.Background(), "cart_1_a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, remote.deletes)
}

type expiredStore struct {
	downStore
	snap    *domain.CartSnapshot
	deletes int
}

func (e *expiredStore) Get(context.Context, string) (*domain.CartSnapshot, error) {
	return e.snap, nil
}

func (e *expiredStore) Delete(context.Context, string) error {
	e.deletes++
	return errors.New("delete rejected")
}

func TestResolve_FallbackToLocalWhenRemoteUnavailable(t *testing.T) {
	clock, _, local := setup(t)
	cached := snapshot("cart_1_a")
	cached.ExpiresAt = start.Add(time.Hour)
	require.NoError(t, local.Set(context.Background(), cached))

	sut := New(downStore{}, local, WithClock(clock.Now))
	got, err := sut.Resolve(context.Background(), "cart_1_a")
	require.NoError(t, err)
	assert.Same(t, cached, got)
}

func TestResolve_FallbackToLocalWhenRemoteMissing(t *testing.T) {
	clock, remote, local := setup(t)
	cached := snapshot("cart_1_a")
	cached.ExpiresAt = start.Add(time.Hour)
	require.NoError(t, local.Set(context.Background(), cached))

	sut := New(remote, local, WithClock(clock.Now))
	got, err := sut.Resolve(context.Background(), "cart_1_a")
	require.NoError(t, err)
	assert.Equal(t, "cart_1_a", got.ID)
}

func TestResolve_ExpiredLocalCopyIsDiscarded(t *testing.T) {
	clock, _, local := setup(t)
	cached := snapshot("cart_1_a")
	cached.ExpiresAt = start.Add(-time.Second)
	require.NoError(t, local.Set(context.Background(), cached))

	sut := New(downStore{}, local, WithClock(clock.Now))
	_, err := sut.Resolve(context.Background(), "cart_1_a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, local.has("cart_1_a"))
}

func TestResolve_NotFoundVersusUnavailable(t *testing.T) {
	clock, remote, local := setup(t)

	_, err := New(remote, local, WithClock(clock.Now)).Resolve(context.Background(), "cart_1_a")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = New(downStore{}, local, WithClock(clock.Now)).Resolve(context.Background(), "cart_1_a")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestResolve_LocalReadErrorTreatedAsMiss(t *testing.T) {
	clock, _, local := setup(t)
	local.getErr = errors.New("disk full")

	_, err := New(downStore{}, local, WithClock(clock.Now)).Resolve(context.Background(), "cart_1_a")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestResolve_MirrorFailureIsNotFatal(t *testing.T) {
	clock, remote, local := setup(t)
	local.setErr = errors.New("read-only filesystem")
	ctx := context.Background()
	_, err := remote.Put(ctx, snapshot("cart_1_a"), time.Hour)
	require.NoError(t, err)

	got, err := New(remote, local, WithClock(clock.Now)).Resolve(ctx, "cart_1_a")
	require.NoError(t, err)
	assert.Equal(t, "cart_1_a", got.ID)
}

func TestResolve_RemoteTimeoutDegradesToLocal(t *testing.T) {
	clock, _, local := setup(t)
	cached := snapshot("cart_1_a")
	cached.ExpiresAt = start.Add(time.Hour)
	require.NoError(t, local.Set(context.Background(), cached))

	sut := New(downStore{block: true}, local, WithClock(clock.Now), WithRemoteTimeout(20*time.Millisecond))

	began := time.Now()
	got, err := sut.Resolve(context.Background(), "cart_1_a")
	require.NoError(t, err)
	assert.Equal(t, "cart_1_a", got.ID)
	assert.Less(t, time.Since(began), 2*time.Second)
}

// gatedStore holds every Get until release is closed.
type gatedStore struct {
	*repository.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	m     sync.Mutex
	calls int
}

func newGatedStore(remote *repository.MemoryStore) *gatedStore {
	return &gatedStore{
		MemoryStore: remote,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedStore) Get(ctx context.Context, id string) (*domain.CartSnapshot, error) {
	g.m.Lock()
	g.calls++
	g.m.Unlock()
	g.once.Do(func() { close(g.entered) })

	select {
	case <-g.release:
		return g.MemoryStore.Get(ctx, id)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, ctx.Err())
	}
}

func (g *gatedStore) callCount() int {
	g.m.Lock()
	defer g.m.Unlock()
	return g.calls
}

func TestResolve_ConcurrentCallsShareOneRemoteRead(t *testing.T) {
	clock, remote, local := setup(t)
	_, err := remote.Put(context.Background(), snapshot("cart_1_a"), time.Hour)
	require.NoError(t, err)
	gated := newGatedStore(remote)
	sut := New(gated, local, WithClock(clock.Now), WithRemoteTimeout(5*time.Second))

	const callers = 10
	var ready, done sync.WaitGroup
	ready.Add(callers)
	done.Add(callers)
	results := make([]*domain.CartSnapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			ready.Done()
			results[i], errs[i] = sut.Resolve(context.Background(), "cart_1_a")
		}(i)
	}

	ready.Wait()
	<-gated.entered
	time.Sleep(20 * time.Millisecond)
	close(gated.release)
	done.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "cart_1_a", results[i].ID)
	}
	assert.Equal(t, 1, gated.callCount())
}

func TestResolve_CancelledCallerDoesNotFailOthers(t *testing.T) {
	clock, remote, local := setup(t)
	_, err := remote.Put(context.Background(), snapshot("cart_1_a"), time.Hour)
	require.NoError(t, err)
	gated := newGatedStore(remote)
	sut := New(gated, local, WithClock(clock.Now), WithRemoteTimeout(5*time.Second))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := sut.Resolve(firstCtx, "cart_1_a")
		firstErr <- err
	}()
	<-gated.entered

	type outcome struct {
		snap *domain.CartSnapshot
		err  error
	}
	second := make(chan outcome, 1)
	go func() {
		s, err := sut.Resolve(context.Background(), "cart_1_a")
		second <- outcome{s, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(gated.release)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Equal(t, "cart_1_a", got.snap.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, 1, gated.callCount())
	assert.True(t, local.has("cart_1_a"))
}

func TestResolve_RecordsMetrics(t *testing.T) {
	clock, remote, local := setup(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ctx := context.Background()
	_, err := remote.Put(ctx, snapshot("cart_1_a"), time.Hour)
	require.NoError(t, err)

	sut := New(remote, local, WithClock(clock.Now), WithMetrics(m))
	_, err = sut.Resolve(ctx, "cart_1_a")
	require.NoError(t, err)
	_, err = sut.Resolve(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolves.WithLabelValues("remote", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolves.WithLabelValues("none", "not_found")))
}

// Pizza x2 at 1500 and Soda x1 at 500, shared for 24h and read 25h later.
func TestResolve_ShareThenExpireScenario(t *testing.T) {
	clock, remote, local := setup(t)
	ctx := context.Background()

	snap := snapshot("cart_1_a")
	snap.Items = append(snap.Items, domain.SnapshotItem{
		Product:   domain.ProductRef{Kind: domain.KindProduct, ID: "soda", Name: "Soda"},
		Quantity:  1,
		UnitPrice: decimal.NewFromInt(500),
		LineTotal: decimal.NewFromInt(500),
	})
	_, err := remote.Put(ctx, snap, 24*time.Hour)
	require.NoError(t, err)

	got, err := remote.Get(ctx, "cart_1_a")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3000).Equal(got.Items[0].LineTotal))
	assert.True(t, decimal.NewFromInt(500).Equal(got.Items[1].LineTotal))

	sut := New(remote, local, WithClock(clock.Now))
	_, err = sut.Resolve(ctx, "cart_1_a")
	require.NoError(t, err)
	require.True(t, local.has("cart_1_a"))

	clock.Advance(25 * time.Hour)
	_, err = sut.Resolve(ctx, "cart_1_a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, local.has("cart_1_a"))
}
