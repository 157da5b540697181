package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
)

// SnapshotCache is the local tier. It mirrors snapshots this device created
// or fetched and never expires them on its own.
type SnapshotCache interface {
	Get(ctx context.Context, id string) (*domain.CartSnapshot, error)
	Set(ctx context.Context, snapshot *domain.CartSnapshot) error
	Delete(ctx context.Context, id string) error
}

var ErrCacheMiss = errors.New("cache miss")

const keyPrefix = "shared_cart:"

func cacheKey(id string) string {
	return fmt.Sprintf("%s%s", keyPrefix, id)
}
