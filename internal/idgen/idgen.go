// Package idgen produces opaque identifiers for shared carts.
//
// Identifiers are never checked against the store before use. The store
// rejects a duplicate id and the sharing service retries with a fresh one.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	Prefix       = "cart_"
	suffixLength = 9
	base36       = "0123456789abcdefghijklmnopqrstuvwxyz"
)

type Generator interface {
	Generate() string
}

// TimestampGenerator yields cart_{epochMillis}_{9 base36 chars}.
type TimestampGenerator struct {
	now func() time.Time
}

func NewTimestampGenerator(now func() time.Time) *TimestampGenerator {
	if now == nil {
		now = time.Now
	}
	return &TimestampGenerator{now: now}
}

func (g *TimestampGenerator) Generate() string {
	return fmt.Sprintf("%s%d_%s", Prefix, g.now().UnixMilli(), randomBase36(suffixLength))
}

func randomBase36(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	limit := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("idgen: read random: %v", err))
		}
		sb.WriteByte(base36[idx.Int64()])
	}
	return sb.String()
}

// ULIDGenerator yields cart_{ulid} with 80 bits of randomness per millisecond.
type ULIDGenerator struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

func NewULIDGenerator(now func() time.Time) *ULIDGenerator {
	if now == nil {
		now = time.Now
	}
	return &ULIDGenerator{
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	return Prefix + strings.ToLower(id.String())
}

// New returns the generator configured by name ("timestamp" or "ulid").
func New(kind string, now func() time.Time) (Generator, error) {
	switch kind {
	case "", "timestamp":
		return NewTimestampGenerator(now), nil
	case "ulid":
		return NewULIDGenerator(now), nil
	default:
		return nil, fmt.Errorf("unknown id generator %q", kind)
	}
}

// Valid reports whether id looks like something a generator produced.
func Valid(id string) bool {
	if !strings.HasPrefix(id, Prefix) || len(id) == len(Prefix) {
		return false
	}
	for _, r := range id[len(Prefix):] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r == '_') {
			return false
		}
	}
	return true
}
