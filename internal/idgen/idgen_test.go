package idgen

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var timestampID = regexp.MustCompile(`^cart_\d+_[0-9a-z]{9}$`)

func TestTimestampGenerator_Format(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	gen := NewTimestampGenerator(func() time.Time { return fixed })

	id := gen.Generate()
	assert.Regexp(t, timestampID, id)
	assert.True(t, strings.HasPrefix(id, "cart_1700000000123_"))
	assert.True(t, Valid(id))
}

func TestTimestampGenerator_SuffixDiffers(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	gen := NewTimestampGenerator(func() time.Time { return fixed })

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		seen[gen.Generate()] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestULIDGenerator_Monotonic(t *testing.T) {
	gen := NewULIDGenerator(nil)

	a := gen.Generate()
	b := gen.Generate()
	assert.True(t, strings.HasPrefix(a, Prefix))
	assert.Len(t, a, len(Prefix)+26)
	assert.Less(t, a, b)
	assert.True(t, Valid(a))
}

func TestNew(t *testing.T) {
	g, err := New("", nil)
	require.NoError(t, err)
	assert.IsType(t, &TimestampGenerator{}, g)

	g, err = New("ulid", nil)
	require.NoError(t, err)
	assert.IsType(t, &ULIDGenerator{}, g)

	_, err = New("uuid", nil)
	require.ErrorContains(t, err, "unknown id generator")
}

func TestValid(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("cart_"))
	assert.False(t, Valid("order_123"))
	assert.False(t, Valid("cart_12/../x"))
	assert.True(t, Valid("cart_1_abc"))
}
