package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testSnapshot() *domain.CartSnapshot {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.CartSnapshot{
		ID: "cart_1_a",
		Items: []domain.SnapshotItem{
			{LineTotal: decimal.NewFromInt(3000)},
			{LineTotal: decimal.NewFromInt(500)},
		},
		CreatedAt: created,
		ExpiresAt: created.Add(24 * time.Hour),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	sut := &KafkaPublisher{writer: w}

	event := NewEvent(EventCartShared, testSnapshot(), "")
	require.NoError(t, sut.Publish(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "cart_1_a", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "cart.shared", string(msg.Headers[0].Value))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "cart_1_a", payload["cart_id"])
	assert.Equal(t, "3500", payload["total"])
	assert.Equal(t, float64(2), payload["item_count"])
	assert.NotEmpty(t, payload["event_id"])
	_, hasPolicy := payload["policy"]
	assert.False(t, hasPolicy)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	sut := &KafkaPublisher{writer: &fakeWriter{err: errors.New("leader not available")}}

	err := sut.Publish(context.Background(), NewEvent(EventCartImported, testSnapshot(), "append"))
	assert.ErrorContains(t, err, "leader not available")
	assert.ErrorContains(t, err, "cart.imported")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, (&KafkaPublisher{writer: w}).Close())
	assert.True(t, w.closed)
}
