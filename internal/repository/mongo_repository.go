package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "shared_carts"

type MongoStore struct {
	collection *mongo.Collection
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

func NewMongoStore(db *mongo.Database, timeout time.Duration, logger *slog.Logger) *MongoStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoStore{
		collection: db.Collection(collectionName),
		timeout:    timeout,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock replaces the clock used to compute expires_at.
func (m *MongoStore) WithClock(now func() time.Time) *MongoStore {
	m.now = now
	return m
}

func (m *MongoStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *MongoStore) Put(ctx context.Context, snapshot *domain.CartSnapshot, ttl time.Duration) (*domain.CartSnapshot, error) {
	stored := stamp(snapshot, m.now(), ttl)
	doc, err := toDocument(stored)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	// _id is the cart id, so the insert doubles as a conditional write.
	if _, err := m.collection.InsertOne(opCtx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrSnapshotExists
		}
		return nil, fmt.Errorf("%w: insert shared cart %s: %w", ErrStoreUnavailable, doc.CartID, err)
	}

	return stored, nil
}

func (m *MongoStore) Get(ctx context.Context, id string) (*domain.CartSnapshot, error) {
	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	var doc document
	err := m.collection.FindOne(opCtx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("%w: get shared cart %s: %w", ErrStoreUnavailable, id, err)
	}

	snap, err := doc.toDomain()
	if err != nil {
		// unreadable documents are as good as absent
		m.logger.Warn("discarding malformed shared cart document", "cart_id", id, "error", err)
		return nil, ErrSnapshotNotFound
	}
	return snap, nil
}

func (m *MongoStore) Delete(ctx context.Context, id string) error {
	opCtx, cancel := m.opContext(ctx)
	defer cancel()

	if _, err := m.collection.DeleteOne(opCtx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("%w: delete shared cart %s: %w", ErrStoreUnavailable, id, err)
	}
	return nil
}

func (m *MongoStore) Scan(ctx context.Context, fn func(*domain.CartSnapshot) bool) error {
	cursor, err := m.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}}))
	if err != nil {
		return fmt.Errorf("%w: scan shared carts: %w", ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			m.logger.Warn("skipping undecodable shared cart", "error", err)
			continue
		}
		snap, err := doc.toDomain()
		if err != nil {
			m.logger.Warn("skipping malformed shared cart", "cart_id", doc.CartID, "error", err)
			continue
		}
		if !fn(snap) {
			return nil
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("%w: scan shared carts: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
