package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
	"github.com/olgasafonova/wikiclone-server/metrics"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultMongoDatabase and DefaultMongoCollection name the cache location
	DefaultMongoDatabase   = "wikiclone"
	DefaultMongoCollection = "articles"

	mongoSetupTimeout = 10 * time.Second
)

// mongoCollection is the subset of *mongo.Collection the cache needs.
type mongoCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

// articleDocument is the stored shape. Expired documents are removed by the
// TTL index and also filtered on read, since the TTL monitor runs lazily.
type articleDocument struct {
	Key       string                `bson:"_id"`
	Article   *encyclopedia.Article `bson:"article"`
	ExpiresAt time.Time             `bson:"expires_at"`
}

// MongoCache stores articles in a MongoDB collection.
type MongoCache struct {
	coll   mongoCollection
	client *mongo.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewMongoCache connects to uri, pings the server and ensures the TTL index.
func NewMongoCache(ctx context.Context, uri, database, collection string, logger *slog.Logger) (*MongoCache, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoSetupTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if database == "" {
		database = DefaultMongoDatabase
	}
	if collection == "" {
		collection = DefaultMongoCollection
	}
	coll := client.Database(database).Collection(collection)

	if err := ensureIndexes(ctx, coll); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	c := newMongoCache(coll, logger)
	c.client = client
	return c, nil
}

func newMongoCache(coll mongoCollection, logger *slog.Logger) *MongoCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &MongoCache{coll: coll, logger: logger, now: time.Now}
}

// ensureIndexes creates the TTL index that expires documents at expires_at.
func ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
	}
	if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("failed to create TTL index: %w", err)
	}
	return nil
}

func (m *MongoCache) Get(ctx context.Context, key string) (*encyclopedia.Article, bool) {
	filter := bson.M{
		"_id":        key,
		"expires_at": bson.M{"$gt": m.now()},
	}

	var doc articleDocument
	err := m.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false
	}
	if err != nil {
		metrics.RecordCacheError(BackendMongo, "get")
		m.logger.Warn("Cache read failed", "backend", BackendMongo, "key", key, "error", err)
		return nil, false
	}
	if doc.Article == nil {
		return nil, false
	}
	return doc.Article, true
}

func (m *MongoCache) Set(ctx context.Context, key string, article *encyclopedia.Article, ttl time.Duration) {
	update := bson.M{
		"$set": bson.M{
			"article":    article,
			"expires_at": m.now().Add(ttl),
		},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.coll.UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		metrics.RecordCacheError(BackendMongo, "set")
		m.logger.Warn("Cache write failed", "backend", BackendMongo, "key", key, "error", err)
	}
}

// Close disconnects the client.
func (m *MongoCache) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoSetupTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
