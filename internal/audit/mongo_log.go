package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/voxel-server/internal/eventbus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the MongoDB event archive.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. voxel
	Collection string // e.g. events
}

// MongoLog implements Log on MongoDB backend.
type MongoLog struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoLog establishes connection and returns the archive.
func NewMongoLog(cfg MongoConfig) (*MongoLog, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "voxel"
	}
	if cfg.Collection == "" {
		cfg.Collection = "events"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	m := &MongoLog{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := m.ensureIndexes(); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *MongoLog) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	byTime := mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("timestamp_desc"),
	}
	byType := mongo.IndexModel{
		Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("type_timestamp"),
	}
	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{byTime, byType})
	return err
}

// Record inserts the event; duplicate ids (redelivery) are ignored.
func (m *MongoLog) Record(ctx context.Context, ev *eventbus.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	_, err := m.collection.InsertOne(ctx, ev)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("audit insert %s: %w", ev.ID, err)
	}
	return nil
}

// Recent returns newest events first.
func (m *MongoLog) Recent(ctx context.Context, eventType string, limit int) ([]eventbus.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	filter := bson.M{}
	if eventType != "" {
		filter["event_type"] = eventType
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))

	cur, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []eventbus.Envelope
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close disconnects the client.
func (m *MongoLog) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
