// Package mongo provides a MongoDB implementation of store.RecordStore.
// A collection path such as "bookings/b1/agreements" maps to the Mongo
// collection "bookings.b1.agreements"; the record ID is stored as _id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/narvanalabs/fleet-portal/internal/store"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// Store implements store.RecordStore using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	logger.Info("connected to MongoDB", "database", cfg.Database)
	return &Store{client: client, db: client.Database(cfg.Database), logger: logger}, nil
}

// CollectionName maps a collection path to a Mongo collection name.
func CollectionName(path string) string {
	return strings.ReplaceAll(path, "/", ".")
}

func (s *Store) collection(path string) *mongo.Collection {
	return s.db.Collection(CollectionName(path))
}

// Get implements store.RecordStore.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var raw bson.M
	err := s.collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return fromBSON(raw, id), nil
}

// Query implements store.RecordStore.
func (s *Store) Query(ctx context.Context, collection, field string, value any) ([]store.Document, error) {
	cursor, err := s.collection(collection).Find(ctx, bson.M{field: value})
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer cursor.Close(ctx)

	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	docs := make([]store.Document, 0, len(results))
	for _, raw := range results {
		docs = append(docs, fromBSON(raw, fmt.Sprint(raw["_id"])))
	}
	return docs, nil
}

// Put implements store.RecordStore.
func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	_, err := s.collection(collection).ReplaceOne(ctx,
		bson.M{"_id": id},
		toBSON(doc, id),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("putting document: %w", err)
	}
	return nil
}

// Update implements store.RecordStore with $set.
func (s *Store) Update(ctx context.Context, collection, id string, patch store.Document) error {
	set := bson.M{}
	for k, v := range patch {
		if k != store.IDField {
			set[k] = v
		}
	}

	res, err := s.collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

// Ping implements store.RecordStore.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("closing MongoDB connection")
	return s.client.Disconnect(ctx)
}

func toBSON(doc store.Document, id string) bson.M {
	out := make(bson.M, len(doc)+1)
	for k, v := range doc {
		if k != store.IDField {
			out[k] = v
		}
	}
	out["_id"] = id
	return out
}

func fromBSON(raw bson.M, id string) store.Document {
	doc := make(store.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = normalize(v)
	}
	return store.WithID(doc, id)
}

// normalize converts driver types into plain Go values.
func normalize(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = normalize(inner)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalize(inner)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.ObjectID:
		return val.Hex()
	default:
		return val
	}
}
