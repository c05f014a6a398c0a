// Package firestore provides a Cloud Firestore implementation of
// store.RecordStore. Collection paths are passed to Firestore unchanged, so
// "bookings/b1/agreements" addresses the agreements subcollection.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/narvanalabs/fleet-portal/internal/store"
)

// Config holds Firestore connection settings.
type Config struct {
	ProjectID       string
	CredentialsJSON string
}

// Store implements store.RecordStore using Firestore.
type Store struct {
	client *firestore.Client
	logger *slog.Logger
}

// New creates a Firestore client. FIRESTORE_EMULATOR_HOST is honoured by
// the client library.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	logger.Info("connected to Firestore", "project_id", cfg.ProjectID)
	return &Store{client: client, logger: logger}, nil
}

// Get implements store.RecordStore.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return fromSnapshot(snap), nil
}

// Query implements store.RecordStore.
func (s *Store) Query(ctx context.Context, collection, field string, value any) ([]store.Document, error) {
	snaps, err := s.client.Collection(collection).Where(field, "==", value).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	docs := make([]store.Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, fromSnapshot(snap))
	}
	return docs, nil
}

// Put implements store.RecordStore.
func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != store.IDField {
			data[k] = v
		}
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return fmt.Errorf("putting document: %w", err)
	}
	return nil
}

// Update implements store.RecordStore. Keys are treated as single field
// names, never as dotted paths.
func (s *Store) Update(ctx context.Context, collection, id string, patch store.Document) error {
	updates := make([]firestore.Update, 0, len(patch))
	for k, v := range patch {
		if k == store.IDField {
			continue
		}
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	if len(updates) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}

	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return fmt.Errorf("updating document: %w", err)
	}
	return nil
}

// Ping lists the first root collection.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.Collections(ctx).Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("pinging firestore: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	s.logger.Info("closing Firestore client")
	return s.client.Close()
}

func fromSnapshot(snap *firestore.DocumentSnapshot) store.Document {
	doc := make(store.Document)
	for k, v := range snap.Data() {
		doc[k] = normalize(v)
	}
	return store.WithID(doc, snap.Ref.ID)
}

// normalize replaces document references with their IDs.
func normalize(v any) any {
	switch val := v.(type) {
	case *firestore.DocumentRef:
		if val == nil {
			return nil
		}
		return val.ID
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = normalize(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = normalize(inner)
		}
		return out
	default:
		return val
	}
}
