// Package store defines the document store the portal reads bookings,
// agreements, fleets, vehicles and vanity pages from.
//
// Collections are slash-separated paths. Nested collections such as
// "bookings/b1/agreements" are addressed the same way as top-level ones.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// IDField is the key under which every backend exposes a record's ID.
const IDField = "id"

// Document is a schemaless record.
type Document map[string]any

// Clone returns a deep copy of d. Nested maps and slices are copied,
// other values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return Document(cloneValue(map[string]any(val)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = cloneValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = cloneValue(inner)
		}
		return out
	default:
		return val
	}
}

// RecordStore reads and writes documents.
type RecordStore interface {
	// Get returns the document with the given ID, including its "id" key.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Query returns every document whose field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)
	// Put creates or replaces a document.
	Put(ctx context.Context, collection, id string, doc Document) error
	// Update merges patch into an existing document. It returns
	// ErrNotFound when the document does not exist.
	Update(ctx context.Context, collection, id string, patch Document) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Path joins collection path segments.
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// WithID returns doc with its "id" key set, allocating when doc is nil.
func WithID(doc Document, id string) Document {
	if doc == nil {
		doc = Document{}
	}
	doc[IDField] = id
	return doc
}

// Fixtures are documents keyed by collection, then ID.
type Fixtures map[string]map[string]Document

// Seeder is implemented by stores that can bulk-load fixtures.
type Seeder interface {
	Seed(ctx context.Context, data map[string]map[string]Document) error
}

// LoadFixtures reads a YAML (or JSON) fixtures file.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes a fixtures document. An "id" key inside a document
// is ignored in favour of its map key.
func ParseFixtures(data []byte) (Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}
	for collection, docs := range fx {
		if collection == "" {
			return nil, errors.New("parsing fixtures: empty collection name")
		}
		for id, doc := range docs {
			docs[id] = WithID(normalize(doc), id)
		}
	}
	return fx, nil
}

// normalize rewrites nested documents as plain maps, matching what the
// backends return from Get and Query.
func normalize(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch val := v.(type) {
	case Document:
		return plainValue(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = plainValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = plainValue(inner)
		}
		return out
	default:
		return val
	}
}
