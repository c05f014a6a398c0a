// Package memory provides an in-process RecordStore for development and
// tests.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/narvanalabs/fleet-portal/internal/store"
)

// Store keeps documents in memory. Reads and writes copy documents so
// callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Document
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]store.Document)}
}

// Get implements store.RecordStore.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return store.WithID(doc.Clone(), id), nil
}

// Query implements store.RecordStore. Values are compared with
// reflect.DeepEqual.
func (s *Store) Query(ctx context.Context, collection, field string, value any) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Document
	for id, doc := range s.collections[collection] {
		if v, ok := doc[field]; ok && reflect.DeepEqual(v, value) {
			out = append(out, store.WithID(doc.Clone(), id))
		}
	}
	return out, nil
}

// Put implements store.RecordStore.
func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]store.Document)
		s.collections[collection] = c
	}
	stored := doc.Clone()
	if stored == nil {
		stored = store.Document{}
	}
	delete(stored, store.IDField)
	c[id] = stored
	return nil
}

// Update implements store.RecordStore.
func (s *Store) Update(ctx context.Context, collection, id string, patch store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	for k, v := range patch.Clone() {
		doc[k] = v
	}
	return nil
}

// Ping implements store.RecordStore.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements store.RecordStore.
func (s *Store) Close() error {
	return nil
}

// Seed loads fixtures keyed by collection then ID.
func (s *Store) Seed(ctx context.Context, data map[string]map[string]store.Document) error {
	for collection, docs := range data {
		for id, doc := range docs {
			if err := s.Put(ctx, collection, id, doc); err != nil {
				return err
			}
		}
	}
	return nil
}
