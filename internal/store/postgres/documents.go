package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/narvanalabs/fleet-portal/internal/store"
)

// Get implements store.RecordStore.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	query := `
		SELECT data
		FROM documents
		WHERE collection = $1 AND id = $2`

	var data []byte
	err := s.conn().QueryRowContext(ctx, query, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("querying document: %w", err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	return store.WithID(doc, id), nil
}

// Query implements store.RecordStore using JSONB containment.
func (s *Store) Query(ctx context.Context, collection, field string, value any) ([]store.Document, error) {
	filter, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return nil, fmt.Errorf("encoding filter: %w", err)
	}

	query := `
		SELECT id, data
		FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY id`

	rows, err := s.conn().QueryContext(ctx, query, collection, string(filter))
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc, err := decode(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.WithID(doc, id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Put implements store.RecordStore.
func (s *Store) Put(ctx context.Context, collection, id string, doc store.Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $4)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.conn().ExecContext(ctx, query, collection, id, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("putting document: %w", err)
	}
	return nil
}

// Update implements store.RecordStore with a shallow JSONB merge.
func (s *Store) Update(ctx context.Context, collection, id string, patch store.Document) error {
	data, err := encode(patch)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents
		SET data = data || $3::jsonb, updated_at = $4
		WHERE collection = $1 AND id = $2`

	result, err := s.conn().ExecContext(ctx, query, collection, id, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

// Seed puts every fixture in a single transaction.
func (s *Store) Seed(ctx context.Context, data map[string]map[string]store.Document) error {
	return s.WithTx(ctx, func(tx *Store) error {
		for collection, docs := range data {
			for id, doc := range docs {
				if err := tx.Put(ctx, collection, id, doc); err != nil {
					return fmt.Errorf("seeding %s/%s: %w", collection, id, err)
				}
			}
		}
		return nil
	})
}

func encode(doc store.Document) ([]byte, error) {
	clean := make(store.Document, len(doc))
	for k, v := range doc {
		if k != store.IDField {
			clean[k] = v
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return data, nil
}

func decode(data []byte) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}
