//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/narvanalabs/fleet-portal/internal/store"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

var testDSN string

// TestMain boots a Postgres container unless TEST_DATABASE_URL points at an
// existing database.
func TestMain(m *testing.M) {
	ctx := context.Background()

	testDSN = os.Getenv("TEST_DATABASE_URL")
	var container *postgres.PostgresContainer
	if testDSN == "" {
		var err error
		container, err = postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("portal"),
			postgres.WithUsername("portal"),
			postgres.WithPassword("portal"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			panic("start postgres container: " + err.Error())
		}
		testDSN, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			panic("resolve connection string: " + err.Error())
		}
	}

	code := m.Run()

	if container != nil {
		_ = container.Terminate(ctx)
	}
	os.Exit(code)
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := New(ctx, DefaultConfig(testDSN), logger.Discard())
	require.NoError(t, err)

	_, err = s.DB().ExecContext(ctx, "DELETE FROM documents")
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetUpdate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	agreements := store.Path("bookings", "b1", "agreements")

	require.NoError(t, s.Put(ctx, agreements, "a1", store.Document{
		"id":             "ignored",
		"password":       "aa:bb",
		"customerViewed": false,
		"sections":       []any{map[string]any{"title": "Terms"}},
	}))

	doc, err := s.Get(ctx, agreements, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", doc["id"])
	assert.Equal(t, false, doc["customerViewed"])

	viewed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Update(ctx, agreements, "a1", store.Document{
		"customerViewed": true,
		"dateViewed":     viewed,
	}))

	doc, err = s.Get(ctx, agreements, "a1")
	require.NoError(t, err)
	assert.Equal(t, true, doc["customerViewed"])
	assert.Equal(t, viewed.Format(time.RFC3339), doc["dateViewed"])
	assert.Equal(t, "aa:bb", doc["password"])

	_, err = s.Get(ctx, "bookings", "a1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, agreements, "missing", store.Document{"x": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueryByContainment(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for id, fleet := range map[string]string{"v1": "f1", "v2": "f2", "v3": "f1"} {
		require.NoError(t, s.Put(ctx, "vehicles", id, store.Document{"fleetRef": fleet}))
	}

	docs, err := s.Query(ctx, "vehicles", "fleetRef", "f1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "v1", docs[0]["id"])
	assert.Equal(t, "v3", docs[1]["id"])
}

func TestWithTxRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx *Store) error {
		if err := tx.Put(ctx, "fleets", "f1", store.Document{"name": "Acme"}); err != nil {
			return err
		}
		return sql.ErrTxDone
	})
	require.ErrorIs(t, err, sql.ErrTxDone)

	_, err = s.Get(ctx, "fleets", "f1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSeed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.Seed(ctx, map[string]map[string]store.Document{
		"fleets":                 {"f1": {"name": "Acme"}},
		"bookings/b1/agreements": {"a1": {"customerViewed": false}},
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "bookings/b1/agreements", "a1")
	require.NoError(t, err)
	assert.Equal(t, false, doc["customerViewed"])

	_, err = s.Get(ctx, "fleets", "f1")
	assert.NoError(t, err)
}

// **Property: document round trip**
// For any string-valued document, Put then Get returns the same fields.
func TestDocumentRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("put then get preserves fields", prop.ForAll(
		func(id string, fields map[string]string) bool {
			doc := store.Document{}
			for k, v := range fields {
				doc[k] = v
			}
			if err := s.Put(ctx, "fleets", id, doc); err != nil {
				t.Logf("put: %v", err)
				return false
			}
			got, err := s.Get(ctx, "fleets", id)
			if err != nil {
				return false
			}
			for k, v := range fields {
				if k == store.IDField {
					continue
				}
				if got[k] != v {
					return false
				}
			}
			return got[store.IDField] == id
		},
		gen.Identifier(),
		gen.MapOf(gen.Identifier(), gen.AlphaString()),
	))

	properties.TestingRun(t)
}
