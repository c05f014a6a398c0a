package firestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/fleet-portal/internal/store"
	"github.com/narvanalabs/fleet-portal/pkg/logger"
)

func TestNormalizeNested(t *testing.T) {
	in := map[string]any{
		"vehicle":  map[string]any{"id": "v1"},
		"sections": []any{map[string]any{"title": "Terms"}},
		"count":    int64(3),
	}
	assert.Equal(t, in, normalize(in))
}

func TestNewRequiresProject(t *testing.T) {
	_, err := New(context.Background(), Config{}, logger.Discard())
	assert.Error(t, err)
}

// Runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set.
func TestEmulatorRoundTrip(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set, skipping firestore tests")
	}
	ctx := context.Background()

	s, err := New(ctx, Config{ProjectID: "fleet-portal-test"}, logger.Discard())
	require.NoError(t, err)
	defer s.Close()

	bookingID := uuid.NewString()
	agreements := store.Path(store.Path("bookings", bookingID), "agreements")

	require.NoError(t, s.Put(ctx, agreements, "a1", store.Document{"customerViewed": false}))
	require.NoError(t, s.Update(ctx, agreements, "a1", store.Document{
		"customerViewed": true,
		"dateViewed":     time.Now().UTC(),
	}))

	doc, err := s.Get(ctx, agreements, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", doc["id"])
	assert.Equal(t, true, doc["customerViewed"])
	assert.IsType(t, time.Time{}, doc["dateViewed"])

	_, err = s.Get(ctx, agreements, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, agreements, "missing", store.Document{"customerViewed": true})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Put(ctx, "vehicles", bookingID+"-v", store.Document{"fleetRef": bookingID}))
	docs, err := s.Query(ctx, "vehicles", "fleetRef", bookingID)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	assert.NoError(t, s.Ping(ctx))
}
