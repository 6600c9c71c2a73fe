package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/storetest"
)

// Tests need a running server, e.g.
//
//	docker run -p 27017:27017 mongo:7
//	SECRETS_TEST_MONGO_URI=mongodb://127.0.0.1:27017 go test ./stores/mongo/
func newTestStore(t *testing.T) *IdentityStore {
	t.Helper()
	uri := os.Getenv("SECRETS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SECRETS_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	database := "secrets_test_" + uuid.New().String()[:8]
	store, err := Connect(ctx, uri, database)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store.db.Drop(ctx)
		store.Close(ctx)
	})
	return store
}

func TestIdentityStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) secrets.IdentityStore {
		return newTestStore(t)
	})
}

func TestIdentityStore_EnsureSchemaIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
}

func TestIdentityStore_ValidatorRejectsIncomplete(t *testing.T) {
	store := newTestStore(t)

	_, err := store.coll.InsertOne(context.Background(), bson.D{{Key: "displayName", Value: "nobody"}})
	require.Error(t, err)
	assert.ErrorIs(t, writeError("insert", err), secrets.ErrIncompleteIdentity)
}
