//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/storetest"
)

// Tests need the Datastore emulator, e.g.
//
//	gcloud beta emulators datastore start --consistency=1.0
//	$(gcloud beta emulators datastore env-init)
//	go test ./stores/gae/
func newTestStore(t *testing.T) *IdentityStore {
	t.Helper()
	if os.Getenv("DATASTORE_EMULATOR_HOST") == "" {
		t.Skip("DATASTORE_EMULATOR_HOST not set")
	}
	client, err := datastore.NewClient(context.Background(), "secrets-test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	// a namespace per test keeps runs isolated
	return NewIdentityStore(client, "test-"+uuid.New().String()[:8])
}

func TestIdentityStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) secrets.IdentityStore {
		return newTestStore(t)
	})
}

func TestIdentityStore_LinkKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	identity, err := store.CreateLocalIdentity(ctx, "alice", "hash")
	require.NoError(t, err)

	var link LinkEntity
	require.NoError(t, store.client.Get(ctx, store.namespacedKey(KindIdentityLink, "username:alice"), &link))
	require.Equal(t, identity.ID, link.IdentityID)
}
