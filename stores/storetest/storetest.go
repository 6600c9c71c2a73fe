// Package storetest holds the behaviour every secrets.IdentityStore backend
// must show. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secrets "github.com/panyam/secrets"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) secrets.IdentityStore

// Run exercises store semantics against newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndLookupLocal", func(t *testing.T) { testCreateAndLookupLocal(t, newStore(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicateUsername(t, newStore(t)) })
	t.Run("MissingIdentity", func(t *testing.T) { testMissingIdentity(t, newStore(t)) })
	t.Run("FindOrCreateFederated", func(t *testing.T) { testFindOrCreateFederated(t, newStore(t)) })
	t.Run("ConcurrentFindOrCreate", func(t *testing.T) { testConcurrentFindOrCreate(t, newStore(t)) })
	t.Run("ConcurrentRegister", func(t *testing.T) { testConcurrentRegister(t, newStore(t)) })
	t.Run("SetSecret", func(t *testing.T) { testSetSecret(t, newStore(t)) })
	t.Run("ListIdentitiesWithSecret", func(t *testing.T) { testListIdentitiesWithSecret(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func testCreateAndLookupLocal(t *testing.T, store secrets.IdentityStore) {
	ctx := context.Background()

	created, err := store.CreateLocalIdentity(ctx, "alice", "$2a$04$hash")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.Username)
	assert.Equal(t, "$2a$04$hash", created.PasswordHash)
	assert.Empty(t, created.Secret)

	byName, err := store.GetIdentityByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
	assert.Equal(t, "$2a$04$hash", byName.PasswordHash)

	byID, err := store.GetIdentityById(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
}

func testDuplicateUsername(t *testing.T, store secrets.IdentityStore) {
	ctx := context.Background()

	first, err := store.CreateLocalIdentity(ctx, "alice", "hash1")
	require.NoError(t, err)

	_, err = store.CreateLocalIdentity(ctx, "alice", "hash2")
	require.ErrorIs(t, err, secrets.ErrUsernameTaken)

	// the original credential is untouched
	got, err := store.GetIdentityByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "hash1", got.PasswordHash)
}

func testMissingIdentity(t *testing.T, store secrets.IdentityStore) {
	ctx := context.Background()

	_, err := store.GetIdentityByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, secrets.ErrIdentityNotFound)

	_, err = store.GetIdentityById(ctx, "not-an-id")
	assert.ErrorIs(t, err, secrets.ErrIdentityNotFound)

	_, err = store.GetIdentityById(ctx, uuid.New().String())
	assert.ErrorIs(t, err, secrets.ErrIdentityNotFound)

	err = store.SetSecret(ctx, "not-an-id", "cat")
	assert.ErrorIs(t, err, secrets.ErrIdentityNotFound)
}

func testFindOrCreateFederated(t *testing.T, store secrets.IdentityStore) {
	ctx := context.Background()

	first, created, err := store.FindOrCreateFederated(ctx, secrets.ProviderGoogle, "g-1", "Gina")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "g-1", first.GoogleID)
	assert.Equal(t, "Gina", first.DisplayName)
	assert.Empty(t, first.Username)

	again, created, err := store.FindOrCreateFederated(ctx, secrets.ProviderGoogle, "g-1", "Renamed")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	// same subject at another provider is a different person
	fb, created, err := store.FindOrCreateFederated(ctx, secrets.ProviderFacebook, "g-1", "Fred")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, fb.ID)
	assert.Equal(t, "g-1", fb.FacebookID)

	byID, err := store.GetIdentityById(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "g-1", byID.GoogleID)
}

func testConcurrentFindOrCreate(t *testing.T, store secrets.IdentityStore) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	ids := make([]string, workers)
	createdFlags := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity, created, err := store.FindOrCreateFederated(ctx, secrets.ProviderGoogle, "race-subject", "Racer")
			errs[i] = err
			createdFlags[i] = created
			if identity != nil {
				ids[i] = identity.ID
			}
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i], "worker %d resolved a different identity", i)
		if createdFlags[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)
}

func testConcurrentRegister(t *testing.T, store secrets.IdentityStore) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateLocalIdentity(ctx, "bob", "hash")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, secrets.ErrUsernameTaken)
	}
	assert.Equal(t, 1, ok)
}

func testSetSecret(t *testing.T, store secrets.IdentityStore) {
	ctx := context.Background()

	alice, err := store.CreateLocalIdentity(ctx, "alice", "hash")
	require.NoError(t, err)
	bob, err := store.CreateLocalIdentity(ctx, "bob", "hash")
	require.NoError(t, err)

	require.NoError(t, store.SetSecret(ctx, alice.ID, "cat"))
	require.NoError(t, store.SetSecret(ctx, bob.ID, "dog"))
	require.NoError(t, store.SetSecret(ctx, alice.ID, "cats are great"))

	got, err := store.GetIdentityById(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "cats are great", got.Secret)
	assert.Equal(t, "hash", got.PasswordHash, "secret writes keep credentials")

	got, err = store.GetIdentityById(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "dog", got.Secret)
}

func testListIdentitiesWithSecret(t *testing.T, store secrets.IdentityStore) {
	ctx := context.Background()

	list, err := store.ListIdentitiesWithSecret(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	alice, err := store.CreateLocalIdentity(ctx, "alice", "hash")
	require.NoError(t, err)
	_, err = store.CreateLocalIdentity(ctx, "carol", "hash")
	require.NoError(t, err)
	gina, _, err := store.FindOrCreateFederated(ctx, secrets.ProviderGoogle, "g-2", "Gina")
	require.NoError(t, err)

	require.NoError(t, store.SetSecret(ctx, alice.ID, "cat"))
	require.NoError(t, store.SetSecret(ctx, gina.ID, "owl"))
	require.NoError(t, store.SetSecret(ctx, gina.ID, "owl again"))

	list, err = store.ListIdentitiesWithSecret(ctx)
	require.NoError(t, err)

	got := map[string]string{}
	for _, identity := range list {
		_, dup := got[identity.ID]
		assert.False(t, dup, "identity %s listed twice", identity.ID)
		got[identity.ID] = identity.Secret
	}
	assert.Equal(t, map[string]string{alice.ID: "cat", gina.ID: "owl again"}, got)
}
