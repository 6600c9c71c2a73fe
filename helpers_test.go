package secrets_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	secrets "github.com/panyam/secrets"
	"github.com/panyam/secrets/stores/fs"
)

var errBackendDown = errors.New("dial tcp 10.0.0.7:27017: connection refused")

// testPolicy keeps bcrypt fast in tests
func testPolicy() secrets.SignupPolicy {
	policy := secrets.DefaultSignupPolicy()
	policy.BcryptCost = bcrypt.MinCost
	return policy
}

func newTestStore(t *testing.T) *fs.FSIdentityStore {
	t.Helper()
	return newStoreAt(t.TempDir())
}

func newStoreAt(dir string) *fs.FSIdentityStore {
	return fs.NewFSIdentityStore(dir)
}

// wipeStore deletes every record under an fs store directory
func wipeStore(t *testing.T, dir string) {
	t.Helper()
	for _, sub := range []string{"identities", "links"} {
		if err := os.RemoveAll(filepath.Join(dir, sub)); err != nil {
			t.Fatalf("wipe %s: %v", sub, err)
		}
	}
}

// brokenStore fails every call with a transient error
type brokenStore struct {
	secrets.IdentityStore
}

func (brokenStore) CreateLocalIdentity(context.Context, string, string) (*secrets.Identity, error) {
	return nil, errBackendDown
}

func (brokenStore) GetIdentityByUsername(context.Context, string) (*secrets.Identity, error) {
	return nil, errBackendDown
}

func (brokenStore) FindOrCreateFederated(context.Context, secrets.Provider, string, string) (*secrets.Identity, bool, error) {
	return nil, false, errBackendDown
}

func (brokenStore) SetSecret(context.Context, string, string) error {
	return errBackendDown
}

func (brokenStore) ListIdentitiesWithSecret(context.Context) ([]*secrets.Identity, error) {
	return nil, errBackendDown
}

func (brokenStore) Ping(context.Context) error {
	return errBackendDown
}
