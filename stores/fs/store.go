package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	secrets "github.com/panyam/secrets"
)

const (
	linkUsername = "username"
	linkGoogle   = "google"
	linkFacebook = "facebook"
)

// FSIdentityStore implements secrets.IdentityStore using JSON files.
//
// # File Structure
//
//	{StoragePath}/
//	├── identities/
//	│   └── {id}.json            # the identity record
//	└── links/
//	    ├── username/{sha256}    # contains the owning id
//	    ├── google/{sha256}
//	    └── facebook/{sha256}
//
// # Concurrency Model
//
// A link file is claimed with link(2), so exactly one identity wins a
// username or provider id even across processes. Read-modify-write of an
// identity file is serialized by a mutex and is therefore only safe within a
// single process. Meant for development and single instance deployments.
type FSIdentityStore struct {
	StoragePath string
	mu          sync.Mutex
}

// NewFSIdentityStore creates a new filesystem-backed IdentityStore
func NewFSIdentityStore(storagePath string) *FSIdentityStore {
	return &FSIdentityStore{StoragePath: storagePath}
}

func (s *FSIdentityStore) identityPath(id string) string {
	return filepath.Join(s.StoragePath, "identities", id+".json")
}

func (s *FSIdentityStore) linkPath(kind, value string) string {
	return filepath.Join(s.StoragePath, "links", kind, safeName(value))
}

func linkKind(provider secrets.Provider) (string, error) {
	switch provider {
	case secrets.ProviderGoogle:
		return linkGoogle, nil
	case secrets.ProviderFacebook:
		return linkFacebook, nil
	}
	return "", fmt.Errorf("unknown provider: %q", provider)
}

func (s *FSIdentityStore) readIdentity(id string) (*secrets.Identity, error) {
	// ids are uuids we assigned; anything else cannot name a file of ours
	if _, err := uuid.Parse(id); err != nil {
		return nil, secrets.ErrIdentityNotFound
	}
	data, err := os.ReadFile(s.identityPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, secrets.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("read identity %s: %w", id, err)
	}
	var identity secrets.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("decode identity %s: %w", id, err)
	}
	return &identity, nil
}

func (s *FSIdentityStore) writeIdentity(identity *secrets.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(s.identityPath(identity.ID), data)
}

// resolveLink returns the id a link file points at
func (s *FSIdentityStore) resolveLink(kind, value string) (string, error) {
	data, err := os.ReadFile(s.linkPath(kind, value))
	if err != nil {
		if os.IsNotExist(err) {
			return "", secrets.ErrIdentityNotFound
		}
		return "", fmt.Errorf("read %s link: %w", kind, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// insertLinked writes identity and claims its link. If another identity
// already holds the link, identity is discarded and the holder's id is
// returned with os.ErrExist.
func (s *FSIdentityStore) insertLinked(identity *secrets.Identity, kind, value string) (string, error) {
	if err := s.writeIdentity(identity); err != nil {
		return "", err
	}
	err := createExclusiveFile(s.linkPath(kind, value), []byte(identity.ID))
	if err == nil {
		return identity.ID, nil
	}
	os.Remove(s.identityPath(identity.ID))
	if !errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("claim %s link: %w", kind, err)
	}
	winner, rerr := s.resolveLink(kind, value)
	if rerr != nil {
		return "", rerr
	}
	return winner, os.ErrExist
}

func newIdentity() *secrets.Identity {
	now := time.Now()
	return &secrets.Identity{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now}
}

func (s *FSIdentityStore) CreateLocalIdentity(ctx context.Context, username, passwordHash string) (*secrets.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	identity := newIdentity()
	identity.Username = username
	identity.PasswordHash = passwordHash
	identity.DisplayName = username

	if _, err := s.insertLinked(identity, linkUsername, username); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, secrets.ErrUsernameTaken
		}
		return nil, err
	}
	return identity, nil
}

func (s *FSIdentityStore) GetIdentityByUsername(ctx context.Context, username string) (*secrets.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := s.resolveLink(linkUsername, username)
	if err != nil {
		return nil, err
	}
	return s.readIdentity(id)
}

func (s *FSIdentityStore) GetIdentityById(ctx context.Context, id string) (*secrets.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readIdentity(id)
}

func (s *FSIdentityStore) FindOrCreateFederated(ctx context.Context, provider secrets.Provider, subject, displayName string) (*secrets.Identity, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	kind, err := linkKind(provider)
	if err != nil {
		return nil, false, err
	}

	id, err := s.resolveLink(kind, subject)
	if err == nil {
		identity, err := s.readIdentity(id)
		return identity, false, err
	}
	if !errors.Is(err, secrets.ErrIdentityNotFound) {
		return nil, false, err
	}

	identity := newIdentity()
	identity.DisplayName = displayName
	if err := identity.SetProviderID(provider, subject); err != nil {
		return nil, false, err
	}
	id, err = s.insertLinked(identity, kind, subject)
	if errors.Is(err, os.ErrExist) {
		slog.Debug("lost federated insert race", "provider", provider, "id", id)
		existing, err := s.readIdentity(id)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return identity, true, nil
}

func (s *FSIdentityStore) SetSecret(ctx context.Context, id, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.readIdentity(id)
	if err != nil {
		return err
	}
	identity.Secret = secret
	identity.UpdatedAt = time.Now()
	return s.writeIdentity(identity)
}

func (s *FSIdentityStore) ListIdentitiesWithSecret(ctx context.Context) ([]*secrets.Identity, error) {
	dir := filepath.Join(s.StoragePath, "identities")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*secrets.Identity{}, nil
		}
		return nil, err
	}

	identities := []*secrets.Identity{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		identity, err := s.readIdentity(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// removed by a lost insert race after ReadDir
			if errors.Is(err, secrets.ErrIdentityNotFound) {
				continue
			}
			return nil, err
		}
		if identity.HasSecret() {
			identities = append(identities, identity)
		}
	}
	return identities, nil
}

// Ping makes sure the storage directory exists and is writable
func (s *FSIdentityStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.StoragePath, "identities"), 0755); err != nil {
		return fmt.Errorf("storage path unavailable: %w", err)
	}
	return nil
}
