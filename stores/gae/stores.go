//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"

	secrets "github.com/panyam/secrets"
)

// Kind constants for Datastore entities
const (
	KindIdentity     = "Identity"
	KindIdentityLink = "IdentityLink"
)

// first logins for one subject contend on the same link entity
const txAttempts = 10

// IdentityStore implements secrets.IdentityStore using Google Cloud Datastore
type IdentityStore struct {
	client    *datastore.Client
	namespace string
}

// NewIdentityStore creates a new Datastore-backed IdentityStore
func NewIdentityStore(client *datastore.Client, namespace string) *IdentityStore {
	return &IdentityStore{
		client:    client,
		namespace: namespace,
	}
}

func (s *IdentityStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *IdentityStore) query(kind string) *datastore.Query {
	query := datastore.NewQuery(kind)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}
	return query
}

func linkName(kind, value string) string {
	return kind + ":" + value
}

func providerLinkKind(provider secrets.Provider) (string, error) {
	if !provider.IsFederated() {
		return "", fmt.Errorf("unknown provider: %q", provider)
	}
	return string(provider), nil
}

// insertLinked stores identity and claims link in one transaction. If the
// link is already claimed nothing is written and the holder's id is
// returned with created == false.
func (s *IdentityStore) insertLinked(ctx context.Context, identity *secrets.Identity, link string) (holderID string, created bool, err error) {
	if err := identity.Validate(); err != nil {
		return "", false, err
	}
	idKey := s.namespacedKey(KindIdentity, identity.ID)
	linkKey := s.namespacedKey(KindIdentityLink, link)

	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		holderID, created = "", false

		var existing LinkEntity
		err := tx.Get(linkKey, &existing)
		if err == nil {
			holderID = existing.IdentityID
			return nil
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}

		if _, err := tx.Put(idKey, IdentityToEntity(identity, idKey)); err != nil {
			return err
		}
		if _, err := tx.Put(linkKey, &LinkEntity{IdentityID: identity.ID, CreatedAt: identity.CreatedAt}); err != nil {
			return err
		}
		holderID, created = identity.ID, true
		return nil
	}, datastore.MaxAttempts(txAttempts))
	if err != nil {
		return "", false, fmt.Errorf("claim %s: %w", link, err)
	}
	return holderID, created, nil
}

func (s *IdentityStore) resolveLink(ctx context.Context, link string) (*secrets.Identity, error) {
	var entity LinkEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindIdentityLink, link), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, secrets.ErrIdentityNotFound
		}
		return nil, err
	}
	return s.GetIdentityById(ctx, entity.IdentityID)
}

func newIdentity() *secrets.Identity {
	now := time.Now()
	return &secrets.Identity{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now}
}

func (s *IdentityStore) CreateLocalIdentity(ctx context.Context, username, passwordHash string) (*secrets.Identity, error) {
	identity := newIdentity()
	identity.Username = username
	identity.PasswordHash = passwordHash
	identity.DisplayName = username

	_, created, err := s.insertLinked(ctx, identity, linkName("username", username))
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, secrets.ErrUsernameTaken
	}
	return identity, nil
}

func (s *IdentityStore) GetIdentityByUsername(ctx context.Context, username string) (*secrets.Identity, error) {
	return s.resolveLink(ctx, linkName("username", username))
}

func (s *IdentityStore) GetIdentityById(ctx context.Context, id string) (*secrets.Identity, error) {
	if id == "" {
		return nil, secrets.ErrIdentityNotFound
	}
	var entity IdentityEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindIdentity, id), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, secrets.ErrIdentityNotFound
		}
		return nil, err
	}
	return entity.ToIdentity(), nil
}

func (s *IdentityStore) FindOrCreateFederated(ctx context.Context, provider secrets.Provider, subject, displayName string) (*secrets.Identity, bool, error) {
	kind, err := providerLinkKind(provider)
	if err != nil {
		return nil, false, err
	}
	link := linkName(kind, subject)

	existing, err := s.resolveLink(ctx, link)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, secrets.ErrIdentityNotFound) {
		return nil, false, err
	}

	identity := newIdentity()
	identity.DisplayName = displayName
	if err := identity.SetProviderID(provider, subject); err != nil {
		return nil, false, err
	}
	holderID, created, err := s.insertLinked(ctx, identity, link)
	if err != nil {
		return nil, false, err
	}
	if created {
		return identity, true, nil
	}
	existing, err = s.GetIdentityById(ctx, holderID)
	return existing, false, err
}

func (s *IdentityStore) SetSecret(ctx context.Context, id, secret string) error {
	if id == "" {
		return secrets.ErrIdentityNotFound
	}
	key := s.namespacedKey(KindIdentity, id)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity IdentityEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return secrets.ErrIdentityNotFound
			}
			return err
		}
		entity.Secret = secret
		entity.HasSecret = secret != ""
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	}, datastore.MaxAttempts(txAttempts))
	return err
}

func (s *IdentityStore) ListIdentitiesWithSecret(ctx context.Context) ([]*secrets.Identity, error) {
	query := s.query(KindIdentity).FilterField("has_secret", "=", true)

	var entities []IdentityEntity
	if _, err := s.client.GetAll(ctx, query, &entities); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	identities := make([]*secrets.Identity, len(entities))
	for i := range entities {
		identities[i] = entities[i].ToIdentity()
	}
	return identities, nil
}

// Ping runs a keys only query to check the backend is reachable
func (s *IdentityStore) Ping(ctx context.Context) error {
	_, err := s.client.GetAll(ctx, s.query(KindIdentity).KeysOnly().Limit(1), nil)
	return err
}
