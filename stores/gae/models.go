//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	secrets "github.com/panyam/secrets"
)

// IdentityEntity is the Datastore entity for identities
type IdentityEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Username     string         `datastore:"username"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	GoogleID     string         `datastore:"google_id"`
	FacebookID   string         `datastore:"facebook_id"`
	Secret       string         `datastore:"secret,noindex"` // may exceed the indexed string limit
	HasSecret    bool           `datastore:"has_secret"`
	DisplayName  string         `datastore:"display_name,noindex"`
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

func (e *IdentityEntity) ToIdentity() *secrets.Identity {
	return &secrets.Identity{
		ID:           e.Key.Name,
		Username:     e.Username,
		PasswordHash: e.PasswordHash,
		GoogleID:     e.GoogleID,
		FacebookID:   e.FacebookID,
		Secret:       e.Secret,
		DisplayName:  e.DisplayName,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func IdentityToEntity(i *secrets.Identity, key *datastore.Key) *IdentityEntity {
	return &IdentityEntity{
		Key:          key,
		Username:     i.Username,
		PasswordHash: i.PasswordHash,
		GoogleID:     i.GoogleID,
		FacebookID:   i.FacebookID,
		Secret:       i.Secret,
		HasSecret:    i.HasSecret(),
		DisplayName:  i.DisplayName,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

// LinkEntity claims a username or provider id for one identity
// Key format: kind + ":" + value
type LinkEntity struct {
	Key        *datastore.Key `datastore:"__key__"`
	IdentityID string         `datastore:"identity_id"`
	CreatedAt  time.Time      `datastore:"created_at"`
}
