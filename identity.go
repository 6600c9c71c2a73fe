package secrets

import (
	"context"
	"fmt"
	"time"
)

// Provider names a login strategy
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// IsFederated returns true for the OAuth providers an identity can be linked to
func (p Provider) IsFederated() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

// Identity is one registered user
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"password_hash,omitempty"`
	GoogleID     string    `json:"google_id,omitempty"`
	FacebookID   string    `json:"facebook_id,omitempty"`
	Secret       string    `json:"secret,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks that the identity is reachable through at least one login
// path. Stores call this before every write.
func (i *Identity) Validate() error {
	hasLocal := i.Username != "" && i.PasswordHash != ""
	if !hasLocal && i.GoogleID == "" && i.FacebookID == "" {
		return ErrIncompleteIdentity
	}
	return nil
}

// HasSecret returns true if the identity has posted a non-empty secret
func (i *Identity) HasSecret() bool {
	return i.Secret != ""
}

// ProviderID returns the subject id this identity holds for a federated provider
func (i *Identity) ProviderID(provider Provider) string {
	switch provider {
	case ProviderGoogle:
		return i.GoogleID
	case ProviderFacebook:
		return i.FacebookID
	}
	return ""
}

// SetProviderID sets the subject id for a federated provider
func (i *Identity) SetProviderID(provider Provider, subject string) error {
	switch provider {
	case ProviderGoogle:
		i.GoogleID = subject
	case ProviderFacebook:
		i.FacebookID = subject
	default:
		return fmt.Errorf("unknown provider: %q", provider)
	}
	return nil
}

// Name is what the identity is shown as when logged in
func (i *Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}

// IdentityStore persists identity records.
//
// Implementations must make FindOrCreateFederated and CreateLocalIdentity
// atomic with respect to the provider id or username: two concurrent calls
// with the same key yield one record.
type IdentityStore interface {
	// CreateLocalIdentity inserts a new identity with local credentials.
	// Returns ErrUsernameTaken if the username exists.
	CreateLocalIdentity(ctx context.Context, username, passwordHash string) (*Identity, error)

	// GetIdentityByUsername returns ErrIdentityNotFound on a miss
	GetIdentityByUsername(ctx context.Context, username string) (*Identity, error)

	// GetIdentityById returns ErrIdentityNotFound on a miss
	GetIdentityById(ctx context.Context, id string) (*Identity, error)

	// FindOrCreateFederated returns the identity holding subject for provider,
	// creating it (with displayName) if none exists.
	FindOrCreateFederated(ctx context.Context, provider Provider, subject, displayName string) (identity *Identity, created bool, err error)

	// SetSecret overwrites the secret of identity id.
	// Returns ErrIdentityNotFound if the identity does not exist.
	SetSecret(ctx context.Context, id, secret string) error

	// ListIdentitiesWithSecret returns every identity whose secret is non-empty
	ListIdentitiesWithSecret(ctx context.Context) ([]*Identity, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
}
