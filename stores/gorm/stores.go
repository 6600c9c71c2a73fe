//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	secrets "github.com/panyam/secrets"
)

// AutoMigrate runs database migrations for the identities table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&IdentityModel{})
}

// IdentityStore implements secrets.IdentityStore using GORM.
//
// Uniqueness is enforced by the database: inserts use
// INSERT ... ON CONFLICT DO NOTHING against the unique indexes, so two
// concurrent registrations or first logins produce a single row.
type IdentityStore struct {
	db *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func providerColumn(provider secrets.Provider) (string, error) {
	switch provider {
	case secrets.ProviderGoogle:
		return "google_id", nil
	case secrets.ProviderFacebook:
		return "facebook_id", nil
	}
	return "", fmt.Errorf("unknown provider: %q", provider)
}

// insertIfAbsent inserts identity unless a row already holds the same value
// in column. Returns false when the insert was skipped.
func (s *IdentityStore) insertIfAbsent(ctx context.Context, identity *secrets.Identity, column string) (bool, error) {
	if err := identity.Validate(); err != nil {
		return false, err
	}
	model := IdentityToModel(identity)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: column}}, DoNothing: true}).
		Create(model)
	if res.Error != nil {
		return false, fmt.Errorf("insert identity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	identity.CreatedAt, identity.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return true, nil
}

func (s *IdentityStore) findBy(ctx context.Context, column, value string) (*secrets.Identity, error) {
	var model IdentityModel
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, secrets.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find identity by %s: %w", column, err)
	}
	return model.ToIdentity(), nil
}

func (s *IdentityStore) CreateLocalIdentity(ctx context.Context, username, passwordHash string) (*secrets.Identity, error) {
	identity := &secrets.Identity{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  username,
	}
	inserted, err := s.insertIfAbsent(ctx, identity, "username")
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, secrets.ErrUsernameTaken
	}
	return identity, nil
}

func (s *IdentityStore) GetIdentityByUsername(ctx context.Context, username string) (*secrets.Identity, error) {
	return s.findBy(ctx, "username", username)
}

func (s *IdentityStore) GetIdentityById(ctx context.Context, id string) (*secrets.Identity, error) {
	return s.findBy(ctx, "id", id)
}

func (s *IdentityStore) FindOrCreateFederated(ctx context.Context, provider secrets.Provider, subject, displayName string) (*secrets.Identity, bool, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.findBy(ctx, column, subject)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, secrets.ErrIdentityNotFound) {
		return nil, false, err
	}

	identity := &secrets.Identity{ID: uuid.New().String(), DisplayName: displayName}
	if err := identity.SetProviderID(provider, subject); err != nil {
		return nil, false, err
	}
	inserted, err := s.insertIfAbsent(ctx, identity, column)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return identity, true, nil
	}

	// lost the race; the winner's row is committed
	existing, err = s.findBy(ctx, column, subject)
	return existing, false, err
}

func (s *IdentityStore) SetSecret(ctx context.Context, id, secret string) error {
	res := s.db.WithContext(ctx).Model(&IdentityModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"secret": secret, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("update secret: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return secrets.ErrIdentityNotFound
	}
	return nil
}

func (s *IdentityStore) ListIdentitiesWithSecret(ctx context.Context) ([]*secrets.Identity, error) {
	var models []IdentityModel
	if err := s.db.WithContext(ctx).Where("secret <> ?", "").Order("created_at").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	identities := make([]*secrets.Identity, len(models))
	for i := range models {
		identities[i] = models[i].ToIdentity()
	}
	return identities, nil
}

func (s *IdentityStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
