//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	secrets "github.com/panyam/secrets"
)

// IdentityModel is the GORM model for identities. Optional keys are
// pointers so absent values are stored as NULL and stay out of the unique
// indexes.
type IdentityModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     *string   `gorm:"size:64;uniqueIndex;check:identity_has_login,(username IS NOT NULL AND password_hash <> '') OR google_id IS NOT NULL OR facebook_id IS NOT NULL"`
	PasswordHash string    `gorm:"size:128;not null;default:''"`
	GoogleID     *string   `gorm:"size:255;uniqueIndex"`
	FacebookID   *string   `gorm:"size:255;uniqueIndex"`
	Secret       string    `gorm:"type:text;not null;default:''"`
	DisplayName  string    `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (IdentityModel) TableName() string {
	return "identities"
}

func (m *IdentityModel) ToIdentity() *secrets.Identity {
	return &secrets.Identity{
		ID:           m.ID,
		Username:     deref(m.Username),
		PasswordHash: m.PasswordHash,
		GoogleID:     deref(m.GoogleID),
		FacebookID:   deref(m.FacebookID),
		Secret:       m.Secret,
		DisplayName:  m.DisplayName,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func IdentityToModel(i *secrets.Identity) *IdentityModel {
	return &IdentityModel{
		ID:           i.ID,
		Username:     nullable(i.Username),
		PasswordHash: i.PasswordHash,
		GoogleID:     nullable(i.GoogleID),
		FacebookID:   nullable(i.FacebookID),
		Secret:       i.Secret,
		DisplayName:  i.DisplayName,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
