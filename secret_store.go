package secrets

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxSecretLength is the longest secret accepted, in characters
const MaxSecretLength = 10000

// SecretEntry is one row of the public listing. Label is stable per identity
// but cannot be mapped back to it without the label key.
type SecretEntry struct {
	Label string
	Text  string
}

// SecretAccessor reads and writes the single secret owned by an identity
type SecretAccessor struct {
	store    IdentityStore
	labelKey []byte
	policy   *bluemonday.Policy
}

func NewSecretAccessor(store IdentityStore, labelKey []byte) *SecretAccessor {
	return &SecretAccessor{
		store:    store,
		labelKey: labelKey,
		policy:   bluemonday.StrictPolicy(),
	}
}

// Clean trims submitted text and rejects it when it carries markup. Accepted
// text is otherwise returned exactly as sent.
func (a *SecretAccessor) Clean(text string) (string, error) {
	secret := strings.TrimSpace(text)
	// the tokenizer folds CR and decodes entities, so compare on a form where
	// neither changes anything
	plain := strings.ReplaceAll(secret, "\r", "")
	if a.policy.Sanitize(strings.ReplaceAll(plain, "&", "&amp;")) != html.EscapeString(plain) {
		return "", NewAuthError(KindValidation, ErrCodeMarkupInSecret, "Secrets cannot contain HTML", "secret")
	}
	return secret, nil
}

// SetSecret overwrites the secret of identityID. identityID must come from
// the caller's session binding.
func (a *SecretAccessor) SetSecret(ctx context.Context, identityID, text string) error {
	if identityID == "" {
		return NewAuthError(KindAuthentication, ErrCodeInvalidCreds, "Please log in first", "")
	}
	secret, err := a.Clean(text)
	if err != nil {
		return err
	}
	if secret == "" {
		return NewAuthError(KindValidation, ErrCodeEmptySecret, "Your secret cannot be empty", "secret")
	}
	if utf8.RuneCountInString(secret) > MaxSecretLength {
		return NewAuthError(KindValidation, ErrCodeSecretTooLong,
			fmt.Sprintf("Secrets are limited to %d characters", MaxSecretLength), "secret")
	}
	if err := a.store.SetSecret(ctx, identityID, secret); err != nil {
		return storeFailure("set secret", err)
	}
	return nil
}

// ListSecrets returns one entry per identity with a non-empty secret
func (a *SecretAccessor) ListSecrets(ctx context.Context) ([]SecretEntry, error) {
	identities, err := a.store.ListIdentitiesWithSecret(ctx)
	if err != nil {
		return nil, storeFailure("list secrets", err)
	}
	seen := make(map[string]bool, len(identities))
	out := make([]SecretEntry, 0, len(identities))
	for _, identity := range identities {
		if !identity.HasSecret() || seen[identity.ID] {
			continue
		}
		seen[identity.ID] = true
		out = append(out, SecretEntry{Label: a.Label(identity.ID), Text: identity.Secret})
	}
	return out, nil
}

// Label derives the opaque listing label for an identity
func (a *SecretAccessor) Label(identityID string) string {
	mac := hmac.New(sha256.New, a.labelKey)
	mac.Write([]byte(identityID))
	return hex.EncodeToString(mac.Sum(nil))[:10]
}
