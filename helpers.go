package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// RegisterFunc creates a local identity
type RegisterFunc func(ctx context.Context, creds Credentials) AuthResult

// VerifyCredentialsFunc checks a username and password
type VerifyCredentialsFunc func(ctx context.Context, username, password string) AuthResult

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// NewRegisterFunc creates a RegisterFunc from a store and signup policy
func NewRegisterFunc(store IdentityStore, policy SignupPolicy) RegisterFunc {
	return func(ctx context.Context, creds Credentials) AuthResult {
		if authErr := policy.Validate(creds); authErr != nil {
			return Failure(ReasonInvalidInput, authErr)
		}

		passwordHash, err := HashPassword(creds.Password, policy.GetBcryptCost())
		if err != nil {
			return Failure(ReasonInvalidInput, &AuthError{
				Kind: KindValidation, Code: ErrCodeWeakPassword,
				Message: "Password could not be used", Field: "password", Err: err,
			})
		}

		identity, err := store.CreateLocalIdentity(ctx, creds.Username, passwordHash)
		if errors.Is(err, ErrUsernameTaken) {
			return Failure(ReasonUsernameTaken, &AuthError{
				Kind: KindValidation, Code: ErrCodeUsernameTaken,
				Message: "That username is already taken", Field: "username", Err: err,
			})
		}
		if err != nil {
			return Failure(ReasonStoreUnavailable, storeFailure("create identity", err))
		}

		slog.Info("registered local identity", "id", identity.ID)
		return Success(identity)
	}
}

// dummyHash is compared against when a username is unknown so a miss costs
// the same as a mismatch.
var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte("no-such-user-placeholder"), bcrypt.DefaultCost)
	return hash
})

// NewCredentialsVerifier creates a VerifyCredentialsFunc backed by a store.
// NoSuchUser and BadCredential produce the same AuthError.
func NewCredentialsVerifier(store IdentityStore) VerifyCredentialsFunc {
	return func(ctx context.Context, username, password string) AuthResult {
		if username == "" || password == "" {
			return Failure(ReasonInvalidInput, invalidCredentials(errors.New("username and password required")))
		}

		identity, err := store.GetIdentityByUsername(ctx, username)
		if errors.Is(err, ErrIdentityNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return Failure(ReasonNoSuchUser, invalidCredentials(err))
		}
		if err != nil {
			return Failure(ReasonStoreUnavailable, storeFailure("lookup identity", err))
		}

		if identity.PasswordHash == "" {
			// federated-only identity that happens to carry a username
			bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return Failure(ReasonBadCredential, invalidCredentials(errors.New("no local credential")))
		}
		if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
			return Failure(ReasonBadCredential, invalidCredentials(err))
		}
		return Success(identity)
	}
}
