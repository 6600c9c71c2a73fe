package secrets

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past this many bytes, so longer passwords are rejected
const maxPasswordBytes = 72

// Credentials represents a submitted username and password
type Credentials struct {
	Username string
	Password string
}

// SignupPolicy defines what a local registration must satisfy
type SignupPolicy struct {
	// Minimum password length in bytes. Defaults to 1.
	MinPasswordLength int

	// Pattern the username must match. Defaults to DefaultUsernamePattern.
	UsernamePattern *regexp.Regexp

	// bcrypt cost used when hashing. Defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// DefaultUsernamePattern accepts plain handles and email addresses
var DefaultUsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.@+-]{1,64}$`)

// DefaultSignupPolicy returns the policy used when none is configured
func DefaultSignupPolicy() SignupPolicy {
	return SignupPolicy{
		MinPasswordLength: 1,
		UsernamePattern:   DefaultUsernamePattern,
		BcryptCost:        bcrypt.DefaultCost,
	}
}

func (p SignupPolicy) GetMinPasswordLength() int {
	if p.MinPasswordLength <= 0 {
		return 1
	}
	return p.MinPasswordLength
}

func (p SignupPolicy) GetUsernamePattern() *regexp.Regexp {
	if p.UsernamePattern == nil {
		return DefaultUsernamePattern
	}
	return p.UsernamePattern
}

func (p SignupPolicy) GetBcryptCost() int {
	if p.BcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return p.BcryptCost
}

// Validate checks creds against the policy
func (p SignupPolicy) Validate(creds Credentials) *AuthError {
	if creds.Username == "" {
		return NewAuthError(KindValidation, ErrCodeMissingField, "Username is required", "username")
	}
	if creds.Password == "" {
		return NewAuthError(KindValidation, ErrCodeMissingField, "Password is required", "password")
	}
	if !p.GetUsernamePattern().MatchString(creds.Username) {
		return NewAuthError(KindValidation, ErrCodeInvalidUsername,
			"Username may only contain letters, numbers and . _ @ + -", "username")
	}
	if minLen := p.GetMinPasswordLength(); len(creds.Password) < minLen {
		return NewAuthError(KindValidation, ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at least %d characters", minLen), "password")
	}
	if len(creds.Password) > maxPasswordBytes {
		return NewAuthError(KindValidation, ErrCodePasswordTooLong,
			fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes), "password")
	}
	return nil
}
