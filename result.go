package secrets

// FailureReason is the internal cause of a failed login. It is logged and
// counted but never shown to the user: NoSuchUser and BadCredential both
// render as the same generic message.
type FailureReason string

const (
	ReasonInvalidInput     FailureReason = "invalid_input"
	ReasonNoSuchUser       FailureReason = "no_such_user"
	ReasonBadCredential    FailureReason = "bad_credential"
	ReasonUsernameTaken    FailureReason = "username_taken"
	ReasonProviderFailure  FailureReason = "provider_failure"
	ReasonStoreUnavailable FailureReason = "store_unavailable"
)

// AuthResult is the outcome of a login pipeline: either Success(identity) or
// Failure(reason, err).
type AuthResult struct {
	Identity *Identity
	Reason   FailureReason
	Err      *AuthError
}

func Success(identity *Identity) AuthResult {
	return AuthResult{Identity: identity}
}

func Failure(reason FailureReason, err *AuthError) AuthResult {
	return AuthResult{Reason: reason, Err: err}
}

// OK returns true for a successful result
func (r AuthResult) OK() bool {
	return r.Err == nil && r.Identity != nil
}

// Message returns the user facing text for a failed result
func (r AuthResult) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}

// invalidCredentials is the one message shown for every bad login
func invalidCredentials(cause error) *AuthError {
	return &AuthError{
		Kind:    KindAuthentication,
		Code:    ErrCodeInvalidCreds,
		Message: "Invalid username or password",
		Err:     cause,
	}
}
