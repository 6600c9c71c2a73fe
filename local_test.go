package secrets_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secrets "github.com/panyam/secrets"
)

func TestRegisterThenLogin(t *testing.T) {
	store := newTestStore(t)
	register := secrets.NewRegisterFunc(store, testPolicy())
	verify := secrets.NewCredentialsVerifier(store)
	ctx := context.Background()

	registered := register(ctx, secrets.Credentials{Username: "alice", Password: "p1"})
	require.True(t, registered.OK(), "register failed: %v", registered.Err)
	assert.NotEqual(t, "p1", registered.Identity.PasswordHash, "password must be hashed")

	loggedIn := verify(ctx, "alice", "p1")
	require.True(t, loggedIn.OK(), "login failed: %v", loggedIn.Err)
	assert.Equal(t, registered.Identity.ID, loggedIn.Identity.ID)
}

func TestCredentialsVerifier_Failures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.True(t, secrets.NewRegisterFunc(store, testPolicy())(ctx, secrets.Credentials{Username: "alice", Password: "p1"}).OK())
	_, _, err := store.FindOrCreateFederated(ctx, secrets.ProviderGoogle, "g-1", "Gina")
	require.NoError(t, err)

	verify := secrets.NewCredentialsVerifier(store)

	tests := []struct {
		name     string
		username string
		password string
		reason   secrets.FailureReason
	}{
		{"wrong password", "alice", "p2", secrets.ReasonBadCredential},
		{"unknown user", "mallory", "p1", secrets.ReasonNoSuchUser},
		{"empty username", "", "p1", secrets.ReasonInvalidInput},
		{"empty password", "alice", "", secrets.ReasonInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := verify(ctx, tt.username, tt.password)
			require.False(t, result.OK())
			assert.Equal(t, tt.reason, result.Reason)
			assert.Equal(t, secrets.KindAuthentication, result.Err.Kind)
			// every failure reads the same to the user
			assert.Equal(t, "Invalid username or password", result.Message())
		})
	}
}

func TestCredentialsVerifier_StoreDown(t *testing.T) {
	result := secrets.NewCredentialsVerifier(brokenStore{})(context.Background(), "alice", "p1")
	require.False(t, result.OK())
	assert.Equal(t, secrets.ReasonStoreUnavailable, result.Reason)
	assert.Equal(t, secrets.KindTransientStore, result.Err.Kind)
	assert.NotContains(t, result.Message(), "10.0.0.7")
	assert.ErrorIs(t, result.Err, errBackendDown)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	store := newTestStore(t)
	register := secrets.NewRegisterFunc(store, testPolicy())
	ctx := context.Background()

	require.True(t, register(ctx, secrets.Credentials{Username: "alice", Password: "p1"}).OK())

	result := register(ctx, secrets.Credentials{Username: "alice", Password: "other"})
	require.False(t, result.OK())
	assert.Equal(t, secrets.ReasonUsernameTaken, result.Reason)
	assert.Equal(t, secrets.ErrCodeUsernameTaken, result.Err.Code)

	// the first registration still owns the name
	assert.True(t, secrets.NewCredentialsVerifier(store)(ctx, "alice", "p1").OK())
}

func TestSignupPolicy_Validate(t *testing.T) {
	policy := secrets.DefaultSignupPolicy()
	policy.MinPasswordLength = 4

	tests := []struct {
		name  string
		creds secrets.Credentials
		code  string
	}{
		{"valid", secrets.Credentials{Username: "alice", Password: "pass"}, ""},
		{"email username", secrets.Credentials{Username: "alice@example.com", Password: "pass"}, ""},
		{"missing username", secrets.Credentials{Password: "pass"}, secrets.ErrCodeMissingField},
		{"missing password", secrets.Credentials{Username: "alice"}, secrets.ErrCodeMissingField},
		{"bad characters", secrets.Credentials{Username: "al ice", Password: "pass"}, secrets.ErrCodeInvalidUsername},
		{"short password", secrets.Credentials{Username: "alice", Password: "abc"}, secrets.ErrCodeWeakPassword},
		{"long password", secrets.Credentials{Username: "alice", Password: strings.Repeat("x", 73)}, secrets.ErrCodePasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authErr := policy.Validate(tt.creds)
			if tt.code == "" {
				assert.Nil(t, authErr)
				return
			}
			require.NotNil(t, authErr)
			assert.Equal(t, tt.code, authErr.Code)
			assert.Equal(t, secrets.KindValidation, authErr.Kind)
		})
	}
}

func TestFederatedResolver(t *testing.T) {
	store := newTestStore(t)
	var creations atomic.Int32
	resolve := secrets.NewFederatedResolver(store, func(p secrets.Provider) {
		assert.Equal(t, secrets.ProviderFacebook, p)
		creations.Add(1)
	})
	ctx := context.Background()
	profile := secrets.FederatedProfile{Provider: secrets.ProviderFacebook, Subject: "fb-7", DisplayName: "Fay"}

	first := resolve(ctx, profile)
	require.True(t, first.OK())
	second := resolve(ctx, profile)
	require.True(t, second.OK())

	assert.Equal(t, first.Identity.ID, second.Identity.ID)
	assert.Equal(t, "fb-7", first.Identity.FacebookID)
	assert.EqualValues(t, 1, creations.Load())
}

func TestFederatedResolver_ConcurrentFirstLogin(t *testing.T) {
	store := newTestStore(t)
	var creations atomic.Int32
	resolve := secrets.NewFederatedResolver(store, func(secrets.Provider) { creations.Add(1) })
	profile := secrets.FederatedProfile{Provider: secrets.ProviderGoogle, Subject: "g-race", DisplayName: "Racer"}

	const callbacks = 10
	ids := make([]string, callbacks)
	var wg sync.WaitGroup
	for i := 0; i < callbacks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if result := resolve(context.Background(), profile); result.OK() {
				ids[i] = result.Identity.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NotEmpty(t, ids[i], "callback %d failed", i)
		assert.Equal(t, ids[0], ids[i])
	}
	assert.EqualValues(t, 1, creations.Load())
}

func TestFederatedResolver_RejectsBadProfiles(t *testing.T) {
	resolve := secrets.NewFederatedResolver(newTestStore(t), nil)
	ctx := context.Background()

	result := resolve(ctx, secrets.FederatedProfile{Provider: "github", Subject: "1"})
	require.False(t, result.OK())
	assert.Equal(t, secrets.ErrCodeUnknownProvider, result.Err.Code)

	result = resolve(ctx, secrets.FederatedProfile{Provider: secrets.ProviderGoogle})
	require.False(t, result.OK())
	assert.Equal(t, secrets.ReasonProviderFailure, result.Reason)

	result = secrets.NewFederatedResolver(brokenStore{}, nil)(ctx, secrets.FederatedProfile{Provider: secrets.ProviderGoogle, Subject: "1"})
	require.False(t, result.OK())
	assert.Equal(t, secrets.KindTransientStore, result.Err.Kind)
}

func TestLocalAuth_ParsesFormAndJSON(t *testing.T) {
	var got []secrets.AuthResult
	auth := &secrets.LocalAuth{
		VerifyCredentials: func(ctx context.Context, username, password string) secrets.AuthResult {
			return secrets.Success(&secrets.Identity{ID: "id-1", Username: username, PasswordHash: password})
		},
		HandleResult: func(strategy secrets.Provider, result secrets.AuthResult, w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, secrets.ProviderLocal, strategy)
			got = append(got, result)
		},
	}

	form := url.Values{"username": {"  alice "}, "password": {"p1"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	auth.HandleLogin(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"bob","password":"p2"}`))
	req.Header.Set("Content-Type", "application/json")
	auth.HandleLogin(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"bob"}`))
	req.Header.Set("Content-Type", "application/json")
	auth.HandleLogin(httptest.NewRecorder(), req)

	require.Len(t, got, 3)
	assert.Equal(t, "alice", got[0].Identity.Username)
	assert.Equal(t, "bob", got[1].Identity.Username)
	require.False(t, got[2].OK())
	assert.Equal(t, "Invalid username or password", got[2].Message())
}
