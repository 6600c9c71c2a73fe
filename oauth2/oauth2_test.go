package oauth2_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/panyam/secrets/oauth2"
	oauth2lib "golang.org/x/oauth2"
)

// mockOAuthServer creates a mock OAuth provider server that handles:
// - /token endpoint for token exchange
// - /oauth2/v2/userinfo for the Google profile API
// - /me for the Facebook Graph profile
type mockOAuthServer struct {
	server        *httptest.Server
	tokenEndpoint string

	// Configuration for responses
	tokenResponse    map[string]any
	userInfoResponse map[string]any
	tokenError       bool
	userInfoError    bool
	lastAuthHeader   string
}

func newMockOAuthServer() *mockOAuthServer {
	mock := &mockOAuthServer{
		tokenResponse: map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		},
		userInfoResponse: map[string]any{
			"id":    "12345",
			"email": "testuser@example.com",
			"name":  "Test User",
		},
	}

	mux := http.NewServeMux()

	// Token endpoint
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if mock.tokenError {
			http.Error(w, "token exchange failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.tokenResponse)
	})

	userInfo := func(w http.ResponseWriter, r *http.Request) {
		mock.lastAuthHeader = r.Header.Get("Authorization")
		if mock.userInfoError {
			http.Error(w, "user info failed", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	}
	mux.HandleFunc("/oauth2/v2/userinfo", userInfo)
	mux.HandleFunc("/me", userInfo)

	mock.server = httptest.NewServer(mux)
	mock.tokenEndpoint = mock.server.URL + "/token"
	return mock
}

func (m *mockOAuthServer) Close() {
	m.server.Close()
}

func (m *mockOAuthServer) endpoint() oauth2lib.Endpoint {
	return oauth2lib.Endpoint{
		AuthURL:  m.server.URL + "/auth",
		TokenURL: m.tokenEndpoint,
	}
}

func callbackRequest(query string, stateCookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/provider/secrets?"+query, nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: "oauthstate", Value: stateCookie})
	}
	return req
}

// TestOauthRedirector tests the OAuth redirect handler
func TestOauthRedirector(t *testing.T) {
	config := &oauth2lib.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:3000/auth/google/secrets",
		Scopes:       []string{"profile"},
		Endpoint: oauth2lib.Endpoint{
			AuthURL:  "https://provider.example.com/auth",
			TokenURL: "https://provider.example.com/token",
		},
	}

	redirector := oauth2.OauthRedirector(config)

	t.Run("redirects to OAuth provider", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/google", nil)
		rr := httptest.NewRecorder()

		redirector(rr, req)

		if rr.Code != http.StatusFound {
			t.Errorf("Expected status %d, got %d", http.StatusFound, rr.Code)
		}

		location := rr.Header().Get("Location")
		if !strings.HasPrefix(location, "https://provider.example.com/auth") {
			t.Errorf("Expected redirect to OAuth provider, got: %s", location)
		}

		parsedURL, err := url.Parse(location)
		if err != nil {
			t.Fatalf("Failed to parse redirect URL: %v", err)
		}
		query := parsedURL.Query()
		if query.Get("client_id") != "test-client-id" {
			t.Errorf("Expected client_id in URL")
		}
		if query.Get("redirect_uri") != "http://localhost:3000/auth/google/secrets" {
			t.Errorf("Expected redirect_uri in URL")
		}
		if query.Get("response_type") != "code" {
			t.Errorf("Expected response_type=code in URL")
		}
	})

	t.Run("state in URL matches cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/google", nil)
		rr := httptest.NewRecorder()

		redirector(rr, req)

		var stateCookie *http.Cookie
		for _, c := range rr.Result().Cookies() {
			if c.Name == "oauthstate" {
				stateCookie = c
			}
		}
		if stateCookie == nil || stateCookie.Value == "" {
			t.Fatal("Expected oauthstate cookie to be set")
		}
		if !stateCookie.HttpOnly {
			t.Error("Expected oauthstate cookie to be HttpOnly")
		}

		parsedURL, _ := url.Parse(rr.Header().Get("Location"))
		if urlState := parsedURL.Query().Get("state"); urlState != stateCookie.Value {
			t.Errorf("State mismatch: cookie=%s, url=%s", stateCookie.Value, urlState)
		}
	})

	t.Run("state differs per request", func(t *testing.T) {
		first := httptest.NewRecorder()
		second := httptest.NewRecorder()
		redirector(first, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
		redirector(second, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
		if first.Header().Get("Location") == second.Header().Get("Location") {
			t.Error("Expected a fresh state for every redirect")
		}
	})
}

func TestGoogleOAuth2Complete(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()

	googleAuth := oauth2.NewGoogleOAuth2("test-client-id", "test-client-secret", "http://localhost:3000/auth/google/secrets")
	googleAuth.UserInfoEndpoint = mock.server.URL + "/"
	googleAuth.SetHTTPClient(mock.server.Client())
	googleAuth.SetOAuthEndpoint(mock.endpoint())

	if googleAuth.Name() != "google" {
		t.Errorf("Name() = %q, want google", googleAuth.Name())
	}

	t.Run("rejects missing state cookie", func(t *testing.T) {
		_, err := googleAuth.Complete(httptest.NewRecorder(), callbackRequest("code=test_code&state=test_state", ""))
		if !errors.Is(err, oauth2.ErrMissingState) {
			t.Errorf("Expected ErrMissingState, got %v", err)
		}
	})

	t.Run("rejects mismatched state", func(t *testing.T) {
		_, err := googleAuth.Complete(httptest.NewRecorder(), callbackRequest("code=test_code&state=wrong_state", "correct_state"))
		if !errors.Is(err, oauth2.ErrStateMismatch) {
			t.Errorf("Expected ErrStateMismatch, got %v", err)
		}
	})

	t.Run("reports denied consent", func(t *testing.T) {
		_, err := googleAuth.Complete(httptest.NewRecorder(), callbackRequest("error=access_denied&state=s1", "s1"))
		if !errors.Is(err, oauth2.ErrConsentDenied) {
			t.Errorf("Expected ErrConsentDenied, got %v", err)
		}
	})

	t.Run("rejects missing code", func(t *testing.T) {
		_, err := googleAuth.Complete(httptest.NewRecorder(), callbackRequest("state=s1", "s1"))
		if !errors.Is(err, oauth2.ErrMissingCode) {
			t.Errorf("Expected ErrMissingCode, got %v", err)
		}
	})

	t.Run("successful callback flow", func(t *testing.T) {
		mock.userInfoResponse = map[string]any{
			"id":    "google123",
			"email": "user@gmail.com",
			"name":  "Google User",
		}

		rr := httptest.NewRecorder()
		profile, err := googleAuth.Complete(rr, callbackRequest("code=valid_code&state=valid_state", "valid_state"))
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if profile.Provider != "google" || profile.ID != "google123" || profile.Name != "Google User" {
			t.Errorf("unexpected profile: %+v", profile)
		}
		if mock.lastAuthHeader != "Bearer mock_access_token" {
			t.Errorf("Expected bearer token on profile request, got %q", mock.lastAuthHeader)
		}

		// state cookie is single use
		cleared := false
		for _, c := range rr.Result().Cookies() {
			if c.Name == "oauthstate" && c.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Error("Expected oauthstate cookie to be cleared")
		}
	})

	t.Run("fails on token exchange failure", func(t *testing.T) {
		mock.tokenError = true
		defer func() { mock.tokenError = false }()

		_, err := googleAuth.Complete(httptest.NewRecorder(), callbackRequest("code=bad_code&state=valid_state", "valid_state"))
		if err == nil {
			t.Error("Expected error on token exchange failure")
		}
	})

	t.Run("fails on user info failure", func(t *testing.T) {
		mock.userInfoError = true
		defer func() { mock.userInfoError = false }()

		_, err := googleAuth.Complete(httptest.NewRecorder(), callbackRequest("code=valid_code&state=valid_state", "valid_state"))
		if err == nil {
			t.Error("Expected error on user info failure")
		}
	})

	t.Run("rejects profile without id", func(t *testing.T) {
		mock.userInfoResponse = map[string]any{"name": "Nobody"}

		_, err := googleAuth.Complete(httptest.NewRecorder(), callbackRequest("code=valid_code&state=valid_state", "valid_state"))
		if !errors.Is(err, oauth2.ErrMissingSubject) {
			t.Errorf("Expected ErrMissingSubject, got %v", err)
		}
	})
}

func TestFacebookOAuth2Complete(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()

	fbAuth := oauth2.NewFacebookOAuth2("test-app-id", "test-app-secret", "http://localhost:3000/auth/facebook/secrets")
	fbAuth.UserInfoURL = mock.server.URL + "/me?fields=id,name"
	fbAuth.SetHTTPClient(mock.server.Client())
	fbAuth.SetOAuthEndpoint(mock.endpoint())

	if fbAuth.Name() != "facebook" {
		t.Errorf("Name() = %q, want facebook", fbAuth.Name())
	}

	t.Run("rejects mismatched state", func(t *testing.T) {
		_, err := fbAuth.Complete(httptest.NewRecorder(), callbackRequest("code=test_code&state=wrong_state", "correct_state"))
		if !errors.Is(err, oauth2.ErrStateMismatch) {
			t.Errorf("Expected ErrStateMismatch, got %v", err)
		}
	})

	t.Run("successful callback flow", func(t *testing.T) {
		mock.userInfoResponse = map[string]any{
			"id":   "fb42",
			"name": "Facebook User",
		}

		profile, err := fbAuth.Complete(httptest.NewRecorder(), callbackRequest("code=valid_code&state=valid_state", "valid_state"))
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if profile.Provider != "facebook" || profile.ID != "fb42" || profile.Name != "Facebook User" {
			t.Errorf("unexpected profile: %+v", profile)
		}
	})

	t.Run("fails on user info failure", func(t *testing.T) {
		mock.userInfoError = true
		defer func() { mock.userInfoError = false }()

		_, err := fbAuth.Complete(httptest.NewRecorder(), callbackRequest("code=valid_code&state=valid_state", "valid_state"))
		if err == nil {
			t.Error("Expected error on user info failure")
		}
	})

	t.Run("rejects profile without id", func(t *testing.T) {
		mock.userInfoResponse = map[string]any{"name": "Nobody"}

		_, err := fbAuth.Complete(httptest.NewRecorder(), callbackRequest("code=valid_code&state=valid_state", "valid_state"))
		if !errors.Is(err, oauth2.ErrMissingSubject) {
			t.Errorf("Expected ErrMissingSubject, got %v", err)
		}
	})
}
