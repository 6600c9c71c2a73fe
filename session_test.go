package secrets_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secrets "github.com/panyam/secrets"
)

func sessionCookie(t *testing.T, jar http.CookieJar, srv *httptest.Server) string {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	for _, c := range jar.Cookies(req.URL) {
		if c.Name == "session" {
			return c.Value
		}
	}
	return ""
}

func TestSessionManager_Lifecycle(t *testing.T) {
	sessions := secrets.NewSessionManager(secrets.SessionOptions{})
	gate := &secrets.Middleware{Sessions: sessions}

	mux := http.NewServeMux()
	mux.HandleFunc("/touch", func(w http.ResponseWriter, r *http.Request) {
		sessions.PutFlash(r.Context(), "hello")
	})
	mux.HandleFunc("/bind", func(w http.ResponseWriter, r *http.Request) {
		identity := &secrets.Identity{ID: "id-1", Username: "alice", PasswordHash: "hash", Secret: "cat"}
		assert.NoError(t, sessions.Bind(r.Context(), identity))
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		if user, ok := sessions.Current(r.Context()); ok {
			w.Write([]byte(user.ID + "/" + user.Name()))
		}
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, sessions.Logout(r.Context()))
	})
	mux.Handle("/private", gate.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := secrets.UserFromContext(r.Context())
		assert.True(t, ok)
		w.Write([]byte("private " + user.ID))
	})))

	srv := httptest.NewServer(sessions.LoadAndSave(mux))
	defer srv.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	get := func(path string) (*http.Response, string) {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	// anonymous
	_, body := get("/whoami")
	assert.Empty(t, body)
	resp, _ := get("/private")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	get("/touch")
	anonymousToken := sessionCookie(t, jar, srv)
	require.NotEmpty(t, anonymousToken)

	// authenticated, with a fresh token
	get("/bind")
	assert.NotEqual(t, anonymousToken, sessionCookie(t, jar, srv))
	_, body = get("/whoami")
	assert.Equal(t, "id-1/alice", body)
	resp, body = get("/private")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "private id-1", body)

	// back to anonymous
	get("/logout")
	_, body = get("/whoami")
	assert.Empty(t, body)
	resp, _ = get("/private")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestSessionManager_SerializeDropsCredentials(t *testing.T) {
	sessions := secrets.NewSessionManager(secrets.SessionOptions{})
	user := sessions.Serialize(&secrets.Identity{ID: "id-1", Username: "alice", PasswordHash: "hash", Secret: "cat", DisplayName: "Alice"})
	assert.Equal(t, secrets.SessionUser{ID: "id-1", Username: "alice", DisplayName: "Alice"}, user)
}

func TestMiddleware_EnsureUserNeverCallsNext(t *testing.T) {
	sessions := secrets.NewSessionManager(secrets.SessionOptions{})
	denied := 0
	gate := &secrets.Middleware{Sessions: sessions, LoginURL: "/signin", OnDenied: func(*http.Request) { denied++ }}

	called := false
	handler := sessions.LoadAndSave(gate.EnsureUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(method, "/submit", nil))
		assert.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/signin", rr.Header().Get("Location"))
	}
	assert.False(t, called)
	assert.Equal(t, 2, denied)
}
