package secrets

import (
	"context"
	"log/slog"
	"net/http"
)

type sessionUserContextKey struct{}

// Middleware is the auth gate in front of protected routes
type Middleware struct {
	Sessions *SessionManager

	// Where anonymous requests are sent. Defaults to "/login".
	LoginURL string

	// Called each time a request is turned away
	OnDenied func(r *http.Request)
}

func (m *Middleware) getLoginURL() string {
	if m.LoginURL == "" {
		return "/login"
	}
	return m.LoginURL
}

// IsAuthenticated reports whether the request's session is bound to an identity
func (m *Middleware) IsAuthenticated(r *http.Request) bool {
	_, ok := m.Sessions.Current(r.Context())
	return ok
}

// ExtractUser places the session user, if any, in the request context.
// It never redirects.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := m.Sessions.Current(r.Context()); ok {
			r = r.WithContext(WithSessionUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser only calls next for authenticated sessions. Anonymous requests
// are redirected to the login page and next never runs.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := m.Sessions.Current(r.Context())
		if !ok {
			slog.Debug("denying anonymous request", "method", r.Method, "path", r.URL.Path)
			if m.OnDenied != nil {
				m.OnDenied(r)
			}
			http.Redirect(w, r, m.getLoginURL(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSessionUser(r.Context(), user)))
	})
}

// WithSessionUser returns a context carrying user
func WithSessionUser(ctx context.Context, user SessionUser) context.Context {
	return context.WithValue(ctx, sessionUserContextKey{}, user)
}

// UserFromContext returns the user placed by EnsureUser or ExtractUser
func UserFromContext(ctx context.Context) (SessionUser, bool) {
	user, ok := ctx.Value(sessionUserContextKey{}).(SessionUser)
	return user, ok && user.ID != ""
}
