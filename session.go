package secrets

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
)

const (
	sessionUserKey = "sessionUser"
	flashKey       = "flash"
)

// SessionUser is the identity reference kept in a session. It never holds
// credential material.
type SessionUser struct {
	ID          string
	Username    string
	DisplayName string
}

// Name is what the user is shown as
func (u SessionUser) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func init() {
	// scs encodes session values with gob
	gob.Register(SessionUser{})
}

// SessionOptions configures the scs session manager
type SessionOptions struct {
	Store        scs.Store // defaults to an in-memory store
	Lifetime     time.Duration
	CookieName   string
	CookieSecure bool
}

// SessionManager tracks the Anonymous -> Authenticated -> Anonymous state of
// a browser session.
type SessionManager struct {
	scs *scs.SessionManager
}

func NewSessionManager(opts SessionOptions) *SessionManager {
	sm := scs.New()
	if opts.Store != nil {
		sm.Store = opts.Store
	} else {
		sm.Store = memstore.New()
	}
	if opts.Lifetime > 0 {
		sm.Lifetime = opts.Lifetime
	}
	if opts.CookieName != "" {
		sm.Cookie.Name = opts.CookieName
	}
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = opts.CookieSecure
	return &SessionManager{scs: sm}
}

// LoadAndSave loads the session for each request and commits it afterwards
func (s *SessionManager) LoadAndSave(next http.Handler) http.Handler {
	return s.scs.LoadAndSave(next)
}

// Serialize reduces an identity to what the session keeps
func (s *SessionManager) Serialize(identity *Identity) SessionUser {
	return SessionUser{
		ID:          identity.ID,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
	}
}

// Bind moves the session to the Authenticated state for identity. The
// session token is renewed first so a pre-login token cannot be reused.
func (s *SessionManager) Bind(ctx context.Context, identity *Identity) error {
	if identity == nil || identity.ID == "" {
		return fmt.Errorf("cannot bind session to an empty identity")
	}
	if err := s.scs.RenewToken(ctx); err != nil {
		return fmt.Errorf("failed to renew session token: %w", err)
	}
	s.scs.Put(ctx, sessionUserKey, s.Serialize(identity))
	return nil
}

// Current returns the bound user. The identity store is not consulted.
func (s *SessionManager) Current(ctx context.Context) (SessionUser, bool) {
	user, ok := s.scs.Get(ctx, sessionUserKey).(SessionUser)
	if !ok || user.ID == "" {
		return SessionUser{}, false
	}
	return user, true
}

// Logout destroys the session, returning it to the Anonymous state
func (s *SessionManager) Logout(ctx context.Context) error {
	return s.scs.Destroy(ctx)
}

// PutFlash stores a one-shot message for the next page render
func (s *SessionManager) PutFlash(ctx context.Context, message string) {
	s.scs.Put(ctx, flashKey, message)
}

// PopFlash returns and clears the one-shot message
func (s *SessionManager) PopFlash(ctx context.Context) string {
	return s.scs.PopString(ctx, flashKey)
}
