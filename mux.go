package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	oa2 "github.com/panyam/secrets/oauth2"
)

// OAuthProvider is a federated login provider
type OAuthProvider interface {
	Name() string

	// HandleRedirect sends the browser to the provider's consent page
	HandleRedirect(w http.ResponseWriter, r *http.Request)

	// Complete validates the callback and returns the user's profile
	Complete(w http.ResponseWriter, r *http.Request) (*oa2.Profile, error)
}

// AppConfig is everything NewApp needs
type AppConfig struct {
	Store IdentityStore

	// Keys the opaque secret labels. Required.
	SessionSecret string

	SessionStore    scs.Store
	SessionLifetime time.Duration
	CookieSecure    bool

	Policy    SignupPolicy
	Providers []OAuthProvider

	// Registry for the app's metrics. A fresh registry is used when nil.
	Registry *prometheus.Registry
}

// App is the application context: every dependency a handler needs, built
// once at startup.
type App struct {
	Store     IdentityStore
	Sessions  *SessionManager
	Gate      *Middleware
	Local     *LocalAuth
	Resolve   ResolveFederatedFunc
	Secrets   *SecretAccessor
	Views     *Views
	Metrics   *Metrics
	Registry  *prometheus.Registry
	providers map[Provider]OAuthProvider
	order     []Provider
	router    *mux.Router
}

func NewApp(cfg AppConfig) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("identity store is required")
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret is required")
	}
	views, err := NewViews()
	if err != nil {
		return nil, err
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	policy := cfg.Policy
	if policy.UsernamePattern == nil {
		policy.UsernamePattern = DefaultUsernamePattern
	}

	a := &App{
		Store:     cfg.Store,
		Views:     views,
		Registry:  registry,
		Metrics:   NewMetrics(registry),
		providers: make(map[Provider]OAuthProvider),
		Sessions: NewSessionManager(SessionOptions{
			Store:        cfg.SessionStore,
			Lifetime:     cfg.SessionLifetime,
			CookieSecure: cfg.CookieSecure,
		}),
		Secrets: NewSecretAccessor(cfg.Store, []byte(cfg.SessionSecret)),
	}
	a.Gate = &Middleware{
		Sessions: a.Sessions,
		LoginURL: "/login",
		OnDenied: func(*http.Request) { a.Metrics.RecordGateDenial() },
	}
	a.Local = &LocalAuth{
		VerifyCredentials: NewCredentialsVerifier(cfg.Store),
		Register: func(ctx context.Context, creds Credentials) AuthResult {
			result := NewRegisterFunc(cfg.Store, policy)(ctx, creds)
			if result.OK() {
				a.Metrics.RecordIdentityCreated(ProviderLocal)
			}
			return result
		},
		HandleResult: a.finishLogin,
	}
	a.Resolve = NewFederatedResolver(cfg.Store, a.Metrics.RecordIdentityCreated)

	for _, p := range cfg.Providers {
		name := Provider(p.Name())
		if !name.IsFederated() {
			return nil, fmt.Errorf("unsupported oauth provider %q", name)
		}
		if _, dup := a.providers[name]; dup {
			return nil, fmt.Errorf("oauth provider %q configured twice", name)
		}
		a.providers[name] = p
		a.order = append(a.order, name)
	}
	a.setupRoutes()
	return a, nil
}

// Handler returns the root handler with sessions loaded for every request
func (a *App) Handler() http.Handler {
	return a.Sessions.LoadAndSave(a.Gate.ExtractUser(a.router))
}

func (a *App) setupRoutes() {
	r := mux.NewRouter()
	r.HandleFunc("/", a.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/register", a.renderPage("register")).Methods(http.MethodGet)
	r.HandleFunc("/register", a.Local.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", a.renderPage("login")).Methods(http.MethodGet)
	r.HandleFunc("/login", a.Local.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/secrets", a.handleListSecrets).Methods(http.MethodGet)
	r.Handle("/submit", a.Gate.EnsureUser(http.HandlerFunc(a.handleSubmitForm))).Methods(http.MethodGet)
	r.Handle("/submit", a.Gate.EnsureUser(http.HandlerFunc(a.handleSubmitSecret))).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodGet)

	for _, name := range a.order {
		provider := a.providers[name]
		r.HandleFunc("/auth/"+string(name), provider.HandleRedirect).Methods(http.MethodGet)
		r.HandleFunc("/auth/"+string(name)+"/secrets", a.handleOAuthCallback(name, provider)).Methods(http.MethodGet)
	}

	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(StaticHandler())
	a.router = r
}

// pageData fills the fields every page shares
func (a *App) pageData(r *http.Request) PageData {
	data := PageData{
		Flash:     a.Sessions.PopFlash(r.Context()),
		Providers: a.order,
	}
	if user, ok := UserFromContext(r.Context()); ok {
		data.User = &user
	}
	return data
}

func (a *App) renderPage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.Views.Render(w, http.StatusOK, page, a.pageData(r))
	}
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	a.Views.Render(w, http.StatusOK, "home", a.pageData(r))
}

func (a *App) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	data := a.pageData(r)
	entries, err := a.Secrets.ListSecrets(r.Context())
	if err != nil {
		slog.Error("error listing secrets", "err", err)
		data.Flash = "Secrets are unavailable right now, please try again"
		a.Views.Render(w, http.StatusServiceUnavailable, "secrets", data)
		return
	}
	data.Secrets = entries
	a.Views.Render(w, http.StatusOK, "secrets", data)
}

func (a *App) handleSubmitForm(w http.ResponseWriter, r *http.Request) {
	a.Views.Render(w, http.StatusOK, "submit", a.pageData(r))
}

// handleSubmitSecret stores the caller's secret. The acting identity comes
// from the session only; any id in the request is ignored.
func (a *App) handleSubmitSecret(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		a.Sessions.PutFlash(r.Context(), "Invalid form data")
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}

	err := a.Secrets.SetSecret(r.Context(), user.ID, r.PostFormValue("secret"))
	if err == nil {
		a.Metrics.RecordSecretSubmitted()
		http.Redirect(w, r, "/secrets", http.StatusFound)
		return
	}

	authErr, _ := AsAuthError(err)
	if authErr == nil {
		authErr = storeFailure("set secret", err)
	}
	switch authErr.Kind {
	case KindNotFound:
		// the session outlived its identity
		slog.Warn("session bound to missing identity", "id", user.ID)
		if err := a.Sessions.Logout(r.Context()); err != nil {
			slog.Warn("error destroying session", "err", err)
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	case KindValidation:
		a.Sessions.PutFlash(r.Context(), authErr.Message)
		http.Redirect(w, r, "/submit", http.StatusFound)
	default:
		slog.Error("error saving secret", "id", user.ID, "err", err)
		a.Sessions.PutFlash(r.Context(), authErr.Message)
		http.Redirect(w, r, "/submit", http.StatusFound)
	}
}

func (a *App) handleOAuthCallback(name Provider, provider OAuthProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := provider.Complete(w, r)
		if err != nil {
			a.finishLogin(name, Failure(ReasonProviderFailure, &AuthError{
				Kind: KindAuthentication, Code: ErrCodeInvalidCreds,
				Message: "Login failed, please try again", Err: err,
			}), w, r)
			return
		}
		result := a.Resolve(r.Context(), FederatedProfile{
			Provider:    name,
			Subject:     profile.ID,
			DisplayName: profile.Name,
		})
		a.finishLogin(name, result, w, r)
	}
}

// finishLogin consumes the result of every login pipeline: on success the
// session is bound and the user lands on /secrets, otherwise a generic
// message is flashed and the user goes back to the form.
func (a *App) finishLogin(strategy Provider, result AuthResult, w http.ResponseWriter, r *http.Request) {
	a.Metrics.RecordAuth(strategy, result)
	failureURL := "/login"
	if strategy == ProviderLocal && r.URL.Path == "/register" {
		failureURL = "/register"
	}

	if !result.OK() {
		if result.Reason == ReasonStoreUnavailable {
			slog.Error("login failed", "strategy", strategy, "err", result.Err)
		} else {
			slog.Info("login failed", "strategy", strategy, "reason", result.Reason, "err", result.Err)
		}
		a.Sessions.PutFlash(r.Context(), result.Message())
		http.Redirect(w, r, failureURL, http.StatusFound)
		return
	}

	if err := a.Sessions.Bind(r.Context(), result.Identity); err != nil {
		slog.Error("error binding session", "err", err)
		http.Redirect(w, r, failureURL, http.StatusFound)
		return
	}
	slog.Info("logged in", "strategy", strategy, "id", result.Identity.ID)
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Logout(r.Context()); err != nil {
		slog.Warn("error destroying session", "err", err)
	} else {
		a.Metrics.RecordLogout()
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		slog.Warn("identity store unreachable", "err", err)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok"))
}
