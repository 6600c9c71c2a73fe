package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
)

// Errors returned by Complete
var (
	ErrMissingState   = errors.New("oauth state cookie missing")
	ErrStateMismatch  = errors.New("oauth state mismatch")
	ErrConsentDenied  = errors.New("user did not grant consent")
	ErrMissingCode    = errors.New("authorization code missing")
	ErrMissingSubject = errors.New("provider profile has no id")
)

// Profile is what a provider tells us about the user
type Profile struct {
	Provider string
	ID       string
	Name     string
	Email    string
}

type BaseOAuth2 struct {
	ProviderName string
	ClientId     string
	ClientSecret string
	CallbackURL  string
	oauthConfig  oauth2.Config
	httpClient   *http.Client
}

func NewBaseOAuth2(provider string, clientId string, clientSecret string, callbackUrl string, endpoint oauth2.Endpoint, scopes []string) *BaseOAuth2 {
	return &BaseOAuth2{
		ProviderName: provider,
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

func (b *BaseOAuth2) Name() string { return b.ProviderName }

// Config returns the underlying oauth2 configuration
func (b *BaseOAuth2) Config() *oauth2.Config { return &b.oauthConfig }

// SetHTTPClient sets the client used for token exchange and profile fetches
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) { b.httpClient = client }

// SetOAuthEndpoint overrides the provider's auth and token URLs
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) { b.oauthConfig.Endpoint = endpoint }

// ExchangeContext returns ctx carrying the injected HTTP client, if any
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	if b.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	return ctx
}

// HandleRedirect sends the browser to the provider's consent page
func (b *BaseOAuth2) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	OauthRedirector(&b.oauthConfig)(w, r)
}

// exchange validates the callback's state and trades the code for a token
func (b *BaseOAuth2) exchange(w http.ResponseWriter, r *http.Request) (*oauth2.Token, error) {
	oauthState, _ := r.Cookie(stateCookieName)
	clearStateCookie(w)

	// checked first so a cancelled consent is reported as such
	if errParam := r.FormValue("error"); errParam != "" {
		return nil, fmt.Errorf("%w: %s", ErrConsentDenied, errParam)
	}
	if oauthState == nil || oauthState.Value == "" {
		return nil, ErrMissingState
	}
	if r.FormValue("state") != oauthState.Value {
		return nil, ErrStateMismatch
	}
	code := r.FormValue("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	token, err := b.oauthConfig.Exchange(b.ExchangeContext(r.Context()), code)
	if err != nil {
		slog.Info("invalid code exchange", "provider", b.ProviderName, "err", err)
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	return token, nil
}

// client returns an HTTP client authorized with token
func (b *BaseOAuth2) client(ctx context.Context, token *oauth2.Token) *http.Client {
	return b.oauthConfig.Client(b.ExchangeContext(ctx), token)
}
