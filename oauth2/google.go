package oauth2

import (
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoEndpoint overrides the Google API base URL. Used in tests.
	UserInfoEndpoint string
}

func NewGoogleOAuth2(clientId string, clientSecret string, callbackUrl string) *GoogleOAuth2 {
	return &GoogleOAuth2{
		BaseOAuth2: NewBaseOAuth2("google", clientId, clientSecret, callbackUrl, google.Endpoint, []string{
			"https://www.googleapis.com/auth/userinfo.profile",
		}),
	}
}

// Complete finishes the callback: validates state, exchanges the code and
// fetches the user's profile
func (g *GoogleOAuth2) Complete(w http.ResponseWriter, r *http.Request) (*Profile, error) {
	token, err := g.exchange(w, r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	opts := []option.ClientOption{option.WithHTTPClient(g.client(ctx, token))}
	if g.UserInfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.UserInfoEndpoint))
	}
	svc, err := googleoauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed creating google userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		slog.Info("error fetching google profile", "err", err)
		return nil, fmt.Errorf("failed getting user info from google: %w", err)
	}
	if info.Id == "" {
		return nil, ErrMissingSubject
	}
	return &Profile{
		Provider: g.ProviderName,
		ID:       info.Id,
		Name:     info.Name,
		Email:    info.Email,
	}, nil
}
