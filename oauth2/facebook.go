package oauth2

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2/facebook"
)

const facebookUserInfoURL = "https://graph.facebook.com/me?fields=id,name"

type FacebookOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the Graph API profile URL. Can be overridden for testing.
	UserInfoURL string
}

func NewFacebookOAuth2(clientId string, clientSecret string, callbackUrl string) *FacebookOAuth2 {
	return &FacebookOAuth2{
		BaseOAuth2:  NewBaseOAuth2("facebook", clientId, clientSecret, callbackUrl, facebook.Endpoint, []string{"public_profile"}),
		UserInfoURL: facebookUserInfoURL,
	}
}

// Complete finishes the callback: validates state, exchanges the code and
// fetches the user's profile
func (f *FacebookOAuth2) Complete(w http.ResponseWriter, r *http.Request) (*Profile, error) {
	token, err := f.exchange(w, r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, f.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	response, err := f.client(r.Context(), token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info from facebook: %w", err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		slog.Info("facebook profile request failed", "status", response.StatusCode)
		return nil, fmt.Errorf("facebook returned status %d", response.StatusCode)
	}

	var userInfo struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(contents, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	if userInfo.ID == "" {
		return nil, ErrMissingSubject
	}
	return &Profile{
		Provider: f.ProviderName,
		ID:       userInfo.ID,
		Name:     userInfo.Name,
		Email:    userInfo.Email,
	}, nil
}
