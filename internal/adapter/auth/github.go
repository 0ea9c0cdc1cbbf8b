package auth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
)

const (
	githubAuthURL    = "https://github.com/login/oauth/authorize"
	githubTokenURL   = "https://github.com/login/oauth/access_token"
	githubProfileURL = "https://api.github.com/user"
	githubEmailsURL  = "https://api.github.com/user/emails"

	githubAccept = "application/vnd.github+json"
)

// GitHubProvider implements port.AuthProvider for GitHub OAuth.
type GitHubProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
}

// NewGitHubProvider creates a new GitHub OAuth provider.
func NewGitHubProvider(clientID, clientSecret, redirectURL string) *GitHubProvider {
	return &GitHubProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
	}
}

// ProviderName returns "github".
func (g *GitHubProvider) ProviderName() string {
	return "github"
}

// AuthURL returns the GitHub OAuth consent screen URL.
// Only identity scopes are requested, the app never touches repos.
func (g *GitHubProvider) AuthURL(state string) string {
	params := url.Values{
		"client_id":    {g.clientID},
		"redirect_uri": {g.redirectURL},
		"scope":        {"user:email read:user"},
		"state":        {state},
	}
	return githubAuthURL + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for tokens.
func (g *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*domain.TokenPair, error) {
	form := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"code":          {code},
		"redirect_uri":  {g.redirectURL},
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		Error       string `json:"error"`
		ErrorDesc   string `json:"error_description"`
	}
	if err := postForm(ctx, githubTokenURL, form.Encode(), &tokenResp); err != nil {
		return nil, fmt.Errorf("github: token exchange: %w", err)
	}
	if tokenResp.Error != "" {
		return nil, fmt.Errorf("github: %s: %s", tokenResp.Error, tokenResp.ErrorDesc)
	}

	return &domain.TokenPair{
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
	}, nil
}

// GetUserProfile fetches the GitHub user profile using an access token.
func (g *GitHubProvider) GetUserProfile(ctx context.Context, accessToken string) (*domain.User, error) {
	var profile struct {
		ID        int    `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, githubProfileURL, accessToken, githubAccept, &profile); err != nil {
		return nil, fmt.Errorf("github: fetch profile: %w", err)
	}

	// Private emails are absent from /user and need a second call
	email := profile.Email
	if email == "" {
		email, _ = g.fetchPrimaryEmail(ctx, accessToken)
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	return &domain.User{
		Email:      email,
		Name:       name,
		AvatarURL:  profile.AvatarURL,
		Provider:   "github",
		ProviderID: fmt.Sprintf("%d", profile.ID),
	}, nil
}

// fetchPrimaryEmail gets the user's primary verified email from /user/emails.
func (g *GitHubProvider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, githubEmailsURL, accessToken, githubAccept, &emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, nil
	}
	return "", fmt.Errorf("no email found")
}
