package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Token endpoint path under the identity-service base URL.
const tokenPath = "/token-srv/token"

// expirySkew treats tokens as expired this long before their actual
// expiry so in-flight requests never race the deadline.
const expirySkew = 5 * time.Minute

// ErrTokenRejected marks a token-endpoint refusal (HTTP 400/401); the
// caller falls back to a full interactive login.
var ErrTokenRejected = errors.New("auth: token request rejected")

// Token is one issued token set.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the token should no longer be used at the
// given instant.
func (t *Token) Expired(now time.Time) bool {
	return t.AccessToken == "" || !now.Before(t.ExpiresAt.Add(-expirySkew))
}

// tokenResponse is the endpoint's wire shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// tokenClient performs the two OAuth2 grants against the identity
// service.
type tokenClient struct {
	base string
	http *http.Client
	now  func() time.Time
}

func newTokenClient(baseURL string) *tokenClient {
	return &tokenClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
		now:  time.Now,
	}
}

// Exchange redeems an authorization code with its PKCE verifier.
func (c *tokenClient) Exchange(ctx context.Context, code, verifier string) (*Token, error) {
	return c.post(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {oauthClientID},
		"redirect_uri":  {oauthRedirectURI},
		"code":          {code},
		"code_verifier": {verifier},
	})
}

// Refresh redeems a refresh token for a new token set.
func (c *tokenClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return c.post(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {oauthClientID},
		"refresh_token": {refreshToken},
	})
}

func (c *tokenClient) post(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+tokenPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d %s", ErrTokenRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("token response without access_token")
	}

	return &Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
