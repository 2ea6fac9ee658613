// Package rehauapi is the HTTPS client for the vendor cloud API. It
// fetches the authenticated user payload and full installation
// snapshots, and converts them into the bridge's entity model.
package rehauapi

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

	"github.com/rs/zerolog"
)

// API errors.
var (
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrStatus       = errors.New("api: unexpected status")
)

// TokenSource yields the current access token. Implemented by the auth
// engine.
type TokenSource interface {
	AccessToken() string
}

// Client talks to the vendor REST API.
type Client struct {
	base   string
	email  string
	tokens TokenSource
	http   *http.Client
	log    zerolog.Logger
}

// NewClient creates an API client for the given account.
func NewClient(baseURL, email string, tokens TokenSource, log zerolog.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		email:  email,
		tokens: tokens,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("component", "rehauapi").Logger(),
	}
}

// GetUserData fetches the authenticated user payload, including the
// list of installations with their groups and zones.
func (c *Client) GetUserData(ctx context.Context) (*UserData, error) {
	endpoint := fmt.Sprintf("%s/v2/users/%s/getUserData", c.base, url.PathEscape(c.email))

	var data UserData
	if err := c.get(ctx, endpoint, &data); err != nil {
		return nil, fmt.Errorf("getUserData: %w", err)
	}
	return &data, nil
}

// GetDataOfInstall fetches the full snapshot for the given
// installations. demandID selects the installation of interest;
// installIDs is the complete list the account owns.
func (c *Client) GetDataOfInstall(ctx context.Context, demandID string, installIDs []string) (*UserData, error) {
	endpoint := fmt.Sprintf("%s/v2/users/%s/getDataofInstall?demand=%s&installsList=%s",
		c.base,
		url.PathEscape(c.email),
		url.QueryEscape(demandID),
		url.QueryEscape(strings.Join(installIDs, ",")),
	)

	var data UserData
	if err := c.get(ctx, endpoint, &data); err != nil {
		return nil, fmt.Errorf("getDataofInstall: %w", err)
	}
	return &data, nil
}

// get performs an authenticated GET and decodes the JSON body.
// The vendor expects the raw access token in the Authorization header,
// without a "Bearer" prefix.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.tokens.AccessToken())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
