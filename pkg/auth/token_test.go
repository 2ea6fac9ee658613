package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		tok  Token
		want bool
	}{
		{"fresh", Token{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}, false},
		{"within skew", Token{AccessToken: "a", ExpiresAt: now.Add(4 * time.Minute)}, true},
		{"exactly at skew boundary", Token{AccessToken: "a", ExpiresAt: now.Add(5 * time.Minute)}, true},
		{"just outside skew", Token{AccessToken: "a", ExpiresAt: now.Add(5*time.Minute + time.Second)}, false},
		{"past expiry", Token{AccessToken: "a", ExpiresAt: now.Add(-time.Hour)}, true},
		{"no access token", Token{ExpiresAt: now.Add(time.Hour)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExchange(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotForm = map[string]string{
			"grant_type":    r.Form.Get("grant_type"),
			"code":          r.Form.Get("code"),
			"code_verifier": r.Form.Get("code_verifier"),
			"client_id":     r.Form.Get("client_id"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
	}))
	defer srv.Close()

	c := newTokenClient(srv.URL)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	tok, err := c.Exchange(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	if gotForm["grant_type"] != "authorization_code" ||
		gotForm["code"] != "the-code" ||
		gotForm["code_verifier"] != "the-verifier" ||
		gotForm["client_id"] != oauthClientID {
		t.Errorf("form = %v", gotForm)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
		t.Errorf("token = %+v", tok)
	}
	if !tok.ExpiresAt.Equal(base.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", tok.ExpiresAt)
	}
}

func TestRefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	c := newTokenClient(srv.URL)
	_, err := c.Refresh(context.Background(), "stale")
	if !errors.Is(err, ErrTokenRejected) {
		t.Errorf("error = %v, want ErrTokenRejected", err)
	}
}
