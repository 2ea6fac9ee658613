package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// pkce holds the per-login proof-key material (RFC 7636, S256).
type pkce struct {
	Verifier  string
	Challenge string
	Nonce     string
	State     string
}

// newPKCE generates a fresh verifier/challenge pair plus nonce and
// state for one authorization attempt.
func newPKCE() (*pkce, error) {
	verifier, err := randomURLSafe(32)
	if err != nil {
		return nil, err
	}
	nonce, err := randomURLSafe(16)
	if err != nil {
		return nil, err
	}
	state, err := randomURLSafe(16)
	if err != nil {
		return nil, err
	}
	return &pkce{
		Verifier:  verifier,
		Challenge: challengeS256(verifier),
		Nonce:     nonce,
		State:     state,
	}, nil
}

// challengeS256 is base64url(SHA256(verifier)) without padding.
func challengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomURLSafe returns n random bytes base64url-encoded, unpadded.
func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
