package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrCacheMismatch means the cache file could not be opened with the
// current credentials; the caller discards it and logs in fresh.
var ErrCacheMismatch = errors.New("auth: token cache does not match credentials")

// tokenCache persists the token set sealed under a key derived from the
// account credentials. A stolen cache file is useless without them, and
// changing the account password invalidates the cache on its own.
type tokenCache struct {
	path string
	key  []byte
}

// newTokenCache derives the sealing key. An empty path disables
// persistence; Load then misses and Save is a no-op.
func newTokenCache(path, email, password string) *tokenCache {
	kdf := hkdf.New(sha256.New, []byte(password), []byte("nea2mqtt/"+email), []byte("token-cache"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		// hkdf over sha256 cannot fail for a single key block.
		panic(fmt.Sprintf("hkdf: %v", err))
	}
	return &tokenCache{path: path, key: key}
}

// Load reads and opens the cached token set. A missing file returns
// (nil, nil); a file sealed under different credentials returns
// ErrCacheMismatch.
func (c *tokenCache) Load() (*Token, error) {
	if c.path == "" {
		return nil, nil
	}
	blob, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token cache: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize() {
		return nil, ErrCacheMismatch
	}
	nonce, sealed := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrCacheMismatch
	}

	var tok Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return nil, ErrCacheMismatch
	}
	return &tok, nil
}

// Save seals and writes the token set atomically with mode 0600.
func (c *tokenCache) Save(tok *Token) error {
	if c.path == "" {
		return nil
	}
	plain, err := json.Marshal(tok)
	if err != nil {
		return err
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("read random: %w", err)
	}
	blob := aead.Seal(nonce, nonce, plain, nil)

	tmp := c.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace token cache: %w", err)
	}
	return nil
}

// Discard removes the cache file.
func (c *tokenCache) Discard() {
	if c.path != "" {
		_ = os.Remove(c.path)
	}
}
