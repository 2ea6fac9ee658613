package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/auth/browser"
	"github.com/derandereandi/nea2mqtt/pkg/config"
	"github.com/derandereandi/nea2mqtt/pkg/logging"
	"github.com/derandereandi/nea2mqtt/pkg/mailbox"
)

// Engine owns the token lifecycle: interactive login, scheduled
// refresh, and the sealed on-disk cache. It serializes all token
// mutations; readers get lock-free-cheap snapshot accessors.
type Engine struct {
	cfg      *config.Config
	tokens   *tokenClient
	cache    *tokenCache
	mailbox  mailbox.Client
	clientID string
	log      zerolog.Logger

	// newBrowser is swappable so tests can drive the flow without
	// Chromium.
	newBrowser func() (browser.Interactor, error)

	// authMu serializes login/refresh end to end.
	authMu sync.Mutex

	mu        sync.RWMutex
	tok       *Token
	onRefresh []func()
}

// New builds the engine. mb is nil when no mailbox is configured; the
// engine then fails any 2FA challenge with FailureNoMailbox.
func New(cfg *config.Config, mb mailbox.Client, log zerolog.Logger) *Engine {
	e := &Engine{
		cfg:      cfg,
		tokens:   newTokenClient(cfg.AuthBaseURL),
		cache:    newTokenCache(cfg.TokenCacheFile, cfg.Email, cfg.Password),
		mailbox:  mb,
		clientID: "app-" + uuid.NewString(),
		log:      log.With().Str("component", "auth").Logger(),
	}
	e.newBrowser = func() (browser.Interactor, error) { return browser.New(log) }
	return e
}

// AccessToken returns the current access token, or "" before the first
// successful login. Satisfies the API client's token source.
func (e *Engine) AccessToken() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.tok == nil {
		return ""
	}
	return e.tok.AccessToken
}

// Email returns the account the engine authenticates.
func (e *Engine) Email() string { return e.cfg.Email }

// ClientID is the per-process MQTT client identifier, stable across
// vendor reconnects so the cloud resumes the same session.
func (e *Engine) ClientID() string { return e.clientID }

// OnTokenRefreshed registers a callback invoked after every token
// change. Must be called before EnsureValidToken.
func (e *Engine) OnTokenRefreshed(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRefresh = append(e.onRefresh, fn)
}

// EnsureValidToken makes the engine hold a usable token: cached token
// if still valid, else refresh, else full interactive login.
func (e *Engine) EnsureValidToken(ctx context.Context) error {
	e.authMu.Lock()
	defer e.authMu.Unlock()

	tok := e.current()
	if tok == nil && !e.cfg.ForceFreshLogin {
		cached, err := e.cache.Load()
		switch {
		case errors.Is(err, ErrCacheMismatch):
			e.log.Warn().Msg("token cache unreadable with current credentials, discarding")
			e.cache.Discard()
		case err != nil:
			e.log.Warn().Err(err).Msg("token cache unavailable")
		case cached != nil:
			e.log.Debug().Time("expires_at", cached.ExpiresAt).Msg("loaded cached token")
			tok = cached
		}
	}

	expired := tok == nil || tok.Expired(time.Now()) || e.cfg.ForceTokenExpired
	if !expired {
		e.adopt(tok)
		return nil
	}

	if tok != nil && tok.RefreshToken != "" && !e.cfg.ForceFreshLogin {
		fresh, err := e.tokens.Refresh(ctx, tok.RefreshToken)
		if err == nil {
			e.adopt(fresh)
			return nil
		}
		e.log.Warn().Err(err).Msg("token refresh failed, falling back to interactive login")
	}

	fresh, err := e.login(ctx)
	if err != nil {
		return err
	}
	e.adopt(fresh)
	return nil
}

// Run refreshes the token on the configured interval until ctx ends.
// Failures are logged, never fatal; the bridge keeps its current token
// until the next tick.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TokenRefreshInterval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", e.cfg.TokenRefreshInterval).Msg("token refresh task started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.refreshNow(ctx); err != nil {
				e.log.Error().Err(err).Msg("scheduled token refresh failed, keeping current token")
			}
		}
	}
}

// refreshNow refreshes proactively; a rejected refresh token cascades
// into a full login.
func (e *Engine) refreshNow(ctx context.Context) error {
	e.authMu.Lock()
	defer e.authMu.Unlock()

	tok := e.current()
	if tok != nil && tok.RefreshToken != "" {
		fresh, err := e.tokens.Refresh(ctx, tok.RefreshToken)
		if err == nil {
			e.adopt(fresh)
			return nil
		}
		e.log.Warn().Err(err).Msg("refresh grant failed, retrying with interactive login")
	}

	fresh, err := e.login(ctx)
	if err != nil {
		return err
	}
	e.adopt(fresh)
	return nil
}

func (e *Engine) current() *Token {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tok
}

// adopt installs a token, persists it, and notifies listeners.
func (e *Engine) adopt(tok *Token) {
	e.mu.Lock()
	e.tok = tok
	callbacks := make([]func(), len(e.onRefresh))
	copy(callbacks, e.onRefresh)
	e.mu.Unlock()

	if err := e.cache.Save(tok); err != nil {
		e.log.Warn().Err(err).Msg("could not persist token cache")
	}
	e.log.Info().
		Str("token", logging.ObfuscateToken(tok.AccessToken)).
		Time("expires_at", tok.ExpiresAt).
		Msg("token updated")

	for _, fn := range callbacks {
		fn()
	}
}
