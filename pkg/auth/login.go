package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/derandereandi/nea2mqtt/pkg/auth/browser"
	"github.com/derandereandi/nea2mqtt/pkg/logging"
	"github.com/derandereandi/nea2mqtt/pkg/mailbox"
)

// OAuth2 client registration of the vendor mobile app.
const (
	oauthClientID    = "nea2-app"
	oauthRedirectURI = "https://app.nea2aws.aws.rehau.cloud/login"
	oauthScope       = "openid profile email offline_access"
	authorizePath    = "/authorize-srv/authorize"
)

// DOM ids on the identity-service login pages.
const (
	idEmailField    = "signInName"
	idPasswordField = "password"
	idSignInButton  = "next"
	idCodeField     = "verificationCode"
	idVerifyButton  = "verifyCode"
)

// codePromptWait is how long after submitting credentials the flow
// watches for the 2FA code prompt before assuming none will come.
const codePromptWait = 10 * time.Second

// FailureKind classifies interactive-login failures.
type FailureKind int

const (
	FailureNoMailbox FailureKind = iota + 1
	FailureMailboxTimeout
	FailureNoCode
	FailureCodeRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureNoMailbox:
		return "no mailbox configured"
	case FailureMailboxTimeout:
		return "verification mail never arrived"
	case FailureNoCode:
		return "no code in verification mail"
	case FailureCodeRejected:
		return "verification code rejected"
	default:
		return "unknown"
	}
}

// LoginError is an interactive-login failure with its classification.
type LoginError struct {
	Kind FailureKind
	Err  error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("login failed: %s", e.Kind)
}

func (e *LoginError) Unwrap() error { return e.Err }

// login runs the full interactive authorization-code flow and exchanges
// the resulting code for tokens.
func (e *Engine) login(ctx context.Context) (*Token, error) {
	e.log.Info().Str("email", logging.ObfuscateEmail(e.cfg.Email)).Msg("starting interactive login")

	prov, err := e.newBrowser()
	if err != nil {
		return nil, err
	}
	defer prov.Cleanup()

	pk, err := newPKCE()
	if err != nil {
		return nil, err
	}

	if err := prov.Navigate(ctx, e.authorizeURL(pk)); err != nil {
		return nil, err
	}
	if err := prov.WaitVisible(ctx, idEmailField, browser.ElementTimeout); err != nil {
		return nil, fmt.Errorf("login form: %w", err)
	}
	if err := prov.Type(ctx, idEmailField, e.cfg.Email); err != nil {
		return nil, err
	}
	if err := prov.Type(ctx, idPasswordField, e.cfg.Password); err != nil {
		return nil, err
	}

	// Snapshot the mailbox before submitting; submitting is what
	// triggers the verification mail when 2FA is armed.
	baseline := 0
	if e.mailbox != nil {
		if baseline, err = e.mailbox.MessageCount(ctx); err != nil {
			e.log.Warn().Err(err).Msg("mailbox baseline unavailable, assuming empty")
			baseline = 0
		}
	}

	if err := prov.Click(ctx, idSignInButton); err != nil {
		return nil, err
	}

	if err := prov.WaitVisible(ctx, idCodeField, codePromptWait); err == nil {
		if err := e.answerChallenge(ctx, prov, baseline); err != nil {
			return nil, err
		}
	}

	redirected, err := prov.WaitURLPrefix(ctx, oauthRedirectURI, browser.RedirectTimeout)
	if err != nil {
		// Still sitting on the code prompt means the vendor refused the
		// code we typed.
		if vErr := prov.WaitVisible(ctx, idCodeField, 2*time.Second); vErr == nil {
			return nil, &LoginError{Kind: FailureCodeRejected, Err: err}
		}
		return nil, fmt.Errorf("await redirect: %w", err)
	}

	code, err := extractAuthCode(redirected)
	if err != nil {
		return nil, err
	}

	tok, err := e.tokens.Exchange(ctx, code, pk.Verifier)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	e.log.Info().Time("expires_at", tok.ExpiresAt).Msg("interactive login succeeded")
	return tok, nil
}

// answerChallenge runs the email 2FA sub-flow: wait for the
// verification mail, type its code, submit, then best-effort delete the
// mail.
func (e *Engine) answerChallenge(ctx context.Context, prov browser.Interactor, baseline int) error {
	if e.mailbox == nil {
		return &LoginError{Kind: FailureNoMailbox}
	}
	e.log.Info().Msg("2fa challenge presented, waiting for verification mail")

	deadline := time.Now().Add(e.cfg.Mailbox.Timeout)
	msg, err := e.mailbox.WaitForNewMessageFrom(ctx, e.cfg.Mailbox.Sender, baseline, deadline)
	if err != nil {
		if errors.Is(err, mailbox.ErrTimeout) {
			return &LoginError{Kind: FailureMailboxTimeout, Err: err}
		}
		return fmt.Errorf("wait for verification mail: %w", err)
	}

	code, err := mailbox.ExtractCode(msg.Body)
	if err != nil {
		return &LoginError{Kind: FailureNoCode, Err: err}
	}

	if err := prov.Type(ctx, idCodeField, code); err != nil {
		return err
	}
	if err := prov.Click(ctx, idVerifyButton); err != nil {
		return err
	}

	if err := e.mailbox.Delete(ctx, msg.Number); err != nil {
		e.log.Warn().Err(err).Int("message", msg.Number).Msg("could not delete verification mail")
	}
	return nil
}

func (e *Engine) authorizeURL(pk *pkce) string {
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {oauthClientID},
		"redirect_uri":          {oauthRedirectURI},
		"scope":                 {oauthScope},
		"code_challenge":        {pk.Challenge},
		"code_challenge_method": {"S256"},
		"nonce":                 {pk.Nonce},
		"state":                 {pk.State},
	}
	return e.cfg.AuthBaseURL + authorizePath + "?" + q.Encode()
}

func extractAuthCode(redirected string) (string, error) {
	u, err := url.Parse(redirected)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect %s carries no code parameter", u.Path)
	}
	return code, nil
}
