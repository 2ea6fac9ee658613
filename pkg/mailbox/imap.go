package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/derandereandi/nea2mqtt/pkg/config"
	"github.com/derandereandi/nea2mqtt/pkg/logging"
)

// imapClient serves the gmail and outlook providers. Both demand OAuth2;
// app passwords are gone, so the bridge mints short-lived access tokens
// from a long-lived refresh token and authenticates with SASL XOAUTH2.
// Like the POP3 provider it connects per operation, which sidesteps
// server-side idle timeouts during the long 2FA wait.
type imapClient struct {
	addr   string
	user   string
	tokens oauth2.TokenSource
	log    zerolog.Logger
}

func newIMAPClient(cfg config.MailboxConfig, log zerolog.Logger) (*imapClient, error) {
	var (
		addr     string
		tokenURL string
		scopes   []string
	)
	switch cfg.Provider {
	case config.MailboxGmail:
		addr = "imap.gmail.com:993"
		tokenURL = "https://oauth2.googleapis.com/token"
		scopes = []string{"https://mail.google.com/"}
	case config.MailboxOutlook:
		addr = "outlook.office365.com:993"
		tokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
		scopes = []string{"https://outlook.office.com/IMAP.AccessAsUser.All", "offline_access"}
	default:
		return nil, fmt.Errorf("mailbox: provider %q is not an IMAP provider", cfg.Provider)
	}
	if cfg.Host != "" {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		Scopes:       scopes,
	}
	seed := &oauth2.Token{RefreshToken: cfg.RefreshToken}

	return &imapClient{
		addr: addr,
		user: cfg.User,
		// ReuseTokenSource keeps the minted access token until expiry
		// instead of hitting the token endpoint every poll.
		tokens: oauth2.ReuseTokenSource(nil, oc.TokenSource(context.Background(), seed)),
		log:    log.With().Str("component", "mailbox").Str("provider", cfg.Provider).Logger(),
	}, nil
}

// connect dials and authenticates; callers select INBOX themselves to
// get a fresh message count.
func (c *imapClient) connect() (*imapclient.Client, error) {
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("imap oauth token for %s: %w", logging.ObfuscateEmail(c.user), err)
	}

	conn, err := imapclient.DialTLS(c.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", c.addr, err)
	}
	if err := conn.Authenticate(newXOAuth2Client(c.user, tok.AccessToken)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("imap auth %s: %w", logging.ObfuscateEmail(c.user), err)
	}
	return conn, nil
}

func (c *imapClient) close(conn *imapclient.Client) {
	if err := conn.Logout().Wait(); err != nil {
		_ = conn.Close()
	}
}

func (c *imapClient) MessageCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	conn, err := c.connect()
	if err != nil {
		return 0, err
	}
	defer c.close(conn)

	sel, err := conn.Select("INBOX", nil).Wait()
	if err != nil {
		return 0, fmt.Errorf("imap select INBOX: %w", err)
	}
	return int(sel.NumMessages), nil
}

func (c *imapClient) WaitForNewMessageFrom(ctx context.Context, sender string, baseline int, deadline time.Time) (*Message, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		msg, err := c.checkOnce(sender, baseline)
		if err != nil {
			c.log.Warn().Err(err).Msg("mailbox poll failed, retrying")
		} else if msg != nil {
			return msg, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *imapClient) checkOnce(sender string, baseline int) (*Message, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer c.close(conn)

	sel, err := conn.Select("INBOX", nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap select INBOX: %w", err)
	}
	count := int(sel.NumMessages)

	bodySection := &imap.FetchItemBodySection{}
	for n := baseline + 1; n <= count; n++ {
		seq := imap.SeqSetNum(uint32(n))
		msgs, err := conn.Fetch(seq, &imap.FetchOptions{
			Envelope:    true,
			BodySection: []*imap.FetchItemBodySection{bodySection},
		}).Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch %d: %w", n, err)
		}
		if len(msgs) == 0 || msgs[0].Envelope == nil {
			continue
		}

		env := msgs[0].Envelope
		from := ""
		if len(env.From) > 0 {
			from = env.From[0].Addr()
		}
		if !fromMatches(from, sender) {
			continue
		}

		return &Message{
			Number:  n,
			From:    from,
			Subject: env.Subject,
			Body:    string(msgs[0].FindBodySection(bodySection)),
		}, nil
	}
	return nil, nil
}

func (c *imapClient) Delete(ctx context.Context, number int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := c.connect()
	if err != nil {
		return err
	}
	defer c.close(conn)

	if _, err := conn.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("imap select INBOX: %w", err)
	}
	seq := imap.SeqSetNum(uint32(number))
	if err := conn.Store(seq, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil).Close(); err != nil {
		return fmt.Errorf("imap store deleted %d: %w", number, err)
	}
	if err := conn.Expunge().Close(); err != nil {
		return fmt.Errorf("imap expunge: %w", err)
	}
	return nil
}

// Close is a no-op; sessions are per-operation.
func (c *imapClient) Close() error { return nil }
