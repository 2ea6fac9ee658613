package mailbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/knadh/go-pop3"
	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/config"
	"github.com/derandereandi/nea2mqtt/pkg/logging"
)

// pop3Client is the "basic" provider. POP3 sessions see a frozen
// mailbox snapshot, so every operation opens a fresh connection.
type pop3Client struct {
	pool *pop3.Client
	user string
	pass string
	log  zerolog.Logger
}

func newPOP3Client(cfg config.MailboxConfig, log zerolog.Logger) *pop3Client {
	return &pop3Client{
		pool: pop3.New(pop3.Opt{
			Host:        cfg.Host,
			Port:        cfg.Port,
			TLSEnabled:  cfg.TLS,
			DialTimeout: 15 * time.Second,
		}),
		user: cfg.User,
		pass: cfg.Password,
		log:  log.With().Str("component", "mailbox").Str("provider", "pop3").Logger(),
	}
}

// connect dials and authenticates a new session.
func (c *pop3Client) connect() (*pop3.Conn, error) {
	conn, err := c.pool.NewConn()
	if err != nil {
		return nil, fmt.Errorf("pop3 connect: %w", err)
	}
	if err := conn.Auth(c.user, c.pass); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("pop3 auth %s: %w", logging.ObfuscateEmail(c.user), err)
	}
	return conn, nil
}

func (c *pop3Client) MessageCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	conn, err := c.connect()
	if err != nil {
		return 0, err
	}
	defer conn.Quit()

	count, _, err := conn.Stat()
	if err != nil {
		return 0, fmt.Errorf("pop3 stat: %w", err)
	}
	return count, nil
}

func (c *pop3Client) WaitForNewMessageFrom(ctx context.Context, sender string, baseline int, deadline time.Time) (*Message, error) {
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

// checkOnce opens a session and scans messages beyond the baseline.
func (c *pop3Client) checkOnce(sender string, baseline int) (*Message, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	count, _, err := conn.Stat()
	if err != nil {
		return nil, fmt.Errorf("pop3 stat: %w", err)
	}

	for n := baseline + 1; n <= count; n++ {
		// Headers only first; most new mail is not the verification mail.
		head, err := conn.Top(n, 0)
		if err != nil {
			return nil, fmt.Errorf("pop3 top %d: %w", n, err)
		}
		from := head.Header.Get("From")
		if !fromMatches(from, sender) {
			continue
		}

		full, err := conn.Retr(n)
		if err != nil {
			return nil, fmt.Errorf("pop3 retr %d: %w", n, err)
		}
		body, err := io.ReadAll(full.Body)
		if err != nil {
			return nil, fmt.Errorf("pop3 read body %d: %w", n, err)
		}
		return &Message{
			Number:  n,
			From:    from,
			Subject: full.Header.Get("Subject"),
			Body:    string(body),
		}, nil
	}
	return nil, nil
}

func (c *pop3Client) Delete(ctx context.Context, number int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := c.connect()
	if err != nil {
		return err
	}
	defer conn.Quit()

	if err := conn.Dele(number); err != nil {
		return fmt.Errorf("pop3 dele %d: %w", number, err)
	}
	return nil
}

// Close is a no-op; sessions are per-operation.
func (c *pop3Client) Close() error { return nil }
