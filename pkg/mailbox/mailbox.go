package mailbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/config"
)

// Mailbox errors.
var (
	ErrNoMailbox = errors.New("mailbox: no provider configured")
	ErrTimeout   = errors.New("mailbox: timed out waiting for message")
	ErrNoCode    = errors.New("mailbox: message contains no verification code")
)

// pollInterval is how often the mailbox is re-checked while waiting for
// the verification mail.
const pollInterval = 5 * time.Second

// Message is one fetched mail, reduced to what code extraction needs.
type Message struct {
	// Number is the provider-specific message ordinal, valid for Delete
	// until the mailbox changes.
	Number  int
	From    string
	Subject string
	Body    string
}

// Client is the mailbox polled for 2FA verification codes. Implemented
// over POP3 for plain providers and IMAP for gmail/outlook.
type Client interface {
	// MessageCount returns the current number of messages, used as the
	// baseline before triggering the verification mail.
	MessageCount(ctx context.Context) (int, error)

	// WaitForNewMessageFrom polls until a message beyond the baseline
	// from the given sender appears, the deadline passes (ErrTimeout),
	// or ctx is cancelled.
	WaitForNewMessageFrom(ctx context.Context, sender string, baseline int, deadline time.Time) (*Message, error)

	// Delete removes the message. Best effort; callers log and continue
	// on failure.
	Delete(ctx context.Context, number int) error

	Close() error
}

// codePattern matches the six-digit verification code in the mail body.
var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// ExtractCode returns the first six-digit run in the body.
func ExtractCode(body string) (string, error) {
	code := codePattern.FindString(body)
	if code == "" {
		return "", ErrNoCode
	}
	return code, nil
}

// New builds the mailbox client for the configured provider.
func New(cfg config.MailboxConfig, log zerolog.Logger) (Client, error) {
	switch cfg.Provider {
	case config.MailboxNone:
		return nil, ErrNoMailbox
	case config.MailboxBasic:
		return newPOP3Client(cfg, log), nil
	case config.MailboxGmail, config.MailboxOutlook:
		return newIMAPClient(cfg, log)
	default:
		return nil, fmt.Errorf("mailbox: unknown provider %q", cfg.Provider)
	}
}

// fromMatches reports whether a From header value carries the sender
// address. Headers arrive either bare or as `Display Name <addr>`.
func fromMatches(header, sender string) bool {
	return sender != "" &&
		strings.Contains(strings.ToLower(header), strings.ToLower(sender))
}
