// Package logging configures the application logger and provides the
// obfuscation helpers used when credentials appear in log output.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger. Format "console" writes human-readable
// output to stderr; anything else writes JSON to stdout.
func New(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().
			Timestamp().
			Logger().
			Level(lvl)
	}
	return zerolog.New(os.Stdout).With().
		Timestamp().
		Logger().
		Level(lvl)
}

// ObfuscateEmail masks the local part of an address, keeping the first
// and last character: "johndoe@example.com" -> "j*****e@example.com".
func ObfuscateEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return Redact(email)
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + domain
}

// Redact masks a secret completely, preserving only its length class.
func Redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return "********"
}

// ObfuscateToken keeps the first and last four characters of a token so
// two tokens can be told apart in logs without leaking either.
func ObfuscateToken(token string) string {
	if len(token) <= 12 {
		return Redact(token)
	}
	return token[:4] + "..." + token[len(token)-4:]
}
