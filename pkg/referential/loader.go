package referential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/broker"
	"github.com/derandereandi/nea2mqtt/pkg/wire"
)

// responseWait bounds how long a load waits for the vendor's
// asynchronous referential reply before giving up and de-registering
// its handler.
const responseWait = 10 * time.Second

// ErrLoadTimeout means the vendor never answered the referential
// request; the store keeps its current dictionary (or the fallbacks).
var ErrLoadTimeout = errors.New("referential: no response within deadline")

// TokenSource yields the current access token for request signing.
type TokenSource interface {
	AccessToken() string
}

// Link is the slice of the broker the loader needs.
type Link interface {
	SubscribeVendor(topic string) error
	PublishVendor(topic string, payload []byte) error
	OnVendorMessage(fn broker.MessageHandler) func()
}

// Loader fetches the dictionary over the vendor session: it publishes
// a request and picks the referential reply off the user topic with a
// one-shot handler.
type Loader struct {
	store  *Store
	link   Link
	email  string
	tokens TokenSource
	log    zerolog.Logger

	interval time.Duration
	wait     time.Duration
}

// NewLoader wires a loader for the given account. interval is the
// periodic reload cadence used by Run.
func NewLoader(store *Store, link Link, email string, tokens TokenSource, interval time.Duration, log zerolog.Logger) *Loader {
	return &Loader{
		store:    store,
		link:     link,
		email:    email,
		tokens:   tokens,
		log:      log.With().Str("component", "referential").Logger(),
		interval: interval,
		wait:     responseWait,
	}
}

// Load requests the dictionary and blocks until the reply is applied,
// the wait elapses (ErrLoadTimeout), or ctx is cancelled. The reply
// handler always de-registers on return.
func (l *Loader) Load(ctx context.Context) error {
	// The reply arrives on the user topic; the route must exist before
	// the request goes out. The subscription set is durable, so
	// repeating this on reloads is harmless.
	if err := l.link.SubscribeVendor(broker.UserTopic(l.email)); err != nil {
		return fmt.Errorf("subscribe user topic: %w", err)
	}

	done := make(chan error, 1)
	var once sync.Once

	remove := l.link.OnVendorMessage(func(_ string, payload []byte) {
		msg, err := wire.Decode(payload)
		if err != nil || msg.Kind != wire.KindReferential {
			return
		}
		once.Do(func() { done <- l.store.LoadBlob(msg.Referential.Blob) })
	})
	defer remove()

	req, err := wire.NewReferentialRequest(l.email, l.tokens.AccessToken()).Encode()
	if err != nil {
		return err
	}
	if err := l.link.PublishVendor(broker.ReferentialRequestTopic(l.email), req); err != nil {
		return fmt.Errorf("publish referential request: %w", err)
	}

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		l.log.Info().Int("entries", l.store.Size()).Msg("referential dictionary loaded")
		return nil
	case <-time.After(l.wait):
		return ErrLoadTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run reloads the dictionary on the configured interval. Failures keep
// the current dictionary and are retried on the next tick.
func (l *Loader) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Load(ctx); err != nil {
				l.log.Warn().Err(err).Msg("referential reload failed, keeping current dictionary")
			}
		}
	}
}
