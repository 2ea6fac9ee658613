package broker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/config"
	"github.com/derandereandi/nea2mqtt/pkg/logging"
	"github.com/derandereandi/nea2mqtt/pkg/tracelog"
)

// Vendor-side connection tuning. The cloud's custom authorizer rejects
// stale tokens, so reconnects always go through the auth engine first.
const (
	vendorKeepAlive          = 60 * time.Second
	vendorConnectTimeout     = 30 * time.Second
	vendorReconnectCooldown  = 15 * time.Second
	vendorReconnectDelay     = 5 * time.Second
	vendorReconnectRetryWait = 30 * time.Second
)

// Local-side reconnect bounds, handled by the client library.
const (
	localRetryInterval = 5 * time.Second
	localMaxBackoff    = 20 * time.Second
)

const healthInterval = 30 * time.Second

// vendorAuthorizerSuffix selects the cloud's token-validating custom
// authorizer; it rides on the MQTT username.
const vendorAuthorizerSuffix = "?x-amz-customauthorizer-name=app-front"

// Credentials is what BrokerLink needs from the auth engine.
type Credentials interface {
	AccessToken() string
	Email() string
	ClientID() string
	EnsureValidToken(ctx context.Context) error
}

// BrokerLink maintains the vendor and local MQTT sessions.
type BrokerLink struct {
	cfg    *config.Config
	creds  Credentials
	tracer tracelog.Tracer
	log    zerolog.Logger

	vendor *session
	local  *session

	// newClient is swappable so tests can run without a broker.
	newClient func(*mqtt.ClientOptions) mqtt.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectMu       sync.Mutex
	reconnecting      bool
	lastVendorAttempt time.Time

	lostMu       sync.Mutex
	onVendorLost []func()

	reconnects atomic.Uint64
}

// New builds the link. A nil tracer disables frame tracing.
func New(cfg *config.Config, creds Credentials, tracer tracelog.Tracer, log zerolog.Logger) *BrokerLink {
	if tracer == nil {
		tracer = tracelog.NoopTracer{}
	}
	log = log.With().Str("component", "broker").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	return &BrokerLink{
		cfg:       cfg,
		creds:     creds,
		tracer:    tracer,
		log:       log,
		vendor:    newSession(tracelog.SessionVendor, tracer, log.With().Str("session", "vendor").Logger()),
		local:     newSession(tracelog.SessionLocal, tracer, log.With().Str("session", "local").Logger()),
		newClient: mqtt.NewClient,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ConnectVendor opens the vendor session. The caller must hold a valid
// token already.
func (b *BrokerLink) ConnectVendor(ctx context.Context) error {
	if err := b.connectVendorOnce(); err != nil {
		return fmt.Errorf("vendor connect: %w", err)
	}
	return nil
}

func (b *BrokerLink) vendorOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.VendorMQTTURL)
	opts.SetClientID(b.creds.ClientID())
	opts.SetUsername(b.creds.Email() + vendorAuthorizerSuffix)
	opts.SetPassword(b.creds.AccessToken())
	opts.SetKeepAlive(vendorKeepAlive)
	opts.SetConnectTimeout(vendorConnectTimeout)
	opts.SetCleanSession(true)
	// Reconnecting without a fresh token is pointless; BrokerLink
	// reconnects by hand after re-authenticating.
	opts.SetAutoReconnect(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.vendorLost(err)
	})
	return opts
}

func (b *BrokerLink) connectVendorOnce() error {
	client := b.newClient(b.vendorOptions())

	tok := client.Connect()
	if !tok.WaitTimeout(vendorConnectTimeout + 5*time.Second) {
		client.Disconnect(0)
		return ErrConnectTimeout
	}
	if err := tok.Error(); err != nil {
		return err
	}

	if err := b.vendor.replaySubscriptions(client); err != nil {
		client.Disconnect(250)
		return fmt.Errorf("restore subscriptions: %w", err)
	}

	b.vendor.setClient(client)
	b.tracer.Log(tracelog.SessionChange(tracelog.SessionVendor, "CONNECTED"))
	b.log.Info().
		Str("email", logging.ObfuscateEmail(b.creds.Email())).
		Str("client_id", b.creds.ClientID()).
		Msg("vendor session connected")
	b.vendor.notifyConnected()
	return nil
}

func (b *BrokerLink) vendorLost(err error) {
	b.tracer.Log(tracelog.SessionChange(tracelog.SessionVendor, "DISCONNECTED"))
	b.log.Warn().Err(err).Msg("vendor session lost")
	b.notifyVendorLost()
	b.triggerVendorReconnect()
}

// notifyVendorLost runs the disconnect callbacks; entity availability
// flips offline here.
func (b *BrokerLink) notifyVendorLost() {
	b.lostMu.Lock()
	callbacks := make([]func(), len(b.onVendorLost))
	copy(callbacks, b.onVendorLost)
	b.lostMu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// triggerVendorReconnect starts the reconnect goroutine unless one is
// already running.
func (b *BrokerLink) triggerVendorReconnect() {
	b.reconnectMu.Lock()
	if b.reconnecting {
		b.reconnectMu.Unlock()
		return
	}
	b.reconnecting = true
	b.reconnectMu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.reconnectVendor()
	}()
}

// reconnectVendor loops until the vendor session is back or the link
// closes: cooldown, settle delay, re-auth, teardown, fresh session with
// subscription replay.
func (b *BrokerLink) reconnectVendor() {
	defer func() {
		b.reconnectMu.Lock()
		b.reconnecting = false
		b.reconnectMu.Unlock()
	}()

	b.reconnectMu.Lock()
	since := time.Since(b.lastVendorAttempt)
	b.reconnectMu.Unlock()
	if since < vendorReconnectCooldown {
		if !b.sleep(vendorReconnectCooldown - since) {
			return
		}
	}

	for attempt := 1; ; attempt++ {
		b.reconnects.Add(1)
		b.reconnectMu.Lock()
		b.lastVendorAttempt = time.Now()
		b.reconnectMu.Unlock()

		// Give the cloud a moment to drop the old session server-side.
		if !b.sleep(vendorReconnectDelay) {
			return
		}

		if err := b.creds.EnsureValidToken(b.ctx); err != nil {
			b.log.Error().Err(err).Int("attempt", attempt).Msg("re-authentication failed, retrying")
			if !b.sleep(vendorReconnectRetryWait) {
				return
			}
			continue
		}

		b.vendor.teardown()
		if err := b.connectVendorOnce(); err != nil {
			b.log.Error().Err(err).Int("attempt", attempt).Msg("vendor reconnect failed, retrying")
			if !b.sleep(vendorReconnectRetryWait) {
				return
			}
			continue
		}

		b.log.Info().Int("attempt", attempt).Msg("vendor session recovered")
		return
	}
}

// ConnectLocal opens the local session, resolving the broker via mDNS
// when configured with AutoHost. The library reconnects on its own.
func (b *BrokerLink) ConnectLocal(ctx context.Context) error {
	host, port, err := ResolveBroker(ctx, b.cfg.MQTTHost, b.cfg.MQTTPort, b.log)
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID("nea2mqtt-" + uuid.NewString()[:8])
	if b.cfg.MQTTUser != "" {
		opts.SetUsername(b.cfg.MQTTUser)
		opts.SetPassword(b.cfg.MQTTPassword)
	}
	opts.SetKeepAlive(vendorKeepAlive)
	opts.SetConnectTimeout(vendorConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(localMaxBackoff)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(localRetryInterval)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.tracer.Log(tracelog.SessionChange(tracelog.SessionLocal, "CONNECTED"))
		b.log.Info().Str("host", host).Int("port", port).Msg("local session connected")
		if err := b.local.replaySubscriptions(c); err != nil {
			b.log.Error().Err(err).Msg("could not restore local subscriptions")
		}
		b.local.notifyConnected()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.tracer.Log(tracelog.SessionChange(tracelog.SessionLocal, "DISCONNECTED"))
		b.log.Warn().Err(err).Msg("local session lost, library reconnecting")
	})

	client := b.newClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(vendorConnectTimeout + 5*time.Second) {
		client.Disconnect(0)
		return ErrConnectTimeout
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("local connect: %w", err)
	}

	b.local.setClient(client)
	return nil
}

// PublishVendor sends a frame to the vendor cloud. A failed publish on
// an established session means the connection is bad even when the
// client still reports itself connected, so it kicks the reconnect.
func (b *BrokerLink) PublishVendor(topic string, payload []byte) error {
	err := b.vendor.publish(topic, payload, false)
	if err != nil && b.vendor.hasSubscriptions() {
		b.log.Warn().Err(err).Str("topic", topic).Msg("vendor publish failed, reconnecting")
		b.triggerVendorReconnect()
	}
	return err
}

// PublishLocal sends a frame to the automation broker.
func (b *BrokerLink) PublishLocal(topic string, payload []byte, retain bool) error {
	return b.local.publish(topic, payload, retain)
}

// SubscribeVendor subscribes on the vendor session; the topic survives
// reconnects.
func (b *BrokerLink) SubscribeVendor(topic string) error {
	return b.vendor.subscribe(topic)
}

// SubscribeLocal subscribes on the local session; the topic survives
// reconnects.
func (b *BrokerLink) SubscribeLocal(topic string) error {
	return b.local.subscribe(topic)
}

// OnVendorMessage registers a handler for all vendor frames and returns
// its remover.
func (b *BrokerLink) OnVendorMessage(fn MessageHandler) func() {
	return b.vendor.addHandler(fn)
}

// OnLocalMessage registers a handler for all local frames and returns
// its remover.
func (b *BrokerLink) OnLocalMessage(fn MessageHandler) func() {
	return b.local.addHandler(fn)
}

// OnVendorConnect registers a callback run after every vendor
// (re)connect.
func (b *BrokerLink) OnVendorConnect(fn func()) {
	b.vendor.addConnectHandler(fn)
}

// OnVendorDisconnect registers a callback run whenever the vendor
// session is lost, dropped, or found dead.
func (b *BrokerLink) OnVendorDisconnect(fn func()) {
	b.lostMu.Lock()
	defer b.lostMu.Unlock()
	b.onVendorLost = append(b.onVendorLost, fn)
}

// OnLocalConnect registers a callback run after every local
// (re)connect; discovery re-emits its configs here.
func (b *BrokerLink) OnLocalConnect(fn func()) {
	b.local.addConnectHandler(fn)
}

// VendorConnected reports the vendor session state.
func (b *BrokerLink) VendorConnected() bool { return b.vendor.isConnected() }

// LocalConnected reports the local session state.
func (b *BrokerLink) LocalConnected() bool { return b.local.isConnected() }

// VendorMessagesIn counts frames received from the vendor cloud.
func (b *BrokerLink) VendorMessagesIn() uint64 { return b.vendor.in.Load() }

// VendorMessagesOut counts frames published to the vendor cloud.
func (b *BrokerLink) VendorMessagesOut() uint64 { return b.vendor.out.Load() }

// VendorReconnects counts vendor reconnect attempts.
func (b *BrokerLink) VendorReconnects() uint64 { return b.reconnects.Load() }

// DropVendor force-kills the vendor session and lets the normal
// recovery path bring it back. Exists for fault-injection testing.
func (b *BrokerLink) DropVendor() {
	b.log.Warn().Msg("dropping vendor session on request")
	b.vendor.teardown()
	b.tracer.Log(tracelog.SessionChange(tracelog.SessionVendor, "DISCONNECTED"))
	b.notifyVendorLost()
	b.triggerVendorReconnect()
}

// Run is the periodic health check. The local library heals itself; the
// vendor side is re-kicked here if a disconnect slipped past the lost
// handler.
func (b *BrokerLink) Run(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vendorUp, localUp := b.VendorConnected(), b.LocalConnected()
			b.log.Debug().Bool("vendor", vendorUp).Bool("local", localUp).Msg("session health")
			if !vendorUp {
				b.reconnectMu.Lock()
				busy := b.reconnecting
				b.reconnectMu.Unlock()
				if !busy {
					b.log.Warn().Msg("vendor session found dead by health check")
					b.notifyVendorLost()
					b.triggerVendorReconnect()
				}
			}
		}
	}
}

// Close tears both sessions down and stops the reconnect machinery.
func (b *BrokerLink) Close() {
	b.cancel()
	b.wg.Wait()
	b.vendor.teardown()
	b.local.teardown()
	b.tracer.Log(tracelog.SessionChange(tracelog.SessionVendor, "CLOSED"))
	b.tracer.Log(tracelog.SessionChange(tracelog.SessionLocal, "CLOSED"))
}

// sleep waits d unless the link closes first.
func (b *BrokerLink) sleep(d time.Duration) bool {
	select {
	case <-b.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
