package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/broker"
	"github.com/derandereandi/nea2mqtt/pkg/model"
	"github.com/derandereandi/nea2mqtt/pkg/referential"
	"github.com/derandereandi/nea2mqtt/pkg/wire"
)

// retryTick is how often pending commands are checked against the
// retry timeout.
const retryTick = 5 * time.Second

// autoConfirmDelay is the grace period before a ring/lock write is
// considered applied.
const autoConfirmDelay = 2 * time.Second

// Publisher is the vendor-side publish surface the engine needs.
type Publisher interface {
	PublishVendor(topic string, payload []byte) error
}

// Keys resolves symbolic field names to vendor numeric keys.
type Keys interface {
	NumberFor(name string) string
}

// pending is the single outstanding command of one installation.
type pending struct {
	id      uint64
	cmd     *Command
	sentAt  time.Time
	retries int
}

// Engine owns the per-installation pending-command slots.
type Engine struct {
	link Publisher
	keys Keys
	log  zerolog.Logger

	retryTimeout time.Duration
	maxRetries   int
	useGroup     bool

	mu      sync.Mutex
	nextID  uint64
	pending map[string]*pending // by installation id

	// sendMu serializes slot registration with the wire publish so
	// frames leave in registration order.
	sendMu sync.Mutex

	// Metrics hooks; set before Run.
	onRetry func()
	onDrop  func()
}

// NewEngine builds the command engine.
func NewEngine(link Publisher, keys Keys, retryTimeout time.Duration, maxRetries int, useGroup bool, log zerolog.Logger) *Engine {
	return &Engine{
		link:         link,
		keys:         keys,
		log:          log.With().Str("component", "command").Logger(),
		retryTimeout: retryTimeout,
		maxRetries:   maxRetries,
		useGroup:     useGroup,
		pending:      make(map[string]*pending),
	}
}

// Submit enqueues a command under latest-wins coalescing: any pending
// command for the installation stops being waited on, and the new one
// is sent immediately.
func (e *Engine) Submit(cmd *Command) error {
	fields, err := e.fields(cmd)
	if err != nil {
		return err
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	if old, ok := e.pending[cmd.Zone.InstallID]; ok {
		e.log.Debug().
			Uint64("superseded", old.id).
			Str("zone", old.cmd.Zone.Name).
			Msg("pending command superseded")
	}
	e.nextID++
	p := &pending{id: e.nextID, cmd: cmd}
	e.pending[cmd.Zone.InstallID] = p
	e.mu.Unlock()

	return e.send(p, fields)
}

// send publishes the frame and arms the auto-confirm timer where the
// vendor never echoes.
func (e *Engine) send(p *pending, fields map[string]any) error {
	frame, err := wire.NewThermostatCommand(p.cmd.Zone.Controller, p.cmd.Zone.ChannelZone, fields).Encode()
	if err != nil {
		return err
	}

	if err := e.link.PublishVendor(broker.InstallTopic(p.cmd.Zone.InstallID), frame); err != nil {
		if p.cmd.autoConfirms() {
			// Neither the echo nor the retry timer covers these;
			// the slot has to be freed here.
			e.release(p)
		}
		return fmt.Errorf("publish command: %w", err)
	}

	e.mu.Lock()
	p.sentAt = time.Now()
	e.mu.Unlock()

	e.log.Info().
		Uint64("id", p.id).
		Str("zone", p.cmd.Zone.DisplayName(e.useGroup)).
		Str("command", p.cmd.Describe()).
		Int("retry", p.retries).
		Msg("command sent")

	if p.cmd.autoConfirms() {
		installID, id := p.cmd.Zone.InstallID, p.id
		time.AfterFunc(autoConfirmDelay, func() {
			e.confirmByID(installID, id)
		})
	}
	return nil
}

// Confirm resolves the pending command of the zone owning the given
// channel. Any update for that channel counts; the vendor consolidates
// writes across fields.
func (e *Engine) Confirm(zone *model.Zone) {
	if zone == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[zone.InstallID]
	if !ok || p.cmd.Zone.ID != zone.ID {
		return
	}
	delete(e.pending, zone.InstallID)
	e.log.Info().
		Uint64("id", p.id).
		Str("zone", p.cmd.Zone.Name).
		Msg("command confirmed")
}

// release frees the slot if the given command still occupies it.
func (e *Engine) release(p *pending) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, ok := e.pending[p.cmd.Zone.InstallID]
	if ok && cur.id == p.id {
		delete(e.pending, p.cmd.Zone.InstallID)
	}
}

// confirmByID clears a pending command only if it is still the one the
// timer was armed for.
func (e *Engine) confirmByID(installID string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[installID]
	if !ok || p.id != id {
		return
	}
	delete(e.pending, installID)
	e.log.Debug().Uint64("id", id).Msg("command auto-confirmed")
}

// OnRetry registers a callback fired for every confirmation-timeout
// re-send.
func (e *Engine) OnRetry(fn func()) { e.onRetry = fn }

// OnDrop registers a callback fired when a command exhausts its
// retries.
func (e *Engine) OnDrop(fn func()) { e.onDrop = fn }

// PendingCount reports the number of outstanding commands, for health
// metrics.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Run drives the retry timer until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(retryTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkRetries(time.Now())
		}
	}
}

// checkRetries re-sends timed-out commands and drops the ones that
// exhausted their retries.
func (e *Engine) checkRetries(now time.Time) {
	type resend struct {
		p      *pending
		fields map[string]any
	}
	var resends []resend

	e.mu.Lock()
	for installID, p := range e.pending {
		if p.cmd.autoConfirms() {
			continue
		}
		if now.Sub(p.sentAt) < e.retryTimeout {
			continue
		}
		if p.retries >= e.maxRetries {
			delete(e.pending, installID)
			if e.onDrop != nil {
				e.onDrop()
			}
			e.log.Error().
				Uint64("id", p.id).
				Str("zone", p.cmd.Zone.DisplayName(e.useGroup)).
				Str("command", p.cmd.Describe()).
				Int("retries", p.retries).
				Msg("command never confirmed, giving up")
			continue
		}
		p.retries++
		if e.onRetry != nil {
			e.onRetry()
		}
		fields, err := e.fields(p.cmd)
		if err != nil {
			delete(e.pending, installID)
			e.log.Error().Err(err).Uint64("id", p.id).Msg("command no longer encodable, dropping")
			continue
		}
		resends = append(resends, resend{p: p, fields: fields})
	}
	e.mu.Unlock()

	for _, r := range resends {
		e.resend(r.p, r.fields)
	}
}

// resend re-publishes a timed-out command unless a confirmation claimed
// the slot while the retry lock was released.
func (e *Engine) resend(p *pending, fields map[string]any) {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	e.mu.Lock()
	cur, ok := e.pending[p.cmd.Zone.InstallID]
	e.mu.Unlock()
	if !ok || cur.id != p.id {
		return
	}

	if err := e.send(p, fields); err != nil {
		e.log.Warn().Err(err).Uint64("id", p.id).Msg("command re-send failed, will retry")
	}
}

// fields builds the numeric-key field map for a command.
func (e *Engine) fields(c *Command) (map[string]any, error) {
	num := func(name string) string { return e.keys.NumberFor(name) }

	switch c.Kind {
	case KindSetMode:
		if c.Mode == model.ModeOff {
			return map[string]any{num(referential.KeyModeUsed): int(wire.ModeStandby)}, nil
		}
		return map[string]any{num(referential.KeyModeUsed): int(wire.ModeComfort)}, nil

	case KindSetPreset:
		if c.Preset == model.PresetAway {
			return map[string]any{num(referential.KeyModeUsed): int(wire.ModePowerSave)}, nil
		}
		return map[string]any{num(referential.KeyModeUsed): int(wire.ModeComfort)}, nil

	case KindSetTemperature:
		state := c.Zone.State()
		preset := state.Preset
		if preset == model.PresetNone {
			preset = model.PresetComfort
		}
		field := setpointField(state.InstallationMode, preset)
		return map[string]any{num(field): wire.EncodeTemp(c.Temperature)}, nil

	case KindRingLight:
		v := 0
		if c.On {
			v = 1
		}
		return map[string]any{num(referential.KeyRingFunction): v}, nil

	case KindLock:
		return map[string]any{num(referential.KeyLockActivation): c.On}, nil

	default:
		return nil, fmt.Errorf("unencodable command kind %d", c.Kind)
	}
}
