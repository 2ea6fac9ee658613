package command

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/broker"
	"github.com/derandereandi/nea2mqtt/pkg/discovery"
	"github.com/derandereandi/nea2mqtt/pkg/model"
)

// LocalBus is the local-broker surface the router needs.
type LocalBus interface {
	SubscribeLocal(topic string) error
	OnLocalMessage(fn broker.MessageHandler) func()
}

// Router subscribes to the entity command topics and parses their
// payloads into logical commands for the engine. Installation-wide
// mode switches never reach the vendor; they flip the local model and
// are reported to the registered callback.
type Router struct {
	engine *Engine
	zones  *model.Registry
	bus    LocalBus
	log    zerolog.Logger

	onInstallMode func(inst *model.Installation, mode model.InstallationMode)

	routes map[string]func(payload string)
}

// NewRouter builds the command router.
func NewRouter(engine *Engine, zones *model.Registry, bus LocalBus, log zerolog.Logger) *Router {
	return &Router{
		engine: engine,
		zones:  zones,
		bus:    bus,
		log:    log.With().Str("component", "command-router").Logger(),
		routes: make(map[string]func(payload string)),
	}
}

// OnInstallationMode registers the callback for heat/cool switches.
// Must be called before Start.
func (r *Router) OnInstallationMode(fn func(inst *model.Installation, mode model.InstallationMode)) {
	r.onInstallMode = fn
}

// Start subscribes every command topic and attaches the dispatcher.
func (r *Router) Start() error {
	for _, z := range r.zones.Zones() {
		zone := z
		r.routes[discovery.ClimateTopic(zone.ID, discovery.LeafTempCommand)] = func(p string) {
			r.setTemperature(zone, p)
		}
		r.routes[discovery.ClimateTopic(zone.ID, discovery.LeafModeCommand)] = func(p string) {
			r.setMode(zone, p)
		}
		r.routes[discovery.ClimateTopic(zone.ID, discovery.LeafPresetCommand)] = func(p string) {
			r.setPreset(zone, p)
		}
		r.routes[discovery.LightTopic(zone.ID, discovery.LeafSet)] = func(p string) {
			r.submit(&Command{Zone: zone, Kind: KindRingLight, On: strings.EqualFold(p, "ON")})
		}
		r.routes[discovery.LockTopic(zone.ID, discovery.LeafSet)] = func(p string) {
			r.submit(&Command{Zone: zone, Kind: KindLock, On: strings.EqualFold(p, "LOCK")})
		}
	}

	for _, inst := range r.zones.Installations() {
		install := inst
		r.routes[discovery.SystemClimateTopic(install.ID, discovery.LeafModeCommand)] = func(p string) {
			r.setInstallationMode(install, p)
		}
	}

	for topic := range r.routes {
		if err := r.bus.SubscribeLocal(topic); err != nil {
			return err
		}
	}
	r.bus.OnLocalMessage(r.dispatch)
	return nil
}

func (r *Router) dispatch(topic string, payload []byte) {
	handle, ok := r.routes[topic]
	if !ok {
		return
	}
	handle(strings.TrimSpace(string(payload)))
}

func (r *Router) setTemperature(zone *model.Zone, payload string) {
	celsius, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		r.log.Warn().Str("zone", zone.Name).Str("payload", payload).Msg("unparseable setpoint, dropped")
		return
	}
	r.submit(&Command{Zone: zone, Kind: KindSetTemperature, Temperature: celsius})
}

func (r *Router) setMode(zone *model.Zone, payload string) {
	switch strings.ToLower(payload) {
	case "off":
		r.submit(&Command{Zone: zone, Kind: KindSetMode, Mode: model.ModeOff})
	case "heat":
		r.submit(&Command{Zone: zone, Kind: KindSetMode, Mode: model.ModeHeat})
	case "cool":
		r.submit(&Command{Zone: zone, Kind: KindSetMode, Mode: model.ModeCool})
	default:
		r.log.Warn().Str("zone", zone.Name).Str("payload", payload).Msg("unknown mode, dropped")
	}
}

func (r *Router) setPreset(zone *model.Zone, payload string) {
	switch strings.ToLower(payload) {
	case "away":
		r.submit(&Command{Zone: zone, Kind: KindSetPreset, Preset: model.PresetAway})
	case "comfort", "none":
		// Clearing the preset returns the zone to comfort.
		r.submit(&Command{Zone: zone, Kind: KindSetPreset, Preset: model.PresetComfort})
	default:
		r.log.Warn().Str("zone", zone.Name).Str("payload", payload).Msg("unknown preset, dropped")
	}
}

func (r *Router) setInstallationMode(inst *model.Installation, payload string) {
	var mode model.InstallationMode
	switch strings.ToLower(payload) {
	case "heat":
		mode = model.InstallationHeat
	case "cool":
		mode = model.InstallationCool
	default:
		r.log.Warn().Str("installation", inst.Name).Str("payload", payload).Msg("unknown installation mode, dropped")
		return
	}

	if mode == model.InstallationCool && !inst.CoolingSupported {
		r.log.Warn().Str("installation", inst.Name).Msg("cooling not supported, mode switch dropped")
		return
	}

	inst.SetMode(mode)
	r.log.Info().Str("installation", inst.Name).Str("mode", string(mode)).Msg("installation mode switched")
	if r.onInstallMode != nil {
		r.onInstallMode(inst, mode)
	}
}

func (r *Router) submit(cmd *Command) {
	if err := r.engine.Submit(cmd); err != nil {
		r.log.Error().Err(err).
			Str("zone", cmd.Zone.Name).
			Str("command", cmd.Describe()).
			Msg("command could not be sent")
	}
}
