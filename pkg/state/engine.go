package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/broker"
	"github.com/derandereandi/nea2mqtt/pkg/discovery"
	"github.com/derandereandi/nea2mqtt/pkg/model"
	"github.com/derandereandi/nea2mqtt/pkg/referential"
	"github.com/derandereandi/nea2mqtt/pkg/wire"
)

// Link is the broker surface the engine needs.
type Link interface {
	SubscribeVendor(topic string) error
	OnVendorMessage(fn broker.MessageHandler) func()
	PublishLocal(topic string, payload []byte, retain bool) error
}

// Confirmer receives the zone of every channel_update, resolving any
// pending command for it.
type Confirmer interface {
	Confirm(zone *model.Zone)
}

// Names resolves numeric wire keys to symbolic field names.
type Names interface {
	NameFor(number string) string
}

// Engine consumes the vendor message stream.
type Engine struct {
	link    Link
	zones   *model.Registry
	names   Names
	confirm Confirmer
	email   string
	log     zerolog.Logger

	mu        sync.Mutex
	published map[string]string
	inferred  map[string]bool

	remove func()
	msgs   atomic.Uint64
}

// NewEngine builds the state engine. confirm may be nil when no command
// engine is attached.
func NewEngine(link Link, zones *model.Registry, names Names, confirm Confirmer, email string, log zerolog.Logger) *Engine {
	return &Engine{
		link:      link,
		zones:     zones,
		names:     names,
		confirm:   confirm,
		email:     email,
		log:       log.With().Str("component", "state").Logger(),
		published: make(map[string]string),
		inferred:  make(map[string]bool),
	}
}

// Start subscribes the vendor topics and attaches the message handler.
func (e *Engine) Start() error {
	if err := e.link.SubscribeVendor(broker.UserTopic(e.email)); err != nil {
		return fmt.Errorf("subscribe user topic: %w", err)
	}
	for _, inst := range e.zones.Installations() {
		if err := e.link.SubscribeVendor(broker.InstallTopic(inst.ID) + "/realtime"); err != nil {
			return fmt.Errorf("subscribe realtime topic: %w", err)
		}
	}
	e.remove = e.link.OnVendorMessage(e.handle)
	return nil
}

// Stop detaches the message handler.
func (e *Engine) Stop() {
	if e.remove != nil {
		e.remove()
		e.remove = nil
	}
}

// MessagesIn reports the number of vendor messages consumed.
func (e *Engine) MessagesIn() uint64 {
	return e.msgs.Load()
}

func (e *Engine) handle(topic string, payload []byte) {
	e.msgs.Add(1)

	msg, err := wire.Decode(payload)
	if err != nil {
		e.log.Debug().Err(err).Str("topic", topic).Msg("undecodable vendor payload, dropped")
		return
	}

	switch msg.Kind {
	case wire.KindChannelUpdate:
		e.handleChannelUpdate(msg.ChannelUpdate)
	case wire.KindRealtime:
		e.handleRealtime(msg.Realtime)
	case wire.KindLiveData:
		e.handleLiveData(msg.LiveData)
	case wire.KindReferential:
		// Consumed by the referential loader's one-shot handler.
	}
}

func (e *Engine) handleChannelUpdate(cu *wire.ChannelUpdate) {
	zone, ok := e.zones.ZoneByChannel(cu.Channel)
	if !ok {
		e.log.Debug().Str("channel", cu.Channel).Msg("update for unknown channel, dropped")
		return
	}

	e.ApplyFields(zone, cu.Fields)
	if e.confirm != nil {
		e.confirm.Confirm(zone)
	}
	e.publishZone(zone)
}

func (e *Engine) handleRealtime(rt *wire.Realtime) {
	if len(rt.Zones) == 0 {
		if rt.Incremental {
			e.log.Debug().Msg("realtime heartbeat")
		}
		return
	}

	for _, snap := range rt.Zones {
		zone, ok := e.zones.ZoneByID(snap.ID)
		if !ok {
			e.log.Debug().Str("zone", snap.ID).Msg("snapshot for unknown zone, dropped")
			continue
		}
		e.ApplyFields(zone, snap.Fields)
		e.publishZone(zone)
	}

	if !rt.Incremental {
		e.InferInstallationModes()
	}
}

// ApplyFields writes incoming channel fields into the zone state. Keys
// arrive numeric and are resolved through the referential dictionary;
// already-symbolic keys pass through unchanged.
func (e *Engine) ApplyFields(zone *model.Zone, fields map[string]any) {
	zone.Update(func(s *model.ZoneState) {
		for key, value := range fields {
			name := e.names.NameFor(key)
			if name == "" {
				name = key
			}
			e.applyField(s, name, value)
		}
		s.TargetTemp = s.ActiveSetpoint()
		s.Available = true
	})
}

func (e *Engine) applyField(s *model.ZoneState, name string, value any) {
	switch name {
	case referential.KeyTempZone:
		if raw, ok := wire.Number(value); ok && raw != wire.AbsentTempRaw {
			s.CurrentTemp = model.Float(wire.DecodeTemp(raw))
		}

	case referential.KeyHumidity:
		if v, ok := wire.Number(value); ok {
			s.Humidity = model.Float(v)
		}

	case referential.KeySetpointHeatNormal:
		if raw, ok := wire.Number(value); ok && raw != wire.AbsentTempRaw {
			s.SetpointHeatNormal = model.Float(wire.DecodeTemp(raw))
		}
	case referential.KeySetpointHeatReduced:
		if raw, ok := wire.Number(value); ok && raw != wire.AbsentTempRaw {
			s.SetpointHeatReduced = model.Float(wire.DecodeTemp(raw))
		}
	case referential.KeySetpointCoolNormal:
		if raw, ok := wire.Number(value); ok && raw != wire.AbsentTempRaw {
			s.SetpointCoolNormal = model.Float(wire.DecodeTemp(raw))
		}
	case referential.KeySetpointCoolReduced:
		if raw, ok := wire.Number(value); ok && raw != wire.AbsentTempRaw {
			s.SetpointCoolReduced = model.Float(wire.DecodeTemp(raw))
		}

	case referential.KeyModeUsed:
		if v, ok := wire.Number(value); ok {
			mode := wire.OperatingMode(int(v))
			if mode.IsOff() {
				s.Mode = model.ModeOff
				s.Preset = model.PresetNone
			} else {
				s.Mode = model.Mode(s.InstallationMode)
				if mode.IsAway() {
					s.Preset = model.PresetAway
				} else {
					s.Preset = model.PresetComfort
				}
			}
		}

	case referential.KeyConfigBits:
		if bits, ok := wire.DecodeConfigBits(value); ok {
			s.RingLight = bits.RingLight
			s.Locked = bits.Locked
		}

	case referential.KeyDemand:
		if v, ok := wire.Number(value); ok {
			s.DemandPct = model.Float(v)
		}

	case referential.KeyDemandState:
		switch v := value.(type) {
		case bool:
			s.Demanding = v
		case float64:
			s.Demanding = v != 0
		}

	case referential.KeyDewpoint:
		if v, ok := wire.Number(value); ok {
			s.Dewpoint = model.Float(v)
		}

	default:
		e.log.Debug().Str("field", name).Msg("unknown channel field, ignored")
	}
}

// InferInstallationModes runs the one-time cool-mode heuristic over the
// current zone data: an installation starts in cool mode iff it
// declares cooling support and some zone shows cooling activity
// (positive demand with only a cooling setpoint known). Runs after the
// startup snapshot and on the first full realtime frame, whichever
// comes first.
func (e *Engine) InferInstallationModes() {
	for _, inst := range e.zones.Installations() {
		e.mu.Lock()
		done := e.inferred[inst.ID]
		e.inferred[inst.ID] = true
		e.mu.Unlock()
		if done {
			continue
		}

		if inst.CoolingSupported && e.coolingActive(inst) {
			inst.SetMode(model.InstallationCool)
			e.log.Info().Str("installation", inst.Name).Msg("cooling activity detected, starting in cool mode")
		}
		e.PublishInstallation(inst)
	}
}

func (e *Engine) coolingActive(inst *model.Installation) bool {
	for _, z := range inst.AllZones() {
		s := z.State()
		if s.DemandPct.Valid && s.DemandPct.Value > 0 &&
			s.SetpointCoolNormal.Valid && !s.SetpointHeatNormal.Valid {
			return true
		}
	}
	return false
}

func (e *Engine) handleLiveData(ld *wire.LiveData) {
	switch ld.Type {
	case wire.LiveEMU:
		circuits, err := ld.DecodeMixedCircuits()
		if err != nil {
			e.log.Debug().Err(err).Msg("undecodable LIVE_EMU payload, dropped")
			return
		}
		e.publishMixedCircuits(ld.Install, circuits)

	case wire.LiveDIDO:
		dio, err := ld.DecodeDigitalIO()
		if err != nil {
			e.log.Debug().Err(err).Msg("undecodable LIVE_DIDO payload, dropped")
			return
		}
		e.publishDigitalIO(ld.Install, dio)

	default:
		e.log.Debug().Str("type", ld.Type).Msg("unknown live_data type, dropped")
	}
}

func (e *Engine) publishMixedCircuits(installID string, circuits []wire.MixedCircuit) {
	for i, c := range circuits {
		if c.SupplyRaw == wire.AbsentTempRaw {
			continue
		}
		prefix := fmt.Sprintf("%s_%d", discovery.SuffixMixedCircuit, i)
		e.publish(discovery.BinarySensorTopic(installID, prefix+"_pump", discovery.LeafState), onOff(c.Pump))
		e.publish(discovery.SensorTopic(installID, prefix+"_setpoint", discovery.LeafState), formatTemp(wire.DecodeTemp(c.SetpointRaw)))
		e.publish(discovery.SensorTopic(installID, prefix+"_supply", discovery.LeafState), formatTemp(wire.DecodeTemp(c.SupplyRaw)))
		e.publish(discovery.SensorTopic(installID, prefix+"_return", discovery.LeafState), formatTemp(wire.DecodeTemp(c.ReturnRaw)))
		e.publish(discovery.SensorTopic(installID, prefix+"_valve", discovery.LeafState), formatNumber(c.ValvePct))
	}
}

func (e *Engine) publishDigitalIO(installID string, dio *wire.DigitalIO) {
	for i, on := range dio.Inputs {
		suffix := fmt.Sprintf("%s_%d", discovery.SuffixDigitalInput, i)
		e.publish(discovery.BinarySensorTopic(installID, suffix, discovery.LeafState), onOff(on))
	}
	for i, on := range dio.Outputs {
		suffix := fmt.Sprintf("%s_%d", discovery.SuffixDigitalOutput, i)
		e.publish(discovery.BinarySensorTopic(installID, suffix, discovery.LeafState), onOff(on))
	}
}
