package discovery

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/model"
)

// Climate entity bounds presented to the automation platform.
const (
	TempStep      = 0.5
	TempMin       = 5.0
	TempMax       = 30.0
	TempPrecision = 0.1
)

// LocalPublisher is the local-broker surface the publisher needs.
type LocalPublisher interface {
	PublishLocal(topic string, payload []byte, retain bool) error
}

// device is the discovery device block grouping a zone's entities.
type device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type climateConfig struct {
	Name                   string   `json:"name"`
	UniqueID               string   `json:"unique_id"`
	ObjectID               string   `json:"object_id"`
	Modes                  []string `json:"modes"`
	ModeStateTopic         string   `json:"mode_state_topic"`
	ModeCommandTopic       string   `json:"mode_command_topic"`
	PresetModes            []string `json:"preset_modes,omitempty"`
	PresetModeStateTopic   string   `json:"preset_mode_state_topic,omitempty"`
	PresetModeCommandTopic string   `json:"preset_mode_command_topic,omitempty"`
	CurrentTemperature     string   `json:"current_temperature_topic,omitempty"`
	TemperatureStateTopic  string   `json:"temperature_state_topic,omitempty"`
	TemperatureCommand     string   `json:"temperature_command_topic,omitempty"`
	TempStep               float64  `json:"temp_step,omitempty"`
	MinTemp                float64  `json:"min_temp,omitempty"`
	MaxTemp                float64  `json:"max_temp,omitempty"`
	Precision              float64  `json:"precision,omitempty"`
	Optimistic             bool     `json:"optimistic"`
	AvailabilityTopic      string   `json:"availability_topic,omitempty"`
	Device                 *device  `json:"device,omitempty"`
}

type sensorConfig struct {
	Name        string  `json:"name"`
	UniqueID    string  `json:"unique_id"`
	ObjectID    string  `json:"object_id"`
	StateTopic  string  `json:"state_topic"`
	DeviceClass string  `json:"device_class,omitempty"`
	Unit        string  `json:"unit_of_measurement,omitempty"`
	Device      *device `json:"device,omitempty"`
}

type switchableConfig struct {
	Name          string  `json:"name"`
	UniqueID      string  `json:"unique_id"`
	ObjectID      string  `json:"object_id"`
	StateTopic    string  `json:"state_topic"`
	CommandTopic  string  `json:"command_topic"`
	PayloadLock   string  `json:"payload_lock,omitempty"`
	PayloadUnlock string  `json:"payload_unlock,omitempty"`
	StateLocked   string  `json:"state_locked,omitempty"`
	StateUnlocked string  `json:"state_unlocked,omitempty"`
	Optimistic    bool    `json:"optimistic"`
	Device        *device `json:"device,omitempty"`
}

// Publisher emits the discovery configs.
type Publisher struct {
	link     LocalPublisher
	zones    *model.Registry
	useGroup bool
	log      zerolog.Logger
}

// NewPublisher builds the discovery publisher. useGroup controls
// whether friendly names carry the group prefix.
func NewPublisher(link LocalPublisher, zones *model.Registry, useGroup bool, log zerolog.Logger) *Publisher {
	return &Publisher{
		link:     link,
		zones:    zones,
		useGroup: useGroup,
		log:      log.With().Str("component", "discovery").Logger(),
	}
}

// EmitAll publishes every discovery config, retained, then marks the
// entities available. Called at startup, after snapshot reloads, and
// after local-broker reconnects.
func (p *Publisher) EmitAll() error {
	for _, inst := range p.zones.Installations() {
		if err := p.emitInstallation(inst); err != nil {
			return err
		}
	}
	for _, zone := range p.zones.Zones() {
		if err := p.emitZone(zone); err != nil {
			return err
		}
	}
	p.log.Info().Int("zones", p.zones.ZoneCount()).Msg("discovery configs published")
	return nil
}

func (p *Publisher) emitZone(zone *model.Zone) error {
	name := zone.DisplayName(p.useGroup)
	objectID := Sanitize(zone.GroupName + " " + zone.Name)
	dev := &device{
		Identifiers:  []string{ObjectID(zone.ID, "")},
		Name:         name,
		Manufacturer: "REHAU",
		Model:        "NEA SMART 2.0",
	}

	inst, _ := p.zones.Installation(zone.InstallID)
	modes := []string{string(model.ModeOff), string(model.InstallationHeat)}
	if inst != nil && inst.CoolingSupported {
		modes = append(modes, string(model.InstallationCool))
	}

	climate := climateConfig{
		Name:                   name,
		UniqueID:               ObjectID(zone.ID, ""),
		ObjectID:               objectID,
		Modes:                  modes,
		ModeStateTopic:         ClimateTopic(zone.ID, LeafMode),
		ModeCommandTopic:       ClimateTopic(zone.ID, LeafModeCommand),
		PresetModes:            []string{string(model.PresetComfort), string(model.PresetAway)},
		PresetModeStateTopic:   ClimateTopic(zone.ID, LeafPreset),
		PresetModeCommandTopic: ClimateTopic(zone.ID, LeafPresetCommand),
		CurrentTemperature:     ClimateTopic(zone.ID, LeafCurrentTemp),
		TemperatureStateTopic:  ClimateTopic(zone.ID, LeafTargetTemp),
		TemperatureCommand:     ClimateTopic(zone.ID, LeafTempCommand),
		TempStep:               TempStep,
		MinTemp:                TempMin,
		MaxTemp:                TempMax,
		Precision:              TempPrecision,
		Optimistic:             true,
		AvailabilityTopic:      ClimateTopic(zone.ID, LeafAvailability),
		Device:                 dev,
	}
	if err := p.emit("climate", zone.ID, "", climate); err != nil {
		return err
	}

	sensors := []struct {
		suffix string
		label  string
		class  string
		unit   string
	}{
		{SuffixTemperature, "Temperature", "temperature", "°C"},
		{SuffixHumidity, "Humidity", "humidity", "%"},
		{SuffixDemandingPct, "Demand", "", "%"},
		{SuffixDewpoint, "Dewpoint", "temperature", "°C"},
	}
	for _, s := range sensors {
		cfg := sensorConfig{
			Name:        name + " " + s.label,
			UniqueID:    ObjectID(zone.ID, s.suffix),
			ObjectID:    objectID + "_" + s.suffix,
			StateTopic:  SensorTopic(zone.ID, s.suffix, LeafState),
			DeviceClass: s.class,
			Unit:        s.unit,
			Device:      dev,
		}
		if err := p.emit("sensor", zone.ID, s.suffix, cfg); err != nil {
			return err
		}
	}

	demanding := sensorConfig{
		Name:        name + " Demanding",
		UniqueID:    ObjectID(zone.ID, SuffixDemanding),
		ObjectID:    objectID + "_" + SuffixDemanding,
		StateTopic:  BinarySensorTopic(zone.ID, SuffixDemanding, LeafState),
		DeviceClass: "heat",
		Device:      dev,
	}
	if err := p.emit("binary_sensor", zone.ID, SuffixDemanding, demanding); err != nil {
		return err
	}

	light := switchableConfig{
		Name:         name + " Ring Light",
		UniqueID:     ObjectID(zone.ID, SuffixRingLight),
		ObjectID:     objectID + "_" + SuffixRingLight,
		StateTopic:   LightTopic(zone.ID, LeafState),
		CommandTopic: LightTopic(zone.ID, LeafSet),
		Optimistic:   true,
		Device:       dev,
	}
	if err := p.emit("light", zone.ID, SuffixRingLight, light); err != nil {
		return err
	}

	lock := switchableConfig{
		Name:          name + " Lock",
		UniqueID:      ObjectID(zone.ID, SuffixLock),
		ObjectID:      objectID + "_" + SuffixLock,
		StateTopic:    LockTopic(zone.ID, LeafState),
		CommandTopic:  LockTopic(zone.ID, LeafSet),
		PayloadLock:   "LOCK",
		PayloadUnlock: "UNLOCK",
		StateLocked:   "LOCKED",
		StateUnlocked: "UNLOCKED",
		Optimistic:    true,
		Device:        dev,
	}
	if err := p.emit("lock", zone.ID, SuffixLock, lock); err != nil {
		return err
	}

	// The entity set is complete; flip availability last.
	return p.link.PublishLocal(ClimateTopic(zone.ID, LeafAvailability), []byte("online"), true)
}

func (p *Publisher) emitInstallation(inst *model.Installation) error {
	outside := sensorConfig{
		Name:        inst.Name + " Outside Temperature",
		UniqueID:    ObjectID(inst.ID, SuffixOutsideTemp),
		ObjectID:    Sanitize(inst.Name) + "_" + SuffixOutsideTemp,
		StateTopic:  SensorTopic(inst.ID, SuffixOutsideTemp, LeafState),
		DeviceClass: "temperature",
		Unit:        "°C",
	}
	if err := p.emit("sensor", inst.ID, SuffixOutsideTemp, outside); err != nil {
		return err
	}

	// The system entity only exposes the installation-wide heat/cool
	// selector.
	modes := []string{string(model.InstallationHeat)}
	if inst.CoolingSupported {
		modes = append(modes, string(model.InstallationCool))
	}
	system := climateConfig{
		Name:             inst.Name + " System",
		UniqueID:         ObjectID(inst.ID, SuffixSystem),
		ObjectID:         Sanitize(inst.Name) + "_" + SuffixSystem,
		Modes:            modes,
		ModeStateTopic:   SystemClimateTopic(inst.ID, LeafMode),
		ModeCommandTopic: SystemClimateTopic(inst.ID, LeafModeCommand),
		Optimistic:       true,
	}
	return p.emit("climate", inst.ID, SuffixSystem, system)
}

func (p *Publisher) emit(domain, id, suffix string, cfg any) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode %s config: %w", domain, err)
	}
	topic := Topic(domain, id, suffix, LeafConfig)
	if err := p.link.PublishLocal(topic, payload, true); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Sanitize lowercases a display name and replaces spaces so it is safe
// inside an entity id.
func Sanitize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
