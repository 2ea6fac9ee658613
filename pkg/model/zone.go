package model

import "sync"

// Mode is the climate mode presented to the automation platform.
type Mode string

// Climate modes.
const (
	ModeOff  Mode = "off"
	ModeHeat Mode = "heat"
	ModeCool Mode = "cool"
)

// Preset is the zone's comfort profile.
type Preset string

// Presets. PresetNone is published as the literal string "None" while a
// zone is off.
const (
	PresetComfort Preset = "comfort"
	PresetAway    Preset = "away"
	PresetNone    Preset = "none"
)

// InstallationMode selects which setpoint family the system runs on.
type InstallationMode string

// Installation modes.
const (
	InstallationHeat InstallationMode = "heat"
	InstallationCool InstallationMode = "cool"
)

// OptFloat is an optional numeric reading. Valid is false when the
// controller has never reported the value.
type OptFloat struct {
	Value float64
	Valid bool
}

// Float wraps a known value.
func Float(v float64) OptFloat {
	return OptFloat{Value: v, Valid: true}
}

// Zone is one thermostatically controlled region. Identity fields are
// fixed at startup; State is mutated in place by the state engine and
// the zone poller and read by everyone else.
type Zone struct {
	// ID is the stable 24-hex zone identifier. Load-bearing for topic
	// names: per-controller zone numbers collide across controllers.
	ID string

	// Number is the vendor's per-controller zone number.
	Number int

	// ChannelZone and Controller form the routing tuple vendor commands
	// must carry.
	ChannelZone int
	Controller  int

	// ChannelID identifies the zone's measurement/command channel.
	ChannelID string

	Name      string
	GroupName string
	InstallID string

	mu    sync.RWMutex
	state ZoneState
}

// ZoneState is the mutable portion of a zone.
type ZoneState struct {
	Mode   Mode
	Preset Preset

	CurrentTemp OptFloat
	TargetTemp  OptFloat
	Humidity    OptFloat
	DemandPct   OptFloat
	Dewpoint    OptFloat

	// The four vendor setpoints. The target temperature is whichever
	// one matches the installation mode and preset in effect.
	SetpointHeatNormal  OptFloat
	SetpointHeatReduced OptFloat
	SetpointCoolNormal  OptFloat
	SetpointCoolReduced OptFloat

	Demanding bool
	Locked    bool
	RingLight bool
	Available bool

	InstallationMode InstallationMode
}

// ActiveSetpoint picks the setpoint matching the installation mode and
// preset. An unset preset selects the normal (comfort) setpoint.
func (s ZoneState) ActiveSetpoint() OptFloat {
	away := s.Preset == PresetAway
	if s.InstallationMode == InstallationCool {
		if away {
			return s.SetpointCoolReduced
		}
		return s.SetpointCoolNormal
	}
	if away {
		return s.SetpointHeatReduced
	}
	return s.SetpointHeatNormal
}

// State returns a copy of the zone's mutable state.
func (z *Zone) State() ZoneState {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.state
}

// Update applies fn to the zone's state under the write lock.
func (z *Zone) Update(fn func(*ZoneState)) {
	z.mu.Lock()
	defer z.mu.Unlock()
	fn(&z.state)
}

// Key returns the zone's stable key used in pending-command bookkeeping.
func (z *Zone) Key() string {
	return z.InstallID + "/" + z.ID
}

// DisplayName returns the friendly name, optionally prefixed with the
// group name.
func (z *Zone) DisplayName(useGroup bool) string {
	if useGroup && z.GroupName != "" {
		return z.GroupName + " " + z.Name
	}
	return z.Name
}
