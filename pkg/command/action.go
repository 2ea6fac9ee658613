package command

import (
	"fmt"

	"github.com/derandereandi/nea2mqtt/pkg/model"
	"github.com/derandereandi/nea2mqtt/pkg/referential"
)

// Kind is the logical command type.
type Kind uint8

const (
	// KindSetMode turns a zone off or back on (comfort).
	KindSetMode Kind = iota

	// KindSetPreset switches between comfort and away.
	KindSetPreset

	// KindSetTemperature writes the setpoint matching the zone's
	// current installation mode and preset.
	KindSetTemperature

	// KindRingLight switches the thermostat's ring illumination.
	KindRingLight

	// KindLock engages or releases the thermostat's key lock.
	KindLock
)

// String returns the command verb for logs.
func (k Kind) String() string {
	switch k {
	case KindSetMode:
		return "set mode"
	case KindSetPreset:
		return "set preset"
	case KindSetTemperature:
		return "set temperature"
	case KindRingLight:
		return "ring light"
	case KindLock:
		return "lock"
	default:
		return "unknown"
	}
}

// Command is one logical action against a zone.
type Command struct {
	Zone *model.Zone
	Kind Kind

	// Exactly one of the following is meaningful, per Kind.
	Mode        model.Mode
	Preset      model.Preset
	Temperature float64
	On          bool
}

// Describe renders the command for user-facing logs.
func (c *Command) Describe() string {
	switch c.Kind {
	case KindSetMode:
		return fmt.Sprintf("set mode %s", c.Mode)
	case KindSetPreset:
		return fmt.Sprintf("set preset %s", c.Preset)
	case KindSetTemperature:
		return fmt.Sprintf("set temperature %.1f°C", c.Temperature)
	case KindRingLight:
		return fmt.Sprintf("ring light %s", onOff(c.On))
	case KindLock:
		return fmt.Sprintf("lock %s", onOff(c.On))
	default:
		return "unknown command"
	}
}

// autoConfirms reports whether the vendor never echoes this command
// back; such commands confirm on a timer instead.
func (c *Command) autoConfirms() bool {
	return c.Kind == KindRingLight || c.Kind == KindLock
}

// setpointField picks the vendor setpoint field for the installation
// mode and preset in effect.
func setpointField(mode model.InstallationMode, preset model.Preset) string {
	away := preset == model.PresetAway
	if mode == model.InstallationCool {
		if away {
			return referential.KeySetpointCoolReduced
		}
		return referential.KeySetpointCoolNormal
	}
	if away {
		return referential.KeySetpointHeatReduced
	}
	return referential.KeySetpointHeatNormal
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
