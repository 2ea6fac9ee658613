package wire

// OperatingMode is the vendor's mode_used field.
type OperatingMode int

// mode_used values.
const (
	ModeComfort   OperatingMode = 0
	ModePowerSave OperatingMode = 1
	ModeStandby   OperatingMode = 2
	ModeShutdown  OperatingMode = 3
)

// String returns the mode name.
func (m OperatingMode) String() string {
	switch m {
	case ModeComfort:
		return "COMFORT"
	case ModePowerSave:
		return "POWER_SAVE"
	case ModeStandby:
		return "STANDBY"
	case ModeShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// IsOff reports whether the mode means the zone is switched off.
// Standby and shutdown both present as "off" to the automation platform.
func (m OperatingMode) IsOff() bool {
	return m == ModeStandby || m == ModeShutdown
}

// IsAway reports whether the mode selects the reduced setpoint.
func (m OperatingMode) IsAway() bool {
	return m == ModePowerSave
}

// ConfigBits is the normalised form of the cc_config_bits field.
type ConfigBits struct {
	RingLight bool
	Locked    bool
}

// Bit positions when cc_config_bits arrives as an integer bitfield.
const (
	ringActivationBit = 1 << 0
	lockBit           = 1 << 1
)

// DecodeConfigBits normalises cc_config_bits. Depending on controller
// firmware the field arrives either as an integer bitfield or as a
// decoded object {"ring_activation": .., "lock": ..}. Returns false when
// the value is neither.
func DecodeConfigBits(v any) (ConfigBits, bool) {
	switch val := v.(type) {
	case float64:
		bits := int(val)
		return ConfigBits{
			RingLight: bits&ringActivationBit != 0,
			Locked:    bits&lockBit != 0,
		}, true
	case map[string]any:
		return ConfigBits{
			RingLight: truthy(val["ring_activation"]),
			Locked:    truthy(val["lock"]),
		}, true
	default:
		return ConfigBits{}, false
	}
}

// truthy interprets the vendor's loose boolean encodings (bool, 0/1).
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	default:
		return false
	}
}

// Number extracts a numeric field value. JSON numbers decode as float64;
// anything else reports false.
func Number(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
