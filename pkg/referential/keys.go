package referential

// Symbolic field names used across the bridge.
const (
	KeyModeUsed            = "mode_used"
	KeySetpointHeatNormal  = "setpoint_h_normal"
	KeySetpointHeatReduced = "setpoint_h_reduced"
	KeySetpointCoolNormal  = "setpoint_c_normal"
	KeySetpointCoolReduced = "setpoint_c_reduced"
	KeyTempZone            = "temp_zone"
	KeyHumidity            = "humidity"
	KeyDemand              = "demand"
	KeyDemandState         = "demand_state"
	KeyDewpoint            = "dewpoint"
	KeyConfigBits          = "cc_config_bits"
	KeyRingFunction        = "ring_function"
	KeyLockActivation      = "loc_activation"
)

// fallbackNumbers maps symbolic names to the numeric keys observed on
// current controller firmware. Used until the vendor dictionary arrives,
// and as a safety net for names the dictionary omits.
var fallbackNumbers = map[string]string{
	KeyModeUsed:            "15",
	KeySetpointHeatNormal:  "16",
	KeySetpointHeatReduced: "17",
	KeySetpointCoolNormal:  "19",
	KeySetpointCoolReduced: "20",
	KeyLockActivation:      "31",
	KeyRingFunction:        "34",
}

// FallbackNumber returns the static fallback numeric key for a symbolic
// name, or "" if none is documented.
func FallbackNumber(name string) string {
	return fallbackNumbers[name]
}
