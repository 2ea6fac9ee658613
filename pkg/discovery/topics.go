package discovery

// Prefix is the local broker's discovery namespace.
const Prefix = "homeassistant"

// Entity suffixes under a zone. The zone's climate entity carries no
// suffix.
const (
	SuffixTemperature   = "temperature"
	SuffixHumidity      = "humidity"
	SuffixDemanding     = "demanding"
	SuffixDemandingPct  = "demanding_percent"
	SuffixDewpoint      = "dewpoint"
	SuffixRingLight     = "ring_light"
	SuffixLock          = "lock"
	SuffixSystem        = "system"
	SuffixOutsideTemp   = "outside_temperature"
	SuffixMixedCircuit  = "mixed_circuit"
	SuffixDigitalInput  = "digital_input"
	SuffixDigitalOutput = "digital_output"
)

// Topic leaves. Climate entities carry dedicated command leaves; simple
// entities use set/state pairs.
const (
	LeafConfig       = "config"
	LeafAvailability = "availability"
	LeafState        = "state"
	LeafSet          = "set"

	LeafTempCommand   = "temperature_command"
	LeafModeCommand   = "mode_command"
	LeafPresetCommand = "preset_command"

	LeafCurrentTemp = "current_temperature"
	LeafTargetTemp  = "target_temperature"
	LeafMode        = "mode"
	LeafPreset      = "preset"
)

// ObjectID is the stable per-entity identifier used in topics and as
// unique_id. It keys on the immutable zone id; controller/number pairs
// collide across controllers and must not be used here.
func ObjectID(id, suffix string) string {
	obj := "rehau_" + id
	if suffix != "" {
		obj += "_" + suffix
	}
	return obj
}

// Topic builds homeassistant/<domain>/rehau_<id>[_<suffix>]/<leaf>.
func Topic(domain, id, suffix, leaf string) string {
	return Prefix + "/" + domain + "/" + ObjectID(id, suffix) + "/" + leaf
}

// Climate leaves for a zone's main entity.
func ClimateTopic(zoneID, leaf string) string {
	return Topic("climate", zoneID, "", leaf)
}

// SensorTopic addresses one of a zone's value sensors.
func SensorTopic(id, suffix, leaf string) string {
	return Topic("sensor", id, suffix, leaf)
}

// BinarySensorTopic addresses a zone's demand state sensor.
func BinarySensorTopic(id, suffix, leaf string) string {
	return Topic("binary_sensor", id, suffix, leaf)
}

// LightTopic addresses the ring-light entity.
func LightTopic(zoneID, leaf string) string {
	return Topic("light", zoneID, SuffixRingLight, leaf)
}

// LockTopic addresses the lock entity.
func LockTopic(zoneID, leaf string) string {
	return Topic("lock", zoneID, SuffixLock, leaf)
}

// SystemClimateTopic addresses the per-installation heat/cool selector.
func SystemClimateTopic(installID, leaf string) string {
	return Topic("climate", installID, SuffixSystem, leaf)
}
