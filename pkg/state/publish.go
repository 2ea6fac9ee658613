package state

import (
	"strconv"

	"github.com/derandereandi/nea2mqtt/pkg/discovery"
	"github.com/derandereandi/nea2mqtt/pkg/model"
)

// NoneValue is published for preset and target temperature while a zone
// is off. The automation platform renders it as "no value".
const NoneValue = "None"

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func lockState(locked bool) string {
	if locked {
		return "LOCKED"
	}
	return "UNLOCKED"
}

// publish writes one scalar to the local broker unless the topic
// already carries that value.
func (e *Engine) publish(topic, value string) {
	e.mu.Lock()
	if e.published[topic] == value {
		e.mu.Unlock()
		return
	}
	e.published[topic] = value
	e.mu.Unlock()

	if err := e.link.PublishLocal(topic, []byte(value), false); err != nil {
		e.log.Warn().Err(err).Str("topic", topic).Msg("local publish failed")
	}
}

// InvalidateCache forgets every published value so the next update
// republishes everything. Called after local-broker reconnects.
func (e *Engine) InvalidateCache() {
	e.mu.Lock()
	e.published = make(map[string]string)
	e.mu.Unlock()
}

// publishZone mirrors the zone's current state onto its entity topics.
func (e *Engine) publishZone(zone *model.Zone) {
	s := zone.State()
	id := zone.ID

	e.publish(discovery.ClimateTopic(id, discovery.LeafMode), string(s.Mode))

	if s.Mode == model.ModeOff {
		e.publish(discovery.ClimateTopic(id, discovery.LeafPreset), NoneValue)
		e.publish(discovery.ClimateTopic(id, discovery.LeafTargetTemp), NoneValue)
	} else {
		e.publish(discovery.ClimateTopic(id, discovery.LeafPreset), string(s.Preset))
		if s.TargetTemp.Valid {
			e.publish(discovery.ClimateTopic(id, discovery.LeafTargetTemp), formatTemp(s.TargetTemp.Value))
		}
	}

	if s.CurrentTemp.Valid {
		e.publish(discovery.ClimateTopic(id, discovery.LeafCurrentTemp), formatTemp(s.CurrentTemp.Value))
		e.publish(discovery.SensorTopic(id, discovery.SuffixTemperature, discovery.LeafState), formatTemp(s.CurrentTemp.Value))
	}
	if s.Humidity.Valid {
		e.publish(discovery.SensorTopic(id, discovery.SuffixHumidity, discovery.LeafState), formatNumber(s.Humidity.Value))
	}
	if s.DemandPct.Valid {
		e.publish(discovery.SensorTopic(id, discovery.SuffixDemandingPct, discovery.LeafState), formatNumber(s.DemandPct.Value))
	}
	if s.Dewpoint.Valid {
		e.publish(discovery.SensorTopic(id, discovery.SuffixDewpoint, discovery.LeafState), formatTemp(s.Dewpoint.Value))
	}

	e.publish(discovery.BinarySensorTopic(id, discovery.SuffixDemanding, discovery.LeafState), onOff(s.Demanding))
	e.publish(discovery.LightTopic(id, discovery.LeafState), onOff(s.RingLight))
	e.publish(discovery.LockTopic(id, discovery.LeafState), lockState(s.Locked))

	if s.Available {
		e.publish(discovery.ClimateTopic(id, discovery.LeafAvailability), "online")
	}
}

// MarkUnavailable flips every entity offline after the vendor session
// is lost. The next applied update brings each zone back online.
func (e *Engine) MarkUnavailable() {
	for _, zone := range e.zones.Zones() {
		zone.Update(func(s *model.ZoneState) { s.Available = false })
		e.publish(discovery.ClimateTopic(zone.ID, discovery.LeafAvailability), "offline")
	}
}

// PublishInstallation mirrors installation-wide state: the heat/cool
// selector and the outside temperature.
func (e *Engine) PublishInstallation(inst *model.Installation) {
	e.publish(discovery.SystemClimateTopic(inst.ID, discovery.LeafMode), string(inst.Mode()))
	if t := inst.OutsideTemp(); t.Valid {
		e.publish(discovery.SensorTopic(inst.ID, discovery.SuffixOutsideTemp, discovery.LeafState), formatTemp(t.Value))
	}
}

// PublishAll mirrors every zone and installation. Used after the
// periodic HTTPS snapshot reload.
func (e *Engine) PublishAll() {
	for _, inst := range e.zones.Installations() {
		e.PublishInstallation(inst)
	}
	for _, z := range e.zones.Zones() {
		e.publishZone(z)
	}
}
