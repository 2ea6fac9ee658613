package discovery

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/derandereandi/nea2mqtt/pkg/model"
)

type recordedPublish struct {
	payload []byte
	retain  bool
}

type fakeLocal struct {
	pubs  map[string]recordedPublish
	order []string
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{pubs: make(map[string]recordedPublish)}
}

func (l *fakeLocal) PublishLocal(topic string, payload []byte, retain bool) error {
	l.pubs[topic] = recordedPublish{payload: payload, retain: retain}
	l.order = append(l.order, topic)
	return nil
}

func (l *fakeLocal) config(t *testing.T, topic string) map[string]any {
	t.Helper()
	rec, ok := l.pubs[topic]
	require.True(t, ok, "nothing published to %q", topic)
	require.True(t, rec.retain, "%q not retained", topic)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(rec.payload, &cfg), "config does not parse")
	return cfg
}

func fixture(t *testing.T, useGroup, cooling bool) (*Publisher, *fakeLocal, *model.Zone, *model.Installation) {
	t.Helper()

	zone := &model.Zone{
		ID:          "aaaaaaaaaaaaaaaaaaaaaaa1",
		Number:      1,
		ChannelZone: 3,
		ChannelID:   "ch-1",
		Name:        "Living Room",
		GroupName:   "Ground Floor",
		InstallID:   "inst-1",
	}
	inst := model.NewInstallation("inst-1", "Home", cooling)
	inst.Groups = []*model.Group{{Name: zone.GroupName, Zones: []*model.Zone{zone}}}

	registry := model.NewRegistry()
	require.NoError(t, registry.AddInstallation(inst))

	local := newFakeLocal()
	return NewPublisher(local, registry, useGroup, zerolog.Nop()), local, zone, inst
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Ground Floor Living Room", "ground_floor_living_room"},
		{"  Bad ", "bad"},
		{"Kitchen", "kitchen"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClimateConfig(t *testing.T) {
	pub, local, zone, _ := fixture(t, false, false)
	if err := pub.EmitAll(); err != nil {
		t.Fatal(err)
	}

	cfg := local.config(t, "homeassistant/climate/rehau_"+zone.ID+"/config")

	// Plain zone name unless group naming is enabled, but the object id
	// always carries the sanitized group.
	if cfg["name"] != "Living Room" {
		t.Errorf("name = %v", cfg["name"])
	}
	if cfg["object_id"] != "ground_floor_living_room" {
		t.Errorf("object_id = %v", cfg["object_id"])
	}
	if cfg["unique_id"] != "rehau_"+zone.ID {
		t.Errorf("unique_id = %v", cfg["unique_id"])
	}
	if cfg["temperature_command_topic"] != "homeassistant/climate/rehau_"+zone.ID+"/temperature_command" {
		t.Errorf("temperature_command_topic = %v", cfg["temperature_command_topic"])
	}
	if cfg["temp_step"] != 0.5 || cfg["min_temp"] != 5.0 || cfg["max_temp"] != 30.0 || cfg["precision"] != 0.1 {
		t.Errorf("temperature bounds = %v/%v/%v/%v", cfg["temp_step"], cfg["min_temp"], cfg["max_temp"], cfg["precision"])
	}
	if cfg["optimistic"] != true {
		t.Error("climate must be optimistic")
	}

	modes := cfg["modes"].([]any)
	if len(modes) != 2 || modes[0] != "off" || modes[1] != "heat" {
		t.Errorf("modes = %v (cooling unsupported)", modes)
	}
	presets := cfg["preset_modes"].([]any)
	if len(presets) != 2 || presets[0] != "comfort" || presets[1] != "away" {
		t.Errorf("preset_modes = %v", presets)
	}
}

func TestGroupNaming(t *testing.T) {
	pub, local, zone, _ := fixture(t, true, false)
	if err := pub.EmitAll(); err != nil {
		t.Fatal(err)
	}

	cfg := local.config(t, "homeassistant/climate/rehau_"+zone.ID+"/config")
	if cfg["name"] != "Ground Floor Living Room" {
		t.Errorf("name = %v", cfg["name"])
	}
}

func TestCoolingAddsMode(t *testing.T) {
	pub, local, zone, inst := fixture(t, false, true)
	if err := pub.EmitAll(); err != nil {
		t.Fatal(err)
	}

	cfg := local.config(t, "homeassistant/climate/rehau_"+zone.ID+"/config")
	modes := cfg["modes"].([]any)
	if len(modes) != 3 || modes[2] != "cool" {
		t.Errorf("modes = %v, want off/heat/cool", modes)
	}

	system := local.config(t, "homeassistant/climate/rehau_"+inst.ID+"_system/config")
	sysModes := system["modes"].([]any)
	if len(sysModes) != 2 || sysModes[0] != "heat" || sysModes[1] != "cool" {
		t.Errorf("system modes = %v", sysModes)
	}
}

func TestEntitySetAndAvailability(t *testing.T) {
	pub, local, zone, inst := fixture(t, false, false)
	if err := pub.EmitAll(); err != nil {
		t.Fatal(err)
	}

	configs := []string{
		"homeassistant/climate/rehau_" + zone.ID + "/config",
		"homeassistant/sensor/rehau_" + zone.ID + "_temperature/config",
		"homeassistant/sensor/rehau_" + zone.ID + "_humidity/config",
		"homeassistant/sensor/rehau_" + zone.ID + "_demanding_percent/config",
		"homeassistant/sensor/rehau_" + zone.ID + "_dewpoint/config",
		"homeassistant/binary_sensor/rehau_" + zone.ID + "_demanding/config",
		"homeassistant/light/rehau_" + zone.ID + "_ring_light/config",
		"homeassistant/lock/rehau_" + zone.ID + "_lock/config",
		"homeassistant/sensor/rehau_" + inst.ID + "_outside_temperature/config",
		"homeassistant/climate/rehau_" + inst.ID + "_system/config",
	}
	for _, topic := range configs {
		local.config(t, topic)
	}

	demanding := local.config(t, "homeassistant/binary_sensor/rehau_"+zone.ID+"_demanding/config")
	if demanding["device_class"] != "heat" {
		t.Errorf("demanding device_class = %v", demanding["device_class"])
	}

	// Availability flips online only after the zone's configs are out.
	avTopic := "homeassistant/climate/rehau_" + zone.ID + "/availability"
	rec, ok := local.pubs[avTopic]
	if !ok || string(rec.payload) != "online" {
		t.Fatalf("availability = %v", rec)
	}
	last := local.order[len(local.order)-1]
	if last != avTopic {
		t.Errorf("last publish = %q, want availability", last)
	}
}

func TestLockConfigPayloads(t *testing.T) {
	pub, local, zone, _ := fixture(t, false, false)
	if err := pub.EmitAll(); err != nil {
		t.Fatal(err)
	}

	cfg := local.config(t, "homeassistant/lock/rehau_"+zone.ID+"_lock/config")
	if cfg["payload_lock"] != "LOCK" || cfg["payload_unlock"] != "UNLOCK" {
		t.Errorf("lock payloads = %v/%v", cfg["payload_lock"], cfg["payload_unlock"])
	}
	if cfg["state_locked"] != "LOCKED" || cfg["state_unlocked"] != "UNLOCKED" {
		t.Errorf("lock states = %v/%v", cfg["state_locked"], cfg["state_unlocked"])
	}
	if cfg["command_topic"] != "homeassistant/lock/rehau_"+zone.ID+"_lock/set" {
		t.Errorf("command_topic = %v", cfg["command_topic"])
	}
}
