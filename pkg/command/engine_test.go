package command

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/model"
	"github.com/derandereandi/nea2mqtt/pkg/referential"
	"github.com/derandereandi/nea2mqtt/pkg/wire"
)

type sent struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (p *fakePublisher) PublishVendor(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sent{topic: topic, payload: payload})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func (p *fakePublisher) last(t *testing.T) sent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		t.Fatal("nothing published")
	}
	return p.sent[len(p.sent)-1]
}

func testZone(installMode model.InstallationMode, preset model.Preset) *model.Zone {
	z := &model.Zone{
		ID:          "aaaaaaaaaaaaaaaaaaaaaaa1",
		Number:      1,
		ChannelZone: 3,
		Controller:  0,
		ChannelID:   "ch-1",
		Name:        "Living Room",
		GroupName:   "Ground Floor",
		InstallID:   "inst-1",
	}
	z.Update(func(s *model.ZoneState) {
		s.Mode = model.ModeHeat
		s.Preset = preset
		s.InstallationMode = installMode
	})
	return z
}

func newTestEngine(p *fakePublisher) *Engine {
	return NewEngine(p, referential.NewStore(), 30*time.Second, 3, false, zerolog.Nop())
}

func decodeFrame(t *testing.T, payload []byte) map[string]any {
	t.Helper()
	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("frame does not parse: %v", err)
	}
	return frame
}

func TestSubmitSetTemperature(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	if err := e.Submit(&Command{Zone: zone, Kind: KindSetTemperature, Temperature: 22.5}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got := pub.last(t)
	if got.topic != "client/inst-1" {
		t.Errorf("topic = %q", got.topic)
	}

	frame := decodeFrame(t, got.payload)
	if frame["11"] != "REQ_TH" {
		t.Errorf("request = %v", frame["11"])
	}
	if frame["35"] != float64(0) || frame["36"] != float64(3) {
		t.Errorf("routing = %v/%v, want 0/3", frame["35"], frame["36"])
	}
	fields := frame["12"].(map[string]any)
	// 22.5 °C → round(22.5×18)+320 = 725 on the heat/comfort field.
	if fields["16"] != float64(725) {
		t.Errorf("fields = %v, want {\"16\": 725}", fields)
	}
}

func TestSetpointFieldSelection(t *testing.T) {
	tests := []struct {
		name   string
		mode   model.InstallationMode
		preset model.Preset
		key    string
	}{
		{"heat comfort", model.InstallationHeat, model.PresetComfort, "16"},
		{"heat away", model.InstallationHeat, model.PresetAway, "17"},
		{"cool comfort", model.InstallationCool, model.PresetComfort, "19"},
		{"cool away", model.InstallationCool, model.PresetAway, "20"},
		{"no preset falls back to comfort", model.InstallationHeat, model.PresetNone, "16"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			e := newTestEngine(pub)
			zone := testZone(tt.mode, tt.preset)

			if err := e.Submit(&Command{Zone: zone, Kind: KindSetTemperature, Temperature: 20}); err != nil {
				t.Fatal(err)
			}
			fields := decodeFrame(t, pub.last(t).payload)["12"].(map[string]any)
			if _, ok := fields[tt.key]; !ok {
				t.Errorf("fields = %v, want key %q", fields, tt.key)
			}
		})
	}
}

func TestModeAndPresetValues(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want float64
	}{
		{"off", Command{Kind: KindSetMode, Mode: model.ModeOff}, 2},
		{"on", Command{Kind: KindSetMode, Mode: model.ModeHeat}, 0},
		{"comfort", Command{Kind: KindSetPreset, Preset: model.PresetComfort}, 0},
		{"away", Command{Kind: KindSetPreset, Preset: model.PresetAway}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			e := newTestEngine(pub)
			cmd := tt.cmd
			cmd.Zone = testZone(model.InstallationHeat, model.PresetComfort)

			if err := e.Submit(&cmd); err != nil {
				t.Fatal(err)
			}
			fields := decodeFrame(t, pub.last(t).payload)["12"].(map[string]any)
			if fields["15"] != tt.want {
				t.Errorf("mode_used = %v, want %v", fields["15"], tt.want)
			}
		})
	}
}

func TestLatestWinsCoalescing(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	if err := e.Submit(&Command{Zone: zone, Kind: KindSetTemperature, Temperature: 21}); err != nil {
		t.Fatal(err)
	}
	if err := e.Submit(&Command{Zone: zone, Kind: KindSetTemperature, Temperature: 23}); err != nil {
		t.Fatal(err)
	}

	// Both were sent, but only one slot is pending per installation.
	if pub.count() != 2 {
		t.Errorf("publishes = %d, want 2", pub.count())
	}
	if e.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", e.PendingCount())
	}
}

func TestConfirm(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	if err := e.Submit(&Command{Zone: zone, Kind: KindSetTemperature, Temperature: 21}); err != nil {
		t.Fatal(err)
	}

	// An update for some other zone of another installation is not a
	// confirmation.
	other := testZone(model.InstallationHeat, model.PresetComfort)
	other.ID = "bbbbbbbbbbbbbbbbbbbbbbb2"
	other.InstallID = "inst-2"
	e.Confirm(other)
	if e.PendingCount() != 1 {
		t.Fatal("foreign update must not confirm")
	}

	// Same installation, different zone: also not a confirmation.
	sibling := testZone(model.InstallationHeat, model.PresetComfort)
	sibling.ID = "ccccccccccccccccccccccc3"
	e.Confirm(sibling)
	if e.PendingCount() != 1 {
		t.Fatal("sibling update must not confirm")
	}

	e.Confirm(zone)
	if e.PendingCount() != 0 {
		t.Error("update for the pending zone must confirm")
	}
}

func TestRetryThenDrop(t *testing.T) {
	pub := &fakePublisher{}
	e := NewEngine(pub, referential.NewStore(), 30*time.Second, 2, false, zerolog.Nop())
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	if err := e.Submit(&Command{Zone: zone, Kind: KindSetTemperature, Temperature: 21}); err != nil {
		t.Fatal(err)
	}

	late := time.Now().Add(31 * time.Second)

	// First two timeouts re-send.
	e.checkRetries(late)
	if pub.count() != 2 {
		t.Fatalf("publishes after first timeout = %d, want 2", pub.count())
	}
	e.checkRetries(late.Add(31 * time.Second))
	if pub.count() != 3 {
		t.Fatalf("publishes after second timeout = %d, want 3", pub.count())
	}

	// Retries exhausted: the third timeout drops the command.
	e.checkRetries(late.Add(62 * time.Second))
	if pub.count() != 3 {
		t.Errorf("publishes after drop = %d, want 3", pub.count())
	}
	if e.PendingCount() != 0 {
		t.Error("dropped command still pending")
	}

	// A timeout before the deadline does nothing.
	e.checkRetries(time.Now())
	if pub.count() != 3 {
		t.Error("early tick must not re-send")
	}
}

func TestRingAutoConfirmPath(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	if err := e.Submit(&Command{Zone: zone, Kind: KindRingLight, On: true}); err != nil {
		t.Fatal(err)
	}
	fields := decodeFrame(t, pub.last(t).payload)["12"].(map[string]any)
	if fields["34"] != float64(1) {
		t.Errorf("ring_function = %v, want 1", fields["34"])
	}

	// The retry timer must leave auto-confirming commands alone.
	e.checkRetries(time.Now().Add(time.Hour))
	if pub.count() != 1 {
		t.Error("ring command must not be re-sent")
	}

	// The timer's confirmation clears the slot; a stale id does not.
	e.confirmByID("inst-1", 99)
	if e.PendingCount() != 1 {
		t.Error("stale auto-confirm cleared the slot")
	}
	e.confirmByID("inst-1", 1)
	if e.PendingCount() != 0 {
		t.Error("auto-confirm did not clear the slot")
	}
}

func TestConcurrentSubmitsKeepWireOrder(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		temp := 18.0 + float64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.Submit(&Command{Zone: zone, Kind: KindSetTemperature, Temperature: temp}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// Whatever the interleaving, the last frame on the wire must belong
	// to the command holding the slot.
	e.mu.Lock()
	p := e.pending[zone.InstallID]
	e.mu.Unlock()
	if p == nil {
		t.Fatal("no pending command after submits")
	}
	fields := decodeFrame(t, pub.last(t).payload)["12"].(map[string]any)
	if want := float64(wire.EncodeTemp(p.cmd.Temperature)); fields["16"] != want {
		t.Errorf("last frame setpoint = %v, want %v (the pending command's)", fields["16"], want)
	}
}

func TestFailedRingPublishFreesSlot(t *testing.T) {
	pub := &fakePublisher{err: errors.New("session down")}
	e := newTestEngine(pub)
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	if err := e.Submit(&Command{Zone: zone, Kind: KindRingLight, On: true}); err == nil {
		t.Fatal("Submit() must surface the publish failure")
	}
	if e.PendingCount() != 0 {
		t.Error("failed ring command left its slot occupied")
	}
}

func TestNoResendAfterLateConfirmation(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	cmd := &Command{Zone: zone, Kind: KindSetTemperature, Temperature: 21}
	if err := e.Submit(cmd); err != nil {
		t.Fatal(err)
	}
	e.mu.Lock()
	p := e.pending[zone.InstallID]
	e.mu.Unlock()

	// Confirmation lands between the retry sweep and the re-publish.
	e.Confirm(zone)

	fields, err := e.fields(cmd)
	if err != nil {
		t.Fatal(err)
	}
	e.resend(p, fields)
	if pub.count() != 1 {
		t.Errorf("publishes = %d, want 1 (confirmed command must not re-send)", pub.count())
	}
}

func TestLockCommandEncoding(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)
	zone := testZone(model.InstallationHeat, model.PresetComfort)

	if err := e.Submit(&Command{Zone: zone, Kind: KindLock, On: true}); err != nil {
		t.Fatal(err)
	}
	fields := decodeFrame(t, pub.last(t).payload)["12"].(map[string]any)
	if fields["31"] != true {
		t.Errorf("loc_activation = %v, want true", fields["31"])
	}
}
