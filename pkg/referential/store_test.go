package referential

import (
	"encoding/json"
	"testing"
	"unicode/utf16"

	lzstring "github.com/daku10/go-lz-string"
)

func TestFallbacksBeforeLoad(t *testing.T) {
	s := NewStore()

	if s.Loaded() {
		t.Fatal("new store must not report loaded")
	}

	tests := []struct {
		name string
		want string
	}{
		{KeyModeUsed, "15"},
		{KeySetpointHeatNormal, "16"},
		{KeySetpointHeatReduced, "17"},
		{KeySetpointCoolNormal, "19"},
		{KeySetpointCoolReduced, "20"},
		{KeyLockActivation, "31"},
		{KeyRingFunction, "34"},
	}
	for _, tt := range tests {
		if got := s.NumberFor(tt.name); got != tt.want {
			t.Errorf("NumberFor(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}

	if got := s.NameFor("16"); got != KeySetpointHeatNormal {
		t.Errorf("NameFor(16) = %q, want %s", got, KeySetpointHeatNormal)
	}
	if got := s.NumberFor("nonexistent_field"); got != "" {
		t.Errorf("NumberFor(nonexistent) = %q, want empty", got)
	}
}

func TestApplyPairs(t *testing.T) {
	s := NewStore()
	s.ApplyPairs([]Pair{
		{Index: json.Number("16"), Value: KeySetpointHeatNormal},
		{Index: json.Number("90"), Value: KeyTempZone},
		{Index: json.Number(""), Value: "skipped"},
	})

	if !s.Loaded() {
		t.Fatal("store must report loaded after ApplyPairs")
	}
	if s.Size() != 2 {
		t.Errorf("Size() = %d, want 2", s.Size())
	}
	if got := s.NumberFor(KeyTempZone); got != "90" {
		t.Errorf("NumberFor(temp_zone) = %q, want 90", got)
	}
	if got := s.NameFor("90"); got != KeyTempZone {
		t.Errorf("NameFor(90) = %q, want temp_zone", got)
	}

	// The documented fallback still applies for names the dictionary
	// omitted.
	if got := s.NumberFor(KeyModeUsed); got != "15" {
		t.Errorf("NumberFor(mode_used) = %q, want fallback 15", got)
	}
}

func TestLoadBlobRoundTrip(t *testing.T) {
	pairs := []Pair{
		{Index: json.Number("15"), Value: KeyModeUsed},
		{Index: json.Number("16"), Value: KeySetpointHeatNormal},
		{Index: json.Number("34"), Value: KeyRingFunction},
	}
	raw, err := json.Marshal(pairs)
	if err != nil {
		t.Fatal(err)
	}
	units, err := lzstring.CompressToUTF16(string(raw))
	if err != nil {
		t.Fatal(err)
	}
	blob := string(utf16.Decode(units))

	s := NewStore()
	if err := s.LoadBlob(blob); err != nil {
		t.Fatalf("LoadBlob() error = %v", err)
	}
	if s.Size() != 3 {
		t.Errorf("Size() = %d, want 3", s.Size())
	}
	if got := s.NumberFor(KeyRingFunction); got != "34" {
		t.Errorf("NumberFor(ring_function) = %q, want 34", got)
	}
}

func TestLoadBlobErrors(t *testing.T) {
	s := NewStore()
	s.ApplyPairs([]Pair{{Index: json.Number("16"), Value: KeySetpointHeatNormal}})

	if err := s.LoadBlob(""); err == nil {
		t.Error("LoadBlob(empty) should fail")
	}

	// A bad blob must leave the previous dictionary intact.
	if err := s.LoadBlob("\x01not-compressed"); err == nil {
		t.Error("LoadBlob(garbage) should fail")
	}
	if s.Size() != 1 {
		t.Errorf("Size() after failed load = %d, want 1", s.Size())
	}
}
