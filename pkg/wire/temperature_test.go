package wire

import "testing"

func TestEncodeTemp(t *testing.T) {
	tests := []struct {
		celsius float64
		want    int
	}{
		{22.5, 725},
		{21.0, 698},
		{20.0, 680},
		{5.0, 410},
		{30.0, 860},
		{0.0, 320},
	}

	for _, tt := range tests {
		if got := EncodeTemp(tt.celsius); got != tt.want {
			t.Errorf("EncodeTemp(%v) = %d, want %d", tt.celsius, got, tt.want)
		}
	}
}

func TestDecodeTemp(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{725, 22.5},
		{698, 21.0},
		{680, 20.0},
		{410, 5.0},
		{320, 0.0},
	}

	for _, tt := range tests {
		if got := DecodeTemp(tt.raw); got != tt.want {
			t.Errorf("DecodeTemp(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

// Every raw value in the plausible controller range must survive a
// decode/encode round trip, up to the documented one-decimal rounding.
func TestTempRoundTrip(t *testing.T) {
	for raw := 320; raw <= 900; raw++ {
		decoded := DecodeTemp(float64(raw))
		reencoded := EncodeTemp(decoded)
		if reencoded < raw-1 || reencoded > raw+1 {
			t.Fatalf("round trip drifted: raw %d -> %v C -> %d", raw, decoded, reencoded)
		}
		// A second round trip must be exact: the decoded value is already
		// on the one-decimal grid.
		if again := EncodeTemp(DecodeTemp(float64(reencoded))); again != reencoded {
			t.Fatalf("second round trip unstable: %d -> %d", reencoded, again)
		}
	}
}
