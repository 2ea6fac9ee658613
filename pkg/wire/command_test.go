package wire

import (
	"encoding/json"
	"testing"
)

func TestThermostatCommandEncode(t *testing.T) {
	cmd := NewThermostatCommand(0, 3, map[string]any{"16": 725})

	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("re-decode: %v", err)
	}

	if decoded["11"] != "REQ_TH" {
		t.Errorf("request kind = %v", decoded["11"])
	}
	if decoded["35"] != float64(0) || decoded["36"] != float64(3) {
		t.Errorf("routing = 35:%v 36:%v, want 0/3", decoded["35"], decoded["36"])
	}
	fields := decoded["12"].(map[string]any)
	if fields["16"] != float64(725) {
		t.Errorf("setpoint field = %v, want 725", fields["16"])
	}
}

func TestThermostatCommandEncodeEmpty(t *testing.T) {
	cmd := NewThermostatCommand(0, 1, nil)
	if _, err := cmd.Encode(); err == nil {
		t.Error("Encode() with no fields should fail")
	}
}

func TestLiveRequestEncode(t *testing.T) {
	for _, data := range []int{0, 1} {
		frame, err := NewLiveRequest(data).Encode()
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(frame, &decoded); err != nil {
			t.Fatalf("re-decode: %v", err)
		}
		if decoded["11"] != "REQ_LIVE" {
			t.Errorf("request kind = %v", decoded["11"])
		}
		if decoded["12"].(map[string]any)["DATA"] != float64(data) {
			t.Errorf("DATA = %v, want %d", decoded["12"], data)
		}
		if _, hasRouting := decoded["35"]; hasRouting {
			t.Error("live request must not carry a routing tuple")
		}
	}
}

func TestReferentialRequestEncode(t *testing.T) {
	frame, err := NewReferentialRequest("user@example.com", "tok-123").Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if decoded["ID"] != "user@example.com" || decoded["token"] != "tok-123" {
		t.Errorf("decoded = %v", decoded)
	}
	if decoded["sso"] != true {
		t.Error("sso flag must be set")
	}
}
