package tracelog

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestEventRoundTrip(t *testing.T) {
	ev := Frame(SessionVendor, DirectionIn, "client/user@example.com", []byte(`{"type":"referential"}`))

	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}

	if decoded.Session != SessionVendor || decoded.Direction != DirectionIn {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Topic != ev.Topic {
		t.Errorf("Topic = %q, want %q", decoded.Topic, ev.Topic)
	}
	if !bytes.Equal(decoded.Payload, ev.Payload) {
		t.Error("payload mismatch after round trip")
	}
}

func TestFrameTruncation(t *testing.T) {
	big := bytes.Repeat([]byte("x"), MaxPayloadBytes+100)
	ev := Frame(SessionLocal, DirectionOut, "topic", big)

	if !ev.Truncated {
		t.Error("oversized payload must be flagged truncated")
	}
	if len(ev.Payload) != MaxPayloadBytes {
		t.Errorf("payload length = %d, want %d", len(ev.Payload), MaxPayloadBytes)
	}

	// The original buffer must not be aliased.
	big[0] = 'y'
	if ev.Payload[0] != 'x' {
		t.Error("payload aliases caller's buffer")
	}
}

func TestFileTracerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.trace")

	tracer, err := NewFileTracer(path)
	if err != nil {
		t.Fatalf("NewFileTracer() error = %v", err)
	}
	tracer.Log(Frame(SessionVendor, DirectionIn, "client/u", []byte("a")))
	tracer.Log(Frame(SessionLocal, DirectionOut, "homeassistant/climate/x", []byte("b")))
	tracer.Log(SessionChange(SessionVendor, "CONNECTED"))
	if err := tracer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	// Close is idempotent and later logs are dropped.
	if err := tracer.Close(); err != nil {
		t.Fatal(err)
	}
	tracer.Log(Error(SessionVendor, "after close"))

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer reader.Close()

	events, err := reader.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.trace")

	tracer, err := NewFileTracer(path)
	if err != nil {
		t.Fatal(err)
	}
	tracer.Log(Frame(SessionVendor, DirectionIn, "client/u", []byte("a")))
	tracer.Log(Frame(SessionLocal, DirectionOut, "homeassistant/climate/x/config", []byte("b")))
	tracer.Log(Frame(SessionLocal, DirectionOut, "homeassistant/sensor/y/state", []byte("c")))
	if err := tracer.Close(); err != nil {
		t.Fatal(err)
	}

	local := SessionLocal
	reader, err := NewFilteredReader(path, Filter{
		Session:     &local,
		TopicPrefix: "homeassistant/climate/",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	events, err := reader.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Topic != "homeassistant/climate/x/config" {
		t.Errorf("filtered events = %+v", events)
	}
}
