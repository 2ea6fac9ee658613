package tracelog

import "time"

// MaxPayloadBytes bounds the payload captured per event. Longer frames
// are truncated and flagged.
const MaxPayloadBytes = 4096

// Session identifies which MQTT session an event belongs to.
type Session uint8

const (
	// SessionVendor is the cloud (WSS) session.
	SessionVendor Session = 0
	// SessionLocal is the automation broker (TCP) session.
	SessionLocal Session = 1
)

// String returns the session name.
func (s Session) String() string {
	switch s {
	case SessionVendor:
		return "VENDOR"
	case SessionLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Direction indicates message flow relative to the bridge.
type Direction uint8

const (
	// DirectionIn is a received frame.
	DirectionIn Direction = 0
	// DirectionOut is a published frame.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	// CategoryFrame is an MQTT publish in either direction.
	CategoryFrame Category = 0
	// CategorySession is a connect/disconnect/reconnect transition.
	CategorySession Category = 1
	// CategoryError is a handler or publish failure.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategorySession:
		return "SESSION"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one trace record. CBOR encoding uses integer keys for
// compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Session the event was captured on.
	Session Session `cbor:"2,keyasint"`

	// Direction of the frame (meaningful for CategoryFrame).
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"4,keyasint"`

	// Topic is the MQTT topic for frame events.
	Topic string `cbor:"5,keyasint,omitempty"`

	// Payload is the frame body, truncated to MaxPayloadBytes.
	Payload []byte `cbor:"6,keyasint,omitempty"`

	// Truncated marks a payload cut at MaxPayloadBytes.
	Truncated bool `cbor:"7,keyasint,omitempty"`

	// Detail carries the state transition or error text.
	Detail string `cbor:"8,keyasint,omitempty"`
}

// Frame builds a frame event, truncating the payload if necessary.
func Frame(session Session, dir Direction, topic string, payload []byte) Event {
	ev := Event{
		Timestamp: time.Now(),
		Session:   session,
		Direction: dir,
		Category:  CategoryFrame,
		Topic:     topic,
	}
	if len(payload) > MaxPayloadBytes {
		ev.Payload = append([]byte(nil), payload[:MaxPayloadBytes]...)
		ev.Truncated = true
	} else {
		ev.Payload = append([]byte(nil), payload...)
	}
	return ev
}

// SessionChange builds a session state transition event.
func SessionChange(session Session, detail string) Event {
	return Event{
		Timestamp: time.Now(),
		Session:   session,
		Category:  CategorySession,
		Detail:    detail,
	}
}

// Error builds an error event.
func Error(session Session, detail string) Event {
	return Event{
		Timestamp: time.Now(),
		Session:   session,
		Category:  CategoryError,
		Detail:    detail,
	}
}
