package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire format errors.
var (
	ErrUnknownType = errors.New("unknown message type")
	ErrEmptyFrame  = errors.New("empty frame")
)

// Kind identifies the decoded message variant.
type Kind uint8

const (
	// KindChannelUpdate is a field change for a single channel.
	KindChannelUpdate Kind = iota

	// KindRealtime is a zone snapshot batch (initial or incremental).
	KindRealtime

	// KindReferential is the compressed key dictionary.
	KindReferential

	// KindLiveData is a LIVE_EMU or LIVE_DIDO diagnostic payload.
	KindLiveData
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindChannelUpdate:
		return "CHANNEL_UPDATE"
	case KindRealtime:
		return "REALTIME"
	case KindReferential:
		return "REFERENTIAL"
	case KindLiveData:
		return "LIVE_DATA"
	default:
		return "UNKNOWN"
	}
}

// Message is a decoded vendor payload. Exactly one variant pointer is set,
// matching Kind.
type Message struct {
	Kind Kind

	ChannelUpdate *ChannelUpdate
	Realtime      *Realtime
	Referential   *Referential
	LiveData      *LiveData
}

// ChannelUpdate carries changed fields for one channel of one installation.
// Fields is keyed by the vendor's numeric keys; resolution to symbolic
// names goes through the referential dictionary.
type ChannelUpdate struct {
	Channel string         `json:"channel"`
	Install string         `json:"unique"`
	Fields  map[string]any `json:"data"`
}

// Realtime carries zone snapshots. Incremental updates may arrive with no
// zones at all; those are heartbeats and safe to ignore.
type Realtime struct {
	// Incremental is true for realtime.update payloads.
	Incremental bool

	Zones []ZoneSnapshot `json:"zones"`
}

// ZoneSnapshot is one zone's state within a realtime payload.
type ZoneSnapshot struct {
	ID     string         `json:"id"`
	Number int            `json:"number"`
	Fields map[string]any `json:"data"`
}

// Referential carries the LZ-UTF16 compressed dictionary blob.
type Referential struct {
	Blob string
}

// LiveData carries a diagnostic payload requested via REQ_LIVE.
type LiveData struct {
	Type    string          `json:"type"`
	Install string          `json:"unique"`
	Data    json.RawMessage `json:"data"`
}

// LiveData type discriminators.
const (
	LiveEMU  = "LIVE_EMU"
	LiveDIDO = "LIVE_DIDO"
)

// MixedCircuit is one circuit in a LIVE_EMU payload. Raw temperatures are
// tenths of Fahrenheit; a SupplyRaw of AbsentTempRaw marks the circuit as
// not present.
type MixedCircuit struct {
	Pump        bool    `json:"pump"`
	SetpointRaw float64 `json:"setpoint"`
	SupplyRaw   float64 `json:"supply"`
	ReturnRaw   float64 `json:"return"`
	ValvePct    float64 `json:"valve"`
}

// DigitalIO is a LIVE_DIDO payload: the controller's digital inputs and
// outputs in declaration order.
type DigitalIO struct {
	Inputs  []bool `json:"DI"`
	Outputs []bool `json:"DO"`
}

// DecodeMixedCircuits parses the Data of a LIVE_EMU message.
func (l *LiveData) DecodeMixedCircuits() ([]MixedCircuit, error) {
	var circuits []MixedCircuit
	if err := json.Unmarshal(l.Data, &circuits); err != nil {
		return nil, fmt.Errorf("decode LIVE_EMU circuits: %w", err)
	}
	return circuits, nil
}

// DecodeDigitalIO parses the Data of a LIVE_DIDO message.
func (l *LiveData) DecodeDigitalIO() (*DigitalIO, error) {
	var dio DigitalIO
	if err := json.Unmarshal(l.Data, &dio); err != nil {
		return nil, fmt.Errorf("decode LIVE_DIDO payload: %w", err)
	}
	return &dio, nil
}

// envelope is the outer shape shared by all vendor payloads. Realtime
// payloads sometimes carry zones at the top level instead of under data;
// both placements are accepted.
type envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Zones json.RawMessage `json:"zones"`
}

// Decode parses a raw vendor payload into a tagged Message.
// Unknown types return ErrUnknownType (wrapped with the offending tag).
func Decode(payload []byte) (*Message, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyFrame
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "channel_update":
		var cu ChannelUpdate
		if err := json.Unmarshal(env.Data, &cu); err != nil {
			return nil, fmt.Errorf("decode channel_update: %w", err)
		}
		return &Message{Kind: KindChannelUpdate, ChannelUpdate: &cu}, nil

	case "realtime", "realtime.update":
		rt, err := decodeRealtime(&env)
		if err != nil {
			return nil, err
		}
		rt.Incremental = env.Type == "realtime.update"
		return &Message{Kind: KindRealtime, Realtime: rt}, nil

	case "referential":
		var blob string
		if err := json.Unmarshal(env.Data, &blob); err != nil {
			return nil, fmt.Errorf("decode referential blob: %w", err)
		}
		return &Message{Kind: KindReferential, Referential: &Referential{Blob: blob}}, nil

	case "live_data":
		var ld LiveData
		if err := json.Unmarshal(env.Data, &ld); err != nil {
			return nil, fmt.Errorf("decode live_data: %w", err)
		}
		return &Message{Kind: KindLiveData, LiveData: &ld}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// decodeRealtime accepts zones under data or at the top level.
func decodeRealtime(env *envelope) (*Realtime, error) {
	var rt Realtime

	if len(env.Zones) > 0 {
		if err := json.Unmarshal(env.Zones, &rt.Zones); err != nil {
			return nil, fmt.Errorf("decode realtime zones: %w", err)
		}
		return &rt, nil
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &rt); err != nil {
			return nil, fmt.Errorf("decode realtime data: %w", err)
		}
	}
	return &rt, nil
}
