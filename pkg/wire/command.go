package wire

import (
	"encoding/json"
	"fmt"
)

// Request kinds carried in the "11" slot.
const (
	RequestThermostat = "REQ_TH"
	RequestLive       = "REQ_LIVE"
)

// ThermostatCommand is the vendor command frame published to
// client/<installationId>:
//
//	{"11":"REQ_TH","12":{<numericKey>:<value>,...},"35":<controller>,"36":<channelZone>}
type ThermostatCommand struct {
	Request     string         `json:"11"`
	Fields      map[string]any `json:"12"`
	Controller  int            `json:"35"`
	ChannelZone int            `json:"36"`
}

// NewThermostatCommand builds a REQ_TH frame for the given routing tuple.
func NewThermostatCommand(controller, channelZone int, fields map[string]any) *ThermostatCommand {
	return &ThermostatCommand{
		Request:     RequestThermostat,
		Fields:      fields,
		Controller:  controller,
		ChannelZone: channelZone,
	}
}

// Encode serialises the command frame.
func (c *ThermostatCommand) Encode() ([]byte, error) {
	if len(c.Fields) == 0 {
		return nil, fmt.Errorf("thermostat command without fields")
	}
	return json.Marshal(c)
}

// LiveRequest asks the controller to publish diagnostic data. DATA=1
// requests the mixed circuits (LIVE_EMU), DATA=0 the digital I/O
// (LIVE_DIDO). Live requests carry no routing tuple.
type LiveRequest struct {
	Request string         `json:"11"`
	Data    map[string]int `json:"12"`
}

// NewLiveRequest builds a REQ_LIVE frame.
func NewLiveRequest(data int) *LiveRequest {
	return &LiveRequest{
		Request: RequestLive,
		Data:    map[string]int{"DATA": data},
	}
}

// Encode serialises the live request frame.
func (r *LiveRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// ReferentialRequest asks the vendor to publish the key dictionary on the
// user topic. Published to server/<email>/v1/install/user/referential.
type ReferentialRequest struct {
	ID    string         `json:"ID"`
	Data  map[string]any `json:"data"`
	SSO   bool           `json:"sso"`
	Token string         `json:"token"`
}

// NewReferentialRequest builds a referential request for the given user.
func NewReferentialRequest(email, accessToken string) *ReferentialRequest {
	return &ReferentialRequest{
		ID:    email,
		Data:  map[string]any{},
		SSO:   true,
		Token: accessToken,
	}
}

// Encode serialises the referential request.
func (r *ReferentialRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}
