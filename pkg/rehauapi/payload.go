package rehauapi

import (
	"fmt"

	"github.com/derandereandi/nea2mqtt/pkg/model"
	"github.com/derandereandi/nea2mqtt/pkg/wire"
)

// UserData is the payload of getUserData and getDataofInstall.
type UserData struct {
	User     User               `json:"user"`
	Installs []InstallationData `json:"installs"`
}

// User identifies the authenticated account.
type User struct {
	Email string `json:"email"`
}

// InstallationData is one controller installation as the API reports it.
type InstallationData struct {
	Unique string `json:"unique"`
	Name   string `json:"name"`

	// OutsideTempRaw is in the vendor raw unit (tenths of Fahrenheit).
	OutsideTempRaw *float64 `json:"outside_temperature"`

	// CoolingConditions is a bitfield; bit 0 means cooling is supported.
	CoolingConditions int `json:"coolingConditions"`

	Groups []GroupData `json:"groups"`
}

// CoolingSupported reports bit 0 of CoolingConditions.
func (i *InstallationData) CoolingSupported() bool {
	return i.CoolingConditions&1 != 0
}

// GroupData is a named zone container.
type GroupData struct {
	Name  string     `json:"group_name"`
	Zones []ZoneData `json:"zones"`
}

// ZoneData is one zone with its channels.
type ZoneData struct {
	ID       string        `json:"_id"`
	Name     string        `json:"name"`
	Number   int           `json:"number"`
	Channels []ChannelData `json:"channels"`
}

// ChannelData is one measurement/command channel. Current field values
// arrive under the vendor's numeric keys.
type ChannelData struct {
	ID          string         `json:"_id"`
	ChannelZone int            `json:"channel_zone"`
	Controller  int            `json:"controller_number"`
	Fields      map[string]any `json:"data"`
}

// HeatingChannel returns the zone's primary channel. Zones carry exactly
// one channel on current firmware; the first is authoritative.
func (z *ZoneData) HeatingChannel() (*ChannelData, error) {
	if len(z.Channels) == 0 {
		return nil, fmt.Errorf("zone %q has no channels", z.Name)
	}
	return &z.Channels[0], nil
}

// ToModel converts an installation payload into the entity model.
// Channel field values are not applied here; the state engine owns field
// interpretation so snapshot and realtime paths share one code path.
func (i *InstallationData) ToModel() (*model.Installation, error) {
	inst := model.NewInstallation(i.Unique, i.Name, i.CoolingSupported())
	if i.OutsideTempRaw != nil {
		inst.SetOutsideTemp(wire.DecodeTemp(*i.OutsideTempRaw))
	}

	for _, g := range i.Groups {
		group := &model.Group{Name: g.Name}
		for _, z := range g.Zones {
			ch, err := z.HeatingChannel()
			if err != nil {
				return nil, err
			}
			zone := &model.Zone{
				ID:          z.ID,
				Number:      z.Number,
				ChannelZone: ch.ChannelZone,
				Controller:  ch.Controller,
				ChannelID:   ch.ID,
				Name:        z.Name,
				GroupName:   g.Name,
				InstallID:   i.Unique,
			}
			zone.Update(func(s *model.ZoneState) {
				s.Mode = model.ModeOff
				s.Preset = model.PresetNone
				s.InstallationMode = model.InstallationHeat
				s.Available = true
			})
			group.Zones = append(group.Zones, zone)
		}
		inst.Groups = append(inst.Groups, group)
	}

	return inst, nil
}
