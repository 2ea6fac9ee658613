package model

import (
	"errors"
	"fmt"
	"sync"
)

// Registry errors. Routing and channel conflicts are fatal configuration
// errors: the bridge refuses to start rather than guess which zone a
// vendor update belongs to.
var (
	ErrRoutingConflict   = errors.New("routing tuple already in use")
	ErrChannelConflict   = errors.New("channel id already in use")
	ErrInstallationKnown = errors.New("installation already registered")
	ErrZoneNotFound      = errors.New("zone not found")
)

// routingKey is the (installation, channel zone, controller) tuple.
type routingKey struct {
	installID   string
	channelZone int
	controller  int
}

// Registry indexes installations and zones for message routing.
type Registry struct {
	mu sync.RWMutex

	installs  map[string]*Installation
	byRouting map[routingKey]*Zone
	byChannel map[string]*Zone
	byZoneID  map[string]*Zone
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		installs:  make(map[string]*Installation),
		byRouting: make(map[routingKey]*Zone),
		byChannel: make(map[string]*Zone),
		byZoneID:  make(map[string]*Zone),
	}
}

// AddInstallation registers an installation and indexes all its zones.
// Fails on duplicate routing tuples or channel ids within the
// installation; partial registrations are rolled back.
func (r *Registry) AddInstallation(inst *Installation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.installs[inst.ID]; exists {
		return fmt.Errorf("%w: %s", ErrInstallationKnown, inst.ID)
	}

	var added []*Zone
	rollback := func() {
		for _, z := range added {
			delete(r.byRouting, routingKey{z.InstallID, z.ChannelZone, z.Controller})
			if z.ChannelID != "" {
				delete(r.byChannel, z.ChannelID)
			}
			delete(r.byZoneID, z.ID)
		}
	}

	for _, zone := range inst.AllZones() {
		rk := routingKey{zone.InstallID, zone.ChannelZone, zone.Controller}
		if other, exists := r.byRouting[rk]; exists {
			rollback()
			return fmt.Errorf("%w: installation %s channel zone %d controller %d (zones %q and %q)",
				ErrRoutingConflict, zone.InstallID, zone.ChannelZone, zone.Controller, other.Name, zone.Name)
		}
		if zone.ChannelID != "" {
			if other, exists := r.byChannel[zone.ChannelID]; exists {
				rollback()
				return fmt.Errorf("%w: channel %s (zones %q and %q)",
					ErrChannelConflict, zone.ChannelID, other.Name, zone.Name)
			}
			r.byChannel[zone.ChannelID] = zone
		}
		r.byRouting[rk] = zone
		r.byZoneID[zone.ID] = zone
		added = append(added, zone)
	}

	r.installs[inst.ID] = inst
	return nil
}

// Installation returns an installation by id.
func (r *Registry) Installation(id string) (*Installation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.installs[id]
	return inst, ok
}

// Installations returns all registered installations.
func (r *Registry) Installations() []*Installation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	installs := make([]*Installation, 0, len(r.installs))
	for _, inst := range r.installs {
		installs = append(installs, inst)
	}
	return installs
}

// Zones returns every registered zone.
func (r *Registry) Zones() []*Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	zones := make([]*Zone, 0, len(r.byZoneID))
	for _, z := range r.byZoneID {
		zones = append(zones, z)
	}
	return zones
}

// ZoneByChannel resolves a vendor channel id to its zone. This is the
// fast path for command confirmation.
func (r *Registry) ZoneByChannel(channelID string) (*Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.byChannel[channelID]
	return z, ok
}

// ZoneByRouting resolves the routing tuple carried by vendor commands.
func (r *Registry) ZoneByRouting(installID string, channelZone, controller int) (*Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.byRouting[routingKey{installID, channelZone, controller}]
	return z, ok
}

// ZoneByID resolves the stable zone identifier used in topic names.
func (r *Registry) ZoneByID(zoneID string) (*Zone, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.byZoneID[zoneID]
	return z, ok
}

// ZoneCount returns the number of registered zones.
func (r *Registry) ZoneCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byZoneID)
}
