package model

import "sync"

// Group is a pure naming container for zones.
type Group struct {
	Name  string
	Zones []*Zone
}

// Installation is one physical controller device and the zones it
// governs. Created once at startup from the authenticated user payload.
type Installation struct {
	ID   string
	Name string

	// CoolingSupported is bit 0 of the vendor's coolingConditions.
	CoolingSupported bool

	Groups []*Group

	mu          sync.RWMutex
	outsideTemp OptFloat
	mode        InstallationMode
}

// NewInstallation creates an installation in heating mode.
func NewInstallation(id, name string, coolingSupported bool) *Installation {
	return &Installation{
		ID:               id,
		Name:             name,
		CoolingSupported: coolingSupported,
		mode:             InstallationHeat,
	}
}

// Mode returns the system-wide heat/cool selector.
func (i *Installation) Mode() InstallationMode {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.mode
}

// SetMode switches the system-wide heat/cool selector and mirrors it
// into every zone.
func (i *Installation) SetMode(mode InstallationMode) {
	i.mu.Lock()
	i.mode = mode
	i.mu.Unlock()

	for _, z := range i.AllZones() {
		z.Update(func(s *ZoneState) {
			s.InstallationMode = mode
		})
	}
}

// OutsideTemp returns the last reported outside temperature.
func (i *Installation) OutsideTemp() OptFloat {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.outsideTemp
}

// SetOutsideTemp records the outside temperature.
func (i *Installation) SetOutsideTemp(celsius float64) {
	i.mu.Lock()
	i.outsideTemp = Float(celsius)
	i.mu.Unlock()
}

// AllZones returns every zone across all groups.
func (i *Installation) AllZones() []*Zone {
	var zones []*Zone
	for _, g := range i.Groups {
		zones = append(zones, g.Zones...)
	}
	return zones
}
