package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/model"
	"github.com/derandereandi/nea2mqtt/pkg/rehauapi"
	"github.com/derandereandi/nea2mqtt/pkg/wire"
)

// API is the HTTPS surface the zone poller needs.
type API interface {
	GetDataOfInstall(ctx context.Context, demandID string, installIDs []string) (*rehauapi.UserData, error)
}

// StateSink applies snapshot fields and republishes entity state.
type StateSink interface {
	ApplyFields(zone *model.Zone, fields map[string]any)
	PublishAll()
}

// Discovery re-emits entity configs after a reload.
type Discovery interface {
	EmitAll() error
}

// ZonePoller periodically fetches the full installation snapshot over
// HTTPS and applies it to the model. This is the authoritative fallback
// for anything missed over MQTT.
type ZonePoller struct {
	api       API
	zones     *model.Registry
	sink      StateSink
	discovery Discovery
	interval  time.Duration
	log       zerolog.Logger
}

// NewZonePoller builds the snapshot poller.
func NewZonePoller(api API, zones *model.Registry, sink StateSink, discovery Discovery, interval time.Duration, log zerolog.Logger) *ZonePoller {
	return &ZonePoller{
		api:       api,
		zones:     zones,
		sink:      sink,
		discovery: discovery,
		interval:  interval,
		log:       log.With().Str("component", "zone-poller").Logger(),
	}
}

// Run reloads on every tick until ctx ends. Reload failures are logged;
// the next tick proceeds.
func (p *ZonePoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Reload(ctx); err != nil {
				p.log.Warn().Err(err).Msg("snapshot reload failed")
			}
		}
	}
}

// Reload fetches the snapshot once and applies it.
func (p *ZonePoller) Reload(ctx context.Context) error {
	installs := p.zones.Installations()
	if len(installs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(installs))
	for _, inst := range installs {
		ids = append(ids, inst.ID)
	}

	data, err := p.api.GetDataOfInstall(ctx, ids[0], ids)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	p.apply(data)

	if p.discovery != nil {
		if err := p.discovery.EmitAll(); err != nil {
			p.log.Warn().Err(err).Msg("discovery re-emit failed")
		}
	}
	p.sink.PublishAll()
	return nil
}

// apply walks the snapshot and writes it into the model. Installations
// or zones that appeared since startup are logged and skipped; picking
// them up needs a restart because their routing must be re-validated.
func (p *ZonePoller) apply(data *rehauapi.UserData) {
	for i := range data.Installs {
		id := &data.Installs[i]

		inst, ok := p.zones.Installation(id.Unique)
		if !ok {
			p.log.Info().Str("installation", id.Unique).Msg("new installation in snapshot, restart to adopt it")
			continue
		}
		if id.OutsideTempRaw != nil && *id.OutsideTempRaw != wire.AbsentTempRaw {
			inst.SetOutsideTemp(wire.DecodeTemp(*id.OutsideTempRaw))
		}

		for _, g := range id.Groups {
			for _, z := range g.Zones {
				zone, ok := p.zones.ZoneByID(z.ID)
				if !ok {
					p.log.Info().Str("zone", z.Name).Msg("new zone in snapshot, restart to adopt it")
					continue
				}
				ch, err := z.HeatingChannel()
				if err != nil {
					p.log.Warn().Err(err).Str("zone", z.Name).Msg("snapshot zone without channel, skipped")
					continue
				}
				p.sink.ApplyFields(zone, ch.Fields)
			}
		}
	}
}
