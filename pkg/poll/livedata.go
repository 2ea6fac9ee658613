package poll

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/broker"
	"github.com/derandereandi/nea2mqtt/pkg/model"
	"github.com/derandereandi/nea2mqtt/pkg/wire"
)

// liveRequestGap separates the EMU request (DATA=1) from the DIDO
// request (DATA=0); the controller only serves one at a time.
const liveRequestGap = time.Second

// VendorPublisher is the vendor-side publish surface.
type VendorPublisher interface {
	PublishVendor(topic string, payload []byte) error
}

// LiveDataPoller periodically asks every installation for its
// diagnostic payloads. The responses arrive asynchronously on the user
// topic and flow through the state engine.
type LiveDataPoller struct {
	link     VendorPublisher
	zones    *model.Registry
	interval time.Duration
	log      zerolog.Logger
}

// NewLiveDataPoller builds the live-data poller.
func NewLiveDataPoller(link VendorPublisher, zones *model.Registry, interval time.Duration, log zerolog.Logger) *LiveDataPoller {
	return &LiveDataPoller{
		link:     link,
		zones:    zones,
		interval: interval,
		log:      log.With().Str("component", "live-poller").Logger(),
	}
}

// Run requests live data on every tick until ctx ends.
func (p *LiveDataPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Request(ctx)
		}
	}
}

// Request publishes the EMU and DIDO live requests for every
// installation.
func (p *LiveDataPoller) Request(ctx context.Context) {
	for _, inst := range p.zones.Installations() {
		if err := p.publish(inst.ID, 1); err != nil {
			p.log.Warn().Err(err).Str("installation", inst.ID).Msg("live EMU request failed")
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(liveRequestGap):
		}

		if err := p.publish(inst.ID, 0); err != nil {
			p.log.Warn().Err(err).Str("installation", inst.ID).Msg("live DIDO request failed")
		}
	}
}

func (p *LiveDataPoller) publish(installID string, data int) error {
	frame, err := wire.NewLiveRequest(data).Encode()
	if err != nil {
		return err
	}
	return p.link.PublishVendor(broker.InstallTopic(installID), frame)
}
