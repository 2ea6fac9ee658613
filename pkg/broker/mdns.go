package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/rs/zerolog"
)

const (
	mdnsService = "_mqtt._tcp"
	mdnsDomain  = "local."
	mdnsTimeout = 10 * time.Second
)

// AutoHost in MQTT_HOST selects mDNS discovery of the local broker.
const AutoHost = "auto"

// ResolveBroker turns the configured host/port into a concrete address.
// For AutoHost it browses for the first _mqtt._tcp service on the local
// network; anything else passes through unchanged.
func ResolveBroker(ctx context.Context, host string, port int, log zerolog.Logger) (string, int, error) {
	if host != AutoHost {
		return host, port, nil
	}

	bctx, cancel := context.WithTimeout(ctx, mdnsTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case <-bctx.Done():
				return
			case <-removed:
			}
		}
	}()
	go func() {
		_ = zeroconf.Browse(bctx, mdnsService, mdnsDomain, entries, removed)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", 0, fmt.Errorf("mdns: no mqtt broker found within %s", mdnsTimeout)
			}
			addr := entry.HostName
			if len(entry.AddrIPv4) > 0 {
				addr = entry.AddrIPv4[0].String()
			}
			if addr == "" {
				continue
			}
			log.Info().
				Str("instance", entry.Instance).
				Str("host", addr).
				Int("port", entry.Port).
				Msg("local mqtt broker discovered via mdns")
			return addr, entry.Port, nil
		case <-bctx.Done():
			return "", 0, fmt.Errorf("mdns: no mqtt broker found within %s", mdnsTimeout)
		}
	}
}
