package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Sessions reports broker connectivity and traffic.
type Sessions interface {
	VendorConnected() bool
	LocalConnected() bool
	VendorMessagesIn() uint64
	VendorMessagesOut() uint64
	VendorReconnects() uint64
}

// Pending reports outstanding commands.
type Pending interface {
	PendingCount() int
}

// ZoneCounter reports the registered zone count.
type ZoneCounter interface {
	ZoneCount() int
}

// Status is the healthz response body.
type Status struct {
	VendorConnected bool `json:"vendor_connected"`
	LocalConnected  bool `json:"local_connected"`
	Zones           int  `json:"zones"`
	PendingCommands int  `json:"pending_commands"`
}

// Metrics holds the bridge's Prometheus collectors. Traffic and session
// metrics are sampled from the broker link on scrape; the command and
// token counters are bumped through callbacks.
type Metrics struct {
	CommandRetries prometheus.Counter
	CommandDrops   prometheus.Counter
	TokenRefreshes prometheus.Counter

	messagesIn  prometheus.CounterFunc
	messagesOut prometheus.CounterFunc
	reconnects  prometheus.CounterFunc
	vendorUp    prometheus.GaugeFunc
	localUp     prometheus.GaugeFunc
	zones       prometheus.GaugeFunc
	pending     prometheus.GaugeFunc
}

// NewMetrics registers the collectors on the given registry.
func NewMetrics(reg *prometheus.Registry, sessions Sessions, zones ZoneCounter, pending Pending) *Metrics {
	factory := promauto.With(reg)
	boolGauge := func(f func() bool) func() float64 {
		return func() float64 {
			if f() {
				return 1
			}
			return 0
		}
	}

	return &Metrics{
		CommandRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "nea2mqtt_command_retries_total",
			Help: "Commands re-sent after a confirmation timeout.",
		}),
		CommandDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "nea2mqtt_command_drops_total",
			Help: "Commands dropped after exhausting retries.",
		}),
		TokenRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "nea2mqtt_token_refreshes_total",
			Help: "Successful access token refreshes.",
		}),
		messagesIn: factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "nea2mqtt_vendor_messages_in_total",
			Help: "Vendor MQTT messages consumed.",
		}, func() float64 { return float64(sessions.VendorMessagesIn()) }),
		messagesOut: factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "nea2mqtt_vendor_messages_out_total",
			Help: "Vendor MQTT messages published.",
		}, func() float64 { return float64(sessions.VendorMessagesOut()) }),
		reconnects: factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "nea2mqtt_vendor_reconnects_total",
			Help: "Vendor broker reconnect attempts.",
		}, func() float64 { return float64(sessions.VendorReconnects()) }),
		vendorUp: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nea2mqtt_vendor_session_up",
			Help: "Vendor MQTT session connectivity.",
		}, boolGauge(sessions.VendorConnected)),
		localUp: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nea2mqtt_local_session_up",
			Help: "Local MQTT session connectivity.",
		}, boolGauge(sessions.LocalConnected)),
		zones: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nea2mqtt_zones",
			Help: "Registered zones.",
		}, func() float64 { return float64(zones.ZoneCount()) }),
		pending: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nea2mqtt_pending_commands",
			Help: "Commands awaiting confirmation.",
		}, func() float64 { return float64(pending.PendingCount()) }),
	}
}

// Server exposes /healthz and /metrics.
type Server struct {
	sessions Sessions
	zones    ZoneCounter
	pending  Pending
	log      zerolog.Logger

	srv *http.Server
}

// NewServer builds the health server on the given port. Metrics are
// registered on a private registry so tests can run servers in
// parallel.
func NewServer(port int, sessions Sessions, zones ZoneCounter, pending Pending, log zerolog.Logger) (*Server, *Metrics) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, sessions, zones, pending)

	s := &Server{
		sessions: sessions,
		zones:    zones,
		pending:  pending,
		log:      log.With().Str("component", "health").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, metrics
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := Status{
		VendorConnected: s.sessions.VendorConnected(),
		LocalConnected:  s.sessions.LocalConnected(),
		Zones:           s.zones.ZoneCount(),
		PendingCommands: s.pending.PendingCount(),
	}

	code := http.StatusOK
	if !status.VendorConnected || !status.LocalConnected {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// Run serves until ctx ends, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("health server up")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
