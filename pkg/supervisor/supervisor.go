package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/auth"
	"github.com/derandereandi/nea2mqtt/pkg/broker"
	"github.com/derandereandi/nea2mqtt/pkg/command"
	"github.com/derandereandi/nea2mqtt/pkg/config"
	"github.com/derandereandi/nea2mqtt/pkg/discovery"
	"github.com/derandereandi/nea2mqtt/pkg/health"
	"github.com/derandereandi/nea2mqtt/pkg/mailbox"
	"github.com/derandereandi/nea2mqtt/pkg/model"
	"github.com/derandereandi/nea2mqtt/pkg/poll"
	"github.com/derandereandi/nea2mqtt/pkg/referential"
	"github.com/derandereandi/nea2mqtt/pkg/rehauapi"
	"github.com/derandereandi/nea2mqtt/pkg/state"
	"github.com/derandereandi/nea2mqtt/pkg/tracelog"
)

// shutdownBudget bounds the orderly teardown; the process exits when it
// elapses even if a step hangs.
const shutdownBudget = 30 * time.Second

// Supervisor wires and runs the bridge.
type Supervisor struct {
	cfg *config.Config
	log zerolog.Logger

	registry *model.Registry
	store    *referential.Store

	tracer   tracelog.Tracer
	mail     mailbox.Client
	auth     *auth.Engine
	link     *broker.BrokerLink
	commands   *command.Engine
	states     *state.Engine
	loader     *referential.Loader
	api        *rehauapi.Client
	disc       *discovery.Publisher
	zonePoller *poll.ZonePoller
	livePoller *poll.LiveDataPoller

	ready chan struct{}
}

// New builds an unstarted supervisor.
func New(cfg *config.Config, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		log:      log.With().Str("component", "supervisor").Logger(),
		registry: model.NewRegistry(),
		store:    referential.NewStore(),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once startup has completed; the interactive console
// waits on it.
func (s *Supervisor) Ready() <-chan struct{} { return s.ready }

// Registry exposes the zone model, for the interactive console.
func (s *Supervisor) Registry() *model.Registry { return s.registry }

// Commands exposes the command engine, for the interactive console.
func (s *Supervisor) Commands() *command.Engine { return s.commands }

// Run brings the bridge up, serves until ctx is cancelled, and tears
// down. A non-nil error means a fatal startup failure.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.startup(ctx); err != nil {
		s.teardown()
		return err
	}
	close(s.ready)

	// Timers and servers run under their own context so shutdown can
	// cancel them before the sessions close.
	timerCtx, cancelTimers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(timerCtx)
		}()
	}

	run(s.auth.Run)
	run(s.link.Run)
	run(s.commands.Run)
	run(s.loader.Run)
	run(s.livePoller.Run)
	run(s.zonePoller.Run)

	if s.cfg.HealthPort > 0 {
		srv, metrics := health.NewServer(s.cfg.HealthPort, s.link, s.registry, s.commands, s.log)
		s.auth.OnTokenRefreshed(metrics.TokenRefreshes.Inc)
		s.commands.OnRetry(metrics.CommandRetries.Inc)
		s.commands.OnDrop(metrics.CommandDrops.Inc)
		run(func(ctx context.Context) {
			if err := srv.Run(ctx); err != nil {
				s.log.Error().Err(err).Msg("health server failed")
			}
		})
	}

	if d := s.cfg.SimulateDisconnectAfter; d > 0 {
		s.log.Warn().Dur("after", d).Msg("vendor disconnect simulation armed")
		timer := time.AfterFunc(d, s.link.DropVendor)
		defer timer.Stop()
	}

	s.log.Info().Int("zones", s.registry.ZoneCount()).Msg("bridge up")
	<-ctx.Done()

	s.log.Info().Msg("shutting down")
	cancelTimers()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		s.teardown()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("shutdown complete")
	case <-time.After(shutdownBudget):
		s.log.Error().Msg("shutdown budget exceeded, exiting anyway")
	}
	return nil
}

// startup builds and connects everything in dependency order. Any error
// is fatal.
func (s *Supervisor) startup(ctx context.Context) error {
	if s.cfg.TraceFile != "" {
		tracer, err := tracelog.NewFileTracer(s.cfg.TraceFile)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		s.tracer = tracer
	}

	if s.cfg.Mailbox.Configured() {
		mb, err := mailbox.New(s.cfg.Mailbox, s.log)
		if err != nil {
			return fmt.Errorf("mailbox: %w", err)
		}
		s.mail = mb
	}

	s.auth = auth.New(s.cfg, s.mail, s.log)
	if err := s.auth.EnsureValidToken(ctx); err != nil {
		return fmt.Errorf("authentication: %w", err)
	}

	s.link = broker.New(s.cfg, s.auth, s.tracer, s.log)
	if err := s.link.ConnectVendor(ctx); err != nil {
		return err
	}

	if err := s.buildModel(ctx); err != nil {
		return err
	}

	// The dictionary is wanted before the first command; its static
	// fallbacks cover a failed or slow load.
	s.loader = referential.NewLoader(s.store, s.link, s.cfg.Email, s.auth, s.cfg.ReferentialsInterval, s.log)
	if err := s.loader.Load(ctx); err != nil {
		s.log.Warn().Err(err).Msg("referential load failed, using fallback keys")
	}

	s.commands = command.NewEngine(s.link, s.store, s.cfg.CommandRetryTimeout, s.cfg.CommandMaxRetries, s.cfg.UseGroupInNames, s.log)
	s.states = state.NewEngine(s.link, s.registry, s.store, s.commands, s.cfg.Email, s.log)
	s.disc = discovery.NewPublisher(s.link, s.registry, s.cfg.UseGroupInNames, s.log)
	s.zonePoller = poll.NewZonePoller(s.api, s.registry, s.states, s.disc, s.cfg.ZoneReloadInterval, s.log)
	s.livePoller = poll.NewLiveDataPoller(s.link, s.registry, s.cfg.LiveDataInterval, s.log)

	// Entities flap offline while the vendor session is gone.
	s.link.OnVendorDisconnect(s.states.MarkUnavailable)

	s.link.OnLocalConnect(func() {
		s.states.InvalidateCache()
		if err := s.disc.EmitAll(); err != nil {
			s.log.Error().Err(err).Msg("discovery re-emit failed")
		}
		s.states.PublishAll()
	})

	if err := s.link.ConnectLocal(ctx); err != nil {
		return fmt.Errorf("local broker: %w", err)
	}

	if err := s.disc.EmitAll(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	if err := s.states.Start(); err != nil {
		return err
	}

	// Prime zone state from an HTTPS snapshot so the first local
	// publishes carry measured values instead of defaults.
	if err := s.zonePoller.Reload(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial snapshot failed, state fills in from realtime")
		s.states.PublishAll()
	} else {
		s.states.InferInstallationModes()
	}

	router := command.NewRouter(s.commands, s.registry, s.link, s.log)
	router.OnInstallationMode(func(inst *model.Installation, _ model.InstallationMode) {
		s.states.PublishInstallation(inst)
		s.states.PublishAll()
	})
	if err := router.Start(); err != nil {
		return fmt.Errorf("command router: %w", err)
	}

	return nil
}

// buildModel fetches the account's installations over HTTPS and indexes
// them. Routing conflicts are fatal.
func (s *Supervisor) buildModel(ctx context.Context) error {
	s.api = rehauapi.NewClient(s.cfg.APIBaseURL, s.cfg.Email, s.auth, s.log)
	data, err := s.api.GetUserData(ctx)
	if err != nil {
		return fmt.Errorf("fetch user data: %w", err)
	}

	for i := range data.Installs {
		inst, err := data.Installs[i].ToModel()
		if err != nil {
			return fmt.Errorf("installation %q: %w", data.Installs[i].Name, err)
		}
		if err := s.registry.AddInstallation(inst); err != nil {
			return err
		}
		s.log.Info().
			Str("installation", inst.Name).
			Int("zones", len(inst.AllZones())).
			Bool("cooling", inst.CoolingSupported).
			Msg("installation registered")
	}

	if s.registry.ZoneCount() == 0 {
		return fmt.Errorf("account has no zones")
	}
	return nil
}

// teardown closes the long-lived resources in reverse order.
func (s *Supervisor) teardown() {
	if s.states != nil {
		s.states.Stop()
	}
	if s.link != nil {
		s.link.Close()
	}
	if s.mail != nil {
		if err := s.mail.Close(); err != nil {
			s.log.Debug().Err(err).Msg("mailbox close")
		}
	}
	if closer, ok := s.tracer.(*tracelog.FileTracer); ok && closer != nil {
		if err := closer.Close(); err != nil {
			s.log.Debug().Err(err).Msg("trace file close")
		}
	}
}
