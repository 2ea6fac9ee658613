// Command neabridge bridges a REHAU NEA SMART 2.0 installation to a
// local MQTT broker with automation-platform discovery.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/derandereandi/nea2mqtt/pkg/config"
	"github.com/derandereandi/nea2mqtt/pkg/logging"
	"github.com/derandereandi/nea2mqtt/pkg/supervisor"
)

func main() {
	interactive := flag.Bool("interactive", false, "start a command console on stdin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal starts the graceful shutdown; a second one forces
	// the exit.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Info().Str("signal", sig.String()).Msg("shutdown requested")
		cancel()
		sig = <-signals
		log.Error().Str("signal", sig.String()).Msg("forced exit")
		os.Exit(1)
	}()

	sup := supervisor.New(cfg, log)

	if *interactive {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-sup.Ready():
			}
			console := newConsole(sup.Registry(), sup.Commands(), cancel, log)
			console.run(ctx)
		}()
	}

	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("bridge failed to start")
		os.Exit(1)
	}
}
