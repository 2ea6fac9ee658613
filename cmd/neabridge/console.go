package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/command"
	"github.com/derandereandi/nea2mqtt/pkg/model"
)

// console injects logical commands from stdin through the same path
// local MQTT commands take.
type console struct {
	zones    *model.Registry
	commands *command.Engine
	quit     context.CancelFunc
	log      zerolog.Logger
}

func newConsole(zones *model.Registry, commands *command.Engine, quit context.CancelFunc, log zerolog.Logger) *console {
	return &console{
		zones:    zones,
		commands: commands,
		quit:     quit,
		log:      log.With().Str("component", "console").Logger(),
	}
}

func (c *console) run(ctx context.Context) {
	rl, err := readline.New("nea2mqtt> ")
	if err != nil {
		c.log.Error().Err(err).Msg("console unavailable")
		return
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.log.Debug().Err(err).Msg("console read failed")
			}
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "zones":
			c.printZones(rl.Stdout())
		case "status":
			c.printStatus(rl.Stdout())
		case "set":
			c.setTemperature(rl.Stdout(), fields[1:])
		case "mode":
			c.setMode(rl.Stdout(), fields[1:])
		case "preset":
			c.setPreset(rl.Stdout(), fields[1:])
		case "quit", "exit":
			c.quit()
			return
		case "help":
			fmt.Fprintln(rl.Stdout(), "commands: zones | status | set <zone> <°C> | mode <zone> off|heat|cool | preset <zone> comfort|away | quit")
		default:
			fmt.Fprintf(rl.Stdout(), "unknown command %q, try help\n", fields[0])
		}
	}
}

func (c *console) printZones(w io.Writer) {
	for _, z := range c.zones.Zones() {
		s := z.State()
		current, target := "-", "-"
		if s.CurrentTemp.Valid {
			current = fmt.Sprintf("%.1f", s.CurrentTemp.Value)
		}
		if s.TargetTemp.Valid {
			target = fmt.Sprintf("%.1f", s.TargetTemp.Value)
		}
		fmt.Fprintf(w, "%-30s %s/%s °C  mode=%s preset=%s\n",
			z.DisplayName(true), current, target, s.Mode, s.Preset)
	}
}

func (c *console) printStatus(w io.Writer) {
	fmt.Fprintf(w, "zones=%d pending_commands=%d\n", c.zones.ZoneCount(), c.commands.PendingCount())
}

func (c *console) setTemperature(w io.Writer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(w, "usage: set <zone> <°C>")
		return
	}
	zone := c.findZone(w, args[0])
	if zone == nil {
		return
	}
	celsius, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(w, "not a temperature: %q\n", args[1])
		return
	}
	c.submit(w, &command.Command{Zone: zone, Kind: command.KindSetTemperature, Temperature: celsius})
}

func (c *console) setMode(w io.Writer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(w, "usage: mode <zone> off|heat|cool")
		return
	}
	zone := c.findZone(w, args[0])
	if zone == nil {
		return
	}
	var mode model.Mode
	switch args[1] {
	case "off":
		mode = model.ModeOff
	case "heat":
		mode = model.ModeHeat
	case "cool":
		mode = model.ModeCool
	default:
		fmt.Fprintf(w, "unknown mode %q\n", args[1])
		return
	}
	c.submit(w, &command.Command{Zone: zone, Kind: command.KindSetMode, Mode: mode})
}

func (c *console) setPreset(w io.Writer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(w, "usage: preset <zone> comfort|away")
		return
	}
	zone := c.findZone(w, args[0])
	if zone == nil {
		return
	}
	var preset model.Preset
	switch args[1] {
	case "comfort":
		preset = model.PresetComfort
	case "away":
		preset = model.PresetAway
	default:
		fmt.Fprintf(w, "unknown preset %q\n", args[1])
		return
	}
	c.submit(w, &command.Command{Zone: zone, Kind: command.KindSetPreset, Preset: preset})
}

// findZone resolves by zone id or (case-insensitive) name.
func (c *console) findZone(w io.Writer, key string) *model.Zone {
	if z, ok := c.zones.ZoneByID(key); ok {
		return z
	}
	for _, z := range c.zones.Zones() {
		if strings.EqualFold(z.Name, key) || strings.EqualFold(z.DisplayName(true), key) {
			return z
		}
	}
	fmt.Fprintf(w, "no zone %q\n", key)
	return nil
}

func (c *console) submit(w io.Writer, cmd *command.Command) {
	if err := c.commands.Submit(cmd); err != nil {
		fmt.Fprintf(w, "command failed: %v\n", err)
		return
	}
	fmt.Fprintf(w, "sent: %s %s\n", cmd.Zone.Name, cmd.Describe())
}
