package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	can "github.com/canview/canview/pkg/can"
	_ "github.com/canview/canview/pkg/can/socketcan"
	_ "github.com/canview/canview/pkg/can/virtual"
	"github.com/canview/canview/pkg/filter"
	"github.com/canview/canview/pkg/mirror"
	"github.com/canview/canview/pkg/monitor"
	"github.com/canview/canview/pkg/player"
	"github.com/canview/canview/pkg/record"
	"github.com/canview/canview/pkg/schema"
	"github.com/canview/canview/pkg/store"
)

// Repeatable string flag
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// Dispatches received frames to every registered listener, the bus
// drivers only carry a single subscriber.
type fanout struct {
	listeners []can.FrameListener
}

func (f *fanout) Handle(frame can.Frame) {
	for _, listener := range f.listeners {
		listener.Handle(frame)
	}
}

// Bridges received frames into their mirror documents.
type mirrorListener struct {
	mirror *mirror.Mirror
}

func (m mirrorListener) Handle(frame can.Frame) {
	if err := m.mirror.Update(frame); err != nil {
		log.Warnf("[MAIN] mirror update : %v", err)
	}
}

func main() {
	if err := run(); err != nil {
		log.Errorf("[MAIN] %v", err)
		os.Exit(1)
	}
}

func run() error {
	var overrides stringList
	var filterExprs stringList
	configPath := flag.String("c", "", "toml configuration file path")
	canInterface := flag.String("i", "", "bus driver e.g. socketcan,virtual")
	channel := flag.String("ch", "", "channel e.g. can0,vcan0")
	flag.Var(&filterExprs, "f", "identifier acceptance pattern e.g. 1F* or 700,100, repeatable")
	maskExpr := flag.String("m", "", "identifier mask in hex applied before schema lookup")
	dumpPath := flag.String("play", "", "candump log to replay on the bus instead of monitoring")
	dumpStdout := flag.Bool("stdout-dump", false, "the replayed dump uses candump's stdout format")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Var(&overrides, "set", "configuration override key=value, repeatable")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *canInterface != "" {
		cfg.Interface = *canInterface
	}
	if *channel != "" {
		cfg.Channel = *channel
	}
	if len(filterExprs) > 0 {
		cfg.Filters = filterExprs
	}
	if *maskExpr != "" {
		cfg.Mask = *maskExpr
	}
	cfg.Schemas = append(cfg.Schemas, flag.Args()...)
	if err := applyOverrides(&cfg, overrides); err != nil {
		return err
	}

	if *verbose {
		log.SetLevel(log.DebugLevel)
	} else if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	schemaStore, err := schema.LoadStore(cfg.Schemas...)
	if err != nil {
		return err
	}
	if len(schemaStore.Providers()) == 0 {
		log.Infof("[MAIN] no schema files given, using the built-in example database")
		schemaStore.Add(schema.Default())
	}

	bus, err := can.NewBus(cfg.Interface, cfg.Channel, cfg.Bitrate)
	if err != nil {
		return err
	}
	if err := bus.Connect(); err != nil {
		return err
	}
	defer bus.Disconnect()
	log.Infof("[MAIN] connected to %v via %v", cfg.Channel, cfg.Interface)

	if *dumpPath != "" {
		return replayDump(bus, *dumpPath, *dumpStdout, cfg.Channel)
	}

	options := []monitor.Option{}
	if cfg.Mask != "" {
		mask, err := strconv.ParseUint(strings.TrimPrefix(cfg.Mask, "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("invalid mask %q : %w", cfg.Mask, err)
		}
		options = append(options, monitor.WithMask(uint32(mask)))
	}
	if len(cfg.Filters) > 0 {
		// A frame passes when any of the alternatives accepts it
		patterns, err := filter.CompileList(cfg.Filters...)
		if err != nil {
			return err
		}
		options = append(options, monitor.WithPattern(patterns))
	}
	if cfg.QueueSize > 0 {
		options = append(options, monitor.WithQueueSize(cfg.QueueSize))
	}

	mon := monitor.NewMonitor(schemaStore, options...)
	dispatch := &fanout{listeners: []can.FrameListener{mon}}

	values := store.NewValueStore(schemaStore)
	sender := store.NewPeriodicSender(bus, schemaStore, values, nil)
	sender.StartAll()
	defer sender.StopAll()

	var mirrors []*mirror.Mirror
	if cfg.Mirror.Enabled {
		mirrorConfig := &mirror.Config{
			Accumulate:         cfg.Mirror.Accumulate,
			TargetDir:          cfg.Mirror.Dir,
			PreserveFiles:      cfg.Mirror.Preserve,
			EnableTimestamping: cfg.Mirror.Timestamps,
		}
		if cfg.Mirror.ForceExtended {
			forced := true
			mirrorConfig.ForceExtendedID = &forced
		}
		for _, provider := range schemaStore.Providers() {
			m := mirror.New(provider, mirrorConfig, nil)
			dir, err := m.Open()
			if err != nil {
				return err
			}
			log.Infof("[MAIN] mirroring %v in %v", provider.Name(), dir)
			if cfg.Mirror.WatchAndSend {
				if err := m.StartWatch(bus, nil); err != nil {
					return err
				}
			}
			mirrors = append(mirrors, m)
			dispatch.listeners = append(dispatch.listeners, mirrorListener{mirror: m})
		}
		defer func() {
			for _, m := range mirrors {
				m.Close()
			}
		}()
	}

	if cfg.Record != "" {
		capture, err := os.Create(cfg.Record)
		if err != nil {
			return err
		}
		defer capture.Close()
		dispatch.listeners = append(dispatch.listeners, record.NewRecorder(capture, nil))
		log.Infof("[MAIN] recording received frames to %v", cfg.Record)
	}

	if err := bus.Subscribe(dispatch); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	for {
		result, err := mon.Next(ctx)
		if err != nil {
			log.Infof("[MAIN] shutting down")
			return nil
		}
		if !result.Ok() {
			log.Warnf("[MAIN] %v", result.Unknown)
			continue
		}
		decoded := result.Decoded
		values.Apply(decoded.Database, decoded.FrameName, decoded.Data)
		log.Infof("[MAIN] %03x %v %v", decoded.CanID, decoded.Name(), decoded.Data)
	}
}

func replayDump(bus can.Bus, path string, isStdout bool, srcChannel string) error {
	dump, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dump.Close()
	messages, err := player.ParseCandump(dump, isStdout)
	if err != nil {
		return err
	}
	log.Infof("[MAIN] replaying %v messages from %v", len(messages), path)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return player.Replay(ctx, bus, messages, srcChannel)
}
