package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lookpoint-fw/internal/bond"
	"lookpoint-fw/internal/config"
	"lookpoint-fw/internal/conn"
	"lookpoint-fw/internal/deviceinfo"
	"lookpoint-fw/internal/fusion"
	"lookpoint-fw/internal/i2c"
	"lookpoint-fw/internal/imu"
	"lookpoint-fw/internal/link"
	lsim "lookpoint-fw/internal/link/sim"
	"lookpoint-fw/internal/notify"
	"lookpoint-fw/internal/sched"
	"lookpoint-fw/internal/sensors/lsm9ds1"
	"lookpoint-fw/internal/sim"
)

// exitReset is the firmware's stand-in for a watchdog reset: a distinct exit
// code the supervisor restarts on.
const exitReset = 3

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	lvl, _ := zerolog.ParseLevel(cfg.Log.Level)
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, cfg); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("fatal fault, requesting reset")
		os.Exit(exitReset)
	}
	log.Info().Msg("lookpoint-fw stopped")
}

func run(ctx context.Context, log zerolog.Logger, cfg config.Config) error {
	exec := sched.New(log)

	ctrl := lsim.New(lsim.Config{Buffers: cfg.Link.SimBuffers, AutoFree: cfg.Link.SimAutoFree})

	// Mailboxes first. The wake closures resolve their task through the
	// executor at call time, so the nil task pointers here are harmless
	// until everything is registered below.
	var (
		adapter  *link.Adapter
		engine   *fusion.Engine
		notifier *notify.Notifier
		manager  *conn.Manager
	)
	ring := link.NewRing(32, func() { exec.Wake(adapter) })
	connEvs := sched.NewQueue[link.Event](16, func() { exec.Wake(manager) })
	rawSlot := sched.NewSlot[imu.Sample](func() { exec.Wake(engine) })
	fusedSlot := sched.NewSlot[fusion.OrientationSample](func() { exec.Wake(notifier) })

	credits := notify.NewCredits(ctrl.BufferCount())
	adapter = link.NewAdapter(log, ring, connEvs, credits)
	ctrl.SetEventSink(ring)

	name := deviceinfo.TruncateName(log, cfg.Device.Name)
	store := bond.NewStore(cfg.Bond.Path)
	manager = conn.New(log, conn.Config{
		DeviceName:          name,
		AdvertiseIntervalMs: cfg.Link.AdvertiseIntervalMs,
		MaxPairingFailures:  cfg.Pairing.MaxFailures,
		PairingBackoff:      cfg.Pairing.Backoff,
	}, ctrl, store, connEvs, nil)
	notifier = notify.New(log, fusedSlot, credits, ctrl, manager, cfg.Telemetry.StaleAfter)
	manager.SetTelemetryGate(notifier)

	var reader imu.Reader
	if cfg.IMU.Enable {
		bus, err := i2c.Open(fmt.Sprintf("/dev/i2c-%d", cfg.IMU.Bus))
		if err != nil {
			return fmt.Errorf("imu bus: %w", err)
		}
		defer bus.Close()
		addr := cfg.IMU.Addr
		if addr == 0 {
			addr = lsm9ds1.DefaultAddress()
		}
		dev, err := lsm9ds1.New(bus.Dev(addr))
		if err != nil {
			return fmt.Errorf("imu init: %w", err)
		}
		reader = dev
	} else {
		reader = &sim.Reader{}
	}

	sampler := imu.NewSampler(log, imu.SamplerConfig{
		Period:     cfg.IMU.Period,
		HoldCycles: cfg.IMU.HoldCycles,
	}, reader, rawSlot)
	engine = fusion.NewEngine(fusion.Config{
		Tau:           cfg.Fusion.Tau.Seconds(),
		DriftLimitDeg: cfg.Fusion.DriftLimitDeg,
		DriftWindow:   cfg.Fusion.DriftWindow,
	}, rawSlot, fusedSlot)

	exec.Add(sched.TierLink, 0, adapter)
	exec.Add(sched.TierApp, sampler.Period(), sampler)
	exec.Add(sched.TierApp, 0, engine)
	exec.Add(sched.TierApp, 0, notifier)
	// The periodic tick doubles as the advertise retry.
	exec.Add(sched.TierApp, time.Second, manager)
	if !cfg.IMU.Enable {
		exec.Add(sched.TierApp, 20*time.Millisecond, sim.NewHost(log, ctrl))
	}

	if cfg.IMU.Enable && cfg.IMU.GPIOChip != "" {
		line, err := imu.WatchDataReady(cfg.IMU.GPIOChip, cfg.IMU.GPIOLine, exec.WakeFunc(sampler))
		if err != nil {
			log.Warn().Err(err).Msg("data-ready line unavailable, periodic sampling only")
		} else {
			defer line.Close()
		}
	}

	log.Info().
		Str("device", name).
		Str("serial", deviceinfo.Serial(log)).
		Str("fw", deviceinfo.FirmwareRevision).
		Bool("imu", cfg.IMU.Enable).
		Msg("lookpoint-fw starting")

	if err := manager.Start(); err != nil {
		return err
	}
	return exec.Run(ctx)
}
