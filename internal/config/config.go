package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	IMU       IMUConfig       `yaml:"imu"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Link      LinkConfig      `yaml:"link"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bond      BondConfig      `yaml:"bond"`
	Log       LogConfig       `yaml:"log"`
}

type DeviceConfig struct {
	Name string `yaml:"name"`
}

type IMUConfig struct {
	Enable     bool          `yaml:"enable"`
	Bus        int           `yaml:"bus"`
	Addr       uint16        `yaml:"addr"`
	Period     time.Duration `yaml:"period"`
	HoldCycles int           `yaml:"hold_cycles"`

	// Optional data-ready interrupt line.
	GPIOChip string `yaml:"gpio_chip"`
	GPIOLine int    `yaml:"gpio_line"`
}

type FusionConfig struct {
	Tau           time.Duration `yaml:"tau"`
	DriftLimitDeg float64       `yaml:"drift_limit_deg"`
	DriftWindow   int           `yaml:"drift_window"`
}

type LinkConfig struct {
	// Backend selects the wireless controller: only "sim" is built in; the
	// real controller binding registers itself under its own name.
	Backend string `yaml:"backend"`

	AdvertiseIntervalMs int `yaml:"advertise_interval_ms"`

	// Sim backend only.
	SimBuffers  int  `yaml:"sim_buffers"`
	SimAutoFree bool `yaml:"sim_auto_free"`
}

type PairingConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Backoff     time.Duration `yaml:"backoff"`
}

type TelemetryConfig struct {
	StaleAfter time.Duration `yaml:"stale_after"`
}

type BondConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(stripLinePrefix(te.Errors), ", "))
		}
		return Config{}, err
	}

	if cfg.Device.Name == "" {
		cfg.Device.Name = "Lookpoint Tracker"
	}

	if cfg.IMU.Bus == 0 {
		cfg.IMU.Bus = 1
	}
	if cfg.IMU.Period == 0 {
		cfg.IMU.Period = 10 * time.Millisecond
	}
	if cfg.IMU.Period < 0 || cfg.IMU.Period > time.Second {
		return Config{}, fmt.Errorf("imu.period must be in (0, 1s]")
	}
	if cfg.IMU.HoldCycles <= 0 {
		cfg.IMU.HoldCycles = 50
	}
	if cfg.IMU.GPIOChip != "" && cfg.IMU.GPIOLine < 0 {
		return Config{}, fmt.Errorf("imu.gpio_line must be >= 0 when imu.gpio_chip is set")
	}

	if cfg.Fusion.Tau == 0 {
		cfg.Fusion.Tau = 500 * time.Millisecond
	}
	if cfg.Fusion.Tau < 0 {
		return Config{}, fmt.Errorf("fusion.tau must be > 0")
	}
	if cfg.Fusion.DriftLimitDeg == 0 {
		cfg.Fusion.DriftLimitDeg = 25
	}
	if cfg.Fusion.DriftLimitDeg < 0 || cfg.Fusion.DriftLimitDeg > 90 {
		return Config{}, fmt.Errorf("fusion.drift_limit_deg must be in (0, 90]")
	}
	if cfg.Fusion.DriftWindow <= 0 {
		cfg.Fusion.DriftWindow = 50
	}

	if cfg.Link.Backend == "" {
		cfg.Link.Backend = "sim"
	}
	if cfg.Link.Backend != "sim" {
		return Config{}, fmt.Errorf("link.backend %q is not supported", cfg.Link.Backend)
	}
	if cfg.Link.AdvertiseIntervalMs <= 0 {
		cfg.Link.AdvertiseIntervalMs = 100
	}
	if cfg.Link.SimBuffers <= 0 {
		cfg.Link.SimBuffers = 4
	}

	if cfg.Pairing.MaxFailures <= 0 {
		cfg.Pairing.MaxFailures = 5
	}
	if cfg.Pairing.Backoff <= 0 {
		cfg.Pairing.Backoff = 30 * time.Second
	}

	if cfg.Telemetry.StaleAfter <= 0 {
		cfg.Telemetry.StaleAfter = 500 * time.Millisecond
	}

	if cfg.Bond.Path == "" {
		cfg.Bond.Path = "bond.yaml"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}

	return cfg, nil
}

func stripLinePrefix(errs []string) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if i := strings.Index(e, ": "); i >= 0 && strings.HasPrefix(e, "line ") {
			e = e[i+2:]
		}
		out = append(out, e)
	}
	return out
}
