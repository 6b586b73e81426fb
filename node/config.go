package node

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/squadracorsepolito/acmedash/bus"
	"github.com/squadracorsepolito/acmedash/cannelloni"
	"github.com/squadracorsepolito/acmedash/questdb"
	"github.com/squadracorsepolito/acmedash/socketcan"
	"github.com/squadracorsepolito/acmedash/telemetry"
	"github.com/squadracorsepolito/acmedash/ticker"
	"github.com/squadracorsepolito/acmedash/virtual"
	"gopkg.in/yaml.v3"
)

// Names of the supported drivers.
const (
	DriverVirtual    = "virtual"
	DriverSocketCAN  = "socketcan"
	DriverCannelloni = "cannelloni"
)

type RecorderConfig struct {
	Enabled bool `yaml:"enabled"`

	questdb.Config `yaml:",inline"`
}

type SimulatorConfig struct {
	// Enabled injects synthetic frames into the virtual driver.
	Enabled bool `yaml:"enabled"`
	// PeriodMs is the time between two simulated frames of a message.
	PeriodMs uint32 `yaml:"period_ms"`
	// Seed makes the simulated payloads reproducible.
	Seed uint64 `yaml:"seed"`
}

type Config struct {
	LogLevel string `yaml:"log_level"`

	// Catalog is the path of a message table file. Empty selects the
	// embedded drive bus table.
	Catalog string `yaml:"catalog"`
	// CatalogCells appends the BMS cell frames to a table loaded from Catalog.
	CatalogCells bool `yaml:"catalog_cells"`

	// Driver is one of virtual, socketcan or cannelloni.
	Driver string `yaml:"driver"`

	// HeartbeatPeriodMs is the period of the heartbeat counter increment.
	HeartbeatPeriodMs uint32 `yaml:"heartbeat_period_ms"`
	// StatsInterval is the time between two rate logs, 0 disables them.
	StatsInterval time.Duration `yaml:"stats_interval"`

	Bus        bus.Config        `yaml:"bus"`
	Loop       ticker.Config     `yaml:"loop"`
	Virtual    virtual.Config    `yaml:"virtual"`
	SocketCAN  socketcan.Config  `yaml:"socketcan"`
	Cannelloni cannelloni.Config `yaml:"cannelloni"`
	Recorder   RecorderConfig    `yaml:"recorder"`
	Simulator  SimulatorConfig   `yaml:"simulator"`
	Telemetry  telemetry.Config  `yaml:"telemetry"`
}

func NewDefaultConfig() *Config {
	return &Config{
		LogLevel: "info",

		Driver: DriverVirtual,

		HeartbeatPeriodMs: 1000,
		StatsInterval:     10 * time.Second,

		Bus:        *bus.NewDefaultConfig(),
		Loop:       *ticker.NewDefaultConfig(),
		Virtual:    *virtual.NewDefaultConfig(),
		SocketCAN:  *socketcan.NewDefaultConfig(),
		Cannelloni: *cannelloni.NewDefaultConfig(),
		Recorder: RecorderConfig{
			Enabled: false,
			Config:  *questdb.NewDefaultConfig(),
		},
		Simulator: SimulatorConfig{
			Enabled:  false,
			PeriodMs: 100,
			Seed:     1,
		},
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// ReadConfig decodes a YAML configuration over the defaults.
// Unknown fields are rejected.
func ReadConfig(r io.Reader) (*Config, error) {
	cfg := NewDefaultConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfig reads the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadConfig(f)
}

func (c *Config) Validate() error {
	switch c.Driver {
	case DriverVirtual, DriverSocketCAN, DriverCannelloni:
	default:
		return fmt.Errorf("config: unknown driver %q", c.Driver)
	}

	if c.Simulator.Enabled && c.Driver != DriverVirtual {
		return fmt.Errorf("config: the simulator needs the %s driver", DriverVirtual)
	}

	if c.Simulator.Enabled && c.Simulator.PeriodMs == 0 {
		return errors.New("config: simulator period must be positive")
	}

	if c.HeartbeatPeriodMs == 0 {
		return errors.New("config: heartbeat period must be positive")
	}

	if c.Loop.Interval <= 0 {
		return errors.New("config: loop interval must be positive")
	}

	if c.Recorder.Enabled && c.Recorder.Interval < time.Millisecond {
		return errors.New("config: recorder interval must be at least 1ms")
	}

	return nil
}
