// Package node wires the dashboard node: it loads the message catalog,
// binds the bus to the configured driver and runs the main loop.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/squadracorsepolito/acmedash/bus"
	"github.com/squadracorsepolito/acmedash/cannelloni"
	"github.com/squadracorsepolito/acmedash/catalog"
	"github.com/squadracorsepolito/acmedash/dbc"
	"github.com/squadracorsepolito/acmedash/internal"
	"github.com/squadracorsepolito/acmedash/questdb"
	"github.com/squadracorsepolito/acmedash/socketcan"
	"github.com/squadracorsepolito/acmedash/ticker"
	"github.com/squadracorsepolito/acmedash/virtual"
)

type Option func(*Node)

// WithSchema replaces the catalog configured in the node config.
func WithSchema(schema *dbc.Schema) Option {
	return func(n *Node) {
		n.schema = schema
	}
}

// WithDriver replaces the driver configured in the node config.
func WithDriver(driver bus.Driver) Option {
	return func(n *Node) {
		n.driver = driver
	}
}

// WithSink replaces the QuestDB sink of the recorder.
func WithSink(sink questdb.Sink) Option {
	return func(n *Node) {
		n.sink = sink
	}
}

// Node runs a bus at the pace of a fixed interval loop.
//
// Each step ticks the timers that stage values (heartbeat, simulator),
// then the bus, then the timers that read the decoded values (recorder).
type Node struct {
	tel *internal.Telemetry
	cfg *Config

	schema *dbc.Schema
	bus    *bus.Bus
	driver bus.Driver

	preTimers  *ticker.TimerGroup
	postTimers *ticker.TimerGroup
	loop       *ticker.Loop

	heartbeat *Heartbeat
	simulator *Simulator

	sink     questdb.Sink
	recorder *questdb.Recorder

	stats *internal.Stats

	closeOnce sync.Once
	closeErr  error
}

func New(ctx context.Context, cfg *Config, opts ...Option) (*Node, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tel := internal.NewTelemetry("node", cfg.Bus.Name)

	n := &Node{
		tel: tel,
		cfg: cfg,

		preTimers:  ticker.NewTimerGroup(),
		postTimers: ticker.NewTimerGroup(),
		loop:       ticker.NewLoop(cfg.Bus.Name, &cfg.Loop),
	}

	for _, opt := range opts {
		opt(n)
	}

	if err := n.initSchema(); err != nil {
		return nil, err
	}

	b, err := bus.New(&cfg.Bus, n.schema)
	if err != nil {
		return nil, err
	}
	n.bus = b

	if n.driver == nil {
		driver, err := newDriver(cfg)
		if err != nil {
			return nil, err
		}
		n.driver = driver
	}
	n.bus.SetDriver(n.driver)

	if err := n.initHeartbeat(); err != nil {
		return nil, err
	}

	if err := n.initSimulator(); err != nil {
		return nil, err
	}

	if err := n.initRecorder(ctx); err != nil {
		return nil, err
	}

	n.initStats()

	return n, nil
}

func (n *Node) initSchema() error {
	if n.schema != nil {
		return nil
	}

	var schema *dbc.Schema
	var err error

	if n.cfg.Catalog == "" {
		schema, err = catalog.Load()
	} else {
		schema, err = catalog.LoadFile(n.cfg.Catalog, n.cfg.CatalogCells)
	}
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	n.schema = schema

	n.tel.LogInfo("catalog loaded", "messages", len(schema.Messages()), "signals", schema.NumSignals())

	return nil
}

func newDriver(cfg *Config) (bus.Driver, error) {
	switch cfg.Driver {
	case DriverVirtual:
		return virtual.New(&cfg.Virtual), nil
	case DriverSocketCAN:
		return socketcan.New(&cfg.SocketCAN), nil
	case DriverCannelloni:
		return cannelloni.New(&cfg.Cannelloni), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

func (n *Node) initHeartbeat() error {
	if _, ok := n.schema.Message(catalog.DashHeartbeat); !ok {
		n.tel.LogWarn("no heartbeat message in the catalog", "message", catalog.DashHeartbeat)
		return nil
	}

	heartbeat, err := NewHeartbeat(n.schema)
	if err != nil {
		return err
	}

	n.heartbeat = heartbeat
	n.preTimers.AddTimer(n.cfg.HeartbeatPeriodMs, heartbeat.Beat)

	return nil
}

func (n *Node) initSimulator() error {
	if !n.cfg.Simulator.Enabled {
		return nil
	}

	driver, ok := n.driver.(*virtual.Driver)
	if !ok {
		return errors.New("simulator: the driver is not virtual")
	}

	n.simulator = NewSimulator(driver, n.schema.Messages(), n.cfg.Simulator.Seed)
	n.preTimers.AddTimer(n.cfg.Simulator.PeriodMs, n.simulator.Step)

	return nil
}

func (n *Node) initRecorder(ctx context.Context) error {
	if !n.cfg.Recorder.Enabled {
		return nil
	}

	if n.sink == nil {
		sink, err := questdb.NewLineSenderSink(ctx, &n.cfg.Recorder.Config)
		if err != nil {
			return err
		}
		n.sink = sink
	}

	rxMessages := []*dbc.Message{}
	for _, msg := range n.schema.Messages() {
		if msg.Direction() == dbc.DirectionRX {
			rxMessages = append(rxMessages, msg)
		}
	}

	n.recorder = questdb.NewRecorder(&n.cfg.Recorder.Config, n.sink, rxMessages)

	intervalMs := uint32(n.cfg.Recorder.Interval.Milliseconds())
	n.postTimers.AddTimer(intervalMs, func(uint32) {
		n.recorder.Snapshot(time.Now())
	})

	return nil
}

func (n *Node) initStats() {
	if n.cfg.StatsInterval <= 0 {
		return
	}

	n.stats = internal.NewStats(n.tel.Logger(), n.cfg.StatsInterval)

	n.stats.Track("rx_frames", func() uint64 { return n.bus.Stats().RxFrames })
	n.stats.Track("rx_unknown_frames", func() uint64 { return n.bus.Stats().RxUnknown })
	n.stats.Track("tx_frames", func() uint64 { return n.bus.Stats().TxFrames })
	n.stats.Track("tx_failures", func() uint64 { return n.bus.Stats().TxFailures })

	if n.recorder != nil {
		n.stats.Track("recorded_rows", n.recorder.RecordedRows)
	}
}

// Init initializes the bus and starts the timers and the recorder writer.
func (n *Node) Init(ctx context.Context) error {
	if err := n.bus.Init(ctx, n.cfg.Bus.BaudRate); err != nil {
		return err
	}

	now := n.bus.NowMs()
	n.preTimers.Start(now)
	n.postTimers.Start(now)

	if n.recorder != nil {
		n.recorder.Start(context.WithoutCancel(ctx))
	}

	return nil
}

// Step runs a single iteration of the main loop at the driver time.
func (n *Node) Step(context.Context) error {
	now := n.bus.NowMs()

	n.preTimers.Tick(now)

	if err := n.bus.TickBus(now); err != nil {
		return err
	}

	n.postTimers.Tick(now)

	return nil
}

// Run initializes the node and runs the main loop until ctx is done.
// The node is closed on return.
func (n *Node) Run(ctx context.Context) error {
	defer func() {
		if err := n.Close(context.Background()); err != nil {
			n.tel.LogError("failed to close node", err)
		}
	}()

	if err := n.Init(ctx); err != nil {
		return err
	}

	if n.stats != nil {
		go n.stats.RunStats(ctx)
	}

	return n.loop.Run(ctx, n.Step)
}

// Close stops the recorder and the driver. It is safe to call more than once.
func (n *Node) Close(ctx context.Context) error {
	n.closeOnce.Do(func() {
		errs := []error{}

		if n.recorder != nil {
			if err := n.recorder.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("recorder: %w", err))
			}
		}

		if closer, ok := n.driver.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("driver: %w", err))
			}
		}

		n.closeErr = errors.Join(errs...)

		n.tel.LogInfo("node closed", "stats", fmt.Sprintf("%+v", n.bus.Stats()))
	})

	return n.closeErr
}

func (n *Node) Schema() *dbc.Schema {
	return n.schema
}

func (n *Node) Bus() *bus.Bus {
	return n.bus
}

// Heartbeat returns nil when the catalog has no heartbeat message.
func (n *Node) Heartbeat() *Heartbeat {
	return n.heartbeat
}

// Simulator returns nil unless the simulator is enabled.
func (n *Node) Simulator() *Simulator {
	return n.simulator
}

// Recorder returns nil unless the recorder is enabled.
func (n *Node) Recorder() *questdb.Recorder {
	return n.recorder
}

func (n *Node) Loop() *ticker.Loop {
	return n.loop
}
