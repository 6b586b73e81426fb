package node

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/squadracorsepolito/acmedash/bus"
	"github.com/squadracorsepolito/acmedash/cannelloni"
	"github.com/squadracorsepolito/acmedash/catalog"
	"github.com/squadracorsepolito/acmedash/questdb"
	"github.com/squadracorsepolito/acmedash/socketcan"
	"github.com/squadracorsepolito/acmedash/virtual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

var errCANDown = errors.New("can0 is down")

var (
	_ bus.Driver = (*socketcan.Driver)(nil)
	_ bus.Driver = (*cannelloni.Driver)(nil)
)

type memorySink struct {
	mux     sync.Mutex
	batches []*questdb.Batch
}

func (s *memorySink) Write(_ context.Context, batch *questdb.Batch) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.batches = append(s.batches, batch)
	return nil
}

func (s *memorySink) Close(_ context.Context) error {
	return nil
}

func newTestConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.StatsInterval = 0
	return cfg
}

func Test_ReadConfig(t *testing.T) {
	assert := assert.New(t)

	cfg, err := ReadConfig(strings.NewReader(`
log_level: debug
driver: cannelloni
bus:
  baud_rate: 500000
loop:
  interval: 2ms
cannelloni:
  listen_addr: 0.0.0.0:30000
recorder:
  enabled: true
  address: questdb:9000
  interval: 250ms
`))
	require.NoError(t, err)

	assert.Equal("debug", cfg.LogLevel)
	assert.Equal(DriverCannelloni, cfg.Driver)
	assert.Equal(uint32(500_000), cfg.Bus.BaudRate)
	assert.Equal("drive", cfg.Bus.Name)
	assert.Equal(2*time.Millisecond, cfg.Loop.Interval)
	assert.True(cfg.Loop.OverrunWarnings)
	assert.Equal("0.0.0.0:30000", cfg.Cannelloni.ListenAddr)
	assert.Equal("127.0.0.1:20001", cfg.Cannelloni.RemoteAddr)
	assert.True(cfg.Recorder.Enabled)
	assert.Equal("questdb:9000", cfg.Recorder.Address)
	assert.Equal(250*time.Millisecond, cfg.Recorder.Interval)
	assert.Equal(64, cfg.Recorder.QueueSize)

	// an empty file keeps the defaults
	cfg, err = ReadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(NewDefaultConfig(), cfg)
}

func Test_ReadConfig_invalid(t *testing.T) {
	assert := assert.New(t)

	_, err := ReadConfig(strings.NewReader("driver: pcan\n"))
	assert.Error(err)

	_, err = ReadConfig(strings.NewReader("drivr: virtual\n"))
	assert.Error(err)

	_, err = ReadConfig(strings.NewReader("driver: socketcan\nsimulator:\n  enabled: true\n"))
	assert.Error(err)

	_, err = ReadConfig(strings.NewReader("heartbeat_period_ms: 0\n"))
	assert.Error(err)
}

func Test_Node_heartbeat(t *testing.T) {
	assert := assert.New(t)

	driver := virtual.NewManual()

	n, err := New(t.Context(), newTestConfig(), WithDriver(driver))
	require.NoError(t, err)
	require.NoError(t, n.Init(t.Context()))
	defer n.Close(t.Context())

	for now := uint32(0); now <= 3000; now += 5 {
		driver.SetNow(now)
		require.NoError(t, n.Step(t.Context()))
	}

	assert.Equal(uint64(3), n.Heartbeat().Count())

	sent := driver.Sent()
	require.Len(t, sent, 3)

	for idx, frame := range sent {
		assert.Equal(uint32(0x510), frame.ID)
		assert.Equal(uint8(8), frame.Length)
		assert.Equal(uint64(idx+1), binary.LittleEndian.Uint64(frame.Data[:]))
	}
}

func Test_Node_receive(t *testing.T) {
	assert := assert.New(t)

	driver := virtual.NewManual()

	n, err := New(t.Context(), newTestConfig(), WithDriver(driver))
	require.NoError(t, err)
	require.NoError(t, n.Init(t.Context()))
	defer n.Close(t.Context())

	require.NoError(t, driver.Inject(
		can.Frame{ID: 0x2A1, Length: 5, Data: can.Data{100, 50, 60, 70, 80}},
		can.Frame{ID: 0x7FF, Length: 1},
	))

	driver.SetNow(5)
	require.NoError(t, n.Step(t.Context()))

	msg, ok := n.Schema().Message(catalog.PDMCurrent)
	require.True(t, ok)
	assert.Equal(uint64(1), msg.RxCount())
	assert.Equal(uint32(5), msg.LastRxMs())

	sig, ok := msg.SignalByName("genAmps")
	require.True(t, ok)
	assert.InDelta(1.0, sig.Value().AsFloat(), 1e-9)

	stats := n.Bus().Stats()
	assert.Equal(uint64(1), stats.RxFrames)
	assert.Equal(uint64(1), stats.RxUnknown)
}

func Test_Node_recorder(t *testing.T) {
	assert := assert.New(t)

	driver := virtual.NewManual()
	sink := &memorySink{}

	cfg := newTestConfig()
	cfg.Recorder.Enabled = true
	cfg.Recorder.Interval = 100 * time.Millisecond

	n, err := New(t.Context(), cfg, WithDriver(driver), WithSink(sink))
	require.NoError(t, err)
	require.NoError(t, n.Init(t.Context()))

	require.NoError(t, driver.Inject(can.Frame{ID: 0x2A1, Length: 5, Data: can.Data{100, 50, 60, 70, 80}}))

	// the frame is decoded and recorded in the same step
	driver.SetNow(100)
	require.NoError(t, n.Step(t.Context()))

	// nothing new to record
	driver.SetNow(200)
	require.NoError(t, n.Step(t.Context()))

	require.NoError(t, n.Close(t.Context()))

	require.Len(t, sink.batches, 1)
	rows := sink.batches[0].Rows
	require.Len(t, rows, 5)

	for _, row := range rows {
		assert.Equal(questdb.FloatTable, row.Table)
		assert.Equal(questdb.Symbol{Name: "message", Value: catalog.PDMCurrent}, row.Symbols[0])
	}
	assert.InDelta(0.8, rows[4].Columns[1].Value, 1e-9)

	assert.Equal(uint64(5), n.Recorder().RecordedRows())
}

func Test_Node_simulator(t *testing.T) {
	assert := assert.New(t)

	cfg := newTestConfig()
	cfg.Virtual.ManualClock = true
	cfg.Simulator.Enabled = true
	cfg.Simulator.PeriodMs = 100

	n, err := New(t.Context(), cfg)
	require.NoError(t, err)
	require.NoError(t, n.Init(t.Context()))
	defer n.Close(t.Context())

	driver, ok := n.driver.(*virtual.Driver)
	require.True(t, ok)

	driver.SetNow(100)
	require.NoError(t, n.Step(t.Context()))

	rxMessages := 0
	for _, msg := range n.Schema().Messages() {
		if msg.RxCount() > 0 {
			rxMessages++
		}
	}

	assert.Equal(uint64(82), n.Simulator().Injected())
	assert.Zero(n.Simulator().Dropped())
	assert.Equal(82, rxMessages)
	assert.Equal(uint64(82), n.Bus().Stats().RxFrames)
}

func Test_Node_initFailure(t *testing.T) {
	assert := assert.New(t)

	driver := virtual.NewManual()
	driver.FailInit(errCANDown)

	n, err := New(t.Context(), newTestConfig(), WithDriver(driver))
	require.NoError(t, err)

	err = n.Init(t.Context())
	assert.ErrorIs(err, bus.ErrInit)
	assert.ErrorIs(err, errCANDown)

	assert.ErrorIs(n.Step(t.Context()), bus.ErrNotInitialized)
	assert.NoError(n.Close(t.Context()))
}

func Test_Node_run(t *testing.T) {
	assert := assert.New(t)

	cfg := newTestConfig()
	cfg.Loop.Interval = time.Millisecond

	n, err := New(t.Context(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(n.Run(ctx))
	assert.NotZero(n.Loop().Iterations())
}
