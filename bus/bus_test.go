package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/squadracorsepolito/acmedash/dbc"
	"github.com/squadracorsepolito/acmedash/virtual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

var _ Driver = (*virtual.Driver)(nil)

func testSchema(t *testing.T) *dbc.Schema {
	t.Helper()

	amps := func(name string, start int) dbc.SignalDef {
		return dbc.SignalDef{Name: name, Start: start, Size: 8, Signed: true, Type: dbc.ValueTypeFloat, Scale: 0.01}
	}

	schema, err := dbc.NewSchema([]dbc.MessageDef{
		{
			Name: "pdmCurrent", ID: 0x2A1, Length: 5, Direction: dbc.DirectionRX,
			Signals: []dbc.SignalDef{
				amps("genAmps", 0),
				amps("frontFanAmps", 8),
				amps("rearFanAmps", 16),
				amps("frontPumpAmps", 24),
				amps("rearPumpAmps", 32),
			},
		},
		{
			Name: "heartbeat", ID: 0x510, Length: 8, Direction: dbc.DirectionTX, PeriodMs: 1000,
			Signals: []dbc.SignalDef{
				{Name: "counter", Start: 0, Size: 64, Type: dbc.ValueTypeUint, Scale: 1},
			},
		},
	})
	require.NoError(t, err)

	return schema
}

func newTestBus(t *testing.T) (*Bus, *dbc.Schema, *virtual.Driver) {
	t.Helper()

	schema := testSchema(t)

	b, err := New(NewDefaultConfig(), schema)
	require.NoError(t, err)

	driver := virtual.NewManual()
	b.SetDriver(driver)
	require.NoError(t, b.Init(context.Background(), 500_000))

	return b, schema, driver
}

func signalValues(msg *dbc.Message) []float64 {
	values := make([]float64, 0, msg.NumSignals())
	for _, sig := range msg.Signals() {
		values = append(values, sig.Value().AsFloat())
	}
	return values
}

func Test_Bus_dispatch(t *testing.T) {
	assert := assert.New(t)

	b, schema, driver := newTestBus(t)
	assert.Equal(uint32(500_000), driver.BaudRate())

	require.NoError(t, driver.Inject(can.Frame{ID: 0x2A1, Length: 5, Data: can.Data{100, 50, 60, 70, 80}}))
	driver.SetNow(42)

	assert.NoError(b.TickBus(42))

	msg, ok := schema.Message("pdmCurrent")
	require.True(t, ok)

	assert.InDeltaSlice([]float64{1, 0.5, 0.6, 0.7, 0.8}, signalValues(msg), 1e-9)
	assert.Equal(uint64(1), msg.RxCount())
	assert.Equal(uint32(42), msg.LastRxMs())
	assert.Equal(uint64(1), b.Stats().RxFrames)
	assert.Zero(driver.Pending())
}

func Test_Bus_unknownID(t *testing.T) {
	assert := assert.New(t)

	b, schema, driver := newTestBus(t)

	require.NoError(t, driver.Inject(can.Frame{ID: 0x2A1, Length: 5, Data: can.Data{1, 2, 3, 4, 5}}))
	require.NoError(t, b.TickBus(0))

	msg, _ := schema.Message("pdmCurrent")
	before := signalValues(msg)

	require.NoError(t, driver.Inject(
		can.Frame{ID: 0x123, Length: 8, Data: can.Data{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		can.Frame{ID: 0x2A1, IsExtended: true, Length: 5, Data: can.Data{9, 9, 9, 9, 9}},
	))

	assert.NoError(b.TickBus(1))
	assert.Equal(before, signalValues(msg))
	assert.Equal(uint64(1), msg.RxCount())
	assert.Equal(uint64(2), b.Stats().RxUnknown)
}

func Test_Bus_lastWriteWins(t *testing.T) {
	assert := assert.New(t)

	b, schema, driver := newTestBus(t)

	require.NoError(t, driver.Inject(
		can.Frame{ID: 0x2A1, Length: 5, Data: can.Data{1, 1, 1, 1, 1}},
		can.Frame{ID: 0x2A1, Length: 5, Data: can.Data{2, 2, 2, 2, 2}},
	))
	assert.NoError(b.TickBus(10))

	msg, _ := schema.Message("pdmCurrent")
	assert.InDeltaSlice([]float64{0.02, 0.02, 0.02, 0.02, 0.02}, signalValues(msg), 1e-9)
	assert.Equal(uint64(2), msg.RxCount())
}

func Test_Bus_maxRxPerTick(t *testing.T) {
	assert := assert.New(t)

	cfg := NewDefaultConfig()
	cfg.MaxRxPerTick = 2

	b, err := New(cfg, testSchema(t))
	require.NoError(t, err)

	driver := virtual.NewManual()
	b.SetDriver(driver)
	require.NoError(t, b.Init(context.Background(), cfg.BaudRate))

	for range 5 {
		require.NoError(t, driver.Inject(can.Frame{ID: 0x2A1, Length: 5}))
	}

	assert.NoError(b.TickBus(0))
	assert.Equal(3, driver.Pending())
	assert.NoError(b.TickBus(0))
	assert.NoError(b.TickBus(0))
	assert.Zero(driver.Pending())
}

func Test_Bus_periodicTx(t *testing.T) {
	assert := assert.New(t)

	b, schema, driver := newTestBus(t)

	msg, _ := schema.Message("heartbeat")

	next, ok := b.NextDueMs(msg)
	assert.True(ok)
	assert.Equal(uint32(1000), next)

	assert.NoError(b.TickBus(500))
	assert.Empty(driver.Sent())

	assert.NoError(b.TickBus(1000))
	assert.Len(driver.Sent(), 1)

	next, _ = b.NextDueMs(msg)
	assert.Equal(uint32(2000), next)

	assert.NoError(b.TickBus(1999))
	assert.Len(driver.Sent(), 1)

	assert.NoError(b.TickBus(2000))
	assert.Len(driver.Sent(), 2)

	sent := driver.Sent()[0]
	assert.Equal(uint32(0x510), sent.ID)
	assert.Equal(uint8(8), sent.Length)
}

func Test_Bus_periodicTxStagedValue(t *testing.T) {
	assert := assert.New(t)

	b, schema, driver := newTestBus(t)

	msg, _ := schema.Message("heartbeat")
	counter, ok := msg.SignalByName("counter")
	require.True(t, ok)

	counter.SetValue(dbc.UintValue(7))
	assert.NoError(b.TickBus(1000))

	counter.SetValue(dbc.UintValue(8))
	assert.NoError(b.TickBus(2000))

	sent := driver.Sent()
	require.Len(t, sent, 2)
	assert.Equal(byte(7), sent[0].Data[0])
	assert.Equal(byte(8), sent[1].Data[0])
}

func Test_Bus_fixedPhase(t *testing.T) {
	assert := assert.New(t)

	b, schema, driver := newTestBus(t)
	msg, _ := schema.Message("heartbeat")

	// a late tick sends once and keeps the phase
	assert.NoError(b.TickBus(3500))
	assert.Len(driver.Sent(), 1)

	next, _ := b.NextDueMs(msg)
	assert.Equal(uint32(2000), next)

	assert.NoError(b.TickBus(3500))
	assert.Len(driver.Sent(), 2)

	next, _ = b.NextDueMs(msg)
	assert.Equal(uint32(3000), next)
}

func Test_Bus_clockWrap(t *testing.T) {
	assert := assert.New(t)

	schema := testSchema(t)
	b, err := New(nil, schema)
	require.NoError(t, err)

	driver := virtual.NewManual()
	driver.SetNow(^uint32(0) - 499)
	b.SetDriver(driver)
	require.NoError(t, b.Init(context.Background(), 1_000_000))

	msg, _ := schema.Message("heartbeat")
	next, _ := b.NextDueMs(msg)
	assert.Equal(uint32(500), next)

	assert.NoError(b.TickBus(^uint32(0)))
	assert.Empty(driver.Sent())

	assert.NoError(b.TickBus(500))
	assert.Len(driver.Sent(), 1)
}

func Test_Bus_sendFailure(t *testing.T) {
	assert := assert.New(t)

	b, schema, driver := newTestBus(t)

	require.NoError(t, driver.Inject(can.Frame{ID: 0x2A1, Length: 5, Data: can.Data{100}}))
	driver.FailSends(1, errors.New("tx buffer full"))

	assert.NoError(b.TickBus(1000))
	assert.Empty(driver.Sent())

	// the received frame is still processed
	msg, _ := schema.Message("pdmCurrent")
	assert.Equal(uint64(1), msg.RxCount())

	// the schedule still advances
	heartbeat, _ := schema.Message("heartbeat")
	next, _ := b.NextDueMs(heartbeat)
	assert.Equal(uint32(2000), next)

	assert.NoError(b.TickBus(2000))
	assert.Len(driver.Sent(), 1)

	stats := b.Stats()
	assert.Equal(uint64(1), stats.TxFailures)
	assert.Equal(uint64(1), stats.TxFrames)
}

func Test_Bus_Transmit(t *testing.T) {
	assert := assert.New(t)

	b, err := New(nil, testSchema(t))
	require.NoError(t, err)

	schema := testSchema(t)
	msg, _ := schema.Message("heartbeat")
	assert.ErrorIs(b.Transmit(msg), ErrNoDriver)

	b, schema, driver := newTestBus(t)
	msg, _ = schema.Message("heartbeat")

	counter, _ := msg.SignalByName("counter")
	counter.SetValue(dbc.UintValue(3))

	require.NoError(t, b.Transmit(msg))
	require.Len(t, driver.Sent(), 1)
	assert.Equal(byte(3), driver.Sent()[0].Data[0])

	// the schedule is untouched
	next, _ := b.NextDueMs(msg)
	assert.Equal(uint32(1000), next)
	assert.Equal(uint64(1), b.Stats().TxFrames)
}

func Test_Bus_noDriver(t *testing.T) {
	assert := assert.New(t)

	b, err := New(nil, testSchema(t))
	require.NoError(t, err)

	assert.ErrorIs(b.TickBus(0), ErrNoDriver)
	assert.ErrorIs(b.Init(context.Background(), 1_000_000), ErrNoDriver)

	b.SetDriver(virtual.NewManual())
	assert.ErrorIs(b.TickBus(0), ErrNotInitialized)
	assert.False(b.Ready())

	assert.Panics(func() {
		b.SetDriver(virtual.NewManual())
	})
	assert.Panics(func() {
		b.SetDriver(nil)
	})
}

func Test_Bus_initFailure(t *testing.T) {
	assert := assert.New(t)

	b, err := New(nil, testSchema(t))
	require.NoError(t, err)

	driverErr := errors.New("controller not responding")

	driver := virtual.NewManual()
	driver.FailInit(driverErr)
	b.SetDriver(driver)

	err = b.Init(context.Background(), 1_000_000)
	assert.ErrorIs(err, ErrInit)
	assert.ErrorIs(err, driverErr)
	assert.ErrorIs(b.TickBus(0), ErrNotInitialized)

	driver.FailInit(nil)
	assert.NoError(b.Init(context.Background(), 1_000_000))
	assert.True(b.Ready())
	assert.NoError(b.TickBus(0))
}

func Test_Bus_register(t *testing.T) {
	assert := assert.New(t)

	schema := testSchema(t)
	b, err := New(nil, schema)
	require.NoError(t, err)

	pdm, _ := schema.Message("pdmCurrent")
	heartbeat, _ := schema.Message("heartbeat")

	assert.Len(b.Messages(), 2)

	err = b.RegisterRx(pdm)
	assert.ErrorIs(err, dbc.ErrDuplicateID)
	assert.True(dbc.IsSchemaError(err))

	assert.ErrorIs(b.RegisterTx(heartbeat, 100, nil), dbc.ErrDuplicateID)
	assert.ErrorIs(b.RegisterTx(pdm, 100, nil), dbc.ErrDirection)
	assert.ErrorIs(b.RegisterRx(heartbeat), dbc.ErrDirection)

	other, err := dbc.NewMessage(dbc.MessageDef{Name: "other", ID: 0x511, Length: 1, Direction: dbc.DirectionTX, PeriodMs: 10})
	require.NoError(t, err)
	assert.ErrorIs(b.RegisterTx(other, 0, nil), dbc.ErrInvalidPeriod)

	_, ok := b.RxMessage(dbc.Key{ID: 0x2A1})
	assert.True(ok)
}

type testScheduler struct {
	periods []uint32
	fns     []func(uint32)
}

func (s *testScheduler) AddTimer(periodMs uint32, fn func(uint32)) {
	s.periods = append(s.periods, periodMs)
	s.fns = append(s.fns, fn)
}

func Test_Bus_externalScheduler(t *testing.T) {
	assert := assert.New(t)

	b, err := New(nil, nil)
	require.NoError(t, err)

	msg, err := dbc.NewMessage(dbc.MessageDef{
		Name: "status", ID: 0x512, Length: 1, Direction: dbc.DirectionTX, PeriodMs: 100,
		Signals: []dbc.SignalDef{{Name: "ok", Start: 0, Size: 1, Type: dbc.ValueTypeFlag, Scale: 1}},
	})
	require.NoError(t, err)

	sched := &testScheduler{}
	require.NoError(t, b.RegisterTx(msg, 250, sched))
	require.Len(t, sched.fns, 1)
	assert.Equal(uint32(250), sched.periods[0])

	_, ok := b.NextDueMs(msg)
	assert.False(ok)

	// firing before init is skipped
	sched.fns[0](250)

	driver := virtual.NewManual()
	b.SetDriver(driver)
	require.NoError(t, b.Init(context.Background(), 1_000_000))

	sched.fns[0](500)

	// the internal schedule does not own the message
	assert.NoError(b.TickBus(10_000))

	assert.Len(driver.Sent(), 1)
	assert.Equal(uint32(0x512), driver.Sent()[0].ID)
}

func Benchmark_Bus_TickBus(b *testing.B) {
	schema, err := dbc.NewSchema([]dbc.MessageDef{
		{
			Name: "pdmCurrent", ID: 0x2A1, Length: 5, Direction: dbc.DirectionRX,
			Signals: []dbc.SignalDef{
				{Name: "a", Start: 0, Size: 8, Signed: true, Type: dbc.ValueTypeFloat, Scale: 0.01},
				{Name: "b", Start: 8, Size: 8, Signed: true, Type: dbc.ValueTypeFloat, Scale: 0.01},
			},
		},
	})
	if err != nil {
		b.Fatal(err)
	}

	bus, err := New(nil, schema)
	if err != nil {
		b.Fatal(err)
	}

	driver := virtual.NewManual()
	bus.SetDriver(driver)
	if err := bus.Init(context.Background(), 1_000_000); err != nil {
		b.Fatal(err)
	}

	frame := can.Frame{ID: 0x2A1, Length: 5, Data: can.Data{1, 2, 3, 4, 5}}

	b.ResetTimer()
	for b.Loop() {
		_ = driver.Inject(frame)
		_ = bus.TickBus(0)
	}
}
