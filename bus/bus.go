package bus

import (
	"context"
	"fmt"

	"github.com/squadracorsepolito/acmedash/dbc"
	"github.com/squadracorsepolito/acmedash/internal"
	"go.einride.tech/can"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type state uint8

const (
	stateUnbound state = iota
	stateBound
	stateReady
)

type txEntry struct {
	msg       *dbc.Message
	periodMs  uint32
	nextDueMs uint32
	external  bool
}

// Bus binds a set of messages to a driver. It routes received frames to
// the matching rx message and transmits tx messages at their period.
//
// A bus is not safe for concurrent use: Init, TickBus and the signal
// values of its messages belong to the goroutine running the main loop.
type Bus struct {
	tel *internal.Telemetry
	cfg *Config

	driver Driver
	state  state

	messages   []*dbc.Message
	rxIndex    map[dbc.Key]*dbc.Message
	txIndex    map[dbc.Key]*txEntry
	txSchedule []*txEntry

	counters            counters
	consecutiveFailures uint64

	rxFrames   metric.Int64Counter
	rxUnknown  metric.Int64Counter
	txFrames   metric.Int64Counter
	txFailures metric.Int64Counter
}

// New returns a bus without a driver. Every message of the schema is
// registered by direction: rx messages into the rx index and tx messages
// into the internal transmit schedule at their declared period.
// The schema may be nil.
func New(cfg *Config, schema *dbc.Schema) (*Bus, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	tel := internal.NewTelemetry("bus", cfg.Name)

	b := &Bus{
		tel: tel,
		cfg: cfg,

		rxIndex: make(map[dbc.Key]*dbc.Message),
		txIndex: make(map[dbc.Key]*txEntry),

		rxFrames:   tel.NewCounter("rx_frames"),
		rxUnknown:  tel.NewCounter("rx_unknown_frames"),
		txFrames:   tel.NewCounter("tx_frames"),
		txFailures: tel.NewCounter("tx_failures"),
	}

	if schema == nil {
		return b, nil
	}

	for _, msg := range schema.Messages() {
		var err error
		switch msg.Direction() {
		case dbc.DirectionRX:
			err = b.RegisterRx(msg)
		case dbc.DirectionTX:
			err = b.RegisterTx(msg, msg.PeriodMs(), nil)
		}
		if err != nil {
			return nil, err
		}
	}

	tel.LogInfo("bus created", "rx_messages", len(b.rxIndex), "tx_messages", len(b.txSchedule))

	return b, nil
}

// RegisterRx adds an rx message to the dispatch index.
func (b *Bus) RegisterRx(msg *dbc.Message) error {
	if msg.Direction() != dbc.DirectionRX {
		return &dbc.SchemaError{Message: msg.Name(), Err: fmt.Errorf("%w: %s message registered for rx", dbc.ErrDirection, msg.Direction())}
	}

	key := msg.Key()
	if other, ok := b.rxIndex[key]; ok {
		return &dbc.SchemaError{Message: msg.Name(), Err: fmt.Errorf("%w: rx %s already used by %s", dbc.ErrDuplicateID, key, other.Name())}
	}

	b.rxIndex[key] = msg
	b.messages = append(b.messages, msg)

	return nil
}

// RegisterTx schedules a tx message every periodMs milliseconds.
// With a nil scheduler the bus keeps the schedule itself and transmits from
// TickBus. Otherwise the message is sent from a timer added to sched.
//
// The first transmission is due one period after the bus is initialized.
func (b *Bus) RegisterTx(msg *dbc.Message, periodMs uint32, sched Scheduler) error {
	if msg.Direction() != dbc.DirectionTX {
		return &dbc.SchemaError{Message: msg.Name(), Err: fmt.Errorf("%w: %s message registered for tx", dbc.ErrDirection, msg.Direction())}
	}

	if periodMs == 0 {
		return &dbc.SchemaError{Message: msg.Name(), Err: dbc.ErrInvalidPeriod}
	}

	key := msg.Key()
	if other, ok := b.txIndex[key]; ok {
		return &dbc.SchemaError{Message: msg.Name(), Err: fmt.Errorf("%w: tx %s already used by %s", dbc.ErrDuplicateID, key, other.msg.Name())}
	}

	entry := &txEntry{
		msg:       msg,
		periodMs:  periodMs,
		nextDueMs: periodMs,
		external:  sched != nil,
	}

	if b.state == stateReady {
		entry.nextDueMs = b.driver.NowMs() + periodMs
	}

	b.txIndex[key] = entry
	b.messages = append(b.messages, msg)

	if sched != nil {
		sched.AddTimer(periodMs, func(uint32) {
			if err := b.Transmit(msg); err != nil {
				b.tel.LogWarn("scheduled transmission skipped", "message", msg.Name(), "reason", err)
			}
		})
		return nil
	}

	b.txSchedule = append(b.txSchedule, entry)

	return nil
}

// SetDriver binds the driver. It panics if the driver is nil or if a driver
// has already been set.
func (b *Bus) SetDriver(driver Driver) {
	if driver == nil {
		panic("bus: nil driver")
	}

	if b.state != stateUnbound {
		panic("bus: driver already set")
	}

	b.driver = driver
	b.state = stateBound

	b.tel.LogInfo("driver bound", "driver", fmt.Sprintf("%T", driver))
}

// Init initializes the driver. A failed init leaves the bus bound but not
// ready and may be retried by the caller. A successful init starts the
// transmit schedule one period after the driver's current time.
func (b *Bus) Init(ctx context.Context, baudRate uint32) error {
	if b.state == stateUnbound {
		return ErrNoDriver
	}

	ctx, span := b.tel.NewTrace(ctx, "init bus")
	defer span.End()

	span.SetAttributes(attribute.Int64("baud_rate", int64(baudRate)))

	if err := b.driver.Init(ctx, baudRate); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "driver init failed")

		b.tel.LogError("failed to initialize driver", err, "baud_rate", baudRate)

		return fmt.Errorf("%w: %w", ErrInit, err)
	}

	now := b.driver.NowMs()
	for _, entry := range b.txSchedule {
		entry.nextDueMs = now + entry.periodMs
	}

	b.state = stateReady
	b.consecutiveFailures = 0

	b.tel.LogInfo("bus initialized", "baud_rate", baudRate)

	return nil
}

// TickBus drains the frames pending in the driver, decodes the known ones
// and transmits the tx messages due at nowMs. Frames with unknown ids are
// dropped. A failed transmission is counted and does not stop the tick.
func (b *Bus) TickBus(nowMs uint32) error {
	switch b.state {
	case stateUnbound:
		return ErrNoDriver
	case stateBound:
		return ErrNotInitialized
	}

	b.drain(nowMs)
	b.transmitDue(nowMs)

	return nil
}

func (b *Bus) drain(nowMs uint32) {
	ctx := context.Background()

	frame := can.Frame{}
	for count := 0; b.cfg.MaxRxPerTick <= 0 || count < b.cfg.MaxRxPerTick; count++ {
		if !b.driver.Recv(&frame) {
			return
		}

		msg, ok := b.rxIndex[dbc.Key{ID: frame.ID, Extended: frame.IsExtended}]
		if !ok || frame.IsRemote {
			b.counters.rxUnknown.Add(1)
			b.rxUnknown.Add(ctx, 1)
			continue
		}

		msg.Receive(frame, nowMs)

		b.counters.rxFrames.Add(1)
		b.rxFrames.Add(ctx, 1)
	}
}

func (b *Bus) transmitDue(nowMs uint32) {
	var due []*txEntry
	for _, entry := range b.txSchedule {
		if isDue(nowMs, entry.nextDueMs) {
			due = append(due, entry)
		}
	}

	if len(due) == 0 {
		return
	}

	_, span := b.tel.NewTrace(context.Background(), "transmit due messages")
	defer span.End()

	sent := 0
	for _, entry := range due {
		if b.send(entry.msg) == nil {
			sent++
		}
		entry.nextDueMs += entry.periodMs
	}

	span.SetAttributes(
		attribute.Int("due_messages", len(due)),
		attribute.Int("sent_messages", sent),
	)
}

// isDue compares deadlines on the wrapping millisecond clock.
func isDue(nowMs, dueMs uint32) bool {
	return int32(nowMs-dueMs) >= 0
}

// Transmit encodes the message and sends it right away.
func (b *Bus) Transmit(msg *dbc.Message) error {
	switch b.state {
	case stateUnbound:
		return ErrNoDriver
	case stateBound:
		return ErrNotInitialized
	}

	return b.send(msg)
}

func (b *Bus) send(msg *dbc.Message) error {
	ctx := context.Background()

	frame := msg.Encode()
	if err := b.driver.Send(frame); err != nil {
		b.counters.txFailures.Add(1)
		b.txFailures.Add(ctx, 1)

		b.consecutiveFailures++
		if b.consecutiveFailures == 1 || b.cfg.FailureLogInterval <= 1 ||
			b.consecutiveFailures%b.cfg.FailureLogInterval == 0 {
			b.tel.LogError("failed to send frame", err,
				"message", msg.Name(), "id", msg.Key().String(), "consecutive_failures", b.consecutiveFailures)
		}

		return err
	}

	if b.consecutiveFailures > 0 {
		b.tel.LogInfo("send recovered", "failed_sends", b.consecutiveFailures)
		b.consecutiveFailures = 0
	}

	b.counters.txFrames.Add(1)
	b.txFrames.Add(ctx, 1)

	return nil
}

// NextDueMs returns the next deadline of a message on the internal schedule.
func (b *Bus) NextDueMs(msg *dbc.Message) (uint32, bool) {
	entry, ok := b.txIndex[msg.Key()]
	if !ok || entry.msg != msg || entry.external {
		return 0, false
	}
	return entry.nextDueMs, true
}

// Messages returns every registered message, in registration order.
// The returned slice must not be modified.
func (b *Bus) Messages() []*dbc.Message {
	return b.messages
}

// RxMessage returns the rx message registered with the key.
func (b *Bus) RxMessage(key dbc.Key) (*dbc.Message, bool) {
	msg, ok := b.rxIndex[key]
	return msg, ok
}

// Ready reports whether the bus has a driver and was initialized.
func (b *Bus) Ready() bool {
	return b.state == stateReady
}

// NowMs returns the driver clock. It returns 0 before a driver is set.
func (b *Bus) NowMs() uint32 {
	if b.driver == nil {
		return 0
	}
	return b.driver.NowMs()
}

// Stats returns a snapshot of the bus counters. It is safe to call
// from any goroutine.
func (b *Bus) Stats() Stats {
	return b.counters.snapshot()
}
