package dbc

import (
	"fmt"
	"strings"

	"go.einride.tech/can"
)

const (
	// MaxStandardID is the largest 11 bit identifier.
	MaxStandardID = 0x7FF
	// MaxExtendedID is the largest 29 bit identifier.
	MaxExtendedID = 0x1FFFFFFF
	// MaxLength is the largest classic CAN payload length in bytes.
	MaxLength = 8
)

// Direction tells whether a message is decoded from the bus or sent on it.
type Direction uint8

const (
	// DirectionRX messages are decoded from incoming frames.
	DirectionRX Direction = iota
	// DirectionTX messages are periodically encoded and sent.
	DirectionTX
)

func (d Direction) String() string {
	switch d {
	case DirectionRX:
		return "rx"
	case DirectionTX:
		return "tx"
	default:
		return "unknown"
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d Direction) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Direction) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rx":
		*d = DirectionRX
	case "tx":
		*d = DirectionTX
	default:
		return fmt.Errorf("%w: %q", ErrDirection, s)
	}

	return nil
}

// Key identifies a message on the bus.
type Key struct {
	ID       uint32
	Extended bool
}

func (k Key) String() string {
	if k.Extended {
		return fmt.Sprintf("0x%08X", k.ID)
	}
	return fmt.Sprintf("0x%03X", k.ID)
}

// MessageDef describes a CAN message and its signals.
type MessageDef struct {
	Name      string      `yaml:"name"`
	ID        uint32      `yaml:"id"`
	Extended  bool        `yaml:"extended"`
	Length    uint8       `yaml:"length"`
	Direction Direction   `yaml:"direction"`
	PeriodMs  uint32      `yaml:"period_ms,omitempty"`
	Signals   []SignalDef `yaml:"signals"`
}

// Message is a named CAN identifier together with its ordered signals.
type Message struct {
	name      string
	key       Key
	length    uint8
	direction Direction
	periodMs  uint32

	signals []*Signal
	byName  map[string]int

	rxCount  uint64
	lastRxMs uint32
}

// NewMessage validates the definition and builds the message with its signals.
func NewMessage(def MessageDef) (*Message, error) {
	if err := validateKey(def.ID, def.Extended); err != nil {
		return nil, newSchemaError(def.Name, "", err)
	}

	if def.Length > MaxLength {
		return nil, newSchemaError(def.Name, "", fmt.Errorf("%w: %d", ErrInvalidLength, def.Length))
	}

	switch def.Direction {
	case DirectionRX:
	case DirectionTX:
		if def.PeriodMs == 0 {
			return nil, newSchemaError(def.Name, "", ErrInvalidPeriod)
		}
	default:
		return nil, newSchemaError(def.Name, "", ErrDirection)
	}

	msg := &Message{
		name:      def.Name,
		key:       Key{ID: def.ID, Extended: def.Extended},
		length:    def.Length,
		direction: def.Direction,
		periodMs:  def.PeriodMs,

		signals: make([]*Signal, 0, len(def.Signals)),
		byName:  make(map[string]int, len(def.Signals)),
	}

	var occupied uint64
	limit := int(def.Length) * 8

	for _, sigDef := range def.Signals {
		if _, ok := msg.byName[sigDef.Name]; ok {
			return nil, newSchemaError(def.Name, sigDef.Name, ErrDuplicateName)
		}

		sig, err := NewSignal(sigDef)
		if err != nil {
			return nil, newSchemaError(def.Name, sigDef.Name, unwrapSchema(err))
		}

		if sigDef.Start+sigDef.Size > limit {
			return nil, newSchemaError(def.Name, sigDef.Name,
				fmt.Errorf("%w: bits %d..%d exceed %d byte payload", ErrBitRange, sigDef.Start, sigDef.Start+sigDef.Size-1, def.Length))
		}

		mask := bitMask(sigDef.Size) << sigDef.Start
		if occupied&mask != 0 {
			return nil, newSchemaError(def.Name, sigDef.Name, ErrOverlap)
		}
		occupied |= mask

		msg.byName[sigDef.Name] = len(msg.signals)
		msg.signals = append(msg.signals, sig)
	}

	return msg, nil
}

func validateKey(id uint32, extended bool) error {
	if extended {
		if id > MaxExtendedID {
			return fmt.Errorf("%w: 0x%X exceeds 29 bits", ErrInvalidID, id)
		}
		return nil
	}

	if id > MaxStandardID {
		return fmt.Errorf("%w: 0x%X exceeds 11 bits", ErrInvalidID, id)
	}

	return nil
}

func unwrapSchema(err error) error {
	if schemaErr, ok := err.(*SchemaError); ok {
		return schemaErr.Err
	}
	return err
}

func (m *Message) Name() string {
	return m.name
}

func (m *Message) Key() Key {
	return m.key
}

func (m *Message) ID() uint32 {
	return m.key.ID
}

func (m *Message) Extended() bool {
	return m.key.Extended
}

func (m *Message) Length() uint8 {
	return m.length
}

func (m *Message) Direction() Direction {
	return m.direction
}

// PeriodMs returns the declared transmit period, 0 for rx messages.
func (m *Message) PeriodMs() uint32 {
	return m.periodMs
}

// NumSignals returns the number of signals of the message.
func (m *Message) NumSignals() int {
	return len(m.signals)
}

// SignalAt returns the signal at the given index.
func (m *Message) SignalAt(idx int) (*Signal, error) {
	if idx < 0 || idx >= len(m.signals) {
		return nil, fmt.Errorf("message %s: signal %d: %w", m.name, idx, ErrOutOfRange)
	}
	return m.signals[idx], nil
}

// SignalByName returns the signal with the given name.
func (m *Message) SignalByName(name string) (*Signal, bool) {
	idx, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return m.signals[idx], true
}

// Signals returns the signals in declaration order.
// The returned slice must not be modified.
func (m *Message) Signals() []*Signal {
	return m.signals
}

// RxCount returns the number of frames decoded into the message.
func (m *Message) RxCount() uint64 {
	return m.rxCount
}

// LastRxMs returns the driver time of the last decoded frame.
// It is meaningful only when RxCount is not zero.
func (m *Message) LastRxMs() uint32 {
	return m.lastRxMs
}

// DecodeFrom decodes every signal from the frame payload and stores the values.
// The caller is responsible for routing: the frame id is not checked.
// Bytes beyond the frame length are read as zero, so the values of signals
// lying past a short frame's end are not reliable.
func (m *Message) DecodeFrom(frame can.Frame) {
	payload := zeroPad([8]byte(frame.Data), frame.Length)
	for _, sig := range m.signals {
		sig.decodeValue(payload)
	}
}

// Receive decodes the frame like [Message.DecodeFrom] and records
// the receive time.
func (m *Message) Receive(frame can.Frame, nowMs uint32) {
	m.DecodeFrom(frame)
	m.rxCount++
	m.lastRxMs = nowMs
}

// EncodeTo encodes the staged signal values into the frame and sets
// its id, length and extended flag.
func (m *Message) EncodeTo(frame *can.Frame) {
	var payload [8]byte
	for _, sig := range m.signals {
		sig.encodeValue(&payload)
	}

	frame.ID = m.key.ID
	frame.IsExtended = m.key.Extended
	frame.IsRemote = false
	frame.Length = m.length
	frame.Data = can.Data(payload)
}

// Encode returns a new frame holding the staged signal values.
func (m *Message) Encode() can.Frame {
	frame := can.Frame{}
	m.EncodeTo(&frame)
	return frame
}
