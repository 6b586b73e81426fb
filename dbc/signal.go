package dbc

import (
	"fmt"
	"math"
)

// SignalDef describes where a signal lives inside a payload and how its raw
// bits map to a physical value: physical = raw*Scale + Offset.
type SignalDef struct {
	Name   string    `yaml:"name"`
	Start  int       `yaml:"start"`
	Size   int       `yaml:"size"`
	Signed bool      `yaml:"signed"`
	Type   ValueType `yaml:"type"`
	Scale  float64   `yaml:"scale"`
	Offset float64   `yaml:"offset"`
	Unit   string    `yaml:"unit,omitempty"`
}

func (d *SignalDef) validate() error {
	if d.Size < 1 || d.Size > 64 || d.Start < 0 || d.Start > 63 || d.Start+d.Size > 64 {
		return fmt.Errorf("%w: start %d size %d", ErrBitRange, d.Start, d.Size)
	}

	if d.Scale == 0 || math.IsNaN(d.Scale) || math.IsInf(d.Scale, 0) {
		return ErrZeroScale
	}

	switch d.Type {
	case ValueTypeFlag, ValueTypeInt, ValueTypeUint:
		if d.Scale != 1 || d.Offset != 0 {
			return ErrScaledInteger
		}
	case ValueTypeFloat:
	default:
		return fmt.Errorf("unknown value type %d", d.Type)
	}

	if d.Type == ValueTypeUint && d.Signed {
		return ErrSignedUint
	}

	return nil
}

// Signal is a typed view over a bit range of a payload.
// It holds the last decoded value (rx) or the value staged for the next encode (tx).
type Signal struct {
	def   SignalDef
	value Value
}

// NewSignal validates the definition and returns a signal holding the zero value.
func NewSignal(def SignalDef) (*Signal, error) {
	if err := def.validate(); err != nil {
		return nil, newSchemaError("", def.Name, err)
	}

	sig := &Signal{def: def}
	sig.value = FloatValue(0).Convert(def.Type)
	if def.Type == ValueTypeFloat {
		sig.value = FloatValue(def.Offset)
	}

	return sig, nil
}

// Def returns the definition of the signal.
func (s *Signal) Def() SignalDef {
	return s.def
}

func (s *Signal) Name() string {
	return s.def.Name
}

func (s *Signal) Start() int {
	return s.def.Start
}

func (s *Signal) Size() int {
	return s.def.Size
}

func (s *Signal) Signed() bool {
	return s.def.Signed
}

func (s *Signal) Type() ValueType {
	return s.def.Type
}

func (s *Signal) Unit() string {
	return s.def.Unit
}

// RawWidth returns the width in bits (8, 16, 32 or 64) of the smallest
// integer container holding the raw field.
func (s *Signal) RawWidth() int {
	return rawWidth(s.def.Size)
}

// Value returns the current physical value.
func (s *Signal) Value() Value {
	return s.value
}

// SetValue stages a value, converting it to the signal's value type.
func (s *Signal) SetValue(v Value) {
	s.value = v.Convert(s.def.Type)
}

// SetFloat stages a physical value given as a float.
func (s *Signal) SetFloat(f float64) {
	s.SetValue(FloatValue(f))
}

// String returns the current value formatted for display.
func (s *Signal) String() string {
	return s.value.String()
}

// Raw extracts the raw field from the payload. Signed fields are sign extended
// from their top bit and returned as their two's complement bit pattern.
func (s *Signal) Raw(payload [8]byte) uint64 {
	raw := getBits(payload, s.def.Start, s.def.Size)
	if s.def.Signed {
		return uint64(signExtend(raw, s.def.Size))
	}
	return raw
}

// RawBits extracts the field exactly as it sits in the payload, without sign extension.
func (s *Signal) RawBits(payload [8]byte) uint64 {
	return getBits(payload, s.def.Start, s.def.Size)
}

// Decode computes the physical value carried by the payload.
// It does not change the stored value.
func (s *Signal) Decode(payload [8]byte) Value {
	raw := getBits(payload, s.def.Start, s.def.Size)

	switch s.def.Type {
	case ValueTypeFlag:
		return FlagValue(raw != 0)

	case ValueTypeInt:
		if s.def.Signed {
			return IntValue(signExtend(raw, s.def.Size))
		}
		return IntValue(int64(raw))

	case ValueTypeUint:
		return UintValue(raw)

	default:
		var phys float64
		if s.def.Signed {
			phys = float64(signExtend(raw, s.def.Size))
		} else {
			phys = float64(raw)
		}
		return FloatValue(phys*s.def.Scale + s.def.Offset)
	}
}

// Encode writes v into the signal's bit range. Bits outside the range are
// left untouched. Values that do not fit are truncated to the low Size bits.
func (s *Signal) Encode(v Value, payload *[8]byte) {
	var raw uint64

	switch s.def.Type {
	case ValueTypeFlag:
		if v.AsFlag() {
			raw = 1
		}

	case ValueTypeInt:
		raw = uint64(v.AsInt())

	case ValueTypeUint:
		raw = v.AsUint()

	default:
		raw = s.physToRaw(v.AsFloat())
	}

	setBits(payload, s.def.Start, s.def.Size, raw)
}

// physToRaw inverts the scale/offset transform and rounds to the nearest raw
// step. Results outside the 64 bit container are clamped into it; NaN maps to 0.
func (s *Signal) physToRaw(phys float64) uint64 {
	r := math.Round((phys - s.def.Offset) / s.def.Scale)

	switch {
	case math.IsNaN(r):
		return 0
	case r >= math.MaxUint64:
		if s.def.Signed {
			return math.MaxInt64
		}
		return math.MaxUint64
	case r >= math.MaxInt64 && s.def.Signed:
		return math.MaxInt64
	case r >= math.MaxInt64:
		return uint64(r)
	case r <= math.MinInt64:
		return 1 << 63
	default:
		return uint64(int64(r))
	}
}

// encodeValue writes the stored value into the payload.
func (s *Signal) encodeValue(payload *[8]byte) {
	s.Encode(s.value, payload)
}

// decodeValue stores the value carried by the payload.
func (s *Signal) decodeValue(payload [8]byte) {
	s.value = s.Decode(payload)
}
