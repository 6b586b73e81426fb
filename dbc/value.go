package dbc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType is the kind of physical value a signal carries.
type ValueType uint8

const (
	// ValueTypeFlag is a boolean flag.
	ValueTypeFlag ValueType = iota
	// ValueTypeInt is a signed integer.
	ValueTypeInt
	// ValueTypeUint is an unsigned integer.
	ValueTypeUint
	// ValueTypeFloat is a scaled floating point quantity.
	ValueTypeFloat
)

func (vt ValueType) String() string {
	switch vt {
	case ValueTypeFlag:
		return "flag"
	case ValueTypeInt:
		return "int"
	case ValueTypeUint:
		return "uint"
	case ValueTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// ParseValueType parses the names returned by [ValueType.String].
// "bool" is accepted as an alias of "flag".
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flag", "bool":
		return ValueTypeFlag, nil
	case "int":
		return ValueTypeInt, nil
	case "uint":
		return ValueTypeUint, nil
	case "float":
		return ValueTypeFloat, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (vt ValueType) MarshalYAML() (any, error) {
	return vt.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (vt *ValueType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	parsed, err := ParseValueType(s)
	if err != nil {
		return err
	}

	*vt = parsed
	return nil
}

// Value is a physical signal value tagged with its [ValueType].
// Only the field selected by the type is meaningful.
type Value struct {
	typ ValueType

	flag    bool
	integer int64
	uint    uint64
	float   float64
}

// FlagValue returns a flag value.
func FlagValue(b bool) Value {
	return Value{typ: ValueTypeFlag, flag: b}
}

// IntValue returns a signed integer value.
func IntValue(i int64) Value {
	return Value{typ: ValueTypeInt, integer: i}
}

// UintValue returns an unsigned integer value.
func UintValue(u uint64) Value {
	return Value{typ: ValueTypeUint, uint: u}
}

// FloatValue returns a floating point value.
func FloatValue(f float64) Value {
	return Value{typ: ValueTypeFloat, float: f}
}

// Type returns the type tag of the value.
func (v Value) Type() ValueType {
	return v.typ
}

// AsFlag returns the value as a flag. Numeric values are true when not zero.
func (v Value) AsFlag() bool {
	switch v.typ {
	case ValueTypeFlag:
		return v.flag
	case ValueTypeInt:
		return v.integer != 0
	case ValueTypeUint:
		return v.uint != 0
	default:
		return v.float != 0
	}
}

// AsInt returns the value as a signed integer, truncating floats toward zero.
// Floats outside the int64 range saturate; NaN is 0.
func (v Value) AsInt() int64 {
	switch v.typ {
	case ValueTypeFlag:
		if v.flag {
			return 1
		}
		return 0
	case ValueTypeInt:
		return v.integer
	case ValueTypeUint:
		return int64(v.uint)
	default:
		return floatToInt(v.float)
	}
}

// AsUint returns the value as an unsigned integer.
// Negative numbers keep their two's complement bit pattern. Floats outside the
// 64 bit range saturate; NaN is 0.
func (v Value) AsUint() uint64 {
	switch v.typ {
	case ValueTypeFlag:
		if v.flag {
			return 1
		}
		return 0
	case ValueTypeInt:
		return uint64(v.integer)
	case ValueTypeUint:
		return v.uint
	default:
		return floatToUint(v.float)
	}
}

// float to integer conversions of out of range values are
// implementation specific, so they are clamped first.
func floatToInt(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}

func floatToUint(f float64) uint64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxUint64:
		return math.MaxUint64
	case f >= math.MaxInt64:
		return uint64(f)
	default:
		return uint64(floatToInt(f))
	}
}

// AsFloat returns the value as a float64.
func (v Value) AsFloat() float64 {
	switch v.typ {
	case ValueTypeFlag:
		if v.flag {
			return 1
		}
		return 0
	case ValueTypeInt:
		return float64(v.integer)
	case ValueTypeUint:
		return float64(v.uint)
	default:
		return v.float
	}
}

// Convert returns the value re-tagged as typ.
func (v Value) Convert(typ ValueType) Value {
	if v.typ == typ {
		return v
	}

	switch typ {
	case ValueTypeFlag:
		return FlagValue(v.AsFlag())
	case ValueTypeInt:
		return IntValue(v.AsInt())
	case ValueTypeUint:
		return UintValue(v.AsUint())
	default:
		return FloatValue(v.AsFloat())
	}
}

// String formats floats with 3 decimals, integers in decimal
// and flags as true/false.
func (v Value) String() string {
	switch v.typ {
	case ValueTypeFlag:
		return strconv.FormatBool(v.flag)
	case ValueTypeInt:
		return strconv.FormatInt(v.integer, 10)
	case ValueTypeUint:
		return strconv.FormatUint(v.uint, 10)
	default:
		return strconv.FormatFloat(v.float, 'f', 3, 64)
	}
}
