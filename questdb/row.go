package questdb

import (
	"math"
	"math/big"
	"time"

	"github.com/squadracorsepolito/acmedash/dbc"
)

// Tables written by the recorder, one per value kind.
const (
	FlagTable  = "flag_signals"
	IntTable   = "int_signals"
	LongTable  = "long_signals"
	FloatTable = "float_signals"
)

type ColumnType int

const (
	ColumnTypeBool ColumnType = iota
	ColumnTypeInt
	ColumnTypeLong
	ColumnTypeFloat
	ColumnTypeString
)

type Column struct {
	Name  string
	Type  ColumnType
	Value any
}

func newColumn(name string, typ ColumnType, value any) *Column {
	return &Column{
		Name:  name,
		Type:  typ,
		Value: value,
	}
}

func NewBoolColumn(name string, value bool) *Column {
	return newColumn(name, ColumnTypeBool, value)
}

func NewIntColumn(name string, value int64) *Column {
	return newColumn(name, ColumnTypeInt, value)
}

func NewLongColumn(name string, value *big.Int) *Column {
	return newColumn(name, ColumnTypeLong, value)
}

func NewFloatColumn(name string, value float64) *Column {
	return newColumn(name, ColumnTypeFloat, value)
}

func NewStringColumn(name string, value string) *Column {
	return newColumn(name, ColumnTypeString, value)
}

type Symbol struct {
	Name  string
	Value string
}

type Row struct {
	Table   string
	Symbols []Symbol
	Columns []*Column
}

func NewRow(table string) *Row {
	return &Row{
		Table: table,
	}
}

func (r *Row) AddSymbol(name, value string) {
	r.Symbols = append(r.Symbols, Symbol{Name: name, Value: value})
}

func (r *Row) AddColumn(column *Column) {
	if column != nil {
		r.Columns = append(r.Columns, column)
	}
}

// Batch is a snapshot of signal values taken at the same time.
type Batch struct {
	Timestamp time.Time
	Rows      []*Row
}

func (b *Batch) AddRow(row *Row) {
	if row != nil {
		b.Rows = append(b.Rows, row)
	}
}

// SignalRow builds the row holding the current value of a signal.
// Unsigned values that do not fit an int64 go to the long256 table.
// Signals with a unit carry it in a unit column.
func SignalRow(msg *dbc.Message, sig *dbc.Signal) *Row {
	value := sig.Value()

	var row *Row
	var col *Column

	switch value.Type() {
	case dbc.ValueTypeFlag:
		row = NewRow(FlagTable)
		col = NewBoolColumn("value", value.AsFlag())

	case dbc.ValueTypeInt:
		row = NewRow(IntTable)
		col = NewIntColumn("value", value.AsInt())

	case dbc.ValueTypeUint:
		u := value.AsUint()
		if u > math.MaxInt64 {
			row = NewRow(LongTable)
			col = NewLongColumn("value", new(big.Int).SetUint64(u))
		} else {
			row = NewRow(IntTable)
			col = NewIntColumn("value", int64(u))
		}

	default:
		row = NewRow(FloatTable)
		col = NewFloatColumn("value", value.AsFloat())
	}

	row.AddSymbol("message", msg.Name())
	row.AddSymbol("signal", sig.Name())
	row.AddColumn(NewIntColumn("can_id", int64(msg.ID())))
	row.AddColumn(col)

	if unit := sig.Unit(); unit != "" {
		row.AddColumn(NewStringColumn("unit", unit))
	}

	return row
}
