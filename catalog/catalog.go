// Package catalog holds the message table of the drive bus.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/squadracorsepolito/acmedash/dbc"
	"gopkg.in/yaml.v3"
)

// Names of the messages the node works with directly.
const (
	PDMCurrent    = "pdmCurrent"
	PDMBatVolt    = "pdmBatVolt"
	BMSSoe        = "bmsSoe"
	BMSStatus     = "bmsStatus"
	DashHeartbeat = "dashHeartbeat"
)

//go:embed drive.yaml
var driveTable []byte

type signalEntry struct {
	Name   string         `yaml:"name"`
	Start  int            `yaml:"start"`
	Size   int            `yaml:"size"`
	Signed bool           `yaml:"signed"`
	Type   *dbc.ValueType `yaml:"type"`
	Scale  *float64       `yaml:"scale"`
	Offset float64        `yaml:"offset"`
	Unit   string         `yaml:"unit"`
}

func (e *signalEntry) toDef() dbc.SignalDef {
	def := dbc.SignalDef{
		Name:   e.Name,
		Start:  e.Start,
		Size:   e.Size,
		Signed: e.Signed,
		Scale:  1,
		Offset: e.Offset,
		Unit:   e.Unit,
	}

	if e.Scale != nil {
		def.Scale = *e.Scale
	}

	if e.Type != nil {
		def.Type = *e.Type
		return def
	}

	switch {
	case def.Scale != 1 || def.Offset != 0:
		def.Type = dbc.ValueTypeFloat
	case def.Size == 1:
		def.Type = dbc.ValueTypeFlag
	case def.Signed:
		def.Type = dbc.ValueTypeInt
	default:
		def.Type = dbc.ValueTypeUint
	}

	return def
}

type messageEntry struct {
	Name      string        `yaml:"name"`
	ID        uint32        `yaml:"id"`
	Extended  bool          `yaml:"extended"`
	Length    *uint8        `yaml:"length"`
	Direction dbc.Direction `yaml:"direction"`
	PeriodMs  uint32        `yaml:"period_ms"`
	Signals   []signalEntry `yaml:"signals"`
}

func (e *messageEntry) toDef() dbc.MessageDef {
	def := dbc.MessageDef{
		Name:      e.Name,
		ID:        e.ID,
		Extended:  e.Extended,
		Direction: e.Direction,
		PeriodMs:  e.PeriodMs,
		Signals:   make([]dbc.SignalDef, 0, len(e.Signals)),
	}

	maxEnd := 0
	for _, sigEntry := range e.Signals {
		sigDef := sigEntry.toDef()
		def.Signals = append(def.Signals, sigDef)

		if end := sigDef.Start + sigDef.Size; end > maxEnd {
			maxEnd = end
		}
	}

	if e.Length != nil {
		def.Length = *e.Length
	} else {
		def.Length = uint8(min((maxEnd+7)/8, dbc.MaxLength))
	}

	return def
}

type table struct {
	Messages []messageEntry `yaml:"messages"`
}

// Parse reads a message table in YAML. It does not validate the
// definitions, that happens when they are turned into a schema.
func Parse(r io.Reader) ([]dbc.MessageDef, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	t := table{}
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: %w", err)
	}

	defs := make([]dbc.MessageDef, 0, len(t.Messages))
	for _, entry := range t.Messages {
		defs = append(defs, entry.toDef())
	}

	return defs, nil
}

// Defs returns the definitions of the drive bus: the embedded table
// followed by the generated BMS cell frames.
func Defs() ([]dbc.MessageDef, error) {
	defs, err := Parse(bytes.NewReader(driveTable))
	if err != nil {
		return nil, err
	}

	defs = append(defs, CellVoltageDefs()...)
	defs = append(defs, CellTemperatureDefs()...)

	return defs, nil
}

// Load builds a new drive bus schema. Every call returns an independent
// schema with its own signal values.
func Load() (*dbc.Schema, error) {
	defs, err := Defs()
	if err != nil {
		return nil, err
	}

	return dbc.NewSchema(defs)
}

// LoadFile builds a schema from a message table file. The generated
// BMS cell frames are appended when withCells is set.
func LoadFile(path string, withCells bool) (*dbc.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	defs, err := Parse(f)
	if err != nil {
		return nil, err
	}

	if withCells {
		defs = append(defs, CellVoltageDefs()...)
		defs = append(defs, CellTemperatureDefs()...)
	}

	return dbc.NewSchema(defs)
}
