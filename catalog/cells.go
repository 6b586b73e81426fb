package catalog

import (
	"fmt"

	"github.com/squadracorsepolito/acmedash/dbc"
)

const (
	// CellVoltageFrames is the number of BMS cell voltage frames.
	CellVoltageFrames = 20
	// CellsPerVoltageFrame is the number of cell voltages in a frame.
	CellsPerVoltageFrame = 7
	// CellVoltageBaseID is the id of the first cell voltage frame.
	CellVoltageBaseID = 0x153

	// CellTemperatureFrames is the number of BMS cell temperature frames.
	CellTemperatureFrames = 10
	// CellsPerTemperatureFrame is the number of cell temperatures in a frame.
	CellsPerTemperatureFrame = 8
	// CellTemperatureBaseID is the id of the first cell temperature frame.
	CellTemperatureBaseID = 0x167
)

// CellVoltageDefs returns the BMS cell voltage frames. Frame i carries the
// voltages of cells 7i..7i+6 followed by the open circuit voltage offset.
func CellVoltageDefs() []dbc.MessageDef {
	defs := make([]dbc.MessageDef, 0, CellVoltageFrames)

	for frame := range CellVoltageFrames {
		signals := make([]dbc.SignalDef, 0, CellsPerVoltageFrame+1)

		for slot := range CellsPerVoltageFrame {
			signals = append(signals, dbc.SignalDef{
				Name:   fmt.Sprintf("cellV%d", frame*CellsPerVoltageFrame+slot),
				Start:  slot * 8,
				Size:   8,
				Signed: true,
				Type:   dbc.ValueTypeFloat,
				Scale:  0.012,
				Offset: 2,
				Unit:   "V",
			})
		}

		signals = append(signals, dbc.SignalDef{
			Name:   fmt.Sprintf("cellOcvOffset%d", frame),
			Start:  56,
			Size:   8,
			Signed: true,
			Type:   dbc.ValueTypeFloat,
			Scale:  0.004,
			Unit:   "V",
		})

		defs = append(defs, dbc.MessageDef{
			Name:      fmt.Sprintf("bmsVoltages%d", frame),
			ID:        uint32(CellVoltageBaseID + frame),
			Length:    8,
			Direction: dbc.DirectionRX,
			Signals:   signals,
		})
	}

	return defs
}

// CellTemperatureDefs returns the BMS cell temperature frames. Frame i carries
// the temperatures of cells 8i..8i+7.
func CellTemperatureDefs() []dbc.MessageDef {
	defs := make([]dbc.MessageDef, 0, CellTemperatureFrames)

	for frame := range CellTemperatureFrames {
		signals := make([]dbc.SignalDef, 0, CellsPerTemperatureFrame)

		for slot := range CellsPerTemperatureFrame {
			signals = append(signals, dbc.SignalDef{
				Name:   fmt.Sprintf("cellT%d", frame*CellsPerTemperatureFrame+slot),
				Start:  slot * 8,
				Size:   8,
				Signed: true,
				Type:   dbc.ValueTypeFloat,
				Scale:  1,
				Offset: -40,
				Unit:   "degC",
			})
		}

		defs = append(defs, dbc.MessageDef{
			Name:      fmt.Sprintf("bmsTemperatures%d", frame),
			ID:        uint32(CellTemperatureBaseID + frame),
			Length:    8,
			Direction: dbc.DirectionRX,
			Signals:   signals,
		})
	}

	return defs
}
