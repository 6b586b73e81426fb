package node

import (
	"fmt"

	"github.com/squadracorsepolito/acmedash/catalog"
	"github.com/squadracorsepolito/acmedash/dbc"
)

const heartbeatSignal = "counter"

// Heartbeat increments the counter of the dashboard heartbeat message.
// The bus transmits the staged counter on the message's own schedule.
type Heartbeat struct {
	counter *dbc.Signal
	count   uint64
}

func NewHeartbeat(schema *dbc.Schema) (*Heartbeat, error) {
	msg, ok := schema.Message(catalog.DashHeartbeat)
	if !ok {
		return nil, fmt.Errorf("heartbeat: message %s not found", catalog.DashHeartbeat)
	}

	counter, ok := msg.SignalByName(heartbeatSignal)
	if !ok {
		return nil, fmt.Errorf("heartbeat: message %s has no %s signal", catalog.DashHeartbeat, heartbeatSignal)
	}

	return &Heartbeat{counter: counter}, nil
}

// Beat is the timer function of the heartbeat.
func (h *Heartbeat) Beat(uint32) {
	h.count++
	h.counter.SetValue(dbc.UintValue(h.count))
}

func (h *Heartbeat) Count() uint64 {
	return h.count
}
