package node

import (
	"math/rand/v2"

	"github.com/squadracorsepolito/acmedash/dbc"
	"github.com/squadracorsepolito/acmedash/virtual"
	"go.einride.tech/can"
)

// Simulator feeds the virtual driver with random payloads for every
// rx message, standing in for the vehicle when no bus is attached.
type Simulator struct {
	driver   *virtual.Driver
	rng      *rand.Rand
	messages []*dbc.Message

	injected uint64
	dropped  uint64
}

func NewSimulator(driver *virtual.Driver, messages []*dbc.Message, seed uint64) *Simulator {
	rxMessages := make([]*dbc.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Direction() == dbc.DirectionRX {
			rxMessages = append(rxMessages, msg)
		}
	}

	return &Simulator{
		driver:   driver,
		rng:      rand.New(rand.NewPCG(seed, seed)),
		messages: rxMessages,
	}
}

// Step injects one frame per rx message.
func (s *Simulator) Step(uint32) {
	for _, msg := range s.messages {
		frame := can.Frame{
			ID:         msg.ID(),
			IsExtended: msg.Extended(),
			Length:     msg.Length(),
		}

		raw := s.rng.Uint64()
		for idx := range frame.Length {
			frame.Data[idx] = byte(raw >> (8 * idx))
		}

		if err := s.driver.Inject(frame); err != nil {
			s.dropped++
			continue
		}

		s.injected++
	}
}

// Injected returns the number of frames queued into the driver.
func (s *Simulator) Injected() uint64 {
	return s.injected
}

// Dropped returns the number of frames refused by a full driver queue.
func (s *Simulator) Dropped() uint64 {
	return s.dropped
}
