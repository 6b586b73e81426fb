package bus

import (
	"context"

	"go.einride.tech/can"
)

// Driver is the transport a bus sends and receives frames through.
// A driver is owned by exactly one bus and is never called concurrently by it.
type Driver interface {
	// Init brings up the transport at the given baud rate.
	Init(ctx context.Context, baudRate uint32) error
	// Send transmits a single frame.
	Send(frame can.Frame) error
	// Recv pops the next pending frame without blocking.
	// It returns false when no frame is pending.
	Recv(frame *can.Frame) bool
	// NowMs returns a monotonic clock in milliseconds. It may wrap.
	NowMs() uint32
}

// Scheduler is a periodic timer group ticked externally.
type Scheduler interface {
	// AddTimer registers fn to be called every periodMs milliseconds.
	AddTimer(periodMs uint32, fn func(nowMs uint32))
}
