package bus

import "sync/atomic"

// Stats is a snapshot of the bus counters.
type Stats struct {
	RxFrames   uint64
	RxUnknown  uint64
	TxFrames   uint64
	TxFailures uint64
}

// counters may be read from other goroutines while the bus is ticked.
type counters struct {
	rxFrames   atomic.Uint64
	rxUnknown  atomic.Uint64
	txFrames   atomic.Uint64
	txFailures atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		RxFrames:   c.rxFrames.Load(),
		RxUnknown:  c.rxUnknown.Load(),
		TxFrames:   c.txFrames.Load(),
		TxFailures: c.txFailures.Load(),
	}
}
