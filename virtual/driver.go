// Package virtual implements an in-memory CAN driver. Frames are injected by
// the caller, sent frames are recorded and optionally looped back, and the
// clock is either the wall clock or set by hand.
package virtual

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.einride.tech/can"
)

var (
	// ErrNotInitialized is returned by Send before a successful Init.
	ErrNotInitialized = errors.New("virtual: driver not initialized")
	// ErrQueueFull is returned by Inject when the rx queue is full.
	ErrQueueFull = errors.New("virtual: rx queue full")
	// ErrSendFailed is the error of failing sends when none is given.
	ErrSendFailed = errors.New("virtual: send failed")
)

type Config struct {
	// Loopback queues every sent frame for reception.
	Loopback bool `yaml:"loopback"`
	// ManualClock freezes the clock at 0 until it is set or advanced.
	ManualClock bool `yaml:"manual_clock"`
	// QueueSize bounds the rx queue, 0 means unbounded.
	QueueSize int `yaml:"queue_size"`
	// KeepSent records sent frames, see Sent.
	KeepSent bool `yaml:"keep_sent"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Loopback:    false,
		ManualClock: false,
		QueueSize:   1024,
		KeepSent:    false,
	}
}

// Driver is an in-memory driver. Its methods are safe for concurrent use,
// so frames may be injected from another goroutine.
type Driver struct {
	cfg *Config

	mux sync.Mutex

	start time.Time
	nowMs uint32

	initialized bool
	baudRate    uint32
	initErr     error

	rx   []can.Frame
	sent []can.Frame

	sendErr      error
	failingSends int
	sendCount    uint64
}

func New(cfg *Config) *Driver {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	return &Driver{
		cfg:   cfg,
		start: time.Now(),
	}
}

// NewManual returns a driver with a manual clock that keeps every sent frame.
func NewManual() *Driver {
	return New(&Config{ManualClock: true, KeepSent: true})
}

func (d *Driver) Init(_ context.Context, baudRate uint32) error {
	d.mux.Lock()
	defer d.mux.Unlock()

	if d.initErr != nil {
		return d.initErr
	}

	d.initialized = true
	d.baudRate = baudRate

	return nil
}

func (d *Driver) Send(frame can.Frame) error {
	d.mux.Lock()
	defer d.mux.Unlock()

	if !d.initialized {
		return ErrNotInitialized
	}

	if d.failingSends != 0 {
		if d.failingSends > 0 {
			d.failingSends--
		}
		return d.sendErr
	}

	d.sendCount++

	if d.cfg.KeepSent {
		d.sent = append(d.sent, frame)
	}

	if d.cfg.Loopback {
		d.push(frame)
	}

	return nil
}

func (d *Driver) Recv(frame *can.Frame) bool {
	d.mux.Lock()
	defer d.mux.Unlock()

	if len(d.rx) == 0 {
		return false
	}

	*frame = d.rx[0]
	d.rx[0] = can.Frame{}
	d.rx = d.rx[1:]

	return true
}

func (d *Driver) NowMs() uint32 {
	d.mux.Lock()
	defer d.mux.Unlock()

	if d.cfg.ManualClock {
		return d.nowMs
	}

	return uint32(time.Since(d.start).Milliseconds())
}

func (d *Driver) push(frame can.Frame) bool {
	if d.cfg.QueueSize > 0 && len(d.rx) >= d.cfg.QueueSize {
		return false
	}

	d.rx = append(d.rx, frame)
	return true
}

// Inject queues frames for reception. It stops at the first frame
// that does not fit in the queue.
func (d *Driver) Inject(frames ...can.Frame) error {
	d.mux.Lock()
	defer d.mux.Unlock()

	for _, frame := range frames {
		if !d.push(frame) {
			return ErrQueueFull
		}
	}

	return nil
}

// Pending returns the number of frames waiting to be received.
func (d *Driver) Pending() int {
	d.mux.Lock()
	defer d.mux.Unlock()

	return len(d.rx)
}

// SetNow sets the manual clock.
func (d *Driver) SetNow(nowMs uint32) {
	d.mux.Lock()
	defer d.mux.Unlock()

	d.nowMs = nowMs
}

// Advance moves the manual clock forward.
func (d *Driver) Advance(deltaMs uint32) uint32 {
	d.mux.Lock()
	defer d.mux.Unlock()

	d.nowMs += deltaMs
	return d.nowMs
}

// FailInit makes the following Init calls fail with err.
// A nil error restores normal behavior.
func (d *Driver) FailInit(err error) {
	d.mux.Lock()
	defer d.mux.Unlock()

	d.initErr = err
}

// FailSends makes the next n sends fail with err. A negative n makes every
// send fail until FailSends is called again with n equal to 0.
func (d *Driver) FailSends(n int, err error) {
	d.mux.Lock()
	defer d.mux.Unlock()

	if err == nil {
		err = ErrSendFailed
	}

	d.failingSends = n
	d.sendErr = err
}

// Sent returns a copy of the frames sent so far. Frames are recorded only
// when KeepSent is set.
func (d *Driver) Sent() []can.Frame {
	d.mux.Lock()
	defer d.mux.Unlock()

	sent := make([]can.Frame, len(d.sent))
	copy(sent, d.sent)
	return sent
}

// SendCount returns the number of successful sends.
func (d *Driver) SendCount() uint64 {
	d.mux.Lock()
	defer d.mux.Unlock()

	return d.sendCount
}

// BaudRate returns the baud rate of the last successful Init.
func (d *Driver) BaudRate() uint32 {
	d.mux.Lock()
	defer d.mux.Unlock()

	return d.baudRate
}
