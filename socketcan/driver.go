// Package socketcan implements a CAN driver over Linux SocketCAN.
package socketcan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/acmedash/internal"
	"github.com/squadracorsepolito/acmedash/internal/rb"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
	"go.opentelemetry.io/otel/metric"
)

// ErrNotInitialized is returned by Send before a successful Init.
var ErrNotInitialized = errors.New("socketcan: driver not initialized")

// Driver reads frames from a SocketCAN interface on a background goroutine
// and hands them to the bus through a lock-free queue, so Recv never blocks.
type Driver struct {
	tel *internal.Telemetry
	cfg *Config

	start time.Time

	mux  sync.Mutex
	conn net.Conn
	tx   *socketcan.Transmitter

	queue *rb.SPSC[can.Frame]
	wg    sync.WaitGroup

	droppedFrames atomic.Uint64
	errorFrames   atomic.Uint64

	droppedCounter metric.Int64Counter
	errorCounter   metric.Int64Counter
}

func New(cfg *Config) *Driver {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	tel := internal.NewTelemetry("socketcan", cfg.Interface)

	return &Driver{
		tel: tel,
		cfg: cfg,

		start: time.Now(),

		droppedCounter: tel.NewCounter("dropped_frames"),
		errorCounter:   tel.NewCounter("error_frames"),
	}
}

// Init opens the interface and starts the reader. The baud rate is applied
// only when the device is configured by the driver, otherwise the interface
// must already be up at the right bitrate.
func (d *Driver) Init(ctx context.Context, baudRate uint32) error {
	if d.cfg.ConfigureDevice {
		if err := configureDevice(d.cfg.Interface, baudRate); err != nil {
			return err
		}
	}

	conn, err := socketcan.DialContext(ctx, "can", d.cfg.Interface)
	if err != nil {
		return fmt.Errorf("socketcan dial(%s): %w", d.cfg.Interface, err)
	}

	d.Close()

	d.mux.Lock()
	d.conn = conn
	d.tx = socketcan.NewTransmitter(conn)
	d.queue = rb.NewSPSC[can.Frame](d.cfg.QueueSize)
	d.mux.Unlock()

	d.wg.Add(1)
	go d.runReader(conn, d.queue)

	d.tel.LogInfo("interface opened", "interface", d.cfg.Interface, "baud_rate", baudRate)

	return nil
}

func (d *Driver) runReader(conn net.Conn, queue *rb.SPSC[can.Frame]) {
	defer d.wg.Done()

	ctx := context.Background()
	recv := socketcan.NewReceiver(conn)

	for recv.Receive() {
		if recv.HasErrorFrame() {
			d.errorFrames.Add(1)
			d.errorCounter.Add(ctx, 1)
			continue
		}

		if !queue.Push(recv.Frame()) {
			dropped := d.droppedFrames.Add(1)
			d.droppedCounter.Add(ctx, 1)

			if dropped == 1 || dropped%1000 == 0 {
				d.tel.LogWarn("receive queue full, dropping frames", "dropped_frames", dropped)
			}
		}
	}

	if err := recv.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		d.tel.LogError("receiver stopped", err)
	}
}

func (d *Driver) Send(frame can.Frame) error {
	d.mux.Lock()
	tx := d.tx
	d.mux.Unlock()

	if tx == nil {
		return ErrNotInitialized
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()

	return tx.TransmitFrame(ctx, frame)
}

// Recv pops the next frame read from the interface.
func (d *Driver) Recv(frame *can.Frame) bool {
	if d.queue == nil {
		return false
	}

	f, ok := d.queue.Pop()
	if !ok {
		return false
	}

	*frame = f
	return true
}

func (d *Driver) NowMs() uint32 {
	return uint32(time.Since(d.start).Milliseconds())
}

// DroppedFrames returns the number of frames lost because the queue was full.
func (d *Driver) DroppedFrames() uint64 {
	return d.droppedFrames.Load()
}

// ErrorFrames returns the number of error frames seen on the interface.
func (d *Driver) ErrorFrames() uint64 {
	return d.errorFrames.Load()
}

// Close closes the interface and waits for the reader to stop.
func (d *Driver) Close() error {
	d.mux.Lock()
	conn := d.conn
	d.conn = nil
	d.tx = nil
	d.mux.Unlock()

	if conn == nil {
		return nil
	}

	err := conn.Close()
	d.wg.Wait()

	return err
}
