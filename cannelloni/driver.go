package cannelloni

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/acmedash/internal"
	"github.com/squadracorsepolito/acmedash/internal/rb"
	"go.einride.tech/can"
	"go.opentelemetry.io/otel/metric"
)

const defaultUDPPayloadSize = 1474

// ErrNotInitialized is returned by Send before a successful Init.
var ErrNotInitialized = errors.New("cannelloni: driver not initialized")

// Driver exchanges CAN frames with a cannelloni peer over UDP.
// Every sent frame travels in its own datagram.
type Driver struct {
	tel *internal.Telemetry
	cfg *Config

	start time.Time

	mux    sync.Mutex
	conn   *net.UDPConn
	remote netip.AddrPort
	seq    uint8
	txBuf  []byte
	txMsg  Frame

	queue *rb.SPSC[can.Frame]
	wg    sync.WaitGroup

	receivedBytes  atomic.Uint64
	droppedFrames  atomic.Uint64
	invalidFrames  atomic.Uint64
	droppedCounter metric.Int64Counter
	invalidCounter metric.Int64Counter
	bytesCounter   metric.Int64Counter
}

func New(cfg *Config) *Driver {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	tel := internal.NewTelemetry("cannelloni", cfg.ListenAddr)

	return &Driver{
		tel: tel,
		cfg: cfg,

		start: time.Now(),

		txBuf: make([]byte, 0, defaultUDPPayloadSize),
		txMsg: Frame{
			Version:  frameVersion,
			OPCode:   opCodeData,
			Messages: make([]Message, 1),
		},

		droppedCounter: tel.NewCounter("dropped_frames"),
		invalidCounter: tel.NewCounter("invalid_datagrams"),
		bytesCounter:   tel.NewCounter("received_bytes"),
	}
}

// Init binds the listen address and starts the reader.
// The baud rate belongs to the remote end of the tunnel and is ignored.
func (d *Driver) Init(_ context.Context, baudRate uint32) error {
	listenAddr, err := netip.ParseAddrPort(d.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("cannelloni listen address: %w", err)
	}

	remoteAddr, err := netip.ParseAddrPort(d.cfg.RemoteAddr)
	if err != nil {
		return fmt.Errorf("cannelloni remote address: %w", err)
	}

	// release the previous socket, it may hold the same address
	d.Close()

	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(listenAddr))
	if err != nil {
		return err
	}

	d.mux.Lock()
	d.conn = conn
	d.remote = remoteAddr
	d.queue = rb.NewSPSC[can.Frame](d.cfg.QueueSize)
	d.mux.Unlock()

	d.wg.Add(1)
	go d.runReader(conn, d.queue)

	d.tel.LogInfo("tunnel opened", "listen_addr", conn.LocalAddr().String(), "remote_addr", remoteAddr.String(), "baud_rate", baudRate)

	return nil
}

func (d *Driver) runReader(conn *net.UDPConn, queue *rb.SPSC[can.Frame]) {
	defer d.wg.Done()

	ctx := context.Background()

	buf := make([]byte, defaultUDPPayloadSize)
	frame := Frame{Messages: make([]Message, 0, maxMessagesPerFrame)}

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.tel.LogError("failed to read connection", err)
			}
			return
		}

		d.receivedBytes.Add(uint64(n))
		d.bytesCounter.Add(ctx, int64(n))

		if err := DecodeFrame(buf[:n], &frame); err != nil {
			invalid := d.invalidFrames.Add(1)
			d.invalidCounter.Add(ctx, 1)

			if invalid == 1 || invalid%100 == 0 {
				d.tel.LogWarn("invalid datagram", "reason", err.Error(), "invalid_datagrams", invalid)
			}

			continue
		}

		for idx := range frame.Messages {
			msg := &frame.Messages[idx]
			if msg.IsError() {
				continue
			}

			if !queue.Push(msg.ToCAN()) {
				dropped := d.droppedFrames.Add(1)
				d.droppedCounter.Add(ctx, 1)

				if dropped == 1 || dropped%1000 == 0 {
					d.tel.LogWarn("receive queue full, dropping frames", "dropped_frames", dropped)
				}
			}
		}
	}
}

func (d *Driver) Send(frame can.Frame) error {
	d.mux.Lock()
	defer d.mux.Unlock()

	if d.conn == nil {
		return ErrNotInitialized
	}

	d.txMsg.SequenceNumber = d.seq
	d.txMsg.Messages[0] = MessageFromCAN(frame)
	d.txBuf = AppendFrame(d.txBuf[:0], &d.txMsg)

	if err := d.conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout)); err != nil {
		return err
	}

	if _, err := d.conn.WriteToUDPAddrPort(d.txBuf, d.remote); err != nil {
		return err
	}

	d.seq++

	return nil
}

// Recv pops the next frame received from the tunnel.
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

// LocalAddr returns the bound address, or an invalid one before Init.
func (d *Driver) LocalAddr() netip.AddrPort {
	d.mux.Lock()
	defer d.mux.Unlock()

	if d.conn == nil {
		return netip.AddrPort{}
	}

	return d.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// DroppedFrames returns the number of frames lost because the queue was full.
func (d *Driver) DroppedFrames() uint64 {
	return d.droppedFrames.Load()
}

// InvalidDatagrams returns the number of datagrams that failed to decode.
func (d *Driver) InvalidDatagrams() uint64 {
	return d.invalidFrames.Load()
}

// Close closes the socket and waits for the reader to stop.
func (d *Driver) Close() error {
	d.mux.Lock()
	conn := d.conn
	d.conn = nil
	d.mux.Unlock()

	if conn == nil {
		return nil
	}

	err := conn.Close()
	d.wg.Wait()

	return err
}
