package cannelloni

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func Test_DecodeFrame(t *testing.T) {
	assert := assert.New(t)

	buf := getCannelloniEncodedFrame(3)

	frame := Frame{}
	require.NoError(t, DecodeFrame(buf, &frame))

	assert.Equal(uint8(frameVersion), frame.Version)
	assert.Equal(uint8(7), frame.SequenceNumber)
	require.Len(t, frame.Messages, 3)

	for idx, msg := range frame.Messages {
		assert.Equal(uint32(idx), msg.CANID)
		assert.Equal(uint8(8), msg.DataLen)
		assert.Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}, msg.Data[:msg.DataLen])
	}

	// the frame is reused
	require.NoError(t, DecodeFrame(getCannelloniEncodedFrame(1), &frame))
	assert.Len(frame.Messages, 1)
}

func Test_DecodeFrame_invalid(t *testing.T) {
	assert := assert.New(t)

	frame := Frame{}

	assert.ErrorIs(DecodeFrame([]byte{2, 0, 0}, &frame), ErrShortBuffer)

	// truncated payload
	buf := getCannelloniEncodedFrame(2)
	assert.ErrorIs(DecodeFrame(buf[:len(buf)-3], &frame), ErrShortBuffer)

	// more messages declared than present
	buf = getCannelloniEncodedFrame(2)
	binary.BigEndian.PutUint16(buf[3:5], 5)
	assert.ErrorIs(DecodeFrame(buf, &frame), ErrShortBuffer)

	buf = getCannelloniEncodedFrame(1)
	buf[1] = 1
	assert.ErrorIs(DecodeFrame(buf, &frame), ErrUnknownOpCode)

	// data length larger than a CAN FD payload
	buf = getCannelloniEncodedFrame(1)
	buf[9] = 0x80 | 65
	buf = append(buf[:10], make([]byte, 70)...)
	assert.Error(DecodeFrame(buf, &frame))
}

func Test_AppendFrame(t *testing.T) {
	assert := assert.New(t)

	in := Frame{
		Version:        frameVersion,
		OPCode:         opCodeData,
		SequenceNumber: 42,
		Messages: []Message{
			MessageFromCAN(can.Frame{ID: 0x510, Length: 3, Data: can.Data{1, 2, 3}}),
			MessageFromCAN(can.Frame{ID: 0x18FF50E5, IsExtended: true, Length: 8, Data: can.Data{8, 7, 6, 5, 4, 3, 2, 1}}),
			MessageFromCAN(can.Frame{ID: 0x100, IsRemote: true, Length: 2}),
			{CANID: 0x123, DataLen: 12, IsCANFD: true, CANFDFlags: 0x01, Data: [64]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		},
	}

	buf := AppendFrame(nil, &in)
	// header, 3+8 byte payloads, remote frame without data, FD flags byte
	assert.Len(buf, 5+(5+3)+(5+8)+5+(6+12))

	out := Frame{}
	require.NoError(t, DecodeFrame(buf, &out))
	assert.Equal(in, out)

	std := out.Messages[0].ToCAN()
	assert.Equal(can.Frame{ID: 0x510, Length: 3, Data: can.Data{1, 2, 3}}, std)

	ext := out.Messages[1].ToCAN()
	assert.True(ext.IsExtended)
	assert.Equal(uint32(0x18FF50E5), ext.ID)

	rtr := out.Messages[2].ToCAN()
	assert.True(rtr.IsRemote)
	assert.Equal(uint32(0x100), rtr.ID)

	fd := out.Messages[3].ToCAN()
	assert.Equal(uint8(8), fd.Length)
	assert.Equal(can.Data{1, 2, 3, 4, 5, 6, 7, 8}, fd.Data)
}

func Test_Driver_notInitialized(t *testing.T) {
	assert := assert.New(t)

	d := New(nil)

	assert.ErrorIs(d.Send(can.Frame{ID: 0x100}), ErrNotInitialized)

	frame := can.Frame{}
	assert.False(d.Recv(&frame))
	assert.False(d.LocalAddr().IsValid())
	assert.NoError(d.Close())
}

func Test_Driver_reinit(t *testing.T) {
	assert := assert.New(t)

	cfg := &Config{
		ListenAddr:   "127.0.0.1:0",
		RemoteAddr:   "127.0.0.1:9",
		QueueSize:    16,
		WriteTimeout: time.Second,
	}
	d := New(cfg)
	require.NoError(t, d.Init(t.Context(), 1_000_000))
	defer d.Close()

	// bind again on the port picked by the first init
	addr := d.LocalAddr()
	cfg.ListenAddr = addr.String()

	require.NoError(t, d.Init(t.Context(), 1_000_000))
	assert.Equal(addr, d.LocalAddr())
}

func Test_Driver_loopback(t *testing.T) {
	assert := assert.New(t)

	rx := New(&Config{
		ListenAddr:   "127.0.0.1:0",
		RemoteAddr:   "127.0.0.1:9",
		QueueSize:    16,
		WriteTimeout: time.Second,
	})
	require.NoError(t, rx.Init(t.Context(), 1_000_000))
	defer rx.Close()

	tx := New(&Config{
		ListenAddr:   "127.0.0.1:0",
		RemoteAddr:   rx.LocalAddr().String(),
		QueueSize:    16,
		WriteTimeout: time.Second,
	})
	require.NoError(t, tx.Init(t.Context(), 1_000_000))
	defer tx.Close()

	frames := []can.Frame{
		{ID: 0x2A1, Length: 5, Data: can.Data{100, 50, 60, 70, 80}},
		{ID: 0x1ABCDE, IsExtended: true, Length: 1, Data: can.Data{0xFF}},
	}
	for _, f := range frames {
		require.NoError(t, tx.Send(f))
	}

	received := []can.Frame{}
	require.Eventually(t, func() bool {
		frame := can.Frame{}
		for rx.Recv(&frame) {
			received = append(received, frame)
		}
		return len(received) == len(frames)
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(frames, received)
	assert.Zero(rx.InvalidDatagrams())
	assert.Zero(rx.DroppedFrames())
}

func Benchmark_DecodeFrame(b *testing.B) {
	b.ReportAllocs()

	buf := getCannelloniEncodedFrame(maxMessagesPerFrame)
	frame := Frame{Messages: make([]Message, 0, maxMessagesPerFrame)}

	b.ResetTimer()
	for b.Loop() {
		if err := DecodeFrame(buf, &frame); err != nil {
			b.Fatal(err)
		}
	}
}

func getCannelloniEncodedFrame(msgNum int) []byte {
	buf := make([]byte, 5)

	buf[0] = frameVersion
	buf[1] = opCodeData
	buf[2] = 7
	binary.BigEndian.PutUint16(buf[3:5], uint16(msgNum))

	for canID := range msgNum {
		msgBuf := make([]byte, 13)

		binary.BigEndian.PutUint32(msgBuf[0:4], uint32(canID))
		msgBuf[4] = 8

		data := []byte{0x1, 0x2, 0x3, 0x4, 0x5, 0x6, 0x7, 0x8}

		for idx, tmpData := range data {
			msgBuf[5+idx] = tmpData
		}

		buf = append(buf, msgBuf...)
	}

	return buf
}
