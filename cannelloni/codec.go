// Package cannelloni implements a CAN driver tunnelling frames over UDP
// with the cannelloni wire format.
package cannelloni

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.einride.tech/can"
)

const (
	frameVersion = 2
	opCodeData   = 0

	headerSize = 5

	// flags carried in the id field, as in the Linux can_id
	effFlag = 0x80000000
	rtrFlag = 0x40000000
	errFlag = 0x20000000

	canFDFlag = 0x80

	// maximum number of CAN 2.0 messages (8 bytes payload) that fit in a
	// single udp/ipv4/ethernet packet
	maxMessagesPerFrame = 113
)

var (
	ErrShortBuffer   = errors.New("cannelloni: not enough data")
	ErrUnknownOpCode = errors.New("cannelloni: unknown op code")
)

// Message is a single CAN message inside a cannelloni frame.
type Message struct {
	CANID      uint32
	DataLen    uint8
	CANFDFlags uint8
	IsCANFD    bool
	Data       [64]byte
}

// Frame is the payload of a cannelloni UDP datagram.
type Frame struct {
	Version        uint8
	OPCode         uint8
	SequenceNumber uint8
	Messages       []Message
}

// DecodeFrame decodes a datagram. Messages are appended to dst.Messages,
// which is reset first, so a frame can be reused between datagrams.
func DecodeFrame(buf []byte, dst *Frame) error {
	if len(buf) < headerSize {
		return ErrShortBuffer
	}

	dst.Version = buf[0]
	dst.OPCode = buf[1]
	dst.SequenceNumber = buf[2]
	messageCount := binary.BigEndian.Uint16(buf[3:5])

	if dst.OPCode != opCodeData {
		return fmt.Errorf("%w: %d", ErrUnknownOpCode, dst.OPCode)
	}

	dst.Messages = dst.Messages[:0]

	pos := headerSize
	for range messageCount {
		dst.Messages = append(dst.Messages, Message{})

		n, err := decodeMessage(buf[pos:], &dst.Messages[len(dst.Messages)-1])
		if err != nil {
			return err
		}

		pos += n
	}

	return nil
}

func decodeMessage(buf []byte, msg *Message) (int, error) {
	if len(buf) < 5 {
		return 0, ErrShortBuffer
	}

	n := 5

	msg.CANID = binary.BigEndian.Uint32(buf[0:4])

	dataLen := buf[4]
	if dataLen&canFDFlag != 0 {
		if len(buf) < 6 {
			return 0, ErrShortBuffer
		}

		msg.IsCANFD = true
		msg.DataLen = dataLen &^ canFDFlag
		msg.CANFDFlags = buf[5]
		n++
	} else {
		msg.DataLen = dataLen
	}

	if int(msg.DataLen) > len(msg.Data) {
		return 0, fmt.Errorf("cannelloni: invalid data length %d", msg.DataLen)
	}

	// remote frames carry a length but no data
	if msg.CANID&rtrFlag != 0 {
		return n, nil
	}

	if len(buf) < n+int(msg.DataLen) {
		return 0, ErrShortBuffer
	}

	copy(msg.Data[:msg.DataLen], buf[n:])
	n += int(msg.DataLen)

	return n, nil
}

// AppendFrame encodes the frame and appends it to buf.
func AppendFrame(buf []byte, f *Frame) []byte {
	buf = append(buf, f.Version, f.OPCode, f.SequenceNumber)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.Messages)))

	for idx := range f.Messages {
		buf = appendMessage(buf, &f.Messages[idx])
	}

	return buf
}

func appendMessage(buf []byte, msg *Message) []byte {
	buf = binary.BigEndian.AppendUint32(buf, msg.CANID)

	if msg.IsCANFD {
		buf = append(buf, msg.DataLen|canFDFlag, msg.CANFDFlags)
	} else {
		buf = append(buf, msg.DataLen)
	}

	if msg.CANID&rtrFlag != 0 {
		return buf
	}

	return append(buf, msg.Data[:msg.DataLen]...)
}

// IsError reports whether the message is an error frame.
func (m *Message) IsError() bool {
	return m.CANID&errFlag != 0
}

// ToCAN converts a classic message to a CAN frame.
// CAN FD payloads are truncated to 8 bytes.
func (m *Message) ToCAN() can.Frame {
	frame := can.Frame{
		IsExtended: m.CANID&effFlag != 0,
		IsRemote:   m.CANID&rtrFlag != 0,
		Length:     min(m.DataLen, 8),
	}

	if frame.IsExtended {
		frame.ID = m.CANID & 0x1FFFFFFF
	} else {
		frame.ID = m.CANID & 0x7FF
	}

	copy(frame.Data[:], m.Data[:frame.Length])

	return frame
}

// MessageFromCAN converts a CAN frame to a cannelloni message.
func MessageFromCAN(frame can.Frame) Message {
	msg := Message{
		CANID:   frame.ID,
		DataLen: frame.Length,
	}

	if frame.IsExtended {
		msg.CANID |= effFlag
	}

	if frame.IsRemote {
		msg.CANID |= rtrFlag
	}

	copy(msg.Data[:], frame.Data[:min(frame.Length, 8)])

	return msg
}
