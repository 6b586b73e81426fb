package dbc

// Payload bits are numbered little-endian: bit 0 is the least significant
// bit of byte 0, bit 63 the most significant bit of byte 7.

func packPayload(payload [8]byte) uint64 {
	var packed uint64
	for i := range 8 {
		packed |= uint64(payload[i]) << (8 * i)
	}
	return packed
}

func unpackPayload(packed uint64, payload *[8]byte) {
	for i := range 8 {
		payload[i] = byte(packed >> (8 * i))
	}
}

func bitMask(size int) uint64 {
	if size >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<size - 1
}

func getBits(payload [8]byte, start, size int) uint64 {
	return (packPayload(payload) >> start) & bitMask(size)
}

// setBits replaces the bits in [start, start+size) and leaves every
// other bit of the payload untouched.
func setBits(payload *[8]byte, start, size int, value uint64) {
	mask := bitMask(size)

	packed := packPayload(*payload)
	packed &^= mask << start
	packed |= (value & mask) << start

	unpackPayload(packed, payload)
}

// signExtend interprets the low size bits of u as a two's complement number.
func signExtend(u uint64, size int) int64 {
	if size >= 64 {
		return int64(u)
	}
	shift := 64 - size
	return int64(u<<shift) >> shift
}

// rawWidth returns the smallest integer container that holds size bits.
func rawWidth(size int) int {
	switch {
	case size <= 8:
		return 8
	case size <= 16:
		return 16
	case size <= 32:
		return 32
	default:
		return 64
	}
}

// zeroPad clears the bytes a frame of the given length did not carry.
func zeroPad(payload [8]byte, length uint8) [8]byte {
	for i := int(length); i < 8; i++ {
		payload[i] = 0
	}
	return payload
}
