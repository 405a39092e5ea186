package lwp3

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame size constraints.
const (
	// HubID is the only hub id used on a direct BLE link.
	HubID byte = 0x00

	// shortFrameMax is the largest total length that fits a 1-byte prefix.
	shortFrameMax = 0x7F

	// longFrameMax is the largest total length a 2-byte prefix can express.
	longFrameMax = 0x7FFF

	// commonHeader is hub id + message type, excluding the length prefix.
	commonHeader = 2
)

// Encode serialises a message into a complete frame.
//
// Parameters:
//   - m: Message to encode (any variant defined in this package)
//
// Returns:
//   - []byte: Frame including length prefix and common header
//   - error: ErrInvalidMessage if a field cannot be represented
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	payload, err := m.appendPayload(nil)
	if err != nil {
		return nil, err
	}

	total := len(payload) + commonHeader + 1
	prefix := 1
	if total > shortFrameMax {
		total++
		prefix = 2
	}
	if total > longFrameMax {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds %d", ErrInvalidMessage, total, longFrameMax)
	}

	frame := make([]byte, 0, total)
	if prefix == 1 {
		frame = append(frame, byte(total))
	} else {
		frame = append(frame, byte(total&0x7F)|0x80, byte(total>>7)) //nolint:mnd // 7-bit length groups
	}
	frame = append(frame, HubID, byte(m.MessageType()))
	return append(frame, payload...), nil
}

// Decode parses one frame into a typed message.
//
// Bytes beyond the declared frame length are ignored. Decode never panics;
// every failure wraps ErrMalformed.
//
// Parameters:
//   - b: Raw notification payload
//
// Returns:
//   - Message: Decoded message (pointer to one of the variant types)
//   - error: ErrMalformed (or ErrUnknownType) on failure
func Decode(b []byte) (Message, error) {
	length, prefix, err := readLength(b)
	if err != nil {
		return nil, err
	}
	if length < prefix+commonHeader {
		return nil, fmt.Errorf("%w: declared length %d below header size", ErrMalformed, length)
	}
	if len(b) < length {
		return nil, fmt.Errorf("%w: have %d bytes, declared %d", ErrMalformed, len(b), length)
	}

	mt := MessageType(b[prefix+1])
	decode, ok := decoders[mt]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, uint8(mt))
	}

	r := &reader{buf: b[prefix+commonHeader : length]}
	msg := decode(r)
	if r.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, mt, r.err)
	}
	return msg, nil
}

// PeekType returns the message type of a frame without decoding the payload.
func PeekType(b []byte) (MessageType, error) {
	_, prefix, err := readLength(b)
	if err != nil {
		return 0, err
	}
	if len(b) < prefix+commonHeader {
		return 0, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	return MessageType(b[prefix+1]), nil
}

func readLength(b []byte) (length, prefix int, err error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), 1, nil
	}
	if len(b) < 2 { //nolint:mnd // long length prefix
		return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrMalformed)
	}
	return int(b[0]&0x7F) | int(b[1])<<7, 2, nil //nolint:mnd // 7-bit length groups
}

// reader consumes a payload, recording the first short read.
// After an error every accessor returns zero values.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = fmt.Errorf("need %d bytes, have %d", n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil { //nolint:mnd // uint16
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil { //nolint:mnd // uint32
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

// rest returns a copy of the remaining bytes, nil when none remain.
func (r *reader) rest() []byte {
	if r.err != nil || len(r.buf) == 0 {
		return nil
	}
	b := make([]byte, len(r.buf))
	copy(b, r.buf)
	r.buf = nil
	return b
}

// end fails the read if unconsumed bytes remain.
func (r *reader) end() {
	if r.err == nil && len(r.buf) != 0 {
		r.err = fmt.Errorf("%d unexpected trailing bytes", len(r.buf))
	}
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func appendU16(b []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(b, v) }

func appendU32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }

func appendF32(b []byte, v float32) []byte { return appendU32(b, math.Float32bits(v)) }
