package frame

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Wire control bytes. These must match the physical protocol exactly.
const (
	SOF byte = 0x01
	ACK byte = 0x06
	NAK byte = 0x15
	CAN byte = 0x18
)

// Data frame types.
const (
	TypeRequest  byte = 0x00
	TypeResponse byte = 0x01
)

const (
	// MinLength is the smallest legal LEN byte: TYPE, FUNC and CHK.
	MinLength = 3
	// Overhead is the number of bytes not counted by LEN (SOF and LEN itself).
	Overhead = 2
)

var (
	ErrIncomplete     = errors.New("frame: incomplete")
	ErrBadChecksum    = errors.New("frame: bad checksum")
	ErrInvalidLength  = errors.New("frame: invalid length")
	ErrUnexpectedByte = errors.New("frame: unexpected leading byte")
)

var (
	rawACK = []byte{ACK}
	rawNAK = []byte{NAK}
	rawCAN = []byte{CAN}
)

// Frame is one complete unit read from or written to the channel: either a
// single control byte or a start-marked data frame.
type Frame struct {
	raw []byte
}

// FromBytes wraps raw bytes without validation. The slice is copied.
func FromBytes(b []byte) Frame {
	return Frame{raw: append([]byte(nil), b...)}
}

// Control returns the one-byte control frame for ACK, NAK or CAN.
func Control(b byte) Frame {
	return Frame{raw: []byte{b}}
}

func (f Frame) IsZero() bool { return len(f.raw) == 0 }

// IsControl reports whether f is a single ACK/NAK/CAN byte.
func (f Frame) IsControl() bool {
	return len(f.raw) == 1 && isControl(f.raw[0])
}

// IsData reports whether f is a start-marked data frame.
func (f Frame) IsData() bool {
	return len(f.raw) >= MinLength+Overhead && f.raw[0] == SOF
}

// Lead returns the first byte of the frame, or 0 for the zero Frame.
func (f Frame) Lead() byte {
	if len(f.raw) == 0 {
		return 0
	}
	return f.raw[0]
}

func (f Frame) Type() byte {
	if !f.IsData() {
		return 0
	}
	return f.raw[2]
}

func (f Frame) Func() byte {
	if !f.IsData() {
		return 0
	}
	return f.raw[3]
}

// Data returns the parameter bytes between FUNC and CHK.
func (f Frame) Data() []byte {
	if !f.IsData() {
		return nil
	}
	return f.raw[4 : len(f.raw)-1]
}

// Bytes returns the raw wire bytes. Callers must not modify the result.
func (f Frame) Bytes() []byte { return f.raw }

func (f Frame) Len() int { return len(f.raw) }

func (f Frame) String() string {
	switch {
	case len(f.raw) == 0:
		return "<none>"
	case f.IsControl():
		return controlName(f.raw[0])
	case f.IsData():
		kind := "REQ"
		if f.Type() == TypeResponse {
			kind = "RES"
		}
		return fmt.Sprintf("%s func=0x%02x data=[%s]", kind, f.Func(), hex.EncodeToString(f.Data()))
	default:
		return hex.EncodeToString(f.raw)
	}
}

// Checksum computes the trailing check byte over LEN..last DATA byte.
func Checksum(b []byte) byte {
	c := byte(0xff)
	for _, v := range b {
		c ^= v
	}
	return c
}

// Encode builds a checksummed data frame.
func Encode(typ, fn byte, data []byte) []byte {
	n := len(data) + MinLength
	if n > 0xff {
		panic(fmt.Sprintf("frame: payload too large: %d", len(data)))
	}
	out := make([]byte, 0, n+Overhead)
	out = append(out, SOF, byte(n), typ, fn)
	out = append(out, data...)
	out = append(out, Checksum(out[1:]))
	return out
}

// Request is shorthand for Encode(TypeRequest, fn, data).
func Request(fn byte, data ...byte) []byte {
	return Encode(TypeRequest, fn, data)
}

// Response is shorthand for Encode(TypeResponse, fn, data).
func Response(fn byte, data ...byte) []byte {
	return Encode(TypeResponse, fn, data)
}

// RawACK, RawNAK and RawCAN return fresh single-byte control payloads.
func RawACK() []byte { return append([]byte(nil), rawACK...) }
func RawNAK() []byte { return append([]byte(nil), rawNAK...) }
func RawCAN() []byte { return append([]byte(nil), rawCAN...) }

func isControl(b byte) bool {
	return b == ACK || b == NAK || b == CAN
}

func controlName(b byte) string {
	switch b {
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case CAN:
		return "CAN"
	default:
		return fmt.Sprintf("0x%02x", b)
	}
}
