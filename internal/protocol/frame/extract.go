package frame

import "errors"

// Extract parses the first frame out of buf without retaining buf.
//
// On success it returns the frame and the number of bytes it occupied. When
// more bytes are needed it returns ErrIncomplete and consumes nothing. Any
// other error consumes exactly one byte: the caller drops it and re-scans, so a
// corrupted frame can never swallow the start of the next one.
func Extract(buf []byte) (Frame, int, error) {
	if len(buf) == 0 {
		return Frame{}, 0, ErrIncomplete
	}
	lead := buf[0]
	if isControl(lead) {
		return Control(lead), 1, nil
	}
	if lead != SOF {
		return Frame{}, 1, ErrUnexpectedByte
	}
	if len(buf) < Overhead {
		return Frame{}, 0, ErrIncomplete
	}
	n := int(buf[1])
	if n < MinLength {
		return Frame{}, 1, ErrInvalidLength
	}
	total := n + Overhead
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}
	if Checksum(buf[1:total-1]) != buf[total-1] {
		return Frame{}, 1, ErrBadChecksum
	}
	return FromBytes(buf[:total]), total, nil
}

// NeedsNak reports whether a parse error must be answered with a NAK so the
// peer retransmits.
func NeedsNak(err error) bool {
	return errors.Is(err, ErrBadChecksum) || errors.Is(err, ErrInvalidLength)
}
