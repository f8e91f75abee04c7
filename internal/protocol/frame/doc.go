// Package frame owns the serial wire format: control bytes, start-marked data
// frames and the pure byte-buffer parser used by the receive loop.
//
// Data frame layout:
//
//	SOF | LEN | TYPE | FUNC | DATA... | CHK
//
// LEN counts every byte after itself, CHK included. CHK is 0xff XOR'd with
// every byte from LEN through the last DATA byte.
package frame
