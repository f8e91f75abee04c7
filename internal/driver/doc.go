// Package driver serves one half-duplex controller link.
//
// Three supervised loops share the channel. The transmit loop dequeues one
// message at a time from the outbound queue, writes it and blocks until the
// in-flight state machine resolves it. The receive loop is the only reader:
// it extracts frames, lets the state machine decide the wire reaction and
// queues data frames for delivery. The forward loop hands those frames to
// listeners so a slow listener never stalls reception.
//
// Every write passes through one mutex. At most one message is in flight.
package driver
