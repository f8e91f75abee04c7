// Package queue provides the driver's two blocking handoff structures: the
// outbound priority queue with per-destination fairness and the unbounded
// inbound FIFO feeding listeners.
package queue
