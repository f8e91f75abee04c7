// Package session owns the single-outstanding request protocol.
//
// Ownership boundary:
// - message and priority descriptors
// - the in-flight state machine (ack/nak/collision/retry/timeout)
// - protocol timing config and supervision backoff
//
// At most one message is ever in flight. StartMessage refuses a second message
// until WaitForCompletion has returned the first one's Result.
package session
