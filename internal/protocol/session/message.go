package session

import (
	"fmt"

	"github.com/danmuck/radioctl/internal/protocol/frame"
)

// NodeID addresses one mesh peer. NoNode marks controller-local traffic.
type NodeID int

const NoNode NodeID = -1

// Level is the scheduling class of an outbound message. Lower sorts first.
type Level int

const (
	// LevelExpedited carries control-plane traffic in strict arrival order.
	LevelExpedited Level = 1
	// LevelHigh and LevelLow are round-robin balanced across destinations.
	LevelHigh Level = 2
	LevelLow  Level = 3
	// LevelBarrier sorts after all traffic; used for flush and shutdown markers.
	LevelBarrier Level = 1000
)

// Fair reports whether the level is scheduled round-robin per destination.
func (l Level) Fair() bool {
	return l == LevelHigh || l == LevelLow
}

// Routable reports whether callers may submit traffic at l. LevelBarrier is
// reserved for the driver's own markers.
func (l Level) Routable() bool {
	return l == LevelExpedited || l.Fair()
}

func (l Level) String() string {
	switch l {
	case LevelExpedited:
		return "expedited"
	case LevelHigh:
		return "high"
	case LevelLow:
		return "low"
	case LevelBarrier:
		return "barrier"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Priority is the queue ordering key. Seq is assigned by the queue on Put.
type Priority struct {
	Level Level
	Seq   uint64
	Node  NodeID
}

// Less orders by level, then fairness sequence, then destination.
func (p Priority) Less(o Priority) bool {
	if p.Level != o.Level {
		return p.Level < o.Level
	}
	if p.Seq != o.Seq {
		return p.Seq < o.Seq
	}
	return p.Node < o.Node
}

// ControllerPriority is used for controller-local commands.
func ControllerPriority() Priority {
	return Priority{Level: LevelExpedited, Node: NoNode}
}

func NodePriorityHi(n NodeID) Priority {
	return Priority{Level: LevelHigh, Node: n}
}

func NodePriorityLo(n NodeID) Priority {
	return Priority{Level: LevelLow, Node: n}
}

// LowestPriority sorts after every regular message.
func LowestPriority() Priority {
	return Priority{Level: LevelBarrier, Node: NoNode}
}

func (p Priority) String() string {
	return fmt.Sprintf("%s/%d/%d", p.Level, p.Seq, p.Node)
}

// Callback receives the terminal outcome of a message exactly once. reply is
// the frame that resolved the message on success and the zero Frame otherwise.
type Callback func(reply frame.Frame, err error)

// ReplyMatcher reports whether a received data frame answers the in-flight
// message.
type ReplyMatcher func(frame.Frame) bool

// Message is one outbound request. It must not be modified after Submit.
type Message struct {
	Priority Priority
	Payload  []byte
	Callback Callback
	// Expect, when set, keeps the message in flight after the ACK until a
	// matching data frame arrives.
	Expect ReplyMatcher
}

// Node returns the destination carried by the priority.
func (m *Message) Node() NodeID { return m.Priority.Node }

// IsBarrier reports whether the message carries no payload and therefore
// never reaches the wire.
func (m *Message) IsBarrier() bool { return len(m.Payload) == 0 }

func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	if m.IsBarrier() {
		return fmt.Sprintf("barrier prio=%s", m.Priority)
	}
	f, _, err := frame.Extract(m.Payload)
	if err != nil {
		return fmt.Sprintf("raw[% x] prio=%s", m.Payload, m.Priority)
	}
	return fmt.Sprintf("%s prio=%s", f, m.Priority)
}

// ExpectResponse matches a RESPONSE frame carrying function fn.
func ExpectResponse(fn byte) ReplyMatcher {
	return func(f frame.Frame) bool {
		return f.IsData() && f.Type() == frame.TypeResponse && f.Func() == fn
	}
}

// ExpectRequest matches an unsolicited REQUEST frame carrying function fn,
// as used by asynchronous completion reports.
func ExpectRequest(fn byte) ReplyMatcher {
	return func(f frame.Frame) bool {
		return f.IsData() && f.Type() == frame.TypeRequest && f.Func() == fn
	}
}
