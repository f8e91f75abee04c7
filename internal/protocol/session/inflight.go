package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/radioctl/internal/protocol/frame"
)

var (
	ErrRetriesExhausted = errors.New("session: retries exhausted")
	ErrTimeout          = errors.New("session: completion timeout")
	ErrCancelled        = errors.New("session: cancelled by shutdown")
	ErrBusy             = errors.New("session: message already in flight")
)

// State is the lifecycle position of the in-flight message.
type State int

const (
	StateIdle State = iota
	StateSent
	StateAwaitingAck
	StateAwaitingResponse
	StateSuccess
	StateFailed
	StateTimedOut
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateSent:             "sent",
	StateAwaitingAck:      "awaiting_ack",
	StateAwaitingResponse: "awaiting_response",
	StateSuccess:          "success",
	StateFailed:           "failed",
	StateTimedOut:         "timed_out",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Resolved reports whether s is terminal.
func (s State) Resolved() bool {
	return s >= StateSuccess
}

// Action is the wire reaction the receive loop must perform for one frame.
type Action int

const (
	ActionNone Action = iota
	// ActionRetry resends Decision.Payload.
	ActionRetry
	// ActionPropagate acknowledges the data frame and hands it to listeners.
	ActionPropagate
)

func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionPropagate:
		return "propagate"
	default:
		return "none"
	}
}

// Decision is the outcome of OnReceive.
type Decision struct {
	Action  Action
	Payload []byte
	Comment string
}

// Result is the terminal record of one message.
type Result struct {
	Message       *Message
	State         State
	Reply         frame.Frame
	Err           error
	Start         time.Time
	End           time.Time
	Retries       int
	Naks          int
	Collisions    int
	LastCollision time.Time
}

// Duration is the wall time between Start and resolution.
func (r Result) Duration() time.Duration {
	if r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Snapshot is a read-only view of the in-flight record.
type Snapshot struct {
	Node         NodeID
	Priority     Priority
	Payload      []byte
	State        State
	Start        time.Time
	LastActivity time.Time
	Retries      int
	Naks         int
	Collisions   int
}

type record struct {
	msg           *Message
	state         State
	start         time.Time
	end           time.Time
	lastActivity  time.Time
	retries       int
	naks          int
	collisions    int
	lastCollision time.Time
	reply         frame.Frame
	err           error
	done          chan struct{}
	activity      chan struct{}
}

func (r *record) touch(now time.Time) {
	r.lastActivity = now
	select {
	case r.activity <- struct{}{}:
	default:
	}
}

func (r *record) resolve(now time.Time, state State, reply frame.Frame, err error) {
	if r.state.Resolved() {
		return
	}
	r.state = state
	r.reply = reply
	r.err = err
	r.end = now
	close(r.done)
}

func (r *record) result() Result {
	return Result{
		Message:       r.msg,
		State:         r.state,
		Reply:         r.reply,
		Err:           r.err,
		Start:         r.start,
		End:           r.end,
		Retries:       r.retries,
		Naks:          r.naks,
		Collisions:    r.collisions,
		LastCollision: r.lastCollision,
	}
}

// Inflight tracks the single outstanding request. StartMessage is called by
// the transmit loop, OnReceive by the receive loop; one mutex serializes both.
type Inflight struct {
	mu         sync.Mutex
	maxRetries int
	timeout    time.Duration
	now        func() time.Time
	rec        *record
}

// NewInflight builds an idle state machine from cfg.
func NewInflight(cfg Config) *Inflight {
	cfg = cfg.WithDefaults()
	return &Inflight{
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.CompletionTimeout,
		now:        time.Now,
	}
}

// StartMessage moves Idle -> Sent. It returns false while another message
// is still in flight.
func (i *Inflight) StartMessage(msg *Message, now time.Time) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.rec != nil {
		return false
	}
	i.rec = &record{
		msg:          msg,
		state:        StateSent,
		start:        now,
		lastActivity: now,
		done:         make(chan struct{}),
		activity:     make(chan struct{}, 1),
	}
	return true
}

// Transmitted records that the payload left the driver: Sent -> AwaitingAck.
func (i *Inflight) Transmitted(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.rec == nil || i.rec.state != StateSent {
		return
	}
	i.rec.state = StateAwaitingAck
	i.rec.touch(now)
}

// Abort resolves the in-flight message as failed with err, e.g. after the
// write itself failed.
func (i *Inflight) Abort(now time.Time, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.rec == nil {
		return
	}
	i.rec.resolve(now, StateFailed, frame.Frame{}, err)
}

// OnReceive interprets one received frame against the in-flight message.
func (i *Inflight) OnReceive(now time.Time, f frame.Frame) Decision {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec := i.rec
	active := rec != nil && !rec.state.Resolved()

	if f.IsControl() {
		if !active {
			return Decision{Comment: "stray " + f.String()}
		}
		switch f.Lead() {
		case frame.ACK:
			return i.onAck(now, rec, f)
		case frame.NAK, frame.CAN:
			return i.onReject(now, rec, f.Lead())
		}
		return Decision{}
	}

	if active && rec.msg.Expect != nil && rec.msg.Expect(f) {
		rec.resolve(now, StateSuccess, f, nil)
		return Decision{Action: ActionPropagate, Comment: "reply"}
	}
	return Decision{Action: ActionPropagate, Comment: "unsolicited"}
}

func (i *Inflight) onAck(now time.Time, rec *record, f frame.Frame) Decision {
	if rec.state != StateSent && rec.state != StateAwaitingAck {
		return Decision{Comment: "unexpected ACK in " + rec.state.String()}
	}
	if rec.msg.Expect == nil {
		rec.resolve(now, StateSuccess, f, nil)
		return Decision{Comment: "ack, done"}
	}
	rec.state = StateAwaitingResponse
	rec.touch(now)
	return Decision{Comment: "ack, awaiting response"}
}

func (i *Inflight) onReject(now time.Time, rec *record, lead byte) Decision {
	if rec.state == StateAwaitingResponse {
		return Decision{Comment: "late reject ignored"}
	}
	cause := "nak"
	if lead == frame.CAN {
		rec.collisions++
		rec.lastCollision = now
		cause = "collision"
	} else {
		rec.naks++
	}
	if rec.retries >= i.maxRetries {
		rec.resolve(now, StateFailed, frame.Frame{}, ErrRetriesExhausted)
		return Decision{Comment: cause + ", retries exhausted"}
	}
	rec.retries++
	rec.state = StateAwaitingAck
	rec.touch(now)
	return Decision{
		Action:  ActionRetry,
		Payload: append([]byte(nil), rec.msg.Payload...),
		Comment: fmt.Sprintf("%s, retry %d/%d", cause, rec.retries, i.maxRetries),
	}
}

// WaitForCompletion blocks until the in-flight message resolves, then clears
// it and returns its Result. A silence longer than the completion timeout resolves
// the message as timed out, so Wait always returns.
func (i *Inflight) WaitForCompletion() Result {
	i.mu.Lock()
	rec := i.rec
	i.mu.Unlock()
	if rec == nil {
		return Result{State: StateIdle}
	}

	timer := time.NewTimer(i.timeout)
	defer timer.Stop()
	for done := false; !done; {
		select {
		case <-rec.done:
			done = true
		case <-rec.activity:
			timer.Reset(i.timeout)
		case <-timer.C:
			i.mu.Lock()
			rec.resolve(i.now(), StateTimedOut, frame.Frame{}, ErrTimeout)
			i.mu.Unlock()
			done = true
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	res := rec.result()
	if i.rec == rec {
		i.rec = nil
	}
	return res
}

// Message returns the in-flight message, or nil when idle.
func (i *Inflight) Message() *Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.rec == nil {
		return nil
	}
	return i.rec.msg
}

// Snapshot returns a copy of the in-flight record.
func (i *Inflight) Snapshot() (Snapshot, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.rec == nil {
		return Snapshot{}, false
	}
	r := i.rec
	return Snapshot{
		Node:         r.msg.Node(),
		Priority:     r.msg.Priority,
		Payload:      append([]byte(nil), r.msg.Payload...),
		State:        r.state,
		Start:        r.start,
		LastActivity: r.lastActivity,
		Retries:      r.retries,
		Naks:         r.naks,
		Collisions:   r.collisions,
	}, true
}
