package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/radioctl/internal/history"
	"github.com/danmuck/radioctl/internal/observability"
	"github.com/danmuck/radioctl/internal/protocol/frame"
	"github.com/danmuck/radioctl/internal/protocol/session"
	"github.com/danmuck/radioctl/internal/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrTerminated = errors.New("driver: terminated")
	ErrDesync     = errors.New("driver: receive buffer desynchronized")
	ErrNilChannel = errors.New("driver: nil channel")
	ErrNilMessage = errors.New("driver: nil message")

	ErrInvalidPriority = errors.New("driver: invalid priority level")
)

// Channel is the byte stream to the controller. Read must return within a
// short bounded time and may return (0, nil) when nothing arrived.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
}

// Discarder is implemented by channels that can drop unread input.
type Discarder interface {
	Discard() error
}

// Listener receives every inbound data frame in arrival order.
type Listener interface {
	Put(at time.Time, f frame.Frame)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(at time.Time, f frame.Frame)

func (fn ListenerFunc) Put(at time.Time, f frame.Frame) { fn(at, f) }

type inbound struct {
	at   time.Time
	f    frame.Frame
	stop bool
}

type Option func(*Driver)

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

func WithListener(l Listener) Option {
	return func(d *Driver) { d.listeners = append(d.listeners, l) }
}

// Driver owns the channel and the three worker loops that serve it.
type Driver struct {
	cfg    session.Config
	ch     Channel
	logger zerolog.Logger

	sendMu sync.Mutex

	inflight *session.Inflight
	outbound *queue.Outbound
	inbox    *queue.FIFO[inbound]
	history  *history.Store
	trace    *history.Trace

	lmu       sync.RWMutex
	listeners []Listener

	// admit guards closing so that every accepted Submit is queued ahead of
	// the shutdown barrier.
	admit      sync.RWMutex
	closing    bool
	terminated atomic.Bool
	restarts   atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// New clears the controller's receive state and starts the worker loops.
func New(ch Channel, cfg session.Config, opts ...Option) (*Driver, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	cfg = cfg.WithDefaults()
	d := &Driver{
		cfg:      cfg,
		ch:       ch,
		logger:   log.Logger.With().Str("component", "driver").Logger(),
		inflight: session.NewInflight(cfg),
		outbound: queue.NewOutbound(),
		inbox:    queue.NewFIFO[inbound](),
		history:  history.NewStore(cfg.HistorySize),
		trace:    history.NewTrace(cfg.TraceSize),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	observability.RegisterMetrics()

	if err := d.clear(); err != nil {
		return nil, fmt.Errorf("driver: clear channel: %w", err)
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(3)
	go d.supervise("transmit", d.transmitLoop)
	go d.supervise("receive", d.receiveLoop)
	go d.supervise("forward", d.forwardLoop)
	d.logger.Info().
		Int("max_retries", cfg.MaxRetries).
		Dur("completion_timeout", cfg.CompletionTimeout).
		Msg("driver started")
	return d, nil
}

// clear resets a controller that may be mid-frame from a previous session.
func (d *Driver) clear() error {
	for i := 0; i < 3; i++ {
		if err := d.write(frame.RawNAK(), "clear"); err != nil {
			return err
		}
	}
	if err := d.ch.Flush(); err != nil {
		return err
	}
	if dc, ok := d.ch.(Discarder); ok {
		return dc.Discard()
	}
	return nil
}

// write sends b as one unit. The debug record and the write happen in the
// same critical section so the log mirrors wire order.
func (d *Driver) write(b []byte, comment string) error {
	d.sendMu.Lock()
	defer d.sendMu.Unlock()
	d.logger.Debug().Hex("bytes", b).Str("comment", comment).Msg("tx")
	n, err := d.ch.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := d.ch.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	d.trace.Add(time.Now(), history.DirTx, b, comment)
	return nil
}

// Submit queues msg for transmission under msg.Priority and returns at once.
// The callback fires exactly once unless Submit returns an error. Levels
// outside session.Level.Routable are rejected with ErrInvalidPriority.
func (d *Driver) Submit(msg *session.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	if !msg.Priority.Level.Routable() {
		return fmt.Errorf("%w: %s", ErrInvalidPriority, msg.Priority.Level)
	}
	return d.enqueue(msg)
}

// enqueue admits msg at any level, including the barrier level.
func (d *Driver) enqueue(msg *session.Message) error {
	d.admit.RLock()
	defer d.admit.RUnlock()
	if d.closing {
		return ErrTerminated
	}
	prio := d.outbound.Put(msg.Priority, msg)
	observability.SetQueueDepth(d.outbound.Len())
	d.logger.Trace().Str("priority", prio.String()).Msg("queued")
	return nil
}

// Send submits payload and blocks until it resolves or ctx ends. A ctx
// expiry does not withdraw the message.
func (d *Driver) Send(ctx context.Context, prio session.Priority, payload []byte, expect session.ReplyMatcher) (frame.Frame, error) {
	type outcome struct {
		reply frame.Frame
		err   error
	}
	done := make(chan outcome, 1)
	err := d.Submit(&session.Message{
		Priority: prio,
		Payload:  payload,
		Expect:   expect,
		Callback: func(reply frame.Frame, err error) {
			done <- outcome{reply: reply, err: err}
		},
	})
	if err != nil {
		return frame.Frame{}, err
	}
	select {
	case out := <-done:
		return out.reply, out.err
	case <-ctx.Done():
		return frame.Frame{}, ctx.Err()
	}
}

// WaitForQuiescence returns once every message submitted before the call
// has resolved.
func (d *Driver) WaitForQuiescence(ctx context.Context) error {
	done := make(chan struct{})
	err := d.enqueue(&session.Message{
		Priority: session.LowestPriority(),
		Callback: func(frame.Frame, error) { close(done) },
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate lets every accepted message resolve, then stops the worker loops
// and waits for them to exit. Submit fails with ErrTerminated from the first
// call on. If ctx ends first the loops are forced down, messages still queued
// once they exit are resolved with session.ErrCancelled, and ctx's error is
// returned. Terminate is safe to call more than once.
func (d *Driver) Terminate(ctx context.Context) error {
	d.admit.Lock()
	first := !d.closing
	d.closing = true
	d.admit.Unlock()

	if first {
		d.logger.Info().Msg("terminating")
		// the barrier resolves after every accepted message, so listeners
		// still see replies that arrive while the queue drains
		d.outbound.Put(session.LowestPriority(), &session.Message{
			Priority: session.LowestPriority(),
			Callback: func(frame.Frame, error) {
				d.terminated.Store(true)
				d.inbox.Put(inbound{stop: true})
				d.cancel()
			},
		})
		go func() {
			d.wg.Wait()
			d.cancelQueued()
			d.stopOnce.Do(func() { close(d.stopped) })
		}()
	}

	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		d.logger.Warn().Err(ctx.Err()).Msg("terminate deadline reached, forcing loops down")
		d.terminated.Store(true)
		d.cancel()
		return ctx.Err()
	}
}

// Done is closed once every worker loop has exited.
func (d *Driver) Done() <-chan struct{} {
	return d.stopped
}

func (d *Driver) cancelQueued() {
	n := 0
	for {
		msg, _, ok := d.outbound.TryGet()
		if !ok {
			break
		}
		n++
		d.complete(msg, frame.Frame{}, session.ErrCancelled)
	}
	observability.SetQueueDepth(0)
	if n > 0 {
		d.logger.Warn().Int("count", n).Msg("cancelled queued messages")
	}
}

// stopping reports whether the loops should wind down.
func (d *Driver) stopping() bool {
	return d.terminated.Load() || d.ctx.Err() != nil
}

// complete invokes msg's callback, isolating the loop from its panics.
func (d *Driver) complete(msg *session.Message, reply frame.Frame, err error) {
	if msg == nil || msg.Callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("message", msg.String()).Msg("callback panicked")
		}
	}()
	msg.Callback(reply, err)
}

func (d *Driver) AddListener(l Listener) {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Inflight returns a snapshot of the message currently on the wire.
func (d *Driver) Inflight() (session.Snapshot, bool) {
	return d.inflight.Snapshot()
}

func (d *Driver) HasInflight() bool {
	return d.inflight.Message() != nil
}

// History returns up to limit of the most recently resolved transactions.
func (d *Driver) History(limit int) []history.Entry {
	return d.history.Recent(limit)
}

// Trace returns up to limit of the most recent raw wire records.
func (d *Driver) Trace(limit int) []history.Record {
	return d.trace.Recent(limit)
}

func (d *Driver) QueueSize() int {
	return d.outbound.Len()
}

func (d *Driver) QueueSizeForNode(n session.NodeID) int {
	return d.outbound.LenForNode(n)
}

func (d *Driver) QueueDepths() []queue.NodeDepth {
	return d.outbound.Depths()
}

// Stats is the aggregate diagnostics view.
type Stats struct {
	history.Stats
	QueueSize    int   `json:"queue_size"`
	Inflight     bool  `json:"inflight"`
	InboxPending int   `json:"inbox_pending"`
	LoopRestarts int64 `json:"loop_restarts"`
}

func (d *Driver) Stats() Stats {
	return Stats{
		Stats:        d.history.Stats(),
		QueueSize:    d.outbound.Len(),
		Inflight:     d.HasInflight(),
		InboxPending: d.inbox.Len(),
		LoopRestarts: d.restarts.Load(),
	}
}
