package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/radioctl/internal/history"
	"github.com/danmuck/radioctl/internal/observability"
	"github.com/danmuck/radioctl/internal/protocol/frame"
	"github.com/danmuck/radioctl/internal/protocol/session"
)

// transmitLoop sends one message at a time and blocks until it resolves.
func (d *Driver) transmitLoop(ctx context.Context) error {
	for !d.stopping() {
		msg, prio, err := d.outbound.Get(ctx)
		if err != nil {
			return nil
		}
		observability.SetQueueDepth(d.outbound.Len())

		if msg.IsBarrier() {
			d.complete(msg, frame.Frame{}, nil)
			continue
		}
		if !d.inflight.StartMessage(msg, time.Now()) {
			// unreachable while this loop is the only starter
			d.outbound.Put(prio, msg)
			return session.ErrBusy
		}
		if err := d.write(msg.Payload, "send "+msg.String()); err != nil {
			d.inflight.Abort(time.Now(), err)
			d.finish(d.inflight.WaitForCompletion())
			return err
		}
		d.inflight.Transmitted(time.Now())
		d.finish(d.inflight.WaitForCompletion())
	}
	return nil
}

func (d *Driver) finish(res session.Result) {
	d.history.Add(history.FromResult(res))
	observability.RecordTransaction(res.State.String(), res.Duration())

	event := d.logger.Debug()
	if res.State != session.StateSuccess {
		event = d.logger.Warn().Err(res.Err)
	}
	event.
		Str("message", res.Message.String()).
		Str("state", res.State.String()).
		Int("retries", res.Retries).
		Dur("duration", res.Duration()).
		Msg("resolved")

	d.complete(res.Message, res.Reply, res.Err)
}

// receiveLoop owns every channel read. It returns ErrDesync when a started
// frame never completes, which restarts it with an empty buffer.
func (d *Driver) receiveLoop(ctx context.Context) error {
	chunk := make([]byte, d.cfg.ReadChunk)
	var buf []byte
	var pendingSince time.Time

	for !d.stopping() {
		n, err := d.ch.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			d.logger.Trace().Hex("bytes", chunk[:n]).Msg("rx chunk")
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		for len(buf) > 0 {
			f, consumed, err := frame.Extract(buf)
			if errors.Is(err, frame.ErrIncomplete) {
				break
			}
			pendingSince = time.Time{}
			if err != nil {
				if err := d.rejectBytes(buf[:consumed], err); err != nil {
					return err
				}
				buf = buf[consumed:]
				continue
			}
			buf = buf[consumed:]
			if err := d.handleFrame(time.Now(), f); err != nil {
				return err
			}
		}

		if len(buf) == 0 {
			buf = nil
			pendingSince = time.Time{}
			continue
		}
		if pendingSince.IsZero() {
			pendingSince = time.Now()
		} else if time.Since(pendingSince) > d.cfg.DesyncTimeout {
			observability.RecordDesync()
			d.logger.Error().
				Hex("buffer", buf).
				Dur("pending", time.Since(pendingSince)).
				Msg("frame never completed, dropping receive buffer")
			return fmt.Errorf("%w: %d bytes pending", ErrDesync, len(buf))
		}
	}
	return nil
}

// rejectBytes drops one byte that could not start a valid frame, asking the
// peer to resend when the frame itself was damaged.
func (d *Driver) rejectBytes(dropped []byte, cause error) error {
	reason := "unexpected_byte"
	switch {
	case errors.Is(cause, frame.ErrBadChecksum):
		reason = "bad_checksum"
	case errors.Is(cause, frame.ErrInvalidLength):
		reason = "invalid_length"
	}
	observability.RecordFramingError(reason)
	d.trace.Add(time.Now(), history.DirRx, dropped, reason)
	d.logger.Warn().Hex("dropped", dropped).Str("reason", reason).Msg("framing error")
	if frame.NeedsNak(cause) {
		return d.write(frame.RawNAK(), "nak "+reason)
	}
	return nil
}

func (d *Driver) handleFrame(now time.Time, f frame.Frame) error {
	kind := "data"
	if f.IsControl() {
		kind = f.String()
	}
	observability.RecordFrame(kind)

	dec := d.inflight.OnReceive(now, f)
	d.trace.Add(now, history.DirRx, f.Bytes(), dec.Comment)
	d.logger.Debug().Str("frame", f.String()).Str("action", dec.Action.String()).Str("comment", dec.Comment).Msg("rx")

	switch dec.Action {
	case session.ActionRetry:
		cause := "nak"
		if f.Lead() == frame.CAN {
			cause = "collision"
		}
		observability.RecordRetry(cause)
		return d.write(dec.Payload, "resend "+dec.Comment)
	case session.ActionPropagate:
		if err := d.write(frame.RawACK(), "ack "+dec.Comment); err != nil {
			return err
		}
		d.inbox.Put(inbound{at: now, f: f})
		if pending := d.inbox.Len(); pending > d.cfg.InboxBacklog {
			d.logger.Warn().Int("pending", pending).Msg("listeners falling behind")
		}
	}
	return nil
}

// forwardLoop hands inbound frames to listeners in arrival order.
func (d *Driver) forwardLoop(ctx context.Context) error {
	for {
		item, err := d.inbox.Get(ctx)
		if err != nil {
			d.flushInbox()
			return nil
		}
		if item.stop {
			// frames acknowledged while the stop marker was queued
			d.flushInbox()
			return nil
		}
		d.deliver(item)
	}
}

// flushInbox delivers what is already queued when the loop is cancelled.
func (d *Driver) flushInbox() {
	for {
		item, ok := d.inbox.TryGet()
		if !ok || item.stop {
			return
		}
		d.deliver(item)
	}
}

func (d *Driver) deliver(item inbound) {
	d.lmu.RLock()
	listeners := append([]Listener(nil), d.listeners...)
	d.lmu.RUnlock()
	for _, l := range listeners {
		d.putListener(l, item)
	}
}

func (d *Driver) putListener(l Listener, item inbound) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("frame", item.f.String()).Msg("listener panicked")
		}
	}()
	l.Put(item.at, item.f)
}
