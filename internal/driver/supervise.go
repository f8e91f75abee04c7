package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/radioctl/internal/observability"
	"github.com/danmuck/radioctl/internal/protocol/session"
)

// supervise runs loop until the driver stops, restarting it after every
// fault with exponential backoff. Consecutive faults grow the delay; a run
// that outlives the maximum delay resets it.
func (d *Driver) supervise(name string, loop func(context.Context) error) {
	defer d.wg.Done()
	logger := d.logger.With().Str("loop", name).Logger()
	logger.Debug().Msg("loop started")

	attempt := 0
	for {
		started := time.Now()
		err := d.runGuarded(loop)
		if d.stopping() {
			logger.Debug().Msg("loop stopped")
			return
		}
		if err == nil {
			logger.Warn().Msg("loop returned without shutdown, restarting")
		}
		if time.Since(started) > d.cfg.Supervisor.MaxDelay {
			attempt = 0
		}
		attempt++
		delay := session.NextBackoffDelay(d.cfg.Supervisor, attempt, nil)
		d.restarts.Add(1)
		observability.RecordLoopRestart(name)
		logger.Error().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("loop faulted")

		if err := session.SleepBackoff(d.ctx, d.cfg.Supervisor, attempt); err != nil {
			logger.Debug().Msg("loop stopped during backoff")
			return
		}
	}
}

// runGuarded converts a panic in loop into an error.
func (d *Driver) runGuarded(loop func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return loop(d.ctx)
}
