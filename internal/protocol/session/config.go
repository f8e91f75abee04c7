package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines protocol timing and bookkeeping limits for one driver.
type Config struct {
	// MaxRetries bounds how often one message is resent after NAK or CAN.
	// Zero selects the default.
	MaxRetries int
	// CompletionTimeout is the silence window after which an in-flight
	// message resolves as timed out. Any protocol activity restarts it.
	CompletionTimeout time.Duration
	// DesyncTimeout bounds how long a started data frame may stay incomplete.
	DesyncTimeout time.Duration
	// ReadChunk is the maximum number of bytes requested per channel read.
	ReadChunk   int
	HistorySize int
	TraceSize   int
	// InboxBacklog is the undelivered inbound frame count above which slow
	// listeners are reported. Delivery itself is never bounded.
	InboxBacklog int
	// Supervisor drives the restart delay of a faulted worker loop.
	Supervisor BackoffConfig
}

// DefaultConfig returns controller-safe defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		CompletionTimeout: 5 * time.Second,
		DesyncTimeout:     2 * time.Second,
		ReadChunk:         64,
		HistorySize:       1024,
		TraceSize:         256,
		InboxBacklog:      1024,
		Supervisor: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     60 * time.Second,
			Jitter:       false,
		},
	}
}

// WithDefaults fills every unset field from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = def.CompletionTimeout
	}
	if c.DesyncTimeout <= 0 {
		c.DesyncTimeout = def.DesyncTimeout
	}
	if c.ReadChunk <= 0 {
		c.ReadChunk = def.ReadChunk
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.TraceSize <= 0 {
		c.TraceSize = def.TraceSize
	}
	if c.InboxBacklog <= 0 {
		c.InboxBacklog = def.InboxBacklog
	}
	if c.Supervisor.InitialDelay <= 0 {
		c.Supervisor = def.Supervisor
	}
	return c
}
