package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/radioctl/internal/channel"
	"github.com/danmuck/radioctl/internal/logging"
	"github.com/danmuck/radioctl/internal/protocol/session"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the resolved runtime configuration of one radioctl process.
type Config struct {
	Serial      channel.Config
	Protocol    session.Config
	Diagnostics Diagnostics
	LogLevel    string
}

type Diagnostics struct {
	Enabled     bool
	Addr        string
	CorsOrigins []string
}

func Default() Config {
	return Config{
		Serial:   channel.DefaultConfig(),
		Protocol: session.DefaultConfig(),
		Diagnostics: Diagnostics{
			Enabled:     true,
			Addr:        "127.0.0.1:9400",
			CorsOrigins: []string{"http://localhost:3000"},
		},
		LogLevel: "info",
	}
}

// fileConfig mirrors the TOML layout. Durations are strings so files stay
// readable ("250ms", "5s").
type fileConfig struct {
	Serial      fileSerial      `toml:"serial"`
	Protocol    fileProtocol    `toml:"protocol"`
	Diagnostics fileDiagnostics `toml:"diagnostics"`
	Log         fileLog         `toml:"log"`
}

type fileSerial struct {
	Device      string `toml:"device"`
	Baud        int    `toml:"baud"`
	Parity      string `toml:"parity"`
	StopBits    int    `toml:"stop_bits"`
	ReadTimeout string `toml:"read_timeout"`
}

type fileProtocol struct {
	MaxRetries        int     `toml:"max_retries"`
	CompletionTimeout string  `toml:"completion_timeout"`
	DesyncTimeout     string  `toml:"desync_timeout"`
	ReadChunk         int     `toml:"read_chunk"`
	HistorySize       int     `toml:"history_size"`
	TraceSize         int     `toml:"trace_size"`
	InboxBacklog      int     `toml:"inbox_backlog"`
	RestartDelay      string  `toml:"restart_delay"`
	RestartMaxDelay   string  `toml:"restart_max_delay"`
	RestartMultiplier float64 `toml:"restart_multiplier"`
}

type fileDiagnostics struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

type fileLog struct {
	Level string `toml:"level"`
}

// Load reads path and applies every key it defines onto Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}

	if meta.IsDefined("serial", "device") {
		cfg.Serial.Device = strings.TrimSpace(raw.Serial.Device)
	}
	if meta.IsDefined("serial", "baud") {
		cfg.Serial.Baud = raw.Serial.Baud
	}
	if meta.IsDefined("serial", "parity") {
		cfg.Serial.Parity = strings.TrimSpace(raw.Serial.Parity)
	}
	if meta.IsDefined("serial", "stop_bits") {
		cfg.Serial.StopBits = raw.Serial.StopBits
	}
	if err := setDuration(meta, &cfg.Serial.ReadTimeout, raw.Serial.ReadTimeout, "serial", "read_timeout"); err != nil {
		return Config{}, err
	}

	p := &cfg.Protocol
	if meta.IsDefined("protocol", "max_retries") {
		p.MaxRetries = raw.Protocol.MaxRetries
	}
	if err := setDuration(meta, &p.CompletionTimeout, raw.Protocol.CompletionTimeout, "protocol", "completion_timeout"); err != nil {
		return Config{}, err
	}
	if err := setDuration(meta, &p.DesyncTimeout, raw.Protocol.DesyncTimeout, "protocol", "desync_timeout"); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("protocol", "read_chunk") {
		p.ReadChunk = raw.Protocol.ReadChunk
	}
	if meta.IsDefined("protocol", "history_size") {
		p.HistorySize = raw.Protocol.HistorySize
	}
	if meta.IsDefined("protocol", "trace_size") {
		p.TraceSize = raw.Protocol.TraceSize
	}
	if meta.IsDefined("protocol", "inbox_backlog") {
		p.InboxBacklog = raw.Protocol.InboxBacklog
	}
	if err := setDuration(meta, &p.Supervisor.InitialDelay, raw.Protocol.RestartDelay, "protocol", "restart_delay"); err != nil {
		return Config{}, err
	}
	if err := setDuration(meta, &p.Supervisor.MaxDelay, raw.Protocol.RestartMaxDelay, "protocol", "restart_max_delay"); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("protocol", "restart_multiplier") {
		p.Supervisor.Multiplier = raw.Protocol.RestartMultiplier
	}

	if meta.IsDefined("diagnostics", "enabled") {
		cfg.Diagnostics.Enabled = raw.Diagnostics.Enabled
	}
	if meta.IsDefined("diagnostics", "addr") {
		cfg.Diagnostics.Addr = strings.TrimSpace(raw.Diagnostics.Addr)
	}
	if meta.IsDefined("diagnostics", "cors_origins") {
		cfg.Diagnostics.CorsOrigins = normalizeOrigins(raw.Diagnostics.CorsOrigins)
	}
	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDuration(meta toml.MetaData, dst *time.Duration, raw string, key ...string) error {
	if !meta.IsDefined(key...) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse %s: %w", strings.Join(key, "."), err)
	}
	*dst = d
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Validate rejects values the driver would otherwise silently replace with
// defaults. An empty serial device is allowed so that diagnostics-only
// commands can load the same file.
func Validate(cfg Config) error {
	if cfg.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial.baud must be positive", ErrInvalid)
	}
	if cfg.Serial.StopBits != 1 && cfg.Serial.StopBits != 2 {
		return fmt.Errorf("%w: serial.stop_bits must be 1 or 2", ErrInvalid)
	}
	switch strings.ToLower(cfg.Serial.Parity) {
	case "", "none", "n", "even", "e", "odd", "o":
	default:
		return fmt.Errorf("%w: serial.parity %q", ErrInvalid, cfg.Serial.Parity)
	}
	if cfg.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("%w: serial.read_timeout must be positive", ErrInvalid)
	}

	p := cfg.Protocol
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: protocol.max_retries must not be negative", ErrInvalid)
	}
	if p.CompletionTimeout <= 0 || p.DesyncTimeout <= 0 {
		return fmt.Errorf("%w: protocol timeouts must be positive", ErrInvalid)
	}
	if p.CompletionTimeout <= cfg.Serial.ReadTimeout {
		return fmt.Errorf("%w: protocol.completion_timeout must exceed serial.read_timeout", ErrInvalid)
	}
	if p.ReadChunk <= 0 || p.HistorySize <= 0 || p.TraceSize <= 0 || p.InboxBacklog <= 0 {
		return fmt.Errorf("%w: protocol sizes must be positive", ErrInvalid)
	}
	if p.Supervisor.InitialDelay <= 0 || p.Supervisor.MaxDelay < p.Supervisor.InitialDelay {
		return fmt.Errorf("%w: protocol.restart_delay must be positive and at most restart_max_delay", ErrInvalid)
	}
	if p.Supervisor.Multiplier < 1 {
		return fmt.Errorf("%w: protocol.restart_multiplier must be at least 1", ErrInvalid)
	}

	if cfg.Diagnostics.Enabled && strings.TrimSpace(cfg.Diagnostics.Addr) == "" {
		return fmt.Errorf("%w: diagnostics.addr required when diagnostics are enabled", ErrInvalid)
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, cfg.LogLevel)
	}
	return nil
}
