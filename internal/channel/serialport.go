package channel

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tarm/serial"
)

var (
	ErrNoDevice  = errors.New("channel: no device configured")
	ErrBadParity = errors.New("channel: unknown parity")
)

// Config describes the serial line. Controllers default to 115200 8N1.
type Config struct {
	Device      string
	Baud        int
	Parity      string
	StopBits    int
	ReadTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Baud:        115200,
		Parity:      "none",
		StopBits:    1,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// port is the subset of *serial.Port the adapter uses.
type port interface {
	io.ReadWriteCloser
	Flush() error
}

// SerialPort adapts a serial device to the driver's channel contract: reads
// return within ReadTimeout and report (0, nil) when nothing arrived.
type SerialPort struct {
	name string
	p    port
}

// Open opens and configures the device named in cfg.
func Open(cfg Config) (*SerialPort, error) {
	if strings.TrimSpace(cfg.Device) == "" {
		return nil, ErrNoDevice
	}
	serialCfg, err := cfg.serialConfig()
	if err != nil {
		return nil, err
	}
	p, err := serial.OpenPort(serialCfg)
	if err != nil {
		return nil, fmt.Errorf("channel: open %s: %w", cfg.Device, err)
	}
	return &SerialPort{name: cfg.Device, p: p}, nil
}

func (c Config) serialConfig() (*serial.Config, error) {
	out := &serial.Config{
		Name:        c.Device,
		Baud:        c.Baud,
		Size:        8,
		ReadTimeout: c.ReadTimeout,
	}
	switch strings.ToLower(strings.TrimSpace(c.Parity)) {
	case "", "none", "n":
		out.Parity = serial.ParityNone
	case "even", "e":
		out.Parity = serial.ParityEven
	case "odd", "o":
		out.Parity = serial.ParityOdd
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadParity, c.Parity)
	}
	if c.StopBits == 2 {
		out.StopBits = serial.Stop2
	} else {
		out.StopBits = serial.Stop1
	}
	return out, nil
}

func (s *SerialPort) Name() string { return s.name }

// Read returns what arrived within the read timeout. A timed out read is
// reported by the port as io.EOF and translated to (0, nil).
func (s *SerialPort) Read(b []byte) (int, error) {
	n, err := s.p.Read(b)
	if errors.Is(err, io.EOF) && n == 0 {
		return 0, nil
	}
	return n, err
}

func (s *SerialPort) Write(b []byte) (int, error) {
	return s.p.Write(b)
}

// Flush is a no-op: the port writes synchronously.
func (s *SerialPort) Flush() error {
	return nil
}

// Discard drops unread input and unsent output.
func (s *SerialPort) Discard() error {
	return s.p.Flush()
}

func (s *SerialPort) Close() error {
	return s.p.Close()
}
