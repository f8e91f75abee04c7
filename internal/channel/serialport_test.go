package channel

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/danmuck/radioctl/internal/testutil/testlog"
	"github.com/tarm/serial"
)

type stubPort struct {
	reads   [][]byte
	readErr error
	written bytes.Buffer
	flushed int
	closed  bool
}

func (p *stubPort) Read(b []byte) (int, error) {
	if len(p.reads) == 0 {
		if p.readErr != nil {
			return 0, p.readErr
		}
		return 0, io.EOF
	}
	n := copy(b, p.reads[0])
	p.reads = p.reads[1:]
	return n, nil
}

func (p *stubPort) Write(b []byte) (int, error) { return p.written.Write(b) }

func (p *stubPort) Flush() error {
	p.flushed++
	return nil
}

func (p *stubPort) Close() error {
	p.closed = true
	return nil
}

func TestReadTimeoutIsEmptyRead(t *testing.T) {
	testlog.Start(t)
	stub := &stubPort{reads: [][]byte{{0x06}}}
	sp := &SerialPort{name: "stub", p: stub}

	buf := make([]byte, 8)
	n, err := sp.Read(buf)
	if err != nil || n != 1 || buf[0] != 0x06 {
		t.Fatalf("first read n=%d err=%v", n, err)
	}
	n, err = sp.Read(buf)
	if err != nil || n != 0 {
		t.Fatalf("timeout read n=%d err=%v", n, err)
	}

	stub.readErr = errors.New("device gone")
	if _, err := sp.Read(buf); err == nil {
		t.Fatalf("real read errors must surface")
	}
}

func TestDiscardFlushesPortAndCloseCloses(t *testing.T) {
	testlog.Start(t)
	stub := &stubPort{}
	sp := &SerialPort{name: "stub", p: stub}
	if err := sp.Flush(); err != nil || stub.flushed != 0 {
		t.Fatalf("flush must not drop buffers: flushed=%d", stub.flushed)
	}
	if err := sp.Discard(); err != nil || stub.flushed != 1 {
		t.Fatalf("discard flushed=%d err=%v", stub.flushed, err)
	}
	if _, err := sp.Write([]byte{0x15}); err != nil || stub.written.Len() != 1 {
		t.Fatalf("write failed: %v", err)
	}
	if err := sp.Close(); err != nil || !stub.closed {
		t.Fatalf("close failed: %v", err)
	}
}

func TestSerialConfigMapping(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Device = "/dev/ttyACM0"
	cfg.Parity = "Even"
	cfg.StopBits = 2
	sc, err := cfg.serialConfig()
	if err != nil {
		t.Fatalf("serialConfig: %v", err)
	}
	if sc.Baud != 115200 || sc.Parity != serial.ParityEven || sc.StopBits != serial.Stop2 || sc.Size != 8 {
		t.Fatalf("unexpected config: %+v", sc)
	}
	if sc.ReadTimeout != 100*time.Millisecond {
		t.Fatalf("read timeout=%v", sc.ReadTimeout)
	}

	cfg.Parity = "mark"
	if _, err := cfg.serialConfig(); !errors.Is(err, ErrBadParity) {
		t.Fatalf("expected ErrBadParity, got %v", err)
	}
	if _, err := Open(Config{}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}
