package history

import (
	"encoding/hex"
	"sync"
	"time"
)

type Direction string

const (
	DirTx Direction = "tx"
	DirRx Direction = "rx"
)

// Record is one raw wire exchange.
type Record struct {
	At      time.Time `json:"at"`
	Dir     Direction `json:"dir"`
	Bytes   string    `json:"bytes"`
	Comment string    `json:"comment,omitempty"`
}

// Trace is a fixed-size ring of raw wire records.
type Trace struct {
	mu   sync.Mutex
	buf  []Record
	next int
	full bool
}

func NewTrace(size int) *Trace {
	if size <= 0 {
		size = 1
	}
	return &Trace{buf: make([]Record, size)}
}

func (t *Trace) Add(at time.Time, dir Direction, raw []byte, comment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = Record{At: at, Dir: dir, Bytes: hex.EncodeToString(raw), Comment: comment}
	t.next = (t.next + 1) % len(t.buf)
	if t.next == 0 {
		t.full = true
	}
}

// Recent returns up to limit records, oldest first.
func (t *Trace) Recent(limit int) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.next
	if t.full {
		n = len(t.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	start := t.next - limit
	if start < 0 {
		start += len(t.buf)
	}
	for i := 0; i < limit; i++ {
		out = append(out, t.buf[(start+i)%len(t.buf)])
	}
	return out
}
