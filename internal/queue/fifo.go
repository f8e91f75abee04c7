package queue

import (
	"context"
	"sync"
)

// FIFO is an unbounded first-in first-out handoff. Put never blocks; Get
// blocks while empty.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func NewFIFO[T any]() *FIFO[T] {
	return &FIFO[T]{notify: make(chan struct{}, 1)}
}

func (f *FIFO[T]) Put(v T) {
	f.mu.Lock()
	f.items = append(f.items, v)
	f.mu.Unlock()
	f.signal()
}

func (f *FIFO[T]) Get(ctx context.Context) (T, error) {
	for {
		if v, ok := f.TryGet(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-f.notify:
		}
	}
}

func (f *FIFO[T]) TryGet() (T, bool) {
	f.mu.Lock()
	var zero T
	if len(f.items) == 0 {
		f.mu.Unlock()
		return zero, false
	}
	v := f.items[0]
	f.items[0] = zero
	f.items = f.items[1:]
	remaining := len(f.items)
	if remaining == 0 {
		f.items = nil
	}
	f.mu.Unlock()
	if remaining > 0 {
		f.signal()
	}
	return v, true
}

func (f *FIFO[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *FIFO[T]) signal() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}
