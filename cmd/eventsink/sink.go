package main

import (
	"context"
	"time"
)

// Batcher accumulates events and flushes them in batches, either when the
// batch fills or when the flush interval elapses with events pending. The
// final partial batch is flushed on shutdown.
type Batcher[T any] struct {
	ch       chan T
	size     int
	interval time.Duration
	flush    func([]T)
}

// NewBatcher returns a Batcher flushing through fn.
func NewBatcher[T any](size int, interval time.Duration, fn func([]T)) *Batcher[T] {
	if size < 1 {
		size = 1
	}
	return &Batcher[T]{
		ch:       make(chan T, size*4),
		size:     size,
		interval: interval,
		flush:    fn,
	}
}

// Add queues one event. Blocks when the buffer is full, which back-pressures
// the NATS delivery goroutine instead of dropping data.
func (b *Batcher[T]) Add(v T) { b.ch <- v }

// Run consumes the queue until ctx is cancelled.
func (b *Batcher[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]T, 0, b.size)
	emit := func() {
		if len(batch) == 0 {
			return
		}
		b.flush(batch)
		batch = make([]T, 0, b.size)
	}

	for {
		select {
		case v := <-b.ch:
			batch = append(batch, v)
			if len(batch) >= b.size {
				emit()
			}
		case <-ticker.C:
			emit()
		case <-ctx.Done():
			// Drain whatever is already queued, then flush once.
			for {
				select {
				case v := <-b.ch:
					batch = append(batch, v)
				default:
					emit()
					return
				}
			}
		}
	}
}
