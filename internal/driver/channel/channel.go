// Package channel implements an in-memory link endpoint. Frames injected on
// one side are read by the responder; replies are delivered on Sent.
package channel

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/ethresponder/internal/core"
)

// Driver is an in-memory driver.Driver.
type Driver struct {
	rx   chan []byte
	tx   chan []byte
	done chan struct{}

	mu       sync.RWMutex
	finished bool
	timeout  atomic.Int64

	closeOnce sync.Once
}

// New creates a driver whose receive and transmit queues hold depth frames.
func New(depth int) *Driver {
	if depth < 1 {
		depth = 1
	}
	return &Driver{
		rx:   make(chan []byte, depth),
		tx:   make(chan []byte, depth),
		done: make(chan struct{}),
	}
}

// SetReadTimeout makes ReadFrame return core.ErrTimeout after d without a
// frame. Zero blocks indefinitely.
func (d *Driver) SetReadTimeout(t time.Duration) { d.timeout.Store(int64(t)) }

// Inject queues a copy of b for ReadFrame. It blocks while the queue is full.
func (d *Driver) Inject(b []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.finished {
		return fmt.Errorf("inject after finish: %w", core.ErrDriverClosed)
	}
	select {
	case d.rx <- append([]byte(nil), b...):
		return nil
	case <-d.done:
		return core.ErrDriverClosed
	}
}

// Finish marks the end of input. ReadFrame returns io.EOF once every queued
// frame was read.
func (d *Driver) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.finished {
		d.finished = true
		close(d.rx)
	}
}

// Sent delivers transmitted frames in order.
func (d *Driver) Sent() <-chan []byte { return d.tx }

func (d *Driver) ReadFrame(buf []byte) (int, error) {
	var expire <-chan time.Time
	if timeout := time.Duration(d.timeout.Load()); timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}

	select {
	case b, ok := <-d.rx:
		if !ok {
			return 0, io.EOF
		}
		if len(b) > len(buf) {
			return 0, fmt.Errorf("frame of %d bytes, buffer %d: %w", len(b), len(buf), core.ErrFrameTooSmall)
		}
		return copy(buf, b), nil
	case <-expire:
		return 0, core.ErrTimeout
	case <-d.done:
		return 0, core.ErrDriverClosed
	}
}

func (d *Driver) WriteFrame(b []byte) error {
	select {
	case <-d.done:
		return core.ErrDriverClosed
	default:
	}
	select {
	case d.tx <- append([]byte(nil), b...):
		return nil
	case <-d.done:
		return core.ErrDriverClosed
	}
}

// Close unblocks pending reads and writes. Queued replies stay readable on
// Sent.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	return nil
}
