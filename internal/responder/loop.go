package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/core"
	"firestige.xyz/ethresponder/internal/driver"
	"firestige.xyz/ethresponder/internal/frame"
	"firestige.xyz/ethresponder/internal/log"
	"firestige.xyz/ethresponder/internal/metrics"
)

const errorBackoff = 10 * time.Millisecond

// Loop moves frames between a driver and a dispatcher.
type Loop struct {
	drv  driver.Driver
	disp *Dispatcher
	pool *frame.Pool
	log  log.Logger
}

// NewLoop creates a loop borrowing buffers from pool.
func NewLoop(drv driver.Driver, disp *Dispatcher, pool *frame.Pool) *Loop {
	return &Loop{
		drv:  drv,
		disp: disp,
		pool: pool,
		log:  log.GetLogger().WithField("component", "loop"),
	}
}

// Run serves in mode until ctx is cancelled or the driver reports the end of
// its input. Cancelling ctx closes the driver to unblock a pending read.
func (l *Loop) Run(ctx context.Context, mode string) error {
	switch mode {
	case config.ModePoll:
		return l.Poll(ctx)
	case config.ModeInterrupt:
		return l.Interrupt(ctx)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// Poll runs borrow, receive, dispatch, transmit and release in sequence on
// the calling goroutine.
func (l *Loop) Poll(ctx context.Context) error {
	stop := l.closeOnDone(ctx)
	defer stop()

	l.log.Info("poll loop started")
	defer l.log.Info("poll loop stopped")

	for {
		f, err := l.pool.Get(ctx)
		if err != nil {
			return nil
		}
		ok, end := l.receive(ctx, f)
		if ok {
			l.service(f)
		}
		l.pool.Put(f)
		if end {
			return nil
		}
	}
}

// Interrupt runs a receiver goroutine that fills buffers and raises an IRQ,
// and services the line on the calling goroutine. A buffer returns to the
// pool only after its frame was handled, so with one buffer the receiver
// waits for the handler.
func (l *Loop) Interrupt(ctx context.Context) error {
	stop := l.closeOnDone(ctx)
	defer stop()

	irq := NewIRQ()
	mailbox := make(chan *frame.Frame, l.pool.Capacity())
	received := make(chan struct{})

	go func() {
		defer close(received)
		for {
			f, err := l.pool.Get(ctx)
			if err != nil {
				return
			}
			ok, end := l.receive(ctx, f)
			if ok {
				mailbox <- f
				irq.Raise()
			} else {
				l.pool.Put(f)
			}
			if end {
				return
			}
		}
	}()

	l.log.Info("interrupt handler started")
	defer l.log.Info("interrupt handler stopped")

	handler := func() {
		for {
			select {
			case f := <-mailbox:
				l.service(f)
				l.pool.Put(f)
			default:
				return
			}
		}
	}

	for {
		select {
		case <-irq.Line():
			handler()
			irq.Ack()
			// A frame queued while the line was still pending raised nothing.
			if len(mailbox) > 0 {
				irq.Raise()
			}
		case <-received:
			handler()
			return nil
		}
	}
}

// receive reads one frame into f. ok reports a frame to service; end reports
// that no further frame will arrive.
func (l *Loop) receive(ctx context.Context, f *frame.Frame) (ok, end bool) {
	n, err := l.drv.ReadFrame(f.Buffer())
	if err == nil {
		err = f.SetLength(n)
	}

	switch {
	case err == nil:
		metrics.FramesReceivedTotal.Inc()
		return true, false
	case errors.Is(err, core.ErrTimeout):
		return false, ctx.Err() != nil
	case errors.Is(err, io.EOF), errors.Is(err, core.ErrDriverClosed):
		return false, true
	case ctx.Err() != nil:
		return false, true
	}

	metrics.DriverErrorsTotal.WithLabelValues("read").Inc()
	l.log.WithError(err).Warn("receive failed")
	select {
	case <-ctx.Done():
		return false, true
	case <-time.After(errorBackoff):
		return false, false
	}
}

// service dispatches f and transmits the reply it produced.
func (l *Loop) service(f *frame.Frame) {
	proto := l.disp.Dispatch(f)
	if proto == ProtoNone {
		return
	}
	if err := l.drv.WriteFrame(f.Bytes()); err != nil {
		metrics.DriverErrorsTotal.WithLabelValues("write").Inc()
		l.log.WithError(err).WithField("protocol", proto).Warn("transmit failed")
		return
	}
	metrics.FramesTransmittedTotal.WithLabelValues(string(proto)).Inc()
}

// closeOnDone closes the driver once ctx is cancelled. The returned func
// stops the watcher.
func (l *Loop) closeOnDone(ctx context.Context) func() {
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			if err := l.drv.Close(); err != nil {
				l.log.WithError(err).Warn("driver close failed")
			}
		case <-quit:
		}
	}()
	return func() {
		close(quit)
		<-done
	}
}
