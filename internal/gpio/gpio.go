// Package gpio models digital output lines driven by the responder.
package gpio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/core"
)

// Pin is a digital output line. Level reports the last level set.
type Pin interface {
	Set(level bool) error
	Level() bool
}

// Open creates the pin described by cfg.
func Open(cfg config.PinConfig) (Pin, error) {
	switch cfg.Type {
	case "", "memory":
		return &Memory{}, nil
	case "file":
		return OpenFile(cfg.Path, cfg.ActiveLow)
	default:
		return nil, fmt.Errorf("%w: pin type %q", core.ErrConfigInvalid, cfg.Type)
	}
}

// Memory is a pin that only records its level.
type Memory struct {
	level atomic.Bool
}

func (m *Memory) Set(level bool) error {
	m.level.Store(level)
	return nil
}

func (m *Memory) Level() bool { return m.level.Load() }

// File drives a line through a sysfs-style value file that accepts "0" and
// "1".
type File struct {
	path      string
	activeLow bool

	mu    sync.Mutex
	f     *os.File
	level bool
}

// OpenFile opens the value file for writing and drives the line inactive.
func OpenFile(path string, activeLow bool) (*File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open gpio value %s: %w", path, err)
	}
	p := &File{path: path, activeLow: activeLow, f: f}
	if err := p.Set(false); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *File) Set(level bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw := level != p.activeLow
	v := []byte("0")
	if raw {
		v = []byte("1")
	}
	if _, err := p.f.WriteAt(v, 0); err != nil {
		return fmt.Errorf("write gpio value %s: %w", p.path, err)
	}
	p.level = level
	return nil
}

func (p *File) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Close releases the value file.
func (p *File) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.f.Close()
}

// Observed wraps a pin and calls fn after every successful level change.
type Observed struct {
	Pin
	fn func(level bool)
}

// Observe returns p wrapped so that changes are reported to fn.
func Observe(p Pin, fn func(level bool)) *Observed {
	return &Observed{Pin: p, fn: fn}
}

func (o *Observed) Set(level bool) error {
	prev := o.Pin.Level()
	if err := o.Pin.Set(level); err != nil {
		return err
	}
	if prev != level && o.fn != nil {
		o.fn(level)
	}
	return nil
}

// Blink toggles p every period until ctx is done, then drives it inactive.
func Blink(ctx context.Context, p Pin, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("blink period %s must be positive", period)
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	level := p.Level()
	for {
		select {
		case <-ctx.Done():
			return p.Set(false)
		case <-ticker.C:
			level = !level
			if err := p.Set(level); err != nil {
				return err
			}
		}
	}
}
