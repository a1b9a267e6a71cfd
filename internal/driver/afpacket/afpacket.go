//go:build linux

// Package afpacket implements a link driver on an AF_PACKET TPACKET_V3 ring.
package afpacket

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/tevino/abool"

	"firestige.xyz/ethresponder/internal/core"
	"firestige.xyz/ethresponder/internal/driver"
	"firestige.xyz/ethresponder/internal/log"
)

const (
	driverName = "afpacket"

	defaultFrameSize   = 4096
	defaultBlockSize   = 1 << 20 // 1MB
	defaultNumBlocks   = 8
	defaultPollTimeout = 100 * time.Millisecond
)

func init() {
	driver.Register(driverName, New)
}

// Options configures the socket.
type Options struct {
	Interface   string        `mapstructure:"interface"`
	FrameSize   int           `mapstructure:"frame_size"`
	BlockSize   int           `mapstructure:"block_size"`
	NumBlocks   int           `mapstructure:"num_blocks"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Filter      bool          `mapstructure:"filter"`
}

// Driver reads and writes frames through a TPACKET_V3 handle.
type Driver struct {
	opts   Options
	handle *afpacket.TPacket
	closed *abool.AtomicBool

	// Readers and writers hold mu shared; Close takes it exclusively so the
	// ring is never unmapped under an in-flight read.
	mu sync.RWMutex
}

// New decodes options and opens the socket.
func New(options map[string]interface{}) (driver.Driver, error) {
	opts := Options{
		FrameSize:   defaultFrameSize,
		BlockSize:   defaultBlockSize,
		NumBlocks:   defaultNumBlocks,
		PollTimeout: defaultPollTimeout,
		Filter:      true,
	}
	if err := driver.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return Open(opts)
}

// Open creates the ring on opts.Interface.
func Open(opts Options) (*Driver, error) {
	if opts.Interface == "" {
		return nil, errors.New("afpacket: interface is required")
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(opts.Interface),
		afpacket.OptFrameSize(opts.FrameSize),
		afpacket.OptBlockSize(opts.BlockSize),
		afpacket.OptNumBlocks(opts.NumBlocks),
		afpacket.OptPollTimeout(opts.PollTimeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create TPacket handle: %w", err)
	}

	if opts.Filter {
		prog, err := CompileFilter(uint32(opts.FrameSize))
		if err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to assemble BPF filter: %w", err)
		}
		if err := handle.SetBPF(prog); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to set BPF: %w", err)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"interface":  opts.Interface,
		"frame_size": opts.FrameSize,
		"filter":     opts.Filter,
	}).Info("afpacket driver opened")

	return &Driver{opts: opts, handle: handle, closed: abool.New()}, nil
}

func (d *Driver) ReadFrame(buf []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed.IsSet() {
		return 0, core.ErrDriverClosed
	}

	data, _, err := d.handle.ZeroCopyReadPacketData()
	if err != nil {
		if errors.Is(err, afpacket.ErrTimeout) {
			return 0, core.ErrTimeout
		}
		return 0, fmt.Errorf("afpacket read: %w", err)
	}
	if len(data) > len(buf) {
		return 0, fmt.Errorf("afpacket read: frame of %d bytes, buffer %d: %w", len(data), len(buf), core.ErrFrameTooSmall)
	}
	return copy(buf, data), nil
}

func (d *Driver) WriteFrame(b []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed.IsSet() {
		return core.ErrDriverClosed
	}
	if err := d.handle.WritePacketData(b); err != nil {
		return fmt.Errorf("afpacket write: %w", err)
	}
	return nil
}

// Close waits for an in-flight read to reach its poll timeout, then releases
// the ring.
func (d *Driver) Close() error {
	if d.closed.IsSet() {
		return nil
	}
	d.closed.Set()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handle.Close()

	log.GetLogger().WithField("interface", d.opts.Interface).Info("afpacket driver closed")
	return nil
}
