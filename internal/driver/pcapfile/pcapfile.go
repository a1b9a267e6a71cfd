// Package pcapfile implements a link driver that replays frames from a pcap
// file and records transmitted replies into another.
package pcapfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/ethresponder/internal/core"
	"firestige.xyz/ethresponder/internal/driver"
	"firestige.xyz/ethresponder/internal/log"
)

const (
	driverName = "pcap"

	defaultSnapLen = 65535
)

func init() {
	driver.Register(driverName, New)
}

// Options configures the files.
type Options struct {
	Input   string `mapstructure:"input"`  // required
	Output  string `mapstructure:"output"` // optional, replies are discarded without it
	SnapLen uint32 `mapstructure:"snap_len"`
}

// Driver replays an Ethernet capture.
type Driver struct {
	mu sync.Mutex
	r  *pcapgo.Reader
	w  *pcapgo.Writer

	closers []io.Closer
	closed  bool
	now     func() time.Time
}

// New decodes options and opens the files.
func New(options map[string]interface{}) (driver.Driver, error) {
	opts := Options{SnapLen: defaultSnapLen}
	if err := driver.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return Open(opts)
}

// Open opens opts.Input for reading and creates opts.Output when set.
func Open(opts Options) (*Driver, error) {
	if opts.Input == "" {
		return nil, errors.New("pcap: input is required")
	}
	in, err := os.Open(opts.Input)
	if err != nil {
		return nil, fmt.Errorf("pcap: %w", err)
	}

	var out io.WriteCloser
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("pcap: %w", err)
		}
		out = f
	}

	d, err := NewDriver(in, out, opts.SnapLen)
	if err != nil {
		in.Close()
		if out != nil {
			out.Close()
		}
		return nil, err
	}
	d.closers = append(d.closers, in)
	if out != nil {
		d.closers = append(d.closers, out)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"input":  opts.Input,
		"output": opts.Output,
	}).Info("pcap driver opened")
	return d, nil
}

// NewDriver reads frames from r and, when w is not nil, writes a capture of
// the replies to it. The caller keeps ownership of r and w.
func NewDriver(r io.Reader, w io.Writer, snapLen uint32) (*Driver, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("pcap: read header: %w", err)
	}
	if lt := reader.LinkType(); lt != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("pcap: link type %s: %w", lt, core.ErrWrongKind)
	}

	d := &Driver{r: reader, now: time.Now}
	if w != nil {
		d.w = pcapgo.NewWriter(w)
		if err := d.w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
			return nil, fmt.Errorf("pcap: write header: %w", err)
		}
	}
	return d, nil
}

func (d *Driver) ReadFrame(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, core.ErrDriverClosed
	}
	data, _, err := d.r.ZeroCopyReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("pcap read: %w", err)
	}
	if len(data) > len(buf) {
		return 0, fmt.Errorf("pcap read: frame of %d bytes, buffer %d: %w", len(data), len(buf), core.ErrFrameTooSmall)
	}
	return copy(buf, data), nil
}

func (d *Driver) WriteFrame(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return core.ErrDriverClosed
	}
	if d.w == nil {
		return nil
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     d.now(),
		CaptureLength: len(b),
		Length:        len(b),
	}
	if err := d.w.WritePacket(ci, b); err != nil {
		return fmt.Errorf("pcap write: %w", err)
	}
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
