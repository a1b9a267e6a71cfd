//go:build linux

// Package tap implements a link driver on a Linux TAP device. The host side
// of the device can be given an address so that local tools (ping, arping,
// coap clients) talk to the responder directly.
package tap

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"firestige.xyz/ethresponder/internal/core"
	"firestige.xyz/ethresponder/internal/driver"
	"firestige.xyz/ethresponder/internal/log"
)

const (
	driverName = "tap"

	defaultName        = "ethr%d"
	defaultReadTimeout = 100 * time.Millisecond
)

func init() {
	driver.Register(driverName, New)
}

// Options configures the device.
type Options struct {
	Name        string        `mapstructure:"name"`      // kernel name template
	HostAddr    string        `mapstructure:"host_addr"` // CIDR assigned to the host side, optional
	MTU         int           `mapstructure:"mtu"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// Driver reads and writes frames on the queue of a TAP device.
type Driver struct {
	opts Options
	link *netlink.Tuntap
	file *os.File
}

// New decodes options and creates the device.
func New(options map[string]interface{}) (driver.Driver, error) {
	opts := Options{Name: defaultName, ReadTimeout: defaultReadTimeout}
	if err := driver.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return Open(opts)
}

// Open creates a non-persistent TAP device, brings it up and assigns
// opts.HostAddr.
func Open(opts Options) (*Driver, error) {
	la := netlink.NewLinkAttrs()
	la.Name = opts.Name
	if opts.MTU > 0 {
		la.MTU = opts.MTU
	}

	link := &netlink.Tuntap{
		LinkAttrs:  la,
		Mode:       netlink.TUNTAP_MODE_TAP,
		Flags:      netlink.TUNTAP_NO_PI,
		Queues:     1,
		NonPersist: true,
	}
	if err := netlink.LinkAdd(link); err != nil {
		if errors.Is(err, unix.EPERM) {
			return nil, fmt.Errorf("tap: creating %q needs CAP_NET_ADMIN: %w", opts.Name, err)
		}
		return nil, fmt.Errorf("tap: create %q: %w", opts.Name, err)
	}
	d := &Driver{opts: opts, link: link, file: link.Fds[0]}

	if err := d.configure(); err != nil {
		d.Close()
		return nil, err
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"name":      link.Name,
		"host_addr": opts.HostAddr,
	}).Info("tap driver opened")
	return d, nil
}

func (d *Driver) configure() error {
	if d.opts.MTU > 0 {
		if err := netlink.LinkSetMTU(d.link, d.opts.MTU); err != nil {
			return fmt.Errorf("tap: set mtu %d: %w", d.opts.MTU, err)
		}
	}
	if d.opts.HostAddr != "" {
		addr, err := netlink.ParseAddr(d.opts.HostAddr)
		if err != nil {
			return fmt.Errorf("tap: host_addr %q: %w", d.opts.HostAddr, err)
		}
		if err := netlink.AddrAdd(d.link, addr); err != nil {
			return fmt.Errorf("tap: add address %s: %w", addr, err)
		}
	}
	if err := netlink.LinkSetUp(d.link); err != nil {
		return fmt.Errorf("tap: set %s up: %w", d.link.Name, err)
	}
	return nil
}

// Name returns the kernel name of the device.
func (d *Driver) Name() string { return d.link.Name }

func (d *Driver) ReadFrame(buf []byte) (int, error) {
	if d.opts.ReadTimeout > 0 {
		if err := d.file.SetReadDeadline(time.Now().Add(d.opts.ReadTimeout)); err != nil {
			return 0, classify(err)
		}
	}
	n, err := d.file.Read(buf)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (d *Driver) WriteFrame(b []byte) error {
	if _, err := d.file.Write(b); err != nil {
		return classify(err)
	}
	return nil
}

// Close releases the queue; the kernel removes the device with it.
func (d *Driver) Close() error {
	err := d.file.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	log.GetLogger().WithField("name", d.link.Name).Info("tap driver closed")
	return err
}

func classify(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return core.ErrTimeout
	case errors.Is(err, os.ErrClosed):
		return core.ErrDriverClosed
	default:
		return fmt.Errorf("tap: %w", err)
	}
}
