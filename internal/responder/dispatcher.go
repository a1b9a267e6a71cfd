// Package responder answers ARP, ICMP echo, CoAP and static HTTP requests
// arriving as raw Ethernet frames, and drives the receive loops.
package responder

import (
	"errors"
	"hash/maphash"
	"net/netip"
	"sync"
	"time"

	"firestige.xyz/ethresponder/internal/arpcache"
	"firestige.xyz/ethresponder/internal/coap"
	"firestige.xyz/ethresponder/internal/core"
	"firestige.xyz/ethresponder/internal/frame"
	"firestige.xyz/ethresponder/internal/gpio"
	"firestige.xyz/ethresponder/internal/log"
	"firestige.xyz/ethresponder/internal/metrics"
	"firestige.xyz/ethresponder/internal/web"
)

// Protocol names the kind of reply a dispatch produced.
type Protocol string

const (
	ProtoNone Protocol = ""
	ProtoARP  Protocol = "arp"
	ProtoICMP Protocol = "icmp"
	ProtoCoAP Protocol = "coap"
	ProtoHTTP Protocol = "http"
)

// Config is the identity and port layout of the responder.
type Config struct {
	MAC        core.MAC
	Addr       netip.Addr
	CoAPPort   uint16
	SitePort   uint16 // 0 disables the page
	StatusPort uint16 // 0 disables the status document
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithCache replaces the default address cache.
func WithCache(c *arpcache.Cache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithSite enables the static HTTP responder.
func WithSite(s *web.Site) Option {
	return func(d *Dispatcher) { d.site = s }
}

// WithLogger sets the logger; the process logger is used otherwise.
func WithLogger(l log.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// Dispatcher classifies one frame at a time and turns it into a reply in
// place. It owns the address cache and the LED pin.
type Dispatcher struct {
	cfg   Config
	cache *arpcache.Cache
	led   gpio.Pin
	site  *web.Site
	log   log.Logger

	// Serializes Dispatch when a poll loop and an interrupt handler share
	// one dispatcher.
	mu sync.Mutex

	// Scratch state reused across frames.
	req   coap.Message
	token [8]byte
	body  []byte
	cf    [4]byte
	opts  [1]coap.Option

	ipID uint16
	seed maphash.Seed
}

// NewDispatcher creates a dispatcher answering for cfg.MAC and cfg.Addr. led
// backs the /led resource.
func NewDispatcher(cfg Config, led gpio.Pin, opts ...Option) *Dispatcher {
	if cfg.CoAPPort == 0 {
		cfg.CoAPPort = coap.DefaultPort
	}
	d := &Dispatcher{
		cfg:  cfg,
		led:  led,
		body: make([]byte, 0, 128),
		seed: maphash.MakeSeed(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cache == nil {
		d.cache = arpcache.New(arpcache.DefaultCapacity)
	}
	if d.log == nil {
		d.log = log.GetLogger()
	}
	d.req.Options = make([]coap.Option, 0, 4)
	return d
}

// Cache returns the address cache.
func (d *Dispatcher) Cache() *arpcache.Cache { return d.cache }

// Dispatch handles f and reports which reply, if any, now occupies it. On
// ProtoNone the frame must not be transmitted.
func (d *Dispatcher) Dispatch(f *frame.Frame) Protocol {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	defer func() { metrics.DispatchSeconds.Observe(time.Since(start).Seconds()) }()

	proto, err := d.handle(f)
	if err != nil {
		d.drop(err)
		return ProtoNone
	}
	return proto
}

func (d *Dispatcher) handle(f *frame.Frame) (Protocol, error) {
	eth, err := frame.ParseEthernet(f.Bytes())
	if err != nil {
		return ProtoNone, err
	}

	switch eth.Type() {
	case frame.EtherTypeARP:
		return d.handleARP(f, eth)
	case frame.EtherTypeIPv4:
		return d.handleIPv4(f, eth)
	default:
		return ProtoNone, nil
	}
}

func (d *Dispatcher) handleIPv4(f *frame.Frame, eth frame.Ethernet) (Protocol, error) {
	ip, err := frame.ParseIPv4(eth.Payload())
	if err != nil {
		return ProtoNone, err
	}
	if !ip.IsChecksumValid() {
		return ProtoNone, errBadChecksum("ipv4")
	}

	if src := eth.Source(); !src.IsBroadcast() {
		d.observe(ip.Source(), src)
	}

	if ip.Destination() != d.cfg.Addr {
		return ProtoNone, nil
	}
	if ip.IsFragment() {
		return ProtoNone, errUnsupported("fragmented datagram")
	}

	switch ip.Protocol() {
	case frame.ProtocolICMP:
		return d.handleICMP(f, eth, ip)
	case frame.ProtocolUDP:
		return d.handleUDP(f, ip)
	case frame.ProtocolTCP:
		if d.site == nil {
			return ProtoNone, nil
		}
		return d.handleTCP(f, ip)
	default:
		return ProtoNone, nil
	}
}

// observe feeds the address cache.
func (d *Dispatcher) observe(addr netip.Addr, mac core.MAC) {
	switch d.cache.Observe(addr, mac) {
	case arpcache.Added:
		metrics.ARPCacheEntries.Set(float64(d.cache.Len()))
		d.log.WithFields(map[string]interface{}{"ip": addr, "mac": mac}).Debug("neighbor learned")
	case arpcache.Updated:
		d.log.WithFields(map[string]interface{}{"ip": addr, "mac": mac}).Debug("neighbor moved")
	case arpcache.Rejected:
		d.log.WithField("ip", addr).Debug("neighbor not learned, cache full")
	}
}

// route addresses a reply to the peer at addr. The link address must have
// been learned.
func (d *Dispatcher) route(addr netip.Addr) (frame.Route, error) {
	mac, ok := d.cache.Lookup(addr)
	if !ok {
		return frame.Route{}, errCacheMiss(addr)
	}
	d.ipID++
	return frame.Route{
		LocalMAC:   d.cfg.MAC,
		RemoteMAC:  mac,
		LocalAddr:  d.cfg.Addr,
		RemoteAddr: addr,
		ID:         d.ipID,
	}, nil
}

func (d *Dispatcher) drop(err error) {
	reason := dropReason(err)
	metrics.FramesDroppedTotal.WithLabelValues(reason).Inc()

	l := d.log.WithError(err).WithField("reason", reason)
	if reason == metrics.DropCacheMiss {
		l.Warn("reply dropped")
		return
	}
	if d.log.IsDebugEnabled() {
		l.Debug("frame dropped")
	}
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, core.ErrMalformedFrame):
		return metrics.DropMalformed
	case errors.Is(err, core.ErrWrongKind):
		return metrics.DropWrongKind
	case errors.Is(err, core.ErrBadChecksum):
		return metrics.DropChecksum
	case errors.Is(err, core.ErrCacheMiss):
		return metrics.DropCacheMiss
	case errors.Is(err, core.ErrFrameTooSmall):
		return metrics.DropTooLarge
	default:
		return metrics.DropUnsupported
	}
}
