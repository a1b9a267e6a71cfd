package frame

import (
	"fmt"
	"net/netip"

	"firestige.xyz/ethresponder/internal/core"
)

const (
	udpPayloadOffset = EthernetHeaderSize + IPv4MinimumSize + UDPMinimumSize
	tcpPayloadOffset = EthernetHeaderSize + IPv4MinimumSize + TCPMinimumSize
)

// Route carries the link and network addressing of a reply.
type Route struct {
	LocalMAC   core.MAC
	RemoteMAC  core.MAC
	LocalAddr  netip.Addr
	RemoteAddr netip.Addr
	TTL        uint8
	ID         uint16
}

func (r *Route) ipv4(proto uint8, length int) *IPv4Fields {
	t := r.TTL
	if t == 0 {
		t = IPv4DefaultTTL
	}
	return &IPv4Fields{
		TotalLength: uint16(length),
		ID:          r.ID,
		TTL:         t,
		Protocol:    proto,
		Src:         r.LocalAddr,
		Dst:         r.RemoteAddr,
	}
}

// Builder writes a fresh Ethernet/IPv4/transport nest into a recycled frame.
// The payload is written first through UDPPayload or TCPPayload; a Finish
// call then lays down the headers and commits the length.
type Builder struct {
	f *Frame
}

// UDPPayload returns the region after the UDP header.
func (b *Builder) UDPPayload() []byte { return b.f.buf[udpPayloadOffset:] }

// TCPPayload returns the region after a 20-byte TCP header.
func (b *Builder) TCPPayload() []byte { return b.f.buf[tcpPayloadOffset:] }

// FinishUDP encodes the headers around an n-byte payload and commits the
// frame.
func (b *Builder) FinishUDP(r *Route, srcPort, dstPort uint16, n int) error {
	total := udpPayloadOffset + n
	if n < 0 || total > len(b.f.buf) {
		return fmt.Errorf("udp reply of %d bytes, capacity %d: %w", total, len(b.f.buf), core.ErrFrameTooSmall)
	}
	buf := b.f.buf[:total]
	Ethernet(buf).Encode(r.RemoteMAC, r.LocalMAC, EtherTypeIPv4)
	ip := IPv4(buf[EthernetHeaderSize:])
	ip.Encode(r.ipv4(ProtocolUDP, total-EthernetHeaderSize))
	u := UDP(ip[IPv4MinimumSize:])
	u.Encode(srcPort, dstPort, uint16(UDPMinimumSize+n))
	u.UpdateChecksum(r.LocalAddr, r.RemoteAddr)
	return b.commit(total)
}

// FinishTCP encodes the headers around an n-byte payload and commits the
// frame.
func (b *Builder) FinishTCP(r *Route, t *TCPFields, n int) error {
	total := tcpPayloadOffset + n
	if n < 0 || total > len(b.f.buf) {
		return fmt.Errorf("tcp reply of %d bytes, capacity %d: %w", total, len(b.f.buf), core.ErrFrameTooSmall)
	}
	buf := b.f.buf[:total]
	Ethernet(buf).Encode(r.RemoteMAC, r.LocalMAC, EtherTypeIPv4)
	ip := IPv4(buf[EthernetHeaderSize:])
	ip.Encode(r.ipv4(ProtocolTCP, total-EthernetHeaderSize))
	seg := TCP(ip[IPv4MinimumSize:])
	seg.Encode(t)
	seg.UpdateChecksum(r.LocalAddr, r.RemoteAddr)
	return b.commit(total)
}

func (b *Builder) commit(n int) error {
	return b.f.SetLength(n)
}
