package frame

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/ethresponder/internal/core"
)

const (
	udpSrcPort  = 0
	udpDstPort  = 2
	udpLength   = 4
	udpChecksum = 6

	// UDPMinimumSize is the size of a UDP header.
	UDPMinimumSize = 8
)

// UDP is a view of a UDP datagram, trimmed to its length field.
type UDP []byte

// ParseUDP validates the header and the length field against b.
func ParseUDP(b []byte) (UDP, error) {
	if len(b) < UDPMinimumSize {
		return nil, fmt.Errorf("udp: %d bytes: %w", len(b), core.ErrMalformedFrame)
	}
	u := UDP(b)
	l := int(u.Length())
	if l < UDPMinimumSize || l > len(b) {
		return nil, fmt.Errorf("udp: length %d, have %d: %w", l, len(b), core.ErrMalformedFrame)
	}
	return u[:l], nil
}

// SourcePort returns the source port.
func (b UDP) SourcePort() uint16 { return binary.BigEndian.Uint16(b[udpSrcPort:]) }

// DestinationPort returns the destination port.
func (b UDP) DestinationPort() uint16 { return binary.BigEndian.Uint16(b[udpDstPort:]) }

// Length returns the length field, header included.
func (b UDP) Length() uint16 { return binary.BigEndian.Uint16(b[udpLength:]) }

// Checksum returns the checksum field.
func (b UDP) Checksum() uint16 { return binary.BigEndian.Uint16(b[udpChecksum:]) }

// SetChecksum sets the checksum field.
func (b UDP) SetChecksum(v uint16) { binary.BigEndian.PutUint16(b[udpChecksum:], v) }

// Payload returns the datagram body.
func (b UDP) Payload() []byte { return b[UDPMinimumSize:] }

// Encode writes ports and length; the checksum field is zeroed.
func (b UDP) Encode(srcPort, dstPort, length uint16) {
	binary.BigEndian.PutUint16(b[udpSrcPort:], srcPort)
	binary.BigEndian.PutUint16(b[udpDstPort:], dstPort)
	binary.BigEndian.PutUint16(b[udpLength:], length)
	b.SetChecksum(0)
}

// UpdateChecksum computes the checksum over the pseudo-header and the whole
// datagram. A computed zero is sent as all ones.
func (b UDP) UpdateChecksum(src, dst netip.Addr) {
	b.SetChecksum(0)
	xsum := PseudoHeaderChecksum(ProtocolUDP, src, dst, uint16(len(b)))
	xsum = ^Checksum(b, xsum)
	if xsum == 0 {
		xsum = 0xffff
	}
	b.SetChecksum(xsum)
}

// IsChecksumValid reports whether the datagram verifies. A zero checksum
// field means the sender did not compute one.
func (b UDP) IsChecksumValid(src, dst netip.Addr) bool {
	if b.Checksum() == 0 {
		return true
	}
	xsum := PseudoHeaderChecksum(ProtocolUDP, src, dst, uint16(len(b)))
	return Checksum(b, xsum) == 0xffff
}
