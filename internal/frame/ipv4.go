package frame

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/ethresponder/internal/core"
)

/*
|Version 4b|IHL 4b|Type of Service 8b|    Total Length 16b       |
|           fragment ID 16b          |R|DF|MF|Fragment Offset 13b|
|     TTL 8b      |    Protocol 8b   |   Header Checksum 16b     |
|                     Source IP Address 32b                      |
|                  Destination IP Address 32b                    |
*/

const (
	versIHL  = 0
	tos      = 1
	totalLen = 2
	id       = 4
	flagsFO  = 6
	ttl      = 8
	protocol = 9
	checksum = 10
	srcAddr  = 12
	dstAddr  = 16

	// IPv4MinimumSize is the size of an IPv4 header without options.
	IPv4MinimumSize = 20

	// IPv4DefaultTTL is used for synthesized datagrams.
	IPv4DefaultTTL = 64
)

// IP protocol numbers.
const (
	ProtocolICMP uint8 = 1
	ProtocolTCP  uint8 = 6
	ProtocolUDP  uint8 = 17
)

// IPv4Fields describes a header to be encoded.
type IPv4Fields struct {
	TOS         uint8
	TotalLength uint16
	ID          uint16
	TTL         uint8
	Protocol    uint8
	Src         netip.Addr
	Dst         netip.Addr
}

// IPv4 is a view of an IPv4 datagram, trimmed to its total length.
type IPv4 []byte

// ParseIPv4 validates version, header length and total length against the
// bytes available. Link-layer padding beyond the total length is cut off.
func ParseIPv4(b []byte) (IPv4, error) {
	if len(b) < IPv4MinimumSize {
		return nil, fmt.Errorf("ipv4: %d bytes: %w", len(b), core.ErrMalformedFrame)
	}
	if v := b[versIHL] >> 4; v != 4 {
		return nil, fmt.Errorf("ipv4: version %d: %w", v, core.ErrMalformedFrame)
	}
	h := IPv4(b)
	hlen := int(h.HeaderLength())
	tlen := int(h.TotalLength())
	if hlen < IPv4MinimumSize || hlen > tlen || tlen > len(b) {
		return nil, fmt.Errorf("ipv4: ihl=%d total=%d have=%d: %w", hlen, tlen, len(b), core.ErrMalformedFrame)
	}
	return h[:tlen], nil
}

// HeaderLength returns the header length in bytes (IHL*4).
func (b IPv4) HeaderLength() uint8 { return (b[versIHL] & 0xf) * 4 }

// TotalLength returns the "total length" field.
func (b IPv4) TotalLength() uint16 { return binary.BigEndian.Uint16(b[totalLen:]) }

// SetTotalLength sets the "total length" field.
func (b IPv4) SetTotalLength(v uint16) { binary.BigEndian.PutUint16(b[totalLen:], v) }

// ID returns the identification field.
func (b IPv4) ID() uint16 { return binary.BigEndian.Uint16(b[id:]) }

// TTL returns the time-to-live field.
func (b IPv4) TTL() uint8 { return b[ttl] }

// SetTTL sets the time-to-live field.
func (b IPv4) SetTTL(v uint8) { b[ttl] = v }

// Protocol returns the transport protocol number.
func (b IPv4) Protocol() uint8 { return b[protocol] }

// IsFragment reports whether MF is set or the fragment offset is non-zero.
func (b IPv4) IsFragment() bool {
	fo := binary.BigEndian.Uint16(b[flagsFO:])
	return fo&0x2000 != 0 || fo&0x1fff != 0
}

// Checksum returns the header checksum field.
func (b IPv4) Checksum() uint16 { return binary.BigEndian.Uint16(b[checksum:]) }

// SetChecksum sets the header checksum field.
func (b IPv4) SetChecksum(v uint16) { binary.BigEndian.PutUint16(b[checksum:], v) }

// Source returns the source address.
func (b IPv4) Source() netip.Addr { return core.AddrFrom4(b[srcAddr:]) }

// SetSource sets the source address.
func (b IPv4) SetSource(a netip.Addr) {
	a4 := a.As4()
	copy(b[srcAddr:srcAddr+4], a4[:])
}

// Destination returns the destination address.
func (b IPv4) Destination() netip.Addr { return core.AddrFrom4(b[dstAddr:]) }

// SetDestination sets the destination address.
func (b IPv4) SetDestination(a netip.Addr) {
	a4 := a.As4()
	copy(b[dstAddr:dstAddr+4], a4[:])
}

// Payload returns the transport region bounded by the total length.
func (b IPv4) Payload() []byte { return b[b.HeaderLength():b.TotalLength()] }

// CalculateChecksum computes the header checksum with the checksum field
// treated as zero.
func (b IPv4) CalculateChecksum() uint16 {
	hdr := b[:b.HeaderLength()]
	xsum := Checksum(hdr[:checksum], 0)
	return ^Checksum(hdr[checksum+2:], xsum)
}

// UpdateChecksum recomputes and stores the header checksum.
func (b IPv4) UpdateChecksum() { b.SetChecksum(b.CalculateChecksum()) }

// IsChecksumValid reports whether the header sums to all ones.
func (b IPv4) IsChecksumValid() bool {
	return Checksum(b[:b.HeaderLength()], 0) == 0xffff
}

// Encode writes a 20-byte header without options and computes its checksum.
func (b IPv4) Encode(f *IPv4Fields) {
	b[versIHL] = (4 << 4) | (IPv4MinimumSize / 4)
	b[tos] = f.TOS
	b.SetTotalLength(f.TotalLength)
	binary.BigEndian.PutUint16(b[id:], f.ID)
	binary.BigEndian.PutUint16(b[flagsFO:], 0x4000) // DF
	b[ttl] = f.TTL
	b[protocol] = f.Protocol
	b.SetSource(f.Src)
	b.SetDestination(f.Dst)
	b.UpdateChecksum()
}
