package frame

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/ethresponder/internal/core"
)

const (
	tcpSrcPort    = 0
	tcpDstPort    = 2
	tcpSeqNum     = 4
	tcpAckNum     = 8
	tcpDataOffset = 12
	tcpFlags      = 13
	tcpWindow     = 14
	tcpChecksum   = 16
	tcpUrgent     = 18

	// TCPMinimumSize is the size of a TCP header without options.
	TCPMinimumSize = 20
)

// TCPFlags is the TCP control bit set.
type TCPFlags uint8

const (
	TCPFlagFin TCPFlags = 1 << iota
	TCPFlagSyn
	TCPFlagRst
	TCPFlagPsh
	TCPFlagAck
	TCPFlagUrg
)

// Has reports whether all bits of m are set.
func (f TCPFlags) Has(m TCPFlags) bool { return f&m == m }

func (f TCPFlags) String() string {
	names := []string{"FIN", "SYN", "RST", "PSH", "ACK", "URG"}
	var parts []string
	for i, n := range names {
		if f&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// TCPFields describes a header to be encoded. Options are never written.
type TCPFields struct {
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Ack     uint32
	Flags   TCPFlags
	Window  uint16
}

// TCP is a view of a TCP segment spanning the IPv4 payload.
type TCP []byte

// ParseTCP validates the header and data offset against b.
func ParseTCP(b []byte) (TCP, error) {
	if len(b) < TCPMinimumSize {
		return nil, fmt.Errorf("tcp: %d bytes: %w", len(b), core.ErrMalformedFrame)
	}
	t := TCP(b)
	if off := int(t.DataOffset()); off < TCPMinimumSize || off > len(b) {
		return nil, fmt.Errorf("tcp: data offset %d, have %d: %w", off, len(b), core.ErrMalformedFrame)
	}
	return t, nil
}

// SourcePort returns the source port.
func (b TCP) SourcePort() uint16 { return binary.BigEndian.Uint16(b[tcpSrcPort:]) }

// DestinationPort returns the destination port.
func (b TCP) DestinationPort() uint16 { return binary.BigEndian.Uint16(b[tcpDstPort:]) }

// SequenceNumber returns the sequence number.
func (b TCP) SequenceNumber() uint32 { return binary.BigEndian.Uint32(b[tcpSeqNum:]) }

// AckNumber returns the acknowledgement number.
func (b TCP) AckNumber() uint32 { return binary.BigEndian.Uint32(b[tcpAckNum:]) }

// DataOffset returns the header length in bytes.
func (b TCP) DataOffset() uint8 { return (b[tcpDataOffset] >> 4) * 4 }

// Flags returns the control bits.
func (b TCP) Flags() TCPFlags { return TCPFlags(b[tcpFlags] & 0x3f) }

// Checksum returns the checksum field.
func (b TCP) Checksum() uint16 { return binary.BigEndian.Uint16(b[tcpChecksum:]) }

// Payload returns the segment data.
func (b TCP) Payload() []byte { return b[b.DataOffset():] }

// Encode writes a 20-byte header and zeroes the checksum.
func (b TCP) Encode(f *TCPFields) {
	binary.BigEndian.PutUint16(b[tcpSrcPort:], f.SrcPort)
	binary.BigEndian.PutUint16(b[tcpDstPort:], f.DstPort)
	binary.BigEndian.PutUint32(b[tcpSeqNum:], f.Seq)
	binary.BigEndian.PutUint32(b[tcpAckNum:], f.Ack)
	b[tcpDataOffset] = (TCPMinimumSize / 4) << 4
	b[tcpFlags] = byte(f.Flags)
	binary.BigEndian.PutUint16(b[tcpWindow:], f.Window)
	binary.BigEndian.PutUint16(b[tcpChecksum:], 0)
	binary.BigEndian.PutUint16(b[tcpUrgent:], 0)
}

// UpdateChecksum computes the checksum over the pseudo-header and the whole
// segment.
func (b TCP) UpdateChecksum(src, dst netip.Addr) {
	binary.BigEndian.PutUint16(b[tcpChecksum:], 0)
	xsum := PseudoHeaderChecksum(ProtocolTCP, src, dst, uint16(len(b)))
	binary.BigEndian.PutUint16(b[tcpChecksum:], ^Checksum(b, xsum))
}

// IsChecksumValid reports whether the segment verifies.
func (b TCP) IsChecksumValid(src, dst netip.Addr) bool {
	xsum := PseudoHeaderChecksum(ProtocolTCP, src, dst, uint16(len(b)))
	return Checksum(b, xsum) == 0xffff
}
