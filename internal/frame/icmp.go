package frame

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/ethresponder/internal/core"
)

/*
|     Type      |     Code      |          Checksum             |
|          Identifier           |        Sequence Number        |
|                          Data ...                             |
*/

const (
	// ICMPv4MinimumSize covers type, code, checksum and the 4-byte rest-of-header.
	ICMPv4MinimumSize = 8

	icmpChecksum = 2
)

// ICMPv4Type is the ICMP message type.
type ICMPv4Type uint8

const (
	ICMPv4EchoReply   ICMPv4Type = 0
	ICMPv4EchoRequest ICMPv4Type = 8
)

// ICMPv4 is a view of an ICMP message; it spans the whole IPv4 payload since
// the checksum covers the data.
type ICMPv4 []byte

// ParseICMPv4 validates that b holds at least the fixed header.
func ParseICMPv4(b []byte) (ICMPv4, error) {
	if len(b) < ICMPv4MinimumSize {
		return nil, fmt.Errorf("icmp: %d bytes: %w", len(b), core.ErrMalformedFrame)
	}
	return ICMPv4(b), nil
}

// Type returns the message type.
func (b ICMPv4) Type() ICMPv4Type { return ICMPv4Type(b[0]) }

// SetType sets the message type.
func (b ICMPv4) SetType(t ICMPv4Type) { b[0] = byte(t) }

// Code returns the message code.
func (b ICMPv4) Code() uint8 { return b[1] }

// SetCode sets the message code.
func (b ICMPv4) SetCode(c uint8) { b[1] = c }

// Checksum returns the checksum field.
func (b ICMPv4) Checksum() uint16 { return binary.BigEndian.Uint16(b[icmpChecksum:]) }

// SetChecksum sets the checksum field.
func (b ICMPv4) SetChecksum(v uint16) { binary.BigEndian.PutUint16(b[icmpChecksum:], v) }

// Ident returns the echo identifier.
func (b ICMPv4) Ident() uint16 { return binary.BigEndian.Uint16(b[4:]) }

// Sequence returns the echo sequence number.
func (b ICMPv4) Sequence() uint16 { return binary.BigEndian.Uint16(b[6:]) }

// Data returns the bytes after the rest-of-header.
func (b ICMPv4) Data() []byte { return b[ICMPv4MinimumSize:] }

// UpdateChecksum recomputes the checksum over the whole message.
func (b ICMPv4) UpdateChecksum() {
	b.SetChecksum(0)
	b.SetChecksum(^Checksum(b, 0))
}

// IsChecksumValid reports whether the message sums to all ones.
func (b ICMPv4) IsChecksumValid() bool { return Checksum(b, 0) == 0xffff }
