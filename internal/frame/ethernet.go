package frame

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/ethresponder/internal/core"
)

const (
	dstMAC  = 0
	srcMAC  = 6
	ethType = 12

	// EthernetHeaderSize is the size of an untagged Ethernet II header.
	EthernetHeaderSize = 14
)

// EtherType discriminates the protocol carried by an Ethernet frame.
type EtherType uint16

// EtherType values handled by the responder.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

func (t EtherType) String() string {
	switch t {
	case EtherTypeIPv4:
		return "IPv4"
	case EtherTypeARP:
		return "ARP"
	default:
		return fmt.Sprintf("0x%04x", uint16(t))
	}
}

// Ethernet is a view of an Ethernet II frame.
//
// |dst 6B|src 6B|type 2B|payload...|
type Ethernet []byte

// ParseEthernet validates that b can hold an Ethernet header.
func ParseEthernet(b []byte) (Ethernet, error) {
	if len(b) < EthernetHeaderSize {
		return nil, fmt.Errorf("ethernet: %d bytes: %w", len(b), core.ErrMalformedFrame)
	}
	return Ethernet(b), nil
}

// Destination returns the destination hardware address.
func (e Ethernet) Destination() core.MAC { return macAt(e[dstMAC:]) }

// SetDestination sets the destination hardware address.
func (e Ethernet) SetDestination(m core.MAC) { copy(e[dstMAC:dstMAC+6], m[:]) }

// Source returns the source hardware address.
func (e Ethernet) Source() core.MAC { return macAt(e[srcMAC:]) }

// SetSource sets the source hardware address.
func (e Ethernet) SetSource(m core.MAC) { copy(e[srcMAC:srcMAC+6], m[:]) }

// Type returns the ethertype field.
func (e Ethernet) Type() EtherType { return EtherType(binary.BigEndian.Uint16(e[ethType:])) }

// SetType sets the ethertype field.
func (e Ethernet) SetType(t EtherType) { binary.BigEndian.PutUint16(e[ethType:], uint16(t)) }

// Payload returns everything after the header, link padding included.
func (e Ethernet) Payload() []byte { return e[EthernetHeaderSize:] }

// Encode writes all header fields.
func (e Ethernet) Encode(dst, src core.MAC, t EtherType) {
	e.SetDestination(dst)
	e.SetSource(src)
	e.SetType(t)
}

func macAt(b []byte) (m core.MAC) {
	copy(m[:], b[:6])
	return m
}
