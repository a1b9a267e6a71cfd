// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net"
	"net/netip"
)

// MAC is an Ethernet hardware address.
type MAC [6]byte

// BroadcastMAC is ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses a colon or dash separated 48-bit hardware address.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("%w: %q is not a 48-bit address", ErrConfigInvalid, s)
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// IsBroadcast reports whether m is the all-ones address.
func (m MAC) IsBroadcast() bool { return m == BroadcastMAC }

// IsMulticast reports whether the group bit is set (broadcast included).
func (m MAC) IsMulticast() bool { return m[0]&0x01 != 0 }

// IsZero reports whether m is 00:00:00:00:00:00.
func (m MAC) IsZero() bool { return m == MAC{} }

func (m MAC) String() string { return net.HardwareAddr(m[:]).String() }

// AddrFrom4 converts a 4-byte field to an IPv4 netip.Addr.
func AddrFrom4(b []byte) netip.Addr {
	return netip.AddrFrom4([4]byte(b[:4]))
}
