package frame

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/ethresponder/internal/core"
)

const (
	// ARPSize is the size of an IPv4-over-Ethernet ARP message.
	ARPSize = 2 + 2 + 1 + 1 + 2 + 2*6 + 2*4 // 28 bytes

	arpFixedSize  = 8
	arpHTypeEther = 1
	arpMACSize    = 6
	arpIPv4Size   = 4
	arpSenderMAC  = 8
	arpSenderIP   = 14
	arpTargetMAC  = 18
	arpTargetIP   = 24
)

// ARPOp is the ARP operation code (RFC 826).
type ARPOp uint16

const (
	ARPRequest ARPOp = 1
	ARPReply   ARPOp = 2
)

func (op ARPOp) String() string {
	switch op {
	case ARPRequest:
		return "request"
	case ARPReply:
		return "reply"
	default:
		return fmt.Sprintf("op(%d)", uint16(op))
	}
}

/*
ARP is a view of a generic ARP message whose address sizes are not yet known
to be Ethernet/IPv4.

| hardware type 2B | protocol type 2B | hlen 1B | plen 1B | op 2B |
| sender hw (hlen) | sender proto (plen) | target hw (hlen) | target proto (plen) |
*/
type ARP []byte

// ParseARP validates the fixed part and that the variable-size addresses
// announced by hlen/plen fit in b.
func ParseARP(b []byte) (ARP, error) {
	if len(b) < arpFixedSize {
		return nil, fmt.Errorf("arp: %d bytes: %w", len(b), core.ErrMalformedFrame)
	}
	a := ARP(b)
	need := arpFixedSize + 2*a.HardwareSize() + 2*a.ProtocolSize()
	if len(b) < need {
		return nil, fmt.Errorf("arp: need %d bytes, have %d: %w", need, len(b), core.ErrMalformedFrame)
	}
	return a[:need], nil
}

// HardwareType returns the hardware address space (1 = Ethernet).
func (a ARP) HardwareType() uint16 { return binary.BigEndian.Uint16(a[0:]) }

// ProtocolType returns the protocol address space as an ethertype.
func (a ARP) ProtocolType() EtherType { return EtherType(binary.BigEndian.Uint16(a[2:])) }

// HardwareSize returns the hardware address length.
func (a ARP) HardwareSize() int { return int(a[4]) }

// ProtocolSize returns the protocol address length.
func (a ARP) ProtocolSize() int { return int(a[5]) }

// Op returns the operation code.
func (a ARP) Op() ARPOp { return ARPOp(binary.BigEndian.Uint16(a[6:])) }

// IPv4OverEthernet narrows a to an Ethernet/IPv4 ARP message. Any other
// address space or size combination is a different kind of message.
func (a ARP) IPv4OverEthernet() (ARPv4, error) {
	if a.HardwareType() != arpHTypeEther ||
		a.ProtocolType() != EtherTypeIPv4 ||
		a.HardwareSize() != arpMACSize ||
		a.ProtocolSize() != arpIPv4Size {
		return nil, fmt.Errorf("arp: htype=%d ptype=%v hlen=%d plen=%d: %w",
			a.HardwareType(), a.ProtocolType(), a.HardwareSize(), a.ProtocolSize(), core.ErrWrongKind)
	}
	return ARPv4(a[:ARPSize]), nil
}

// ARPv4 is an ARP message known to carry Ethernet and IPv4 addresses.
type ARPv4 []byte

// Op returns the operation code.
func (a ARPv4) Op() ARPOp { return ARPOp(binary.BigEndian.Uint16(a[6:])) }

// SetOp sets the operation code.
func (a ARPv4) SetOp(op ARPOp) { binary.BigEndian.PutUint16(a[6:], uint16(op)) }

// SenderMAC returns the sender hardware address.
func (a ARPv4) SenderMAC() core.MAC { return macAt(a[arpSenderMAC:]) }

// SenderIP returns the sender protocol address.
func (a ARPv4) SenderIP() netip.Addr { return core.AddrFrom4(a[arpSenderIP:]) }

// TargetMAC returns the target hardware address.
func (a ARPv4) TargetMAC() core.MAC { return macAt(a[arpTargetMAC:]) }

// TargetIP returns the target protocol address.
func (a ARPv4) TargetIP() netip.Addr { return core.AddrFrom4(a[arpTargetIP:]) }

// SetSender sets the sender hardware and protocol addresses.
func (a ARPv4) SetSender(mac core.MAC, ip netip.Addr) {
	copy(a[arpSenderMAC:arpSenderMAC+6], mac[:])
	ip4 := ip.As4()
	copy(a[arpSenderIP:arpSenderIP+4], ip4[:])
}

// SetTarget sets the target hardware and protocol addresses.
func (a ARPv4) SetTarget(mac core.MAC, ip netip.Addr) {
	copy(a[arpTargetMAC:arpTargetMAC+6], mac[:])
	ip4 := ip.As4()
	copy(a[arpTargetIP:arpTargetIP+4], ip4[:])
}

// IsProbe reports whether a is an address probe (RFC 5227), which carries an
// all-zero sender protocol address.
func (a ARPv4) IsProbe() bool {
	return a.SenderIP() == netip.IPv4Unspecified()
}

// SetIPv4OverEthernet writes the fixed address-space fields.
func (a ARPv4) SetIPv4OverEthernet() {
	binary.BigEndian.PutUint16(a[0:], arpHTypeEther)
	binary.BigEndian.PutUint16(a[2:], uint16(EtherTypeIPv4))
	a[4] = arpMACSize
	a[5] = arpIPv4Size
}
