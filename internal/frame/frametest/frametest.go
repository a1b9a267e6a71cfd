// Package frametest crafts request frames and decodes replies with gopacket
// so that tests check the codec against an independent implementation.
package frametest

import (
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/ethresponder/internal/core"
)

// Host is one end of a test exchange.
type Host struct {
	MAC core.MAC
	IP  netip.Addr
}

// HW converts a MAC into the gopacket representation.
func HW(m core.MAC) net.HardwareAddr { return net.HardwareAddr(m[:]) }

// IP converts an address into the gopacket representation.
func IP(a netip.Addr) net.IP { return net.IP(a.AsSlice()) }

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

// Serialize encodes ls and panics on failure, which only happens on bad
// test input.
func Serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ls...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ARPRequest builds a who-has for target sent by from to broadcast.
func ARPRequest(from Host, target netip.Addr) []byte {
	return Serialize(
		&layers.Ethernet{SrcMAC: HW(from.MAC), DstMAC: HW(core.BroadcastMAC), EthernetType: layers.EthernetTypeARP},
		&layers.ARP{
			AddrType:          layers.LinkTypeEthernet,
			Protocol:          layers.EthernetTypeIPv4,
			HwAddressSize:     6,
			ProtAddressSize:   4,
			Operation:         layers.ARPRequest,
			SourceHwAddress:   HW(from.MAC),
			SourceProtAddress: IP(from.IP),
			DstHwAddress:      make([]byte, 6),
			DstProtAddress:    IP(target),
		},
	)
}

// ipv4 returns the IPv4 layer of a from→to datagram.
func ipv4(from, to Host, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0x1234,
		Protocol: proto,
		SrcIP:    IP(from.IP),
		DstIP:    IP(to.IP),
	}
}

func ether(from, to Host) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: HW(from.MAC), DstMAC: HW(to.MAC), EthernetType: layers.EthernetTypeIPv4}
}

// EchoRequest builds an ICMP echo request.
func EchoRequest(from, to Host, id, seq uint16, data []byte) []byte {
	return Serialize(
		ether(from, to),
		ipv4(from, to, layers.IPProtocolICMPv4),
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: id, Seq: seq},
		gopacket.Payload(data),
	)
}

// UDP builds a UDP datagram with a computed checksum.
func UDP(from, to Host, srcPort, dstPort uint16, payload []byte) []byte {
	ip := ipv4(from, to, layers.IPProtocolUDP)
	u := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	_ = u.SetNetworkLayerForChecksum(ip)
	return Serialize(ether(from, to), ip, u, gopacket.Payload(payload))
}

// TCP builds a single TCP segment.
func TCP(from, to Host, t *layers.TCP, payload []byte) []byte {
	ip := ipv4(from, to, layers.IPProtocolTCP)
	if t.Window == 0 {
		t.Window = 1024
	}
	_ = t.SetNetworkLayerForChecksum(ip)
	return Serialize(ether(from, to), ip, t, gopacket.Payload(payload))
}

// Decode parses b as an Ethernet frame.
func Decode(b []byte) gopacket.Packet {
	return gopacket.NewPacket(b, layers.LayerTypeEthernet, gopacket.Default)
}

// Pad extends b with zeros to the Ethernet minimum of 60 bytes.
func Pad(b []byte) []byte {
	if len(b) >= 60 {
		return b
	}
	return append(b, make([]byte, 60-len(b))...)
}
