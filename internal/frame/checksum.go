// Package frame implements zero-copy Ethernet/ARP/IPv4/ICMP/UDP/TCP views over
// a single reusable frame buffer, plus Internet checksum arithmetic.
package frame

import (
	"encoding/binary"
	"net/netip"
)

// Checksum returns the one's-complement sum of buf folded to 16 bits, seeded
// with initial. The result is not inverted; header checksums store ^Checksum.
// An odd trailing byte is padded with a zero low byte.
func Checksum(buf []byte, initial uint16) uint16 {
	v := uint32(initial)

	l := len(buf)
	if l&1 != 0 {
		l--
		v += uint32(buf[l]) << 8
	}

	for i := 0; i < l; i += 2 {
		v += (uint32(buf[i]) << 8) + uint32(buf[i+1])
	}

	return ChecksumCombine(uint16(v), uint16(v>>16))
}

// ChecksumCombine adds two partial checksums with end-around carry.
func ChecksumCombine(a, b uint16) uint16 {
	v := uint32(a) + uint32(b)
	return uint16(v + v>>16)
}

// PseudoHeaderChecksum is the partial checksum of the IPv4 pseudo-header used
// by UDP and TCP: source, destination, zero, protocol and segment length.
func PseudoHeaderChecksum(protocol uint8, src, dst netip.Addr, length uint16) uint16 {
	s, d := src.As4(), dst.As4()
	xsum := Checksum(s[:], 0)
	xsum = Checksum(d[:], xsum)

	var tail [4]byte
	tail[1] = protocol
	binary.BigEndian.PutUint16(tail[2:], length)
	return Checksum(tail[:], xsum)
}
