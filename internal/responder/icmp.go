package responder

import (
	"firestige.xyz/ethresponder/internal/frame"
)

// handleICMP answers an echo request in place: the message keeps its
// identifier, sequence and data, and the addresses are swapped.
func (d *Dispatcher) handleICMP(f *frame.Frame, eth frame.Ethernet, ip frame.IPv4) (Protocol, error) {
	m, err := frame.ParseICMPv4(ip.Payload())
	if err != nil {
		return ProtoNone, err
	}
	if !m.IsChecksumValid() {
		return ProtoNone, errBadChecksum("icmp")
	}
	if m.Type() != frame.ICMPv4EchoRequest || m.Code() != 0 {
		return ProtoNone, nil
	}

	peer := ip.Source()
	mac, ok := d.cache.Lookup(peer)
	if !ok {
		return ProtoNone, errCacheMiss(peer)
	}

	m.SetType(frame.ICMPv4EchoReply)
	m.UpdateChecksum()

	ip.SetDestination(peer)
	ip.SetSource(d.cfg.Addr)
	ip.SetTTL(frame.IPv4DefaultTTL)
	ip.UpdateChecksum()

	eth.SetDestination(mac)
	eth.SetSource(d.cfg.MAC)

	f.Truncate(frame.EthernetHeaderSize + len(ip))
	return ProtoICMP, nil
}
