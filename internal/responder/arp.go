package responder

import (
	"firestige.xyz/ethresponder/internal/frame"
)

// handleARP learns the sender and turns a request for our address into the
// reply in place.
func (d *Dispatcher) handleARP(f *frame.Frame, eth frame.Ethernet) (Protocol, error) {
	a, err := frame.ParseARP(eth.Payload())
	if err != nil {
		return ProtoNone, err
	}
	msg, err := a.IPv4OverEthernet()
	if err != nil {
		return ProtoNone, err
	}

	senderMAC, senderIP := msg.SenderMAC(), msg.SenderIP()
	if !msg.IsProbe() {
		d.observe(senderIP, senderMAC)
	}

	if msg.Op() != frame.ARPRequest || msg.TargetIP() != d.cfg.Addr {
		return ProtoNone, nil
	}

	msg.SetOp(frame.ARPReply)
	msg.SetTarget(senderMAC, senderIP)
	msg.SetSender(d.cfg.MAC, d.cfg.Addr)
	eth.SetDestination(senderMAC)
	eth.SetSource(d.cfg.MAC)

	f.Truncate(frame.EthernetHeaderSize + frame.ARPSize)
	return ProtoARP, nil
}
