package responder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/maphash"

	"firestige.xyz/ethresponder/internal/core"
	"firestige.xyz/ethresponder/internal/frame"
	"firestige.xyz/ethresponder/internal/web"
)

var httpGet = []byte("GET ")

// handleTCP runs the stateless single-segment HTTP exchange. No connection
// table is kept: every decision is made from the segment alone.
//
//	SYN          -> SYN|ACK
//	"GET " data  -> ACK|PSH|FIN carrying the whole response
//	FIN          -> ACK
func (d *Dispatcher) handleTCP(f *frame.Frame, ip frame.IPv4) (Protocol, error) {
	seg, err := frame.ParseTCP(ip.Payload())
	if err != nil {
		return ProtoNone, err
	}
	if !seg.IsChecksumValid(ip.Source(), ip.Destination()) {
		return ProtoNone, errBadChecksum("tcp")
	}

	port := seg.DestinationPort()
	if port == 0 || (port != d.cfg.SitePort && port != d.cfg.StatusPort) {
		return ProtoNone, nil
	}
	flags := seg.Flags()
	if flags.Has(frame.TCPFlagRst) {
		return ProtoNone, nil
	}

	peer := ip.Source()
	hdr := frame.TCPFields{
		SrcPort: port,
		DstPort: seg.SourcePort(),
		Window:  uint16(min(f.Cap(), 0xffff)),
	}
	data := seg.Payload()

	var resp []byte
	switch {
	case flags.Has(frame.TCPFlagSyn) && !flags.Has(frame.TCPFlagAck):
		hdr.Flags = frame.TCPFlagSyn | frame.TCPFlagAck
		hdr.Seq = d.isn(peer.As4(), hdr.DstPort, port)
		hdr.Ack = seg.SequenceNumber() + 1

	case bytes.HasPrefix(data, httpGet):
		resp = d.httpResponse(port)
		hdr.Flags = frame.TCPFlagAck | frame.TCPFlagPsh | frame.TCPFlagFin
		hdr.Seq = seg.AckNumber()
		hdr.Ack = seg.SequenceNumber() + uint32(len(data))

	case flags.Has(frame.TCPFlagFin):
		hdr.Flags = frame.TCPFlagAck
		hdr.Seq = seg.AckNumber()
		hdr.Ack = seg.SequenceNumber() + uint32(len(data)) + 1

	default:
		return ProtoNone, nil
	}

	if room := f.Cap() - frame.EthernetHeaderSize - frame.IPv4MinimumSize - frame.TCPMinimumSize; len(resp) > room {
		return ProtoNone, fmt.Errorf("http response of %d bytes, room %d: %w", len(resp), room, core.ErrFrameTooSmall)
	}
	r, err := d.route(peer)
	if err != nil {
		return ProtoNone, err
	}

	// resp never aliases the request: it is either the prebuilt page or
	// the scratch body.
	b := f.Recycle()
	n := copy(b.TCPPayload(), resp)
	if err := b.FinishTCP(&r, &hdr, n); err != nil {
		return ProtoNone, err
	}
	return ProtoHTTP, nil
}

func (d *Dispatcher) httpResponse(port uint16) []byte {
	if port == d.cfg.SitePort {
		return d.site.Response()
	}
	d.body = web.AppendStatus(d.body[:0], d.led.Level())
	return d.body
}

// isn derives the initial sequence number from the peer's tuple, so a
// retransmitted SYN gets the same answer.
func (d *Dispatcher) isn(peer [4]byte, peerPort, localPort uint16) uint32 {
	var tuple [8]byte
	copy(tuple[:4], peer[:])
	binary.BigEndian.PutUint16(tuple[4:], peerPort)
	binary.BigEndian.PutUint16(tuple[6:], localPort)
	return uint32(maphash.Bytes(d.seed, tuple[:]))
}
