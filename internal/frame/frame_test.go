package frame

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ethresponder/internal/core"
	"firestige.xyz/ethresponder/internal/frame/frametest"
)

var (
	peer = frametest.Host{MAC: core.MAC{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}, IP: netip.MustParseAddr("192.168.1.50")}
	self = frametest.Host{MAC: core.MAC{0x20, 0x18, 0x03, 0x01, 0x00, 0x00}, IP: netip.MustParseAddr("192.168.1.2")}
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint16
	}{
		{"empty", nil, 0},
		{"even", []byte{0x00, 0x01, 0xf2, 0x03}, 0xf204},
		{"odd", []byte{0x01}, 0x0100},
		{"carry", []byte{0xff, 0xff, 0x00, 0x01}, 0x0001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Checksum(tt.in, 0))
		})
	}
}

func TestParseEthernet(t *testing.T) {
	_, err := ParseEthernet(make([]byte, EthernetHeaderSize-1))
	require.ErrorIs(t, err, core.ErrMalformedFrame)

	b := frametest.ARPRequest(peer, self.IP)
	eth, err := ParseEthernet(b)
	require.NoError(t, err)
	assert.Equal(t, core.BroadcastMAC, eth.Destination())
	assert.Equal(t, peer.MAC, eth.Source())
	assert.Equal(t, EtherTypeARP, eth.Type())
	assert.Equal(t, "ARP", eth.Type().String())
	assert.Equal(t, "0x86dd", EtherType(0x86dd).String())
}

func TestParseARP(t *testing.T) {
	b := frametest.ARPRequest(peer, self.IP)
	eth, err := ParseEthernet(b)
	require.NoError(t, err)

	a, err := ParseARP(eth.Payload())
	require.NoError(t, err)
	assert.Len(t, []byte(a), ARPSize, "link padding must be cut off")

	v4, err := a.IPv4OverEthernet()
	require.NoError(t, err)
	assert.Equal(t, ARPRequest, v4.Op())
	assert.Equal(t, peer.MAC, v4.SenderMAC())
	assert.Equal(t, peer.IP, v4.SenderIP())
	assert.Equal(t, self.IP, v4.TargetIP())
	assert.False(t, v4.IsProbe())

	t.Run("truncated", func(t *testing.T) {
		_, err := ParseARP(eth.Payload()[:20])
		assert.ErrorIs(t, err, core.ErrMalformedFrame)
		_, err = ParseARP(eth.Payload()[:4])
		assert.ErrorIs(t, err, core.ErrMalformedFrame)
	})

	t.Run("wrong kind", func(t *testing.T) {
		c := append([]byte(nil), eth.Payload()...)
		c[1] = 6 // IEEE 802 hardware type
		a, err := ParseARP(c)
		require.NoError(t, err)
		_, err = a.IPv4OverEthernet()
		assert.ErrorIs(t, err, core.ErrWrongKind)
	})

	t.Run("probe", func(t *testing.T) {
		c := append([]byte(nil), eth.Payload()...)
		ARPv4(c).SetSender(peer.MAC, netip.IPv4Unspecified())
		assert.True(t, ARPv4(c).IsProbe())
	})
}

func TestParseIPv4(t *testing.T) {
	b := frametest.EchoRequest(peer, self, 1, 2, []byte("abc"))
	eth, err := ParseEthernet(b)
	require.NoError(t, err)

	ip, err := ParseIPv4(eth.Payload())
	require.NoError(t, err)
	assert.Equal(t, uint8(IPv4MinimumSize), ip.HeaderLength())
	assert.Equal(t, int(ip.TotalLength()), len(ip))
	assert.Equal(t, ProtocolICMP, ip.Protocol())
	assert.Equal(t, peer.IP, ip.Source())
	assert.Equal(t, self.IP, ip.Destination())
	assert.True(t, ip.IsChecksumValid())
	assert.False(t, ip.IsFragment())

	ip.SetTTL(ip.TTL() - 1)
	assert.False(t, ip.IsChecksumValid())
	ip.UpdateChecksum()
	assert.True(t, ip.IsChecksumValid())

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:IPv4MinimumSize-1] }},
		{"version", func(b []byte) []byte { b[0] = 0x65; return b }},
		{"ihl", func(b []byte) []byte { b[0] = 0x44; return b }},
		{"total length exceeds buffer", func(b []byte) []byte { b[2], b[3] = 0x05, 0xdc; return b }},
		{"total length below ihl", func(b []byte) []byte { b[2], b[3] = 0, 10; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := append([]byte(nil), eth.Payload()...)
			_, err := ParseIPv4(tt.mutate(c))
			assert.ErrorIs(t, err, core.ErrMalformedFrame)
		})
	}
}

func TestICMPv4(t *testing.T) {
	b := frametest.EchoRequest(peer, self, 0xbeef, 7, []byte("ping"))
	eth, _ := ParseEthernet(b)
	ip, err := ParseIPv4(eth.Payload())
	require.NoError(t, err)

	m, err := ParseICMPv4(ip.Payload())
	require.NoError(t, err)
	assert.Equal(t, ICMPv4EchoRequest, m.Type())
	assert.Equal(t, uint8(0), m.Code())
	assert.Equal(t, uint16(0xbeef), m.Ident())
	assert.Equal(t, uint16(7), m.Sequence())
	assert.Equal(t, []byte("ping"), m.Data())
	assert.True(t, m.IsChecksumValid())

	m.SetType(ICMPv4EchoReply)
	assert.False(t, m.IsChecksumValid())
	m.UpdateChecksum()
	assert.True(t, m.IsChecksumValid())

	_, err = ParseICMPv4(ip.Payload()[:4])
	assert.ErrorIs(t, err, core.ErrMalformedFrame)
}

func TestUDP(t *testing.T) {
	b := frametest.UDP(peer, self, 40000, 5683, []byte("hello"))
	eth, _ := ParseEthernet(b)
	ip, err := ParseIPv4(eth.Payload())
	require.NoError(t, err)

	u, err := ParseUDP(ip.Payload())
	require.NoError(t, err)
	assert.Equal(t, uint16(40000), u.SourcePort())
	assert.Equal(t, uint16(5683), u.DestinationPort())
	assert.Equal(t, []byte("hello"), u.Payload())
	assert.True(t, u.IsChecksumValid(ip.Source(), ip.Destination()))

	want := u.Checksum()
	u.UpdateChecksum(ip.Source(), ip.Destination())
	assert.Equal(t, want, u.Checksum())

	u.Payload()[0] ^= 0xff
	assert.False(t, u.IsChecksumValid(ip.Source(), ip.Destination()))
	u.SetChecksum(0)
	assert.True(t, u.IsChecksumValid(ip.Source(), ip.Destination()), "zero disables verification")

	c := append([]byte(nil), ip.Payload()...)
	c[4], c[5] = 0x01, 0x00
	_, err = ParseUDP(c)
	assert.ErrorIs(t, err, core.ErrMalformedFrame)
}

func TestTCP(t *testing.T) {
	b := frametest.TCP(peer, self, &layers.TCP{SrcPort: 50000, DstPort: 80, Seq: 100, SYN: true}, nil)
	eth, _ := ParseEthernet(b)
	ip, err := ParseIPv4(eth.Payload())
	require.NoError(t, err)

	seg, err := ParseTCP(ip.Payload())
	require.NoError(t, err)
	assert.Equal(t, uint16(50000), seg.SourcePort())
	assert.Equal(t, uint16(80), seg.DestinationPort())
	assert.Equal(t, uint32(100), seg.SequenceNumber())
	assert.True(t, seg.Flags().Has(TCPFlagSyn))
	assert.False(t, seg.Flags().Has(TCPFlagAck))
	assert.Equal(t, "SYN", seg.Flags().String())
	assert.Equal(t, "FIN|PSH|ACK", (TCPFlagFin | TCPFlagPsh | TCPFlagAck).String())
	assert.Empty(t, seg.Payload())
	assert.True(t, seg.IsChecksumValid(ip.Source(), ip.Destination()))
}

func TestFrameRecycle(t *testing.T) {
	f := New(DefaultFrameSize)
	n := copy(f.Buffer(), frametest.UDP(peer, self, 40000, 5683, []byte("req")))
	require.NoError(t, f.SetLength(n))
	require.NotNil(t, f.Bytes())

	bld := f.Recycle()
	assert.True(t, f.Consumed())
	assert.Nil(t, f.Bytes(), "request must not be readable after recycle")

	payload := []byte("reply body")
	copy(bld.UDPPayload(), payload)
	route := &Route{LocalMAC: self.MAC, RemoteMAC: peer.MAC, LocalAddr: self.IP, RemoteAddr: peer.IP}
	require.NoError(t, bld.FinishUDP(route, 5683, 40000, len(payload)))
	require.False(t, f.Consumed())

	pkt := frametest.Decode(f.Bytes())
	require.Nil(t, pkt.ErrorLayer())
	eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	assert.Equal(t, frametest.HW(peer.MAC), eth.DstMAC)
	assert.Equal(t, frametest.HW(self.MAC), eth.SrcMAC)
	ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	assert.True(t, ip.DstIP.Equal(frametest.IP(peer.IP)))
	assert.Equal(t, uint8(IPv4DefaultTTL), ip.TTL)
	udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, layers.UDPPort(5683), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(40000), udp.DstPort)
	assert.Equal(t, payload, udp.Payload)

	// cross-check both checksums against gopacket
	want := frametest.UDP(self, peer, 5683, 40000, payload)
	wantUDP := frametest.Decode(want).Layer(layers.LayerTypeUDP).(*layers.UDP)
	assert.Equal(t, wantUDP.Checksum, udp.Checksum)
	parsed, err := ParseIPv4(f.Bytes()[EthernetHeaderSize:])
	require.NoError(t, err)
	assert.True(t, parsed.IsChecksumValid())
}

func TestFinishTooLarge(t *testing.T) {
	f := New(MinFrameSize)
	bld := f.Recycle()
	err := bld.FinishUDP(&Route{}, 1, 2, MinFrameSize)
	assert.ErrorIs(t, err, core.ErrFrameTooSmall)
	assert.Nil(t, f.Bytes())

	err = bld.FinishTCP(&Route{}, &TCPFields{}, MinFrameSize)
	assert.ErrorIs(t, err, core.ErrFrameTooSmall)
}

func TestFinishTCP(t *testing.T) {
	f := New(DefaultFrameSize)
	bld := f.Recycle()
	body := []byte("HTTP/1.1 200 OK\r\n\r\n")
	copy(bld.TCPPayload(), body)
	route := &Route{LocalMAC: self.MAC, RemoteMAC: peer.MAC, LocalAddr: self.IP, RemoteAddr: peer.IP}
	require.NoError(t, bld.FinishTCP(route, &TCPFields{
		SrcPort: 80, DstPort: 50000, Seq: 1, Ack: 2,
		Flags: TCPFlagAck | TCPFlagPsh | TCPFlagFin, Window: 1024,
	}, len(body)))

	pkt := frametest.Decode(f.Bytes())
	tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	assert.True(t, tcp.ACK && tcp.PSH && tcp.FIN)
	assert.Equal(t, uint32(1), tcp.Seq)
	assert.Equal(t, uint32(2), tcp.Ack)
	assert.Equal(t, body, tcp.Payload)

	seg, err := ParseTCP(f.Bytes()[EthernetHeaderSize+IPv4MinimumSize:])
	require.NoError(t, err)
	assert.True(t, seg.IsChecksumValid(self.IP, peer.IP))
}

func TestFrameLength(t *testing.T) {
	f := New(1)
	assert.Equal(t, MinFrameSize, f.Cap())
	assert.Equal(t, MaxFrameSize, New(1<<20).Cap())

	require.ErrorIs(t, f.SetLength(f.Cap()+1), core.ErrFrameTooSmall)
	require.NoError(t, f.SetLength(100))
	f.Truncate(200)
	assert.Equal(t, 100, f.Len())
	f.Truncate(42)
	assert.Equal(t, 42, f.Len())
	assert.Len(t, f.Bytes(), 42)
}

func TestPool(t *testing.T) {
	p := NewPool(1, MinFrameSize)
	assert.Equal(t, 1, p.Capacity())

	f, err := p.Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.SetLength(10))
	_, ok := p.TryGet()
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Put(f)
	assert.Equal(t, 1, p.Available())
	g, ok := p.TryGet()
	require.True(t, ok)
	assert.Same(t, f, g)
	assert.Zero(t, g.Len())
}
