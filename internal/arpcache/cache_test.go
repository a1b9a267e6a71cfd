package arpcache

import (
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ethresponder/internal/core"
)

func addr(i int) netip.Addr { return netip.AddrFrom4([4]byte{192, 168, 1, byte(i)}) }

func mac(i int) core.MAC { return core.MAC{0x02, 0, 0, 0, 0, byte(i)} }

func TestObserveAndLookup(t *testing.T) {
	c := New(4)
	assert.Equal(t, Added, c.Observe(addr(1), mac(1)))
	assert.Equal(t, Unchanged, c.Observe(addr(1), mac(1)))
	assert.Equal(t, Updated, c.Observe(addr(1), mac(9)))

	got, ok := c.Lookup(addr(1))
	require.True(t, ok)
	assert.Equal(t, mac(9), got)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Lookup(addr(2))
	assert.False(t, ok)
}

func TestRejectOnFull(t *testing.T) {
	c := New(DefaultCapacity)
	for i := 1; i <= DefaultCapacity; i++ {
		require.Equal(t, Added, c.Observe(addr(i), mac(i)), "entry %d", i)
	}

	assert.Equal(t, Rejected, c.Observe(addr(100), mac(100)))
	_, ok := c.Lookup(addr(100))
	assert.False(t, ok, "the entry beyond capacity must stay unresolvable")
	assert.Equal(t, DefaultCapacity, c.Len())

	for i := 1; i <= DefaultCapacity; i++ {
		got, ok := c.Lookup(addr(i))
		require.True(t, ok, "entry %d evicted", i)
		assert.Equal(t, mac(i), got, "entry %d overwritten", i)
	}

	// existing keys still update when full
	assert.Equal(t, Updated, c.Observe(addr(3), mac(33)))
	got, _ := c.Lookup(addr(3))
	assert.Equal(t, mac(33), got)
}

func TestObserveIgnored(t *testing.T) {
	tests := []struct {
		addr netip.Addr
		mac  core.MAC
	}{
		{netip.IPv4Unspecified(), mac(1)},
		{netip.MustParseAddr("255.255.255.255"), mac(1)},
		{netip.MustParseAddr("224.0.0.251"), mac(1)},
		{netip.MustParseAddr("fe80::1"), mac(1)},
		{addr(1), core.BroadcastMAC},
		{addr(1), core.MAC{0x01, 0x00, 0x5e, 0, 0, 1}},
		{addr(1), core.MAC{}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.addr, tt.mac), func(t *testing.T) {
			c := New(2)
			assert.Equal(t, Ignored, c.Observe(tt.addr, tt.mac))
			assert.Zero(t, c.Len())
		})
	}
}

func TestDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, 2, New(2).Capacity())
}

func TestRange(t *testing.T) {
	c := New(3)
	c.Observe(addr(1), mac(1))
	c.Observe(addr(2), mac(2))

	var seen []netip.Addr
	c.Range(func(a netip.Addr, _ core.MAC) bool {
		seen = append(seen, a)
		return true
	})
	assert.Equal(t, []netip.Addr{addr(1), addr(2)}, seen)

	n := 0
	c.Range(func(netip.Addr, core.MAC) bool { n++; return false })
	assert.Equal(t, 1, n)
}
