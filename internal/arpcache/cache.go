// Package arpcache holds the IPv4 to link address mappings learned from
// received traffic.
//
// The cache has a fixed number of slots. A new address arriving when every
// slot is taken is rejected; entries are never evicted and never expire, a
// later observation of the same address overwrites its link address.
package arpcache

import (
	"net/netip"

	"firestige.xyz/ethresponder/internal/core"
)

// DefaultCapacity is the slot count used when none is configured.
const DefaultCapacity = 8

// Outcome reports what Observe did.
type Outcome int

const (
	Ignored Outcome = iota
	Added
	Updated
	Unchanged
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Rejected:
		return "rejected"
	default:
		return "ignored"
	}
}

type entry struct {
	addr netip.Addr
	mac  core.MAC
}

// Cache is a bounded IPv4 to MAC map. It is not safe for concurrent use; the
// dispatcher that owns it serializes access.
type Cache struct {
	entries []entry
}

// New creates a cache with capacity slots. A non-positive capacity selects
// DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{entries: make([]entry, 0, capacity)}
}

// Observe learns that addr is reachable at mac. Unspecified, multicast and
// broadcast IPv4 addresses and group MACs are ignored.
func (c *Cache) Observe(addr netip.Addr, mac core.MAC) Outcome {
	if !addr.Is4() || addr.IsUnspecified() || addr.IsMulticast() || addr == broadcast4 {
		return Ignored
	}
	if mac.IsMulticast() || mac.IsZero() {
		return Ignored
	}
	for i := range c.entries {
		e := &c.entries[i]
		if e.addr != addr {
			continue
		}
		if e.mac == mac {
			return Unchanged
		}
		e.mac = mac
		return Updated
	}
	if len(c.entries) == cap(c.entries) {
		return Rejected
	}
	c.entries = append(c.entries, entry{addr: addr, mac: mac})
	return Added
}

// Lookup returns the link address recorded for addr.
func (c *Cache) Lookup(addr netip.Addr) (core.MAC, bool) {
	for _, e := range c.entries {
		if e.addr == addr {
			return e.mac, true
		}
	}
	return core.MAC{}, false
}

// Len returns the number of entries.
func (c *Cache) Len() int { return len(c.entries) }

// Capacity returns the number of slots.
func (c *Cache) Capacity() int { return cap(c.entries) }

// Range calls fn for every entry in insertion order until fn returns false.
func (c *Cache) Range(fn func(addr netip.Addr, mac core.MAC) bool) {
	for _, e := range c.entries {
		if !fn(e.addr, e.mac) {
			return
		}
	}
}

var broadcast4 = netip.AddrFrom4([4]byte{255, 255, 255, 255})
