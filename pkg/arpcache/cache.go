// Package arpcache implements the router's IPv4-to-MAC ARP cache: a
// single mutex-guarded table (delegated here to go-cache's internal
// lock) mapping an IPv4 address to a MAC and an insertion timestamp,
// where entries older than a configured TTL are logically absent.
package arpcache

import (
	"net"
	"net/netip"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// DefaultTTL is the default ARP cache entry lifetime.
const DefaultTTL = 15 * time.Second

// cleanupInterval controls how often go-cache's janitor goroutine purges
// expired entries in the background; lookups also reject stale entries
// on read, so the exact interval only affects memory, not correctness.
const cleanupInterval = 30 * time.Second

// Cache is a TTL-bounded IPv4-to-MAC table. The zero value is not usable;
// construct with New.
type Cache struct {
	c   *cache.Cache
	ttl time.Duration
}

// New creates an ARP cache with the given entry TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		c:   cache.New(ttl, cleanupInterval),
		ttl: ttl,
	}
}

// Lookup returns the MAC for ip if present and not older than the
// configured TTL.
func (c *Cache) Lookup(ip netip.Addr) (net.HardwareAddr, bool) {
	v, ok := c.c.Get(ip.String())
	if !ok {
		return nil, false
	}
	return v.(net.HardwareAddr), true
}

// Insert overwrites any existing entry for ip and refreshes its
// timestamp, learning or refreshing the mapping to mac.
func (c *Cache) Insert(ip netip.Addr, mac net.HardwareAddr) {
	dup := make(net.HardwareAddr, len(mac))
	copy(dup, mac)
	c.c.Set(ip.String(), dup, c.ttl)
}

// Reset discards every entry, used only in tests.
func (c *Cache) Reset() {
	c.c.Flush()
}
