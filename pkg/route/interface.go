// Package route holds the per-router interface list and routing table.
// Both are assembled once from the protocol driver's configuration
// handshake and are never mutated afterwards, so lookups need no lock.
package route

import (
	"net"
	"net/netip"
)

// Interface is one of the router's stable network attachment points:
// name, MAC and IPv4 address. Identity is (router id, interface index);
// this type itself carries neither, since it is always addressed by its
// index into a Table's Interfaces slice.
type Interface struct {
	Name string
	MAC  net.HardwareAddr
	IP   netip.Addr
}
